// youtube.go uploads videos via the YouTube Data API resumable upload flow:
// start a session with the snippet metadata, then PUT the video bytes from
// the prepared scratch file.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

const youtubeUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"

// YouTube uploads videos through the Data API.
type YouTube struct {
	base
}

// Name implements Adapter.
func (y *YouTube) Name() string { return "youtube" }

// Post implements Adapter.
func (y *YouTube) Post(ctx context.Context, user *model.User, req *PostRequest) (*PostResponse, error) {
	acct, err := y.account(ctx, user, y.Name())
	if err != nil {
		return nil, err
	}
	if req.Media == nil || !req.Media.Video {
		return nil, fmt.Errorf("youtube posting requires video content")
	}
	if req.Media.LocalPath == "" {
		return nil, fmt.Errorf("youtube upload requires a local media file")
	}

	title := req.Hints["title"]
	if title == "" {
		title = req.Caption
	}

	meta := map[string]any{
		"snippet": map[string]any{
			"title":       title,
			"description": req.Caption,
		},
		"status": map[string]any{
			"privacyStatus": "public",
		},
	}

	uploadURL, err := y.startSession(ctx, acct.AccessToken, meta)
	if err != nil {
		return nil, fmt.Errorf("youtube start upload: %w", err)
	}

	return y.uploadFile(ctx, uploadURL, acct.AccessToken, req.Media)
}

// startSession begins a resumable upload and returns the session URL from
// the Location header.
func (y *YouTube) startSession(ctx context.Context, bearer string, meta map[string]any) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, youtubeUploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d starting session", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("no upload session location")
	}
	return loc, nil
}

// uploadFile streams the scratch file to the session URL.
func (y *YouTube) uploadFile(ctx context.Context, uploadURL, bearer string, media *Media) (*PostResponse, error) {
	f, err := os.Open(media.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("youtube open media: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, f)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if media.MIME != "" {
		req.Header.Set("Content-Type", media.MIME)
	}
	if info, err := f.Stat(); err == nil {
		req.ContentLength = info.Size()
	}

	resp, err := y.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("youtube read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("youtube upload: status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("youtube decode response: %w", err)
	}

	return &PostResponse{
		PostID:    result.ID,
		Permalink: "https://www.youtube.com/watch?v=" + result.ID,
	}, nil
}
