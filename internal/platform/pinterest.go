// pinterest.go creates pins via the Pinterest v5 API. AccountID holds the
// target board id; a "board" hint overrides it per post.
package platform

import (
	"context"
	"fmt"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

const pinterestPinsURL = "https://api.pinterest.com/v5/pins"

// Pinterest creates pins through the v5 API.
type Pinterest struct {
	base
}

// Name implements Adapter.
func (p *Pinterest) Name() string { return "pinterest" }

// Post implements Adapter.
func (p *Pinterest) Post(ctx context.Context, user *model.User, req *PostRequest) (*PostResponse, error) {
	acct, err := p.account(ctx, user, p.Name())
	if err != nil {
		return nil, err
	}

	board := acct.AccountID
	if hint := req.Hints["board"]; hint != "" {
		board = hint
	}
	if board == "" {
		return nil, fmt.Errorf("pinterest account for user %s has no board id", user.ID)
	}
	if req.Media == nil || req.Media.PublicURL == "" || req.Media.Video {
		return nil, fmt.Errorf("pinterest posting requires a public image URL")
	}

	body := map[string]any{
		"board_id":    board,
		"description": req.Caption,
		"media_source": map[string]any{
			"source_type": "image_url",
			"url":         req.Media.PublicURL,
		},
	}
	if link := req.Hints["link"]; link != "" {
		body["link"] = link
	}

	result, err := p.postJSON(ctx, pinterestPinsURL, acct.AccessToken, body)
	if err != nil {
		return nil, fmt.Errorf("pinterest: %w", err)
	}

	id := stringField(result, "id")
	return &PostResponse{
		PostID:    id,
		Permalink: "https://www.pinterest.com/pin/" + id,
	}, nil
}
