// media.go prepares a content unit's media once per post.
//
// Remote sources keep their public URL (most platforms ingest by URL) and
// are additionally downloaded to a scratch file when a targeted platform
// needs local bytes (YouTube uploads). Local sources are used in place.
// The returned release func removes any scratch file and must be called
// unconditionally after dispatch, success or failure.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/platform"
)

// maxMediaBytes caps a single media download.
const maxMediaBytes = 512 << 20

// MediaPreparer resolves and stages media for dispatch.
type MediaPreparer struct {
	http     *http.Client
	cacheDir string
	logger   *slog.Logger
}

// NewMediaPreparer creates a preparer that stages downloads under cacheDir.
func NewMediaPreparer(httpClient *http.Client, cacheDir string, logger *slog.Logger) *MediaPreparer {
	return &MediaPreparer{
		http:     httpClient,
		cacheDir: cacheDir,
		logger:   logger.With(slog.String("component", "media")),
	}
}

// Prepare stages the unit's media for the targeted platforms. The release
// func is never nil.
func (m *MediaPreparer) Prepare(ctx context.Context, unit *model.ContentUnit, targets model.PlatformSet) (*platform.Media, func(), error) {
	release := func() {}

	if unit.SourceURL == "" {
		return nil, release, fmt.Errorf("content unit %s has no source locator", unit.ID)
	}

	media := &platform.Media{Video: unit.Video}

	if !isRemote(unit.SourceURL) {
		// Local file: use in place, nothing to clean up.
		if _, err := os.Stat(unit.SourceURL); err != nil {
			return nil, release, fmt.Errorf("local media %s: %w", unit.SourceURL, err)
		}
		media.LocalPath = unit.SourceURL
		media.MIME = mime.TypeByExtension(filepath.Ext(unit.SourceURL))
		return media, release, nil
	}

	media.PublicURL = unit.SourceURL
	media.MIME = mime.TypeByExtension(filepath.Ext(stripQuery(unit.SourceURL)))

	if !needsLocalBytes(targets, unit.Video) {
		return media, release, nil
	}

	path, mimeType, err := m.download(ctx, unit)
	if err != nil {
		return nil, release, err
	}
	media.LocalPath = path
	if mimeType != "" {
		media.MIME = mimeType
	}

	release = func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove scratch media",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
	return media, release, nil
}

// download fetches the unit's source into a scratch file in the cache dir
// and returns the path and the server-reported content type.
func (m *MediaPreparer) download(ctx context.Context, unit *model.ContentUnit) (string, string, error) {
	if err := os.MkdirAll(m.cacheDir, 0755); err != nil {
		return "", "", fmt.Errorf("create media cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, unit.SourceURL, nil)
	if err != nil {
		return "", "", err
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("download media for unit %s: %w", unit.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("download media for unit %s: status %d", unit.ID, resp.StatusCode)
	}

	f, err := os.CreateTemp(m.cacheDir, "media-"+unit.ID+"-*"+filepath.Ext(stripQuery(unit.SourceURL)))
	if err != nil {
		return "", "", fmt.Errorf("create scratch file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, maxMediaBytes))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", "", fmt.Errorf("write scratch file: %w", err)
	}

	m.logger.Debug("media downloaded",
		slog.String("content_unit_id", unit.ID),
		slog.String("path", f.Name()),
		slog.Int64("bytes", n),
	)

	return f.Name(), resp.Header.Get("Content-Type"), nil
}

// needsLocalBytes reports whether any targeted platform uploads raw bytes
// instead of ingesting by URL.
func needsLocalBytes(targets model.PlatformSet, video bool) bool {
	return video && targets.Has(model.PlatformYouTube)
}

func isRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

// stripQuery drops a URL query so extension sniffing sees the path.
func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
