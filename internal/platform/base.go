// base.go holds the shared plumbing for the HTTP adapters: account lookup
// with transparent token refresh, and small request/response helpers.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// tokenSkew refreshes tokens slightly before their recorded expiry so a call
// does not race the expiration.
const tokenSkew = 2 * time.Minute

// base is embedded by every HTTP adapter.
type base struct {
	http      *http.Client
	refresher TokenRefresher
	logger    *slog.Logger
}

// account returns the user's credentials for a platform, refreshing the
// access token first when it is expired or about to expire. A successful
// refresh mutates the user's account map (marking the user dirty); this is
// the only side effect adapters have beyond their returned results.
func (b *base) account(ctx context.Context, user *model.User, platform string) (model.SocialAccount, error) {
	acct, ok := user.Account(platform)
	if !ok {
		return model.SocialAccount{}, fmt.Errorf("user %s has no %s account connected", user.ID, platform)
	}

	if acct.ExpiresAt.IsZero() || time.Now().Add(tokenSkew).Before(acct.ExpiresAt) {
		return acct, nil
	}
	if b.refresher == nil {
		return acct, nil
	}

	fresh, err := b.refresher.RefreshToken(ctx, user.ID, platform)
	if err != nil {
		return model.SocialAccount{}, fmt.Errorf("refresh %s token: %w", platform, err)
	}
	user.SetAccount(platform, *fresh)
	b.logger.Info("refreshed access token",
		slog.String("platform", platform),
		slog.String("user_id", user.ID),
	)
	return *fresh, nil
}

// postForm sends a form-encoded POST and decodes the JSON response body into
// a generic map. Non-2xx responses become errors carrying the body.
func (b *base) postForm(ctx context.Context, endpoint string, form url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

// postJSON sends a JSON POST with a bearer token and decodes the JSON
// response body into a generic map.
func (b *base) postJSON(ctx context.Context, endpoint, bearer string, body any) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return b.do(req)
}

// do executes the request and decodes the JSON body.
func (b *base) do(req *http.Request) (map[string]any, error) {
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s",
			req.Method, req.URL.Host, resp.StatusCode, truncate(string(body), 300))
	}

	result := make(map[string]any)
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return result, nil
}

// stringField extracts a string value from a decoded JSON map, tolerating
// absence.
func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
