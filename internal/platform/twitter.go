// twitter.go posts tweets via the v2 API. Media is referenced by its hosted
// URL; the length-limited platform caption is used when present.
package platform

import (
	"context"
	"fmt"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

const twitterTweetsURL = "https://api.twitter.com/2/tweets"

// Twitter posts tweets through the v2 API.
type Twitter struct {
	base
}

// Name implements Adapter.
func (t *Twitter) Name() string { return "twitter" }

// Post implements Adapter.
func (t *Twitter) Post(ctx context.Context, user *model.User, req *PostRequest) (*PostResponse, error) {
	acct, err := t.account(ctx, user, t.Name())
	if err != nil {
		return nil, err
	}

	text := req.PlatformCaption
	if text == "" {
		text = req.Caption
	}
	if req.Media != nil && req.Media.PublicURL != "" {
		if text != "" {
			text += " "
		}
		text += req.Media.PublicURL
	}
	if text == "" {
		return nil, fmt.Errorf("twitter: nothing to post")
	}

	result, err := t.postJSON(ctx, twitterTweetsURL, acct.AccessToken, map[string]any{
		"text": text,
	})
	if err != nil {
		return nil, fmt.Errorf("twitter: %w", err)
	}

	var id string
	if data, ok := result["data"].(map[string]any); ok {
		id = stringField(data, "id")
	}
	return &PostResponse{PostID: id}, nil
}
