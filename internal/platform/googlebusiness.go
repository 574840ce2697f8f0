// googlebusiness.go creates local posts on a Google Business Profile
// location. AccountID holds the "accounts/{a}/locations/{l}" resource name.
package platform

import (
	"context"
	"fmt"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

const gbpBaseURL = "https://mybusiness.googleapis.com/v4"

// GoogleBusiness creates local posts on a Business Profile location.
type GoogleBusiness struct {
	base
}

// Name implements Adapter.
func (g *GoogleBusiness) Name() string { return "googlebusiness" }

// Post implements Adapter.
func (g *GoogleBusiness) Post(ctx context.Context, user *model.User, req *PostRequest) (*PostResponse, error) {
	acct, err := g.account(ctx, user, g.Name())
	if err != nil {
		return nil, err
	}
	if acct.AccountID == "" {
		return nil, fmt.Errorf("googlebusiness account for user %s has no location resource", user.ID)
	}

	body := map[string]any{
		"languageCode": "en",
		"summary":      req.Caption,
		"topicType":    "STANDARD",
	}
	if req.Media != nil && req.Media.PublicURL != "" && !req.Media.Video {
		body["media"] = []map[string]any{{
			"mediaFormat": "PHOTO",
			"sourceUrl":   req.Media.PublicURL,
		}}
	}

	endpoint := fmt.Sprintf("%s/%s/localPosts", gbpBaseURL, acct.AccountID)
	result, err := g.postJSON(ctx, endpoint, acct.AccessToken, body)
	if err != nil {
		return nil, fmt.Errorf("googlebusiness: %w", err)
	}

	return &PostResponse{
		PostID:    stringField(result, "name"),
		Permalink: stringField(result, "searchUrl"),
	}, nil
}
