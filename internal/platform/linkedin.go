// linkedin.go posts member/organization shares via the LinkedIn Posts API.
package platform

import (
	"context"
	"fmt"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

const linkedinPostsURL = "https://api.linkedin.com/rest/posts"

// LinkedIn posts shares through the Posts API. AccountID holds the author
// URN (person or organization).
type LinkedIn struct {
	base
}

// Name implements Adapter.
func (l *LinkedIn) Name() string { return "linkedin" }

// Post implements Adapter.
func (l *LinkedIn) Post(ctx context.Context, user *model.User, req *PostRequest) (*PostResponse, error) {
	acct, err := l.account(ctx, user, l.Name())
	if err != nil {
		return nil, err
	}
	if acct.AccountID == "" {
		return nil, fmt.Errorf("linkedin account for user %s has no author urn", user.ID)
	}

	body := map[string]any{
		"author":     acct.AccountID,
		"commentary": req.Caption,
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution": "MAIN_FEED",
		},
		"lifecycleState": "PUBLISHED",
	}
	if req.Media != nil && req.Media.PublicURL != "" {
		body["content"] = map[string]any{
			"article": map[string]any{
				"source": req.Media.PublicURL,
				"title":  req.Hints["title"],
			},
		}
	}

	result, err := l.postJSON(ctx, linkedinPostsURL, acct.AccessToken, body)
	if err != nil {
		return nil, fmt.Errorf("linkedin: %w", err)
	}

	return &PostResponse{PostID: stringField(result, "id")}, nil
}
