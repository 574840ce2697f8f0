// facebook.go posts to a Facebook page via the Graph API.
//
// Images use the page /photos edge with a public URL when available and
// videos use /videos. The page access token comes from the user's connected
// facebook account; AccountID holds the page id.
package platform

import (
	"context"
	"fmt"
	"net/url"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

const graphBaseURL = "https://graph.facebook.com/v19.0"

// Facebook posts page photos and videos through the Graph API.
type Facebook struct {
	base
}

// Name implements Adapter.
func (f *Facebook) Name() string { return "facebook" }

// Post implements Adapter.
func (f *Facebook) Post(ctx context.Context, user *model.User, req *PostRequest) (*PostResponse, error) {
	acct, err := f.account(ctx, user, f.Name())
	if err != nil {
		return nil, err
	}
	if acct.AccountID == "" {
		return nil, fmt.Errorf("facebook account for user %s has no page id", user.ID)
	}
	if req.Media == nil || req.Media.PublicURL == "" {
		return nil, fmt.Errorf("facebook posting requires a public media URL")
	}

	edge := "photos"
	mediaField := "url"
	if req.Media.Video {
		edge = "videos"
		mediaField = "file_url"
	}

	form := url.Values{}
	form.Set(mediaField, req.Media.PublicURL)
	form.Set("caption", req.Caption)
	form.Set("access_token", acct.AccessToken)
	if req.Media.Video {
		// The videos edge takes description instead of caption.
		form.Del("caption")
		form.Set("description", req.Caption)
		if title := req.Hints["title"]; title != "" {
			form.Set("title", title)
		}
	}

	endpoint := fmt.Sprintf("%s/%s/%s", graphBaseURL, acct.AccountID, edge)
	result, err := f.postForm(ctx, endpoint, form)
	if err != nil {
		return nil, fmt.Errorf("facebook: %w", err)
	}

	id := stringField(result, "id")
	if id == "" {
		id = stringField(result, "post_id")
	}
	return &PostResponse{
		PostID:    id,
		Permalink: "https://www.facebook.com/" + id,
	}, nil
}
