// instagram.go posts via the Instagram Graph API's two-step container flow:
// create a media container from a public URL, then publish it.
package platform

import (
	"context"
	"fmt"
	"net/url"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// Instagram posts through the Instagram Graph API.
type Instagram struct {
	base
}

// Name implements Adapter.
func (ig *Instagram) Name() string { return "instagram" }

// Post implements Adapter.
func (ig *Instagram) Post(ctx context.Context, user *model.User, req *PostRequest) (*PostResponse, error) {
	acct, err := ig.account(ctx, user, ig.Name())
	if err != nil {
		return nil, err
	}
	if acct.AccountID == "" {
		return nil, fmt.Errorf("instagram account for user %s has no business account id", user.ID)
	}
	if req.Media == nil || req.Media.PublicURL == "" {
		return nil, fmt.Errorf("instagram posting requires a public media URL")
	}

	// Step 1: create the media container.
	form := url.Values{}
	form.Set("caption", req.Caption)
	form.Set("access_token", acct.AccessToken)
	if req.Media.Video {
		form.Set("media_type", "REELS")
		form.Set("video_url", req.Media.PublicURL)
	} else {
		form.Set("image_url", req.Media.PublicURL)
	}

	createURL := fmt.Sprintf("%s/%s/media", graphBaseURL, acct.AccountID)
	created, err := ig.postForm(ctx, createURL, form)
	if err != nil {
		return nil, fmt.Errorf("instagram create container: %w", err)
	}
	containerID := stringField(created, "id")
	if containerID == "" {
		return nil, fmt.Errorf("instagram create container: no container id in response")
	}

	// Step 2: publish the container.
	publish := url.Values{}
	publish.Set("creation_id", containerID)
	publish.Set("access_token", acct.AccessToken)

	publishURL := fmt.Sprintf("%s/%s/media_publish", graphBaseURL, acct.AccountID)
	published, err := ig.postForm(ctx, publishURL, publish)
	if err != nil {
		return nil, fmt.Errorf("instagram publish: %w", err)
	}

	return &PostResponse{PostID: stringField(published, "id")}, nil
}
