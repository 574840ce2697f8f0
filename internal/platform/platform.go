// Package platform contains the per-platform posting adapters and the
// uniform interface the dispatcher fans out over.
//
// Every adapter exposes the same shape: Post(user, request) returning a
// response or an error. Adapters are independently failable; the dispatcher
// never assumes a shared transaction across them. Adapters may refresh a
// user's access token through the token refresher (the central server owns
// the OAuth app credentials); a refresh mutates the user's account map and
// marks the user dirty so the dispatcher persists it afterwards.
package platform

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// Media is the prepared media for one post, shared across all platform calls
// for that post. Preparation happens once in the dispatcher, before fan-out.
type Media struct {
	// LocalPath is a readable file on disk. Empty when the source was remote
	// and no download was needed by any targeted platform.
	LocalPath string

	// PublicURL is the original http(s) locator, if the source was remote.
	// Platforms that ingest by URL prefer this over re-uploading bytes.
	PublicURL string

	// MIME is the detected content type.
	MIME string

	// Video marks video content.
	Video bool
}

// PostRequest carries everything an adapter needs for one platform call.
type PostRequest struct {
	// Caption is the general resolved text.
	Caption string

	// PlatformCaption is the platform-specific (shorter) text. Adapters for
	// length-limited platforms use this; others use Caption.
	PlatformCaption string

	Media *Media

	// Hints are free-form per-post options (board name, video title, ...)
	// passed through from the schedule definition.
	Hints map[string]string
}

// PostResponse is a successful platform-side result.
type PostResponse struct {
	PostID    string
	Permalink string
}

// Adapter posts one content unit to one platform on behalf of a user.
type Adapter interface {
	// Name returns the canonical platform name (matches model.PlatformSet names).
	Name() string

	// Post publishes the request. It returns an error on any failure; the
	// dispatcher isolates it from sibling platforms.
	Post(ctx context.Context, user *model.User, req *PostRequest) (*PostResponse, error)
}

// TokenRefresher exchanges an expired access token for a fresh one. The
// central server performs the actual OAuth refresh (it holds the app
// secrets); the worker only persists the result.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, userID, platform string) (*model.SocialAccount, error)
}

// Registry maps platform bits to adapters.
type Registry map[model.PlatformSet]Adapter

// NewRegistry builds the full adapter set over a shared HTTP client.
func NewRegistry(httpClient *http.Client, refresher TokenRefresher, logger *slog.Logger) Registry {
	base := base{
		http:      httpClient,
		refresher: refresher,
		logger:    logger,
	}
	return Registry{
		model.PlatformFacebook:       &Facebook{base: base},
		model.PlatformTwitter:        &Twitter{base: base},
		model.PlatformInstagram:      &Instagram{base: base},
		model.PlatformLinkedIn:       &LinkedIn{base: base},
		model.PlatformGoogleBusiness: &GoogleBusiness{base: base},
		model.PlatformPinterest:      &Pinterest{base: base},
		model.PlatformYouTube:        &YouTube{base: base},
	}
}
