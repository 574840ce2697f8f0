// Package dispatch fans a resolved post out to every targeted platform.
//
// The dispatcher re-validates posting eligibility before touching any
// platform, prepares the media exactly once per post, then invokes one
// adapter per set platform bit. Platform calls are isolated from each other:
// an error (or panic, or timeout) in one call becomes a failed result for
// that platform's key only and never prevents the remaining platforms from
// being attempted. Total success is not required for the post to count as
// sent; that decision belongs to the engine.
//
// Each adapter call is bounded by a configurable timeout so one stuck
// platform cannot stall the whole tick indefinitely.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/platform"
)

// DefaultCallTimeout bounds a single platform call unless configured
// otherwise.
const DefaultCallTimeout = 30 * time.Second

// ErrNotEligible is returned when the acting user may not post right now.
// The engine treats it as a skip: no platform is called, no history written.
var ErrNotEligible = errors.New("user is not eligible to post")

// EligibilityChecker is the billing/subscription collaborator. It must be
// cheap: it runs on every dispatch.
type EligibilityChecker interface {
	CanPost(ctx context.Context, userID string) (bool, error)
}

// UserSaver persists users after adapters refresh OAuth tokens.
type UserSaver interface {
	SaveUser(u *model.User) error
}

// Dispatcher posts one content unit to N platforms.
type Dispatcher struct {
	adapters    platform.Registry
	eligibility EligibilityChecker
	media       *MediaPreparer
	users       UserSaver
	callTimeout time.Duration
	logger      *slog.Logger
}

// New creates a dispatcher. callTimeout <= 0 selects DefaultCallTimeout.
func New(adapters platform.Registry, eligibility EligibilityChecker, media *MediaPreparer, users UserSaver, callTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Dispatcher{
		adapters:    adapters,
		eligibility: eligibility,
		media:       media,
		users:       users,
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "dispatcher")),
	}
}

// PostToAll dispatches the unit to every platform set in platforms and
// returns the per-platform results keyed by platform name.
//
// A non-nil error means nothing was dispatched at all (ineligibility or a
// failure before fan-out); per-platform failures are reported inside the map
// with a nil error.
func (d *Dispatcher) PostToAll(
	ctx context.Context,
	user *model.User,
	unit *model.ContentUnit,
	platforms model.PlatformSet,
	text, platformText string,
	hints map[string]string,
) (map[string]model.PlatformResult, error) {
	if err := d.checkEligibility(ctx, user); err != nil {
		return nil, err
	}

	targets := platforms.Each()
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target platforms in bitset %d", platforms)
	}

	// Prepare media once, shared across all platform calls for this post.
	// Scratch files are released unconditionally once dispatch completes.
	media, release, err := d.media.Prepare(ctx, unit, platforms)
	if err != nil {
		return nil, fmt.Errorf("prepare media for unit %s: %w", unit.ID, err)
	}
	defer release()

	req := &platform.PostRequest{
		Caption:         text,
		PlatformCaption: platformText,
		Media:           media,
		Hints:           hints,
	}

	results := make(map[string]model.PlatformResult, len(targets))
	for _, bit := range targets {
		name := bit.Name()
		adapter, ok := d.adapters[bit]
		if !ok {
			results[name] = model.PlatformResult{Success: false, Error: "no adapter registered"}
			continue
		}

		resp, err := d.callAdapter(ctx, adapter, user, req)
		if err != nil {
			d.logger.Warn("platform post failed",
				slog.String("platform", name),
				slog.String("user_id", user.ID),
				slog.String("content_unit_id", unit.ID),
				slog.String("error", err.Error()),
			)
			results[name] = model.PlatformResult{Success: false, Error: err.Error()}
			continue
		}

		d.logger.Info("platform post succeeded",
			slog.String("platform", name),
			slog.String("post_id", resp.PostID),
		)
		results[name] = model.PlatformResult{Success: true, PostID: resp.PostID}
	}

	// Adapters may have refreshed tokens; persist the mutation through the
	// user store. A failure here is logged, not fatal: the post went out.
	if user.TokensDirty {
		if err := d.users.SaveUser(user); err != nil {
			d.logger.Error("failed to persist refreshed tokens",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		} else {
			user.TokensDirty = false
		}
	}

	return results, nil
}

// checkEligibility applies the super-admin/free-tier bypass, then asks the
// billing collaborator.
func (d *Dispatcher) checkEligibility(ctx context.Context, user *model.User) error {
	if user.Role == "admin" || user.FreeTier {
		return nil
	}

	ok, err := d.eligibility.CanPost(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("eligibility check for user %s: %w", user.ID, err)
	}
	if !ok {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotEligible)
	}
	return nil
}

// callAdapter invokes one adapter with the per-call timeout and converts a
// panic into an error so one platform cannot take down the tick.
func (d *Dispatcher) callAdapter(ctx context.Context, adapter platform.Adapter, user *model.User, req *platform.PostRequest) (resp *platform.PostResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	return adapter.Post(callCtx, user, req)
}
