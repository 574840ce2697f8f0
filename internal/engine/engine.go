// Package engine implements the per-tick scheduling pass.
//
// RunOnce enumerates every active schedule, decides due-ness from the
// schedule's time expression and the wall clock, applies the type-specific
// dedup gate against send history, resolves the content unit, dispatches it
// and records the outcome. Every schedule (and every item of a multi-item
// schedule) is isolated: an error or panic in one never stops the pass over
// the rest, and errors are logged, never returned to the caller.
//
// There is no persisted in-flight state. Due-ness is recomputed fresh every
// tick from wall-clock time and history, which makes the history-existence
// dedup gate load-bearing: a crash after posting but before the history
// write will reissue the post on the next matching tick. That is the
// accepted failure mode, inherited from the sequential design.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/cronexpr"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/dispatch"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/resolver"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/store"
)

// Poster is the dispatch collaborator. Satisfied by *dispatch.Dispatcher.
type Poster interface {
	PostToAll(ctx context.Context, user *model.User, unit *model.ContentUnit,
		platforms model.PlatformSet, text, platformText string,
		hints map[string]string) (map[string]model.PlatformResult, error)
}

// Engine drives one scheduling pass per tick.
type Engine struct {
	store      *store.Store
	resolver   *resolver.Resolver
	dispatcher Poster
	logger     *slog.Logger

	// nowFn is swapped in tests to simulate specific clock minutes.
	nowFn func() time.Time
}

// New creates an engine over the store, resolver and dispatcher.
func New(st *store.Store, res *resolver.Resolver, dispatcher Poster, logger *slog.Logger) *Engine {
	return &Engine{
		store:      st,
		resolver:   res,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "engine")),
		nowFn:      time.Now,
	}
}

// RunOnce performs a single synchronous pass over all active schedules.
// It never returns an error: failures are logged per schedule and the pass
// continues.
func (e *Engine) RunOnce(ctx context.Context) {
	schedules, err := e.store.ActiveSchedules()
	if err != nil {
		e.logger.Error("failed to load active schedules",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(schedules) == 0 {
		e.logger.Debug("no active schedules")
		return
	}

	now := e.nowFn()
	var sent int
	for _, sched := range schedules {
		select {
		case <-ctx.Done():
			e.logger.Info("tick interrupted by shutdown")
			return
		default:
		}
		sent += e.processSchedule(ctx, sched, now)
	}

	if sent > 0 {
		e.logger.Info("tick complete",
			slog.Int("schedules", len(schedules)),
			slog.Int("posts_sent", sent),
		)
	}
}

// processSchedule evaluates one schedule for this tick and returns the
// number of posts sent. Panics and errors are contained here so one broken
// schedule cannot abort the pass.
func (e *Engine) processSchedule(ctx context.Context, sched *model.Schedule, now time.Time) (sent int) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while processing schedule",
				slog.String("schedule_id", sched.ID),
				slog.Any("panic", r),
			)
		}
	}()

	// Orphaned schedules (deleted user or collection) are skipped, not
	// errors: the CRUD layer may race deletions against the tick.
	user, err := e.store.GetUser(sched.UserID)
	if err != nil {
		e.logger.Error("failed to load user",
			slog.String("schedule_id", sched.ID),
			slog.String("user_id", sched.UserID),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if user == nil {
		e.logger.Debug("skipping schedule without user",
			slog.String("schedule_id", sched.ID),
		)
		return 0
	}

	coll, err := e.store.GetCollection(sched.CollectionID)
	if err != nil {
		e.logger.Error("failed to load collection",
			slog.String("schedule_id", sched.ID),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if coll == nil {
		e.logger.Debug("skipping schedule without collection",
			slog.String("schedule_id", sched.ID),
		)
		return 0
	}

	if sched.HasItems() {
		// Items are enumerated in position order; one item's failure does
		// not stop its siblings.
		for i := range sched.Items {
			item := &sched.Items[i]
			ok, err := e.processItem(ctx, sched, item, user, now)
			if err != nil {
				e.logger.Error("schedule item failed",
					slog.String("schedule_id", sched.ID),
					slog.String("item_id", item.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if ok {
				sent++
			}
		}
		return sent
	}

	ok, err := e.processLegacy(ctx, sched, user, now)
	if err != nil {
		e.logger.Error("schedule failed",
			slog.String("schedule_id", sched.ID),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if ok {
		sent++
	}
	return sent
}

// processItem evaluates one item of a multi-item schedule. It reports
// whether a post was sent.
func (e *Engine) processItem(ctx context.Context, sched *model.Schedule, item *model.ScheduleItem, user *model.User, now time.Time) (bool, error) {
	if !cronexpr.IsDue(item.TimeExpression, now) {
		return false, nil
	}

	unit, err := e.store.GetContentUnit(item.ContentUnitID)
	if err != nil {
		return false, fmt.Errorf("load content unit %s: %w", item.ContentUnitID, err)
	}
	if unit == nil {
		e.logger.Warn("schedule item references missing content unit",
			slog.String("schedule_id", sched.ID),
			slog.String("item_id", item.ID),
			slog.String("content_unit_id", item.ContentUnitID),
		)
		return false, nil
	}

	dup, err := e.isDuplicate(sched, unit.ID, item.ID, now)
	if err != nil {
		return false, err
	}
	if dup {
		return false, nil
	}

	text := resolver.Caption(item, sched, unit)
	platformText := resolver.PlatformCaption(item, sched, unit)
	return e.send(ctx, sched, item.ID, unit, user, text, platformText, now)
}

// processLegacy evaluates a schedule without items: a single fixed unit or a
// rotation draw from the collection.
func (e *Engine) processLegacy(ctx context.Context, sched *model.Schedule, user *model.User, now time.Time) (bool, error) {
	if !cronexpr.IsDue(sched.TimeExpression, now) {
		return false, nil
	}

	// The annual gate only needs the schedule, so it runs before resolution
	// and spares the collection collaborator a call.
	if sched.Type == model.ScheduleAnnually {
		dup, err := e.store.AlreadySentThisYear(sched.ID, now)
		if err != nil {
			return false, err
		}
		if dup {
			return false, nil
		}
	}

	unit, err := e.resolver.ResolveNext(ctx, sched)
	if err != nil {
		return false, err
	}
	if unit == nil {
		// Rotation exhausted or fixed unit deleted: silent skip.
		e.logger.Debug("no content unit resolved",
			slog.String("schedule_id", sched.ID),
		)
		return false, nil
	}

	dup, err := e.isDuplicate(sched, unit.ID, "", now)
	if err != nil {
		return false, err
	}
	if dup {
		return false, nil
	}

	text := resolver.Caption(nil, sched, unit)
	platformText := resolver.PlatformCaption(nil, sched, unit)
	return e.send(ctx, sched, "", unit, user, text, platformText, now)
}

// isDuplicate applies the type-specific dedup gate. The annual gate is also
// re-applied here for the item path, where it was not checked earlier.
func (e *Engine) isDuplicate(sched *model.Schedule, contentUnitID, itemID string, now time.Time) (bool, error) {
	switch sched.Type {
	case model.ScheduleOnce:
		return e.store.AlreadySent(sched.ID, contentUnitID, itemID)
	case model.ScheduleAnnually:
		return e.store.AlreadySentThisYear(sched.ID, now)
	default:
		// Rotation: guard only against the same due window firing twice.
		return e.store.AlreadySentInMinute(sched.ID, contentUnitID, itemID, now)
	}
}

// send dispatches the resolved unit and records the outcome. A dispatch-level
// failure (ineligibility, media preparation) writes no history and does not
// advance the counter; per-platform partial failure still counts as sent.
func (e *Engine) send(ctx context.Context, sched *model.Schedule, itemID string, unit *model.ContentUnit, user *model.User, text, platformText string, now time.Time) (bool, error) {
	results, err := e.dispatcher.PostToAll(ctx, user, unit, sched.Platforms, text, platformText, sched.Hints)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotEligible) {
			e.logger.Info("skipping dispatch: user not eligible",
				slog.String("schedule_id", sched.ID),
				slog.String("user_id", user.ID),
			)
			return false, nil
		}
		return false, fmt.Errorf("dispatch: %w", err)
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed == len(results) {
		// Still recorded as sent. Preserved behavior: a fully failed post is
		// indistinguishable from a successful one at the schedule level.
		e.logger.Warn("all platforms failed for post",
			slog.String("schedule_id", sched.ID),
			slog.String("content_unit_id", unit.ID),
			slog.Int("platforms", len(results)),
		)
	}

	entry := &model.SendHistory{
		ScheduleID:     sched.ID,
		ContentUnitID:  unit.ID,
		ScheduleItemID: itemID,
		Platforms:      sched.Platforms,
		Text:           text,
		Results:        results,
		SentAt:         now,
	}
	if err := e.store.RecordHistory(entry); err != nil {
		return false, fmt.Errorf("record history: %w", err)
	}
	if err := e.store.IncrementTimesSent(sched.ID); err != nil {
		return false, fmt.Errorf("increment times sent: %w", err)
	}

	e.logger.Info("post dispatched",
		slog.String("schedule_id", sched.ID),
		slog.String("content_unit_id", unit.ID),
		slog.Int("platforms_ok", len(results)-failed),
		slog.Int("platforms_failed", failed),
	)
	return true, nil
}
