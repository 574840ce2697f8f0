// Package resolver decides which content unit a schedule posts next and how
// its captions are assembled.
//
// Unit resolution applies to legacy and rotation schedules only; multi-item
// schedules name their units directly and are resolved per item by the
// engine. Rotation schedules delegate "next due unit" to the collection
// collaborator (the central server owns per-unit force-send dates and
// rotation order), so the worker never reimplements that computation.
//
// Caption precedence is uniform across both paths:
// item/schedule-level override, then schedule description, then the content
// unit's own description, then the empty string. Platform-specific text uses
// the same chain and falls back to the resolved general description when no
// platform-specific override exists at any level.
package resolver

import (
	"context"
	"fmt"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// UnitGetter reads content units from the local read model.
type UnitGetter interface {
	GetContentUnit(id string) (*model.ContentUnit, error)
}

// CollectionSource is the external collaborator that computes the next due
// content unit for a rotation schedule's collection.
type CollectionSource interface {
	NextDueContentUnit(ctx context.Context, collectionID string) (*model.ContentUnit, error)
}

// Resolver resolves content units and captions for schedules.
type Resolver struct {
	units  UnitGetter
	source CollectionSource
}

// New creates a resolver over the local read model and the collection
// collaborator.
func New(units UnitGetter, source CollectionSource) *Resolver {
	return &Resolver{units: units, source: source}
}

// ResolveNext returns the content unit the schedule should post this tick,
// or nil when nothing resolves (e.g. the rotation is exhausted). It must not
// be called for multi-item schedules.
func (r *Resolver) ResolveNext(ctx context.Context, sched *model.Schedule) (*model.ContentUnit, error) {
	if sched.HasItems() {
		return nil, fmt.Errorf("schedule %s has items; items are resolved per item", sched.ID)
	}

	// Legacy mode: a single fixed unit.
	if sched.ContentUnitID != "" {
		unit, err := r.units.GetContentUnit(sched.ContentUnitID)
		if err != nil {
			return nil, fmt.Errorf("get content unit %s: %w", sched.ContentUnitID, err)
		}
		return unit, nil
	}

	// Rotation mode: delegate to the collection's due computation.
	unit, err := r.source.NextDueContentUnit(ctx, sched.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("next due unit for collection %s: %w", sched.CollectionID, err)
	}
	return unit, nil
}

// Caption resolves the general description for a post. item may be nil on
// the legacy/rotation path.
func Caption(item *model.ScheduleItem, sched *model.Schedule, unit *model.ContentUnit) string {
	if item != nil && item.Description != "" {
		return item.Description
	}
	if sched.Description != "" {
		return sched.Description
	}
	if unit != nil && unit.Description != "" {
		return unit.Description
	}
	return ""
}

// PlatformCaption resolves the platform-specific (length-limited) text using
// the same precedence chain, falling back to the resolved general caption
// when no platform-specific override exists at any level.
func PlatformCaption(item *model.ScheduleItem, sched *model.Schedule, unit *model.ContentUnit) string {
	if item != nil && item.PlatformDescription != "" {
		return item.PlatformDescription
	}
	if sched.PlatformDescription != "" {
		return sched.PlatformDescription
	}
	if unit != nil && unit.PlatformDescription != "" {
		return unit.PlatformDescription
	}
	return Caption(item, sched, unit)
}
