// resolver_test.go tests unit resolution modes and caption precedence.
package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// fakeUnits is an in-memory UnitGetter.
type fakeUnits map[string]*model.ContentUnit

func (f fakeUnits) GetContentUnit(id string) (*model.ContentUnit, error) {
	return f[id], nil
}

// fakeSource is a canned CollectionSource.
type fakeSource struct {
	unit *model.ContentUnit
	err  error

	calledWith string
}

func (f *fakeSource) NextDueContentUnit(ctx context.Context, collectionID string) (*model.ContentUnit, error) {
	f.calledWith = collectionID
	return f.unit, f.err
}

func TestResolveNext_FixedUnit(t *testing.T) {
	unit := &model.ContentUnit{ID: "u1", CollectionID: "c1"}
	r := New(fakeUnits{"u1": unit}, &fakeSource{})

	sched := &model.Schedule{ID: "s1", CollectionID: "c1", ContentUnitID: "u1"}
	got, err := r.ResolveNext(context.Background(), sched)
	if err != nil {
		t.Fatalf("ResolveNext: %v", err)
	}
	if got != unit {
		t.Errorf("expected fixed unit u1, got %+v", got)
	}
}

func TestResolveNext_FixedUnitMissing(t *testing.T) {
	r := New(fakeUnits{}, &fakeSource{})
	sched := &model.Schedule{ID: "s1", ContentUnitID: "gone"}

	got, err := r.ResolveNext(context.Background(), sched)
	if err != nil {
		t.Fatalf("ResolveNext: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing fixed unit, got %+v", got)
	}
}

func TestResolveNext_RotationDelegates(t *testing.T) {
	unit := &model.ContentUnit{ID: "u2", CollectionID: "c1"}
	source := &fakeSource{unit: unit}
	r := New(fakeUnits{}, source)

	sched := &model.Schedule{ID: "s1", CollectionID: "c1"}
	got, err := r.ResolveNext(context.Background(), sched)
	if err != nil {
		t.Fatalf("ResolveNext: %v", err)
	}
	if got != unit {
		t.Errorf("expected delegated unit, got %+v", got)
	}
	if source.calledWith != "c1" {
		t.Errorf("expected delegation with collection c1, got %q", source.calledWith)
	}
}

func TestResolveNext_RotationExhausted(t *testing.T) {
	r := New(fakeUnits{}, &fakeSource{unit: nil})
	sched := &model.Schedule{ID: "s1", CollectionID: "c1"}

	got, err := r.ResolveNext(context.Background(), sched)
	if err != nil {
		t.Fatalf("ResolveNext: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil when rotation is exhausted, got %+v", got)
	}
}

func TestResolveNext_SourceError(t *testing.T) {
	r := New(fakeUnits{}, &fakeSource{err: errors.New("boom")})
	sched := &model.Schedule{ID: "s1", CollectionID: "c1"}

	if _, err := r.ResolveNext(context.Background(), sched); err == nil {
		t.Fatal("expected error from collection source")
	}
}

func TestResolveNext_RejectsItemSchedules(t *testing.T) {
	r := New(fakeUnits{}, &fakeSource{})
	sched := &model.Schedule{
		ID:    "s1",
		Items: []model.ScheduleItem{{ID: "i1"}},
	}

	if _, err := r.ResolveNext(context.Background(), sched); err == nil {
		t.Fatal("expected error for multi-item schedule")
	}
}

func TestCaption_Precedence(t *testing.T) {
	sched := &model.Schedule{Description: "S"}
	unit := &model.ContentUnit{Description: "C"}

	tests := []struct {
		name string
		item *model.ScheduleItem
		want string
	}{
		{"nil item falls back to schedule", nil, "S"},
		{"empty item description falls back to schedule", &model.ScheduleItem{}, "S"},
		{"item override wins", &model.ScheduleItem{Description: "I"}, "I"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Caption(tt.item, sched, unit); got != tt.want {
				t.Errorf("Caption = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCaption_UnitFallback(t *testing.T) {
	sched := &model.Schedule{}
	unit := &model.ContentUnit{Description: "C"}

	if got := Caption(nil, sched, unit); got != "C" {
		t.Errorf("Caption = %q, want C", got)
	}
	if got := Caption(nil, sched, &model.ContentUnit{}); got != "" {
		t.Errorf("Caption = %q, want empty", got)
	}
	if got := Caption(nil, sched, nil); got != "" {
		t.Errorf("Caption with nil unit = %q, want empty", got)
	}
}

func TestPlatformCaption_FallsBackToGeneral(t *testing.T) {
	sched := &model.Schedule{Description: "S"}
	unit := &model.ContentUnit{}

	// No platform-specific override anywhere: fall back to resolved general.
	if got := PlatformCaption(nil, sched, unit); got != "S" {
		t.Errorf("PlatformCaption = %q, want S", got)
	}

	// Schedule-level platform override wins over the general chain.
	sched.PlatformDescription = "S-short"
	if got := PlatformCaption(nil, sched, unit); got != "S-short" {
		t.Errorf("PlatformCaption = %q, want S-short", got)
	}

	// Item-level platform override wins over schedule-level.
	item := &model.ScheduleItem{PlatformDescription: "I-short"}
	if got := PlatformCaption(item, sched, unit); got != "I-short" {
		t.Errorf("PlatformCaption = %q, want I-short", got)
	}
}
