// dispatcher_test.go tests eligibility gating, per-platform failure
// isolation, token persistence and scratch media release.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/platform"
)

// fakeAdapter is a scriptable platform adapter.
type fakeAdapter struct {
	name     string
	err      error
	panicMsg string

	calls     int
	lastMedia *platform.Media
	refresh   bool // simulate a token refresh during the call
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Post(ctx context.Context, user *model.User, req *platform.PostRequest) (*platform.PostResponse, error) {
	f.calls++
	f.lastMedia = req.Media
	if f.refresh {
		user.SetAccount(f.name, model.SocialAccount{AccessToken: "fresh"})
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &platform.PostResponse{PostID: f.name + "-post-1"}, nil
}

// fakeEligibility is a scriptable billing collaborator.
type fakeEligibility struct {
	allowed bool
	err     error
	calls   int
}

func (f *fakeEligibility) CanPost(ctx context.Context, userID string) (bool, error) {
	f.calls++
	return f.allowed, f.err
}

// fakeUsers records SaveUser calls.
type fakeUsers struct {
	saved int
}

func (f *fakeUsers) SaveUser(u *model.User) error {
	f.saved++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// localUnit creates a content unit backed by a real temp file so media
// preparation succeeds without a network.
func localUnit(t *testing.T) *model.ContentUnit {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.jpg")
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return &model.ContentUnit{ID: "u1", SourceURL: path}
}

func newTestDispatcher(t *testing.T, registry platform.Registry, elig *fakeEligibility, users *fakeUsers) *Dispatcher {
	t.Helper()
	media := NewMediaPreparer(http.DefaultClient, t.TempDir(), testLogger())
	return New(registry, elig, media, users, time.Second, testLogger())
}

func TestPostToAll_PartialFailureIsolation(t *testing.T) {
	fb := &fakeAdapter{name: "facebook", err: errors.New("graph api rejected")}
	tw := &fakeAdapter{name: "twitter"}
	registry := platform.Registry{
		model.PlatformFacebook: fb,
		model.PlatformTwitter:  tw,
	}

	d := newTestDispatcher(t, registry, &fakeEligibility{allowed: true}, &fakeUsers{})
	user := &model.User{ID: "user1"}

	results, err := d.PostToAll(context.Background(), user, localUnit(t),
		model.PlatformFacebook|model.PlatformTwitter, "hello", "", nil)
	if err != nil {
		t.Fatalf("PostToAll: %v", err)
	}

	if r := results["facebook"]; r.Success || r.Error == "" {
		t.Errorf("expected facebook failure with error, got %+v", r)
	}
	if r := results["twitter"]; !r.Success {
		t.Errorf("expected twitter success, got %+v", r)
	}
	if fb.calls != 1 || tw.calls != 1 {
		t.Errorf("expected both adapters invoked once, got fb=%d tw=%d", fb.calls, tw.calls)
	}
}

func TestPostToAll_PanicIsolation(t *testing.T) {
	fb := &fakeAdapter{name: "facebook", panicMsg: "nil deref"}
	tw := &fakeAdapter{name: "twitter"}
	registry := platform.Registry{
		model.PlatformFacebook: fb,
		model.PlatformTwitter:  tw,
	}

	d := newTestDispatcher(t, registry, &fakeEligibility{allowed: true}, &fakeUsers{})

	results, err := d.PostToAll(context.Background(), &model.User{ID: "user1"}, localUnit(t),
		model.PlatformFacebook|model.PlatformTwitter, "hello", "", nil)
	if err != nil {
		t.Fatalf("PostToAll: %v", err)
	}
	if r := results["facebook"]; r.Success {
		t.Errorf("expected panicking adapter to report failure, got %+v", r)
	}
	if tw.calls != 1 {
		t.Error("expected twitter still invoked after facebook panicked")
	}
}

func TestPostToAll_IneligibleTouchesNoPlatform(t *testing.T) {
	fb := &fakeAdapter{name: "facebook"}
	registry := platform.Registry{model.PlatformFacebook: fb}

	d := newTestDispatcher(t, registry, &fakeEligibility{allowed: false}, &fakeUsers{})

	_, err := d.PostToAll(context.Background(), &model.User{ID: "user1"}, localUnit(t),
		model.PlatformFacebook, "hello", "", nil)
	if !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
	if fb.calls != 0 {
		t.Error("expected no adapter call for ineligible user")
	}
}

func TestPostToAll_AdminBypassesEligibility(t *testing.T) {
	fb := &fakeAdapter{name: "facebook"}
	registry := platform.Registry{model.PlatformFacebook: fb}
	elig := &fakeEligibility{allowed: false}

	d := newTestDispatcher(t, registry, elig, &fakeUsers{})

	_, err := d.PostToAll(context.Background(), &model.User{ID: "user1", Role: "admin"}, localUnit(t),
		model.PlatformFacebook, "hello", "", nil)
	if err != nil {
		t.Fatalf("PostToAll: %v", err)
	}
	if elig.calls != 0 {
		t.Error("expected admin to bypass the eligibility check")
	}
}

func TestPostToAll_EligibilityErrorAbortsDispatch(t *testing.T) {
	fb := &fakeAdapter{name: "facebook"}
	registry := platform.Registry{model.PlatformFacebook: fb}

	d := newTestDispatcher(t, registry, &fakeEligibility{err: errors.New("billing down")}, &fakeUsers{})

	_, err := d.PostToAll(context.Background(), &model.User{ID: "user1"}, localUnit(t),
		model.PlatformFacebook, "hello", "", nil)
	if err == nil {
		t.Fatal("expected error when eligibility check fails")
	}
	if fb.calls != 0 {
		t.Error("expected no adapter call when eligibility check errors")
	}
}

func TestPostToAll_PersistsRefreshedTokens(t *testing.T) {
	fb := &fakeAdapter{name: "facebook", refresh: true}
	registry := platform.Registry{model.PlatformFacebook: fb}
	users := &fakeUsers{}

	d := newTestDispatcher(t, registry, &fakeEligibility{allowed: true}, users)
	user := &model.User{ID: "user1"}

	if _, err := d.PostToAll(context.Background(), user, localUnit(t),
		model.PlatformFacebook, "hello", "", nil); err != nil {
		t.Fatalf("PostToAll: %v", err)
	}
	if users.saved != 1 {
		t.Errorf("expected refreshed user saved once, saved %d times", users.saved)
	}
	if user.TokensDirty {
		t.Error("expected dirty flag cleared after save")
	}
}

func TestPostToAll_MissingAdapterReportedPerPlatform(t *testing.T) {
	tw := &fakeAdapter{name: "twitter"}
	registry := platform.Registry{model.PlatformTwitter: tw}

	d := newTestDispatcher(t, registry, &fakeEligibility{allowed: true}, &fakeUsers{})

	results, err := d.PostToAll(context.Background(), &model.User{ID: "user1"}, localUnit(t),
		model.PlatformFacebook|model.PlatformTwitter, "hello", "", nil)
	if err != nil {
		t.Fatalf("PostToAll: %v", err)
	}
	if r := results["facebook"]; r.Success {
		t.Errorf("expected failure for unregistered platform, got %+v", r)
	}
	if r := results["twitter"]; !r.Success {
		t.Errorf("expected twitter success, got %+v", r)
	}
}

func TestPrepare_ScratchFileReleasedAfterDispatch(t *testing.T) {
	// Serve video bytes so the preparer downloads a scratch file for the
	// YouTube target.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		fmt.Fprint(w, "mp4 bytes")
	}))
	defer srv.Close()

	yt := &fakeAdapter{name: "youtube"}
	registry := platform.Registry{model.PlatformYouTube: yt}

	cacheDir := t.TempDir()
	media := NewMediaPreparer(http.DefaultClient, cacheDir, testLogger())
	d := New(registry, &fakeEligibility{allowed: true}, media, &fakeUsers{}, time.Second, testLogger())

	unit := &model.ContentUnit{ID: "u-vid", SourceURL: srv.URL + "/clip.mp4", Video: true}
	if _, err := d.PostToAll(context.Background(), &model.User{ID: "user1"}, unit,
		model.PlatformYouTube, "hello", "", nil); err != nil {
		t.Fatalf("PostToAll: %v", err)
	}

	if yt.lastMedia == nil || yt.lastMedia.LocalPath == "" {
		t.Fatal("expected adapter to receive a local scratch path")
	}
	if _, err := os.Stat(yt.lastMedia.LocalPath); !os.IsNotExist(err) {
		t.Errorf("expected scratch file removed after dispatch, stat err = %v", err)
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty media cache after release, found %d entries", len(entries))
	}
}
