// Package model defines the data types shared by the scheduling and dispatch
// core: schedules, schedule items, send history, content units, collections
// and users.
//
// All types are plain JSON-marshallable structs. The worker holds them in a
// local bbolt read model synced from the central API server; the core never
// creates or deletes collections, users or content units, it only reads them.
package model

import "time"

// ScheduleType determines how often a schedule may fire.
type ScheduleType string

const (
	// ScheduleOnce fires at most once ever.
	ScheduleOnce ScheduleType = "once"

	// ScheduleRotation fires every time its expression matches and the
	// same resolution has not already been sent in the same minute.
	ScheduleRotation ScheduleType = "rotation"

	// ScheduleAnnually fires at most once per calendar year.
	ScheduleAnnually ScheduleType = "annually"
)

// Schedule is a recurring or one-shot posting definition.
//
// A schedule either names a single fixed content unit (legacy mode), carries
// an explicit ordered list of items (multi-item mode), or names nothing and
// draws the next due unit from its collection (rotation mode).
type Schedule struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	CollectionID string `json:"collection_id"`

	// ContentUnitID is the fixed unit for legacy single-unit schedules.
	// Empty for multi-item and rotation schedules.
	ContentUnitID string `json:"content_unit_id,omitempty"`

	// Items is the ordered list of entries for multi-item schedules.
	// When non-empty, each item is evaluated independently per tick.
	Items []ScheduleItem `json:"items,omitempty"`

	// TimeExpression is a 5-field cron-like expression
	// (minute hour day-of-month month weekday).
	TimeExpression string `json:"time_expression"`

	Type      ScheduleType `json:"type"`
	Platforms PlatformSet  `json:"platforms"`

	// Description is the schedule-level caption. PlatformDescription is the
	// shorter variant for length-limited platforms. Both may be overridden
	// per item or per content unit.
	Description         string `json:"description,omitempty"`
	PlatformDescription string `json:"platform_description,omitempty"`

	// Hints are free-form per-post options forwarded to the platform
	// adapters (video title, pinterest board, link target).
	Hints map[string]string `json:"hints,omitempty"`

	// TimesSent counts completed dispatches. Only ever incremented, and only
	// by the scheduler engine.
	TimesSent int `json:"times_sent"`

	// Paused schedules are excluded from ActiveSchedules.
	Paused bool `json:"paused,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasItems reports whether the schedule uses the multi-item path.
func (s *Schedule) HasItems() bool {
	return len(s.Items) > 0
}

// ScheduleItem is one entry in a multi-item schedule. Each item names its own
// content unit and carries its own time expression.
type ScheduleItem struct {
	ID            string `json:"id"`
	ScheduleID    string `json:"schedule_id"`
	ContentUnitID string `json:"content_unit_id"`

	TimeExpression string `json:"time_expression"`

	// Position orders items for deterministic enumeration. It has no effect
	// on due-ness.
	Position int `json:"position"`

	Description         string `json:"description,omitempty"`
	PlatformDescription string `json:"platform_description,omitempty"`
}

// PlatformResult captures the per-platform outcome of one dispatch.
type PlatformResult struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendHistory is the append-only audit and dedup record for one dispatch.
// Rows are never mutated after creation; their existence is the sole dedup
// mechanism.
type SendHistory struct {
	ID            string `json:"id"`
	ScheduleID    string `json:"schedule_id"`
	ContentUnitID string `json:"content_unit_id"`

	// ScheduleItemID is empty for the legacy/rotation path.
	ScheduleItemID string `json:"schedule_item_id,omitempty"`

	// Platforms is the bitset of platforms the dispatch attempted.
	Platforms PlatformSet `json:"platforms"`

	// Text is the caption as resolved at dispatch time.
	Text string `json:"text"`

	// Results holds the per-platform outcomes keyed by platform name.
	Results map[string]PlatformResult `json:"results,omitempty"`

	SentAt time.Time `json:"sent_at"`

	// UploadSeq is the pending-upload queue sequence assigned by the store.
	// Zero once the row has been uploaded.
	UploadSeq uint64 `json:"upload_seq,omitempty"`
}

// ContentUnit is an image or video eligible to be posted. The core treats it
// as opaque: an id, a source locator and optional caption overrides.
type ContentUnit struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`

	// SourceURL locates the media: an http(s) URL or a local file path.
	SourceURL string `json:"source_url"`

	Description         string `json:"description,omitempty"`
	PlatformDescription string `json:"platform_description,omitempty"`

	// Video marks video content; some platforms need a different endpoint.
	Video bool `json:"video,omitempty"`
}

// Collection is the user-owned group of content units a schedule draws from.
type Collection struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// SocialAccount holds a user's OAuth credentials for one platform.
// Adapters may refresh AccessToken during dispatch; the dispatcher persists
// the mutation through the user store afterwards.
type SocialAccount struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`

	// AccountID is the platform-side identity to post as
	// (page id, board id, channel id, depending on the platform).
	AccountID string `json:"account_id,omitempty"`
}

// User is the acting account a schedule posts on behalf of.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`

	// Role "admin" bypasses the subscription check.
	Role string `json:"role,omitempty"`

	// FreeTier accounts post without a subscription.
	FreeTier bool `json:"free_tier,omitempty"`

	// Accounts maps platform name to credentials.
	Accounts map[string]SocialAccount `json:"accounts,omitempty"`

	// TokensDirty is set by adapters after a token refresh so the dispatcher
	// knows to persist the user. Never serialized.
	TokensDirty bool `json:"-"`
}

// Account returns the user's credentials for a platform, if connected.
func (u *User) Account(platform string) (SocialAccount, bool) {
	acct, ok := u.Accounts[platform]
	return acct, ok
}

// SetAccount replaces the user's credentials for a platform and marks the
// user dirty for persistence.
func (u *User) SetAccount(platform string, acct SocialAccount) {
	if u.Accounts == nil {
		u.Accounts = make(map[string]SocialAccount)
	}
	u.Accounts[platform] = acct
	u.TokensDirty = true
}
