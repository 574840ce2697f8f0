// Sync message handling for the rotation worker.
//
// The handler applies incoming state changes to the local store so the
// scheduler always works against a fresh copy of the tenant's schedules,
// users, collections and content units. Deletes are idempotent; malformed
// records are logged and dropped rather than retried forever.
package natssync

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/cronexpr"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// SyncStore is the subset of the local store the handler writes to.
type SyncStore interface {
	SaveSchedule(*model.Schedule) error
	DeleteSchedule(id string) error
	SaveUser(*model.User) error
	DeleteUser(id string) error
	SaveCollection(*model.Collection) error
	DeleteCollection(id string) error
	SaveContentUnit(*model.ContentUnit) error
	DeleteContentUnit(id string) error
}

// Handler applies incoming sync messages to the local store.
type Handler struct {
	store  SyncStore
	logger *slog.Logger
}

// NewHandler creates a new sync message handler.
func NewHandler(store SyncStore, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// HandleSchedule processes a schedule sync message.
// Implements the SyncHandler interface.
func (h *Handler) HandleSchedule(msg *ScheduleSyncMessage) error {
	schedLogger := h.logger.With(
		slog.String("schedule_id", msg.ID),
		slog.String("action", msg.Action),
	)

	switch msg.Action {
	case "update":
		var sched model.Schedule
		if err := json.Unmarshal(msg.Schedule, &sched); err != nil {
			schedLogger.Warn("failed to parse schedule data", slog.String("error", err.Error()))
			return nil
		}
		if sched.ID == "" {
			sched.ID = msg.ID
		}

		// A malformed expression would simply never fire, but flagging it at
		// sync time surfaces the mistake while someone is looking.
		if !sched.HasItems() {
			if err := cronexpr.Validate(sched.TimeExpression); err != nil {
				schedLogger.Warn("schedule has invalid time expression",
					slog.String("expression", sched.TimeExpression),
					slog.String("error", err.Error()),
				)
			}
		}

		sched.UpdatedAt = time.Now()
		if err := h.store.SaveSchedule(&sched); err != nil {
			schedLogger.Error("failed to save schedule", slog.String("error", err.Error()))
			return err
		}
		schedLogger.Info("schedule synced",
			slog.Int("items", len(sched.Items)),
		)
		return nil

	case "delete":
		if err := h.store.DeleteSchedule(msg.ID); err != nil {
			schedLogger.Error("failed to delete schedule", slog.String("error", err.Error()))
			return err
		}
		schedLogger.Info("schedule removed")
		return nil

	default:
		schedLogger.Warn("unknown schedule sync action")
		return nil
	}
}

// HandleUser processes a user sync message.
// Implements the SyncHandler interface.
func (h *Handler) HandleUser(msg *UserSyncMessage) error {
	userLogger := h.logger.With(
		slog.String("user_id", msg.ID),
		slog.String("action", msg.Action),
	)

	switch msg.Action {
	case "update":
		var user model.User
		if err := json.Unmarshal(msg.User, &user); err != nil {
			userLogger.Warn("failed to parse user data", slog.String("error", err.Error()))
			return nil
		}
		if user.ID == "" {
			user.ID = msg.ID
		}
		if err := h.store.SaveUser(&user); err != nil {
			userLogger.Error("failed to save user", slog.String("error", err.Error()))
			return err
		}
		userLogger.Info("user synced",
			slog.Int("accounts", len(user.Accounts)),
		)
		return nil

	case "delete":
		if err := h.store.DeleteUser(msg.ID); err != nil {
			userLogger.Error("failed to delete user", slog.String("error", err.Error()))
			return err
		}
		userLogger.Info("user removed")
		return nil

	default:
		userLogger.Warn("unknown user sync action")
		return nil
	}
}

// HandleCollection processes a collection sync message.
// Implements the SyncHandler interface.
func (h *Handler) HandleCollection(msg *CollectionSyncMessage) error {
	colLogger := h.logger.With(
		slog.String("collection_id", msg.ID),
		slog.String("action", msg.Action),
	)

	switch msg.Action {
	case "update":
		var col model.Collection
		if err := json.Unmarshal(msg.Collection, &col); err != nil {
			colLogger.Warn("failed to parse collection data", slog.String("error", err.Error()))
			return nil
		}
		if col.ID == "" {
			col.ID = msg.ID
		}
		if err := h.store.SaveCollection(&col); err != nil {
			colLogger.Error("failed to save collection", slog.String("error", err.Error()))
			return err
		}
		colLogger.Info("collection synced")
		return nil

	case "delete":
		if err := h.store.DeleteCollection(msg.ID); err != nil {
			colLogger.Error("failed to delete collection", slog.String("error", err.Error()))
			return err
		}
		colLogger.Info("collection removed")
		return nil

	default:
		colLogger.Warn("unknown collection sync action")
		return nil
	}
}

// HandleContentUnit processes a content unit sync message.
// Implements the SyncHandler interface.
func (h *Handler) HandleContentUnit(msg *ContentUnitSyncMessage) error {
	unitLogger := h.logger.With(
		slog.String("content_unit_id", msg.ID),
		slog.String("action", msg.Action),
	)

	switch msg.Action {
	case "update":
		var unit model.ContentUnit
		if err := json.Unmarshal(msg.ContentUnit, &unit); err != nil {
			unitLogger.Warn("failed to parse content unit data", slog.String("error", err.Error()))
			return nil
		}
		if unit.ID == "" {
			unit.ID = msg.ID
		}
		if err := h.store.SaveContentUnit(&unit); err != nil {
			unitLogger.Error("failed to save content unit", slog.String("error", err.Error()))
			return err
		}
		unitLogger.Info("content unit synced")
		return nil

	case "delete":
		if err := h.store.DeleteContentUnit(msg.ID); err != nil {
			unitLogger.Error("failed to delete content unit", slog.String("error", err.Error()))
			return err
		}
		unitLogger.Info("content unit removed")
		return nil

	default:
		unitLogger.Warn("unknown content unit sync action")
		return nil
	}
}
