// snapshot.go provides the startup bootstrap fetch. On first run (or after a
// wiped data dir) the worker pulls a full snapshot of its tenant's schedules,
// users, collections and content units before the sync transports take over
// with incremental updates.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// Snapshot is a full copy of the tenant state the worker schedules from.
type Snapshot struct {
	Schedules    []*model.Schedule    `json:"schedules"`
	Users        []*model.User        `json:"users"`
	Collections  []*model.Collection  `json:"collections"`
	ContentUnits []*model.ContentUnit `json:"content_units"`
}

// FetchSnapshot retrieves the tenant's full state from the server.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("api key not set: call SetAPIKey first or complete registration")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.serverURL+"/api/workers/snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	c.logger.Info("fetched tenant snapshot",
		slog.Int("schedules", len(snap.Schedules)),
		slog.Int("users", len(snap.Users)),
		slog.Int("collections", len(snap.Collections)),
		slog.Int("content_units", len(snap.ContentUnits)),
	)

	return &snap, nil
}

// SnapshotStore is the subset of the local store the bootstrap writes to.
type SnapshotStore interface {
	SaveSchedule(*model.Schedule) error
	SaveUser(*model.User) error
	SaveCollection(*model.Collection) error
	SaveContentUnit(*model.ContentUnit) error
}

// Bootstrap fetches a snapshot and writes it into the local store. Individual
// record failures are logged and skipped so one bad record cannot block
// startup.
func (c *Client) Bootstrap(ctx context.Context, st SnapshotStore) error {
	snap, err := c.FetchSnapshot(ctx)
	if err != nil {
		return err
	}

	for _, u := range snap.Users {
		if err := st.SaveUser(u); err != nil {
			c.logger.Warn("bootstrap: failed to save user",
				slog.String("user_id", u.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, col := range snap.Collections {
		if err := st.SaveCollection(col); err != nil {
			c.logger.Warn("bootstrap: failed to save collection",
				slog.String("collection_id", col.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, cu := range snap.ContentUnits {
		if err := st.SaveContentUnit(cu); err != nil {
			c.logger.Warn("bootstrap: failed to save content unit",
				slog.String("content_unit_id", cu.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, sched := range snap.Schedules {
		if err := st.SaveSchedule(sched); err != nil {
			c.logger.Warn("bootstrap: failed to save schedule",
				slog.String("schedule_id", sched.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
