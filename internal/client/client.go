// Package client provides an HTTP client for communicating with the rotation
// server. It handles all worker-server communication: registration, heartbeat,
// eligibility checks, rotation resolution, token refresh and history upload.
//
// The client uses hashicorp/go-retryablehttp for automatic retry with backoff
// and jitter, which is essential for resilient communication when the server
// or network hiccups mid-dispatch.
//
// Usage:
//
//	client := client.NewClient("https://rotation.example.com", logger)
//	client.SetAPIKey(apiKey) // After registration
//	ok, err := client.CanPost(ctx, userID)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/health"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/version"
	"github.com/hashicorp/go-retryablehttp"
)

// Client is the HTTP client for communicating with the rotation server.
// It wraps go-retryablehttp for automatic retry with backoff.
type Client struct {
	httpClient *http.Client
	serverURL  string
	apiKey     string
	workerID   string
	logger     *slog.Logger
}

// NewClient creates a new Client configured with retryable HTTP settings.
// The serverURL should be the base URL of the rotation server.
//
// The client is configured with:
//   - RetryMax: 3 retries
//   - RetryWaitMin: 1 second
//   - RetryWaitMax: 10 seconds
//   - Backoff: Linear jitter (prevents thundering herd)
//   - Timeout: 30 seconds per request
func NewClient(serverURL string, logger *slog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff

	// Disable retryablehttp's internal logging - we use slog instead
	retryClient.Logger = nil

	retryClient.HTTPClient.Timeout = 30 * time.Second

	retryClient.HTTPClient.Transport = &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     60 * time.Second,
		MaxIdleConnsPerHost: 2,
		DisableCompression:  false,
	}

	return &Client{
		httpClient: retryClient.StandardClient(),
		serverURL:  serverURL,
		logger:     logger,
	}
}

// SetAPIKey sets the API key used for authenticating requests after
// registration.
func (c *Client) SetAPIKey(key string) {
	c.apiKey = key
}

// SetWorkerID sets the worker's unique identifier for URL construction.
func (c *Client) SetWorkerID(id string) {
	c.workerID = id
}

// SendHeartbeat tells the server this worker is alive. Called periodically;
// the server uses lastSeen to detect dead workers and reassign tenants.
func (c *Client) SendHeartbeat(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("api key not set: call SetAPIKey first or complete registration")
	}

	url := c.serverURL + "/api/workers/heartbeat"

	req, err := http.NewRequestWithContext(ctx, "POST", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create heartbeat request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Worker-Version", version.Version)
	req.Header.Set("X-Worker-Platform", runtime.GOOS+"-"+runtime.GOARCH)

	c.logger.Debug("sending heartbeat",
		slog.String("url", url),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat failed with status %d", resp.StatusCode)
	}

	c.logger.Debug("heartbeat successful")
	return nil
}

// eligibilityResponse is the server's answer to a posting eligibility check.
type eligibilityResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanPost asks the server whether the user's subscription currently permits
// posting. The engine calls this once per dispatch before touching any
// platform. Admins and free-tier users are exempted by the dispatcher and
// never reach this call.
func (c *Client) CanPost(ctx context.Context, userID string) (bool, error) {
	if c.apiKey == "" {
		return false, fmt.Errorf("api key not set: call SetAPIKey first or complete registration")
	}

	url := c.serverURL + "/api/users/" + userID + "/can-post"

	var elig eligibilityResponse
	resp, err := c.doJSONRequest(ctx, "GET", url, nil, &elig)
	if err != nil {
		return false, fmt.Errorf("eligibility request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("eligibility check failed with status %d", resp.StatusCode)
	}

	if !elig.Allowed {
		c.logger.Debug("user not eligible to post",
			slog.String("user_id", userID),
			slog.String("reason", elig.Reason),
		)
	}
	return elig.Allowed, nil
}

// NextDueContentUnit asks the server which content unit is next in a
// collection's rotation. The server owns rotation ordering so that multiple
// schedules over the same collection advance a single cursor.
//
// A nil unit with nil error means the collection is exhausted or empty.
func (c *Client) NextDueContentUnit(ctx context.Context, collectionID string) (*model.ContentUnit, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("api key not set: call SetAPIKey first or complete registration")
	}

	url := c.serverURL + "/api/collections/" + collectionID + "/next-due"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create next-due request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("next-due request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var unit model.ContentUnit
		if err := json.NewDecoder(resp.Body).Decode(&unit); err != nil {
			return nil, fmt.Errorf("failed to decode next-due response: %w", err)
		}
		return &unit, nil
	case http.StatusNoContent, http.StatusNotFound:
		// Exhausted or empty collection.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("next-due failed with status %d", resp.StatusCode)
	}
}

// tokenRefreshResponse is the server's answer to a token refresh request.
type tokenRefreshResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccountID    string    `json:"account_id,omitempty"`
}

// RefreshToken asks the server to refresh the user's OAuth token for a
// platform. OAuth app secrets live only on the server; the worker just
// receives fresh credentials. Implements the dispatcher's token refresher.
func (c *Client) RefreshToken(ctx context.Context, userID, platform string) (*model.SocialAccount, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("api key not set: call SetAPIKey first or complete registration")
	}

	url := c.serverURL + "/api/users/" + userID + "/tokens/" + platform + "/refresh"

	var tok tokenRefreshResponse
	resp, err := c.doJSONRequest(ctx, "POST", url, nil, &tok)
	if err != nil {
		return nil, fmt.Errorf("token refresh request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	c.logger.Info("refreshed platform token",
		slog.String("user_id", userID),
		slog.String("platform", platform),
	)

	return &model.SocialAccount{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
		AccountID:    tok.AccountID,
	}, nil
}

// SaveUser pushes a user's updated social accounts back to the server after
// a token refresh. Implements the dispatcher's user saver.
func (c *Client) SaveUser(u *model.User) error {
	if c.apiKey == "" {
		return fmt.Errorf("api key not set: call SetAPIKey first or complete registration")
	}

	url := c.serverURL + "/api/users/" + u.ID + "/accounts"

	resp, err := c.doJSONRequest(context.Background(), "PUT", url, u.Accounts, nil)
	if err != nil {
		return fmt.Errorf("user save request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("user save failed with status %d", resp.StatusCode)
	}
	return nil
}

// historyPayload is the JSON body for uploading dispatch history.
type historyPayload struct {
	History []historyItem `json:"history"`
}

// historyItem is a single dispatch record in the upload payload.
type historyItem struct {
	ID             string                          `json:"id"`
	ScheduleID     string                          `json:"schedule_id"`
	ContentUnitID  string                          `json:"content_unit_id"`
	ScheduleItemID string                          `json:"schedule_item_id,omitempty"`
	Platforms      []string                        `json:"platforms"`
	Text           string                          `json:"text,omitempty"`
	Results        map[string]model.PlatformResult `json:"results"`
	SentAt         string                          `json:"sent_at"`
}

// SubmitHistory uploads a batch of dispatch history records to the server.
// Called by the history uploader to drain the local pending queue.
//
// The server expects a 201 Created response on success. On error the caller
// keeps the batch queued and retries on the next cycle.
func (c *Client) SubmitHistory(ctx context.Context, rows []*model.SendHistory) error {
	if c.apiKey == "" {
		return fmt.Errorf("api key not set: call SetAPIKey first or complete registration")
	}

	url := c.serverURL + "/api/workers/history"

	payload := historyPayload{
		History: make([]historyItem, len(rows)),
	}
	for i, r := range rows {
		payload.History[i] = historyItem{
			ID:             r.ID,
			ScheduleID:     r.ScheduleID,
			ContentUnitID:  r.ContentUnitID,
			ScheduleItemID: r.ScheduleItemID,
			Platforms:      r.Platforms.Names(),
			Text:           r.Text,
			Results:        r.Results,
			SentAt:         r.SentAt.Format(time.RFC3339),
		}
	}

	c.logger.Debug("submitting dispatch history",
		slog.String("url", url),
		slog.Int("count", len(rows)),
	)

	resp, err := c.doJSONRequest(ctx, "POST", url, payload, nil)
	if err != nil {
		return fmt.Errorf("history request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("history upload failed with status %d", resp.StatusCode)
	}

	c.logger.Debug("dispatch history submitted",
		slog.Int("count", len(rows)),
	)
	return nil
}

// SubmitHealth reports a worker health snapshot over the HTTP API. The
// health reporter uses it while the NATS publisher is down or not configured.
func (c *Client) SubmitHealth(ctx context.Context, stats *health.Stats) error {
	if c.apiKey == "" {
		return fmt.Errorf("api key not set: call SetAPIKey first or complete registration")
	}

	url := c.serverURL + "/api/workers/health"

	resp, err := c.doJSONRequest(ctx, "POST", url, stats, nil)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health report failed with status %d", resp.StatusCode)
	}
	return nil
}

// doJSONRequest is a helper for making JSON requests to the server.
// It handles JSON encoding of the request body and decoding of the response.
func (c *Client) doJSONRequest(ctx context.Context, method, url string, body interface{}, response interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if response != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return resp, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp, nil
}
