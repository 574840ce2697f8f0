// Registration handling for the rotation worker.
//
// New workers register with the server using a one-time enrollment token and
// receive an API key for future authentication, plus optional NATS credentials
// when the deployment runs the NATS sync transport.
//
// The registration flow:
// 1. Worker sends POST /api/workers/register with { enroll_token, hostname }
// 2. Server validates token, marks it as used, creates worker record
// 3. Server returns { worker_id, api_key, tenant_id, nats? }
// 4. Worker stores credentials in its config file for future requests
//
// The API key is only returned once during registration. It must be persisted
// to the config file immediately after registration (see config.Save).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// registrationRequest is the JSON body sent to POST /api/workers/register.
type registrationRequest struct {
	EnrollToken string `json:"enroll_token"`
	Hostname    string `json:"hostname"`
}

// registrationResponse is the JSON response from POST /api/workers/register.
type registrationResponse struct {
	WorkerID string                `json:"worker_id"`
	APIKey   string                `json:"api_key"`
	TenantID string                `json:"tenant_id"`
	NATS     *natsRegistrationInfo `json:"nats,omitempty"`
}

// natsRegistrationInfo contains NATS credentials from registration.
type natsRegistrationInfo struct {
	Servers  string `json:"servers"`
	NKeySeed string `json:"nkey_seed"`
}

// RegistrationResult contains all credentials received from registration.
type RegistrationResult struct {
	WorkerID     string
	APIKey       string
	TenantID     string
	NATSServers  string
	NATSNKeySeed string
}

// registrationError is the JSON error response from the server.
type registrationError struct {
	Error string `json:"error"`
}

// ErrInvalidToken indicates the enrollment token was invalid or already used.
var ErrInvalidToken = fmt.Errorf("invalid or already used enrollment token")

// ErrBadRequest indicates a malformed registration request.
var ErrBadRequest = fmt.Errorf("bad registration request")

// Register registers a new worker with the rotation server.
//
// It sends the enrollment token and hostname to the server and receives
// credentials upon successful registration. The credentials should be
// immediately saved to the config file using config.Save().
//
// Returns ErrInvalidToken on 401, ErrBadRequest on 400, or a network/server
// error otherwise.
func Register(ctx context.Context, serverURL, enrollToken, hostname string, logger *slog.Logger) (*RegistrationResult, error) {
	// Registration uses a dedicated unauthenticated client.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Backoff = retryablehttp.LinearJitterBackoff
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = 30 * time.Second

	httpClient := retryClient.StandardClient()

	reqBody := registrationRequest{
		EnrollToken: enrollToken,
		Hostname:    hostname,
	}
	bodyData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registration request: %w", err)
	}

	url := serverURL + "/api/workers/register"

	logger.Info("registering with server",
		slog.String("url", url),
		slog.String("hostname", hostname),
	)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyData))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		var regResp registrationResponse
		if err := json.Unmarshal(respBody, &regResp); err != nil {
			return nil, fmt.Errorf("failed to parse registration response: %w", err)
		}

		result := &RegistrationResult{
			WorkerID: regResp.WorkerID,
			APIKey:   regResp.APIKey,
			TenantID: regResp.TenantID,
		}
		if regResp.NATS != nil {
			result.NATSServers = regResp.NATS.Servers
			result.NATSNKeySeed = regResp.NATS.NKeySeed
		}

		logger.Info("registration successful",
			slog.String("worker_id", result.WorkerID),
			slog.String("tenant_id", result.TenantID),
			slog.Bool("nats_enabled", result.NATSServers != ""),
		)

		return result, nil

	case http.StatusUnauthorized:
		return nil, ErrInvalidToken

	case http.StatusBadRequest:
		var errResp registrationError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrBadRequest, errResp.Error)
		}
		return nil, ErrBadRequest

	default:
		var errResp registrationError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("registration failed with status %d", resp.StatusCode)
	}
}
