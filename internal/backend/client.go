// Package backend implements the HTTP client for the backend of record —
// the remote service that durably tracks agent-action status for each run.
//
// Calls retry transient failures with exponential backoff up to a short
// elapsed-time cap, then give up. The lifecycle layer treats a permanently
// failed call as log-only: local optimistic state is never rolled back on a
// network failure alone.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/papermill-ai/papermill/pkg/contracts"
	"github.com/papermill-ai/papermill/pkg/models"
)

// Client talks to the backend of record over HTTP. Implements
// contracts.BackendOfRecord.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxElapsed time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying *http.Client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxElapsed caps total retry time per call.
func WithMaxElapsed(d time.Duration) Option {
	return func(c *Client) { c.maxElapsed = d }
}

// NewClient creates a backend-of-record client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxElapsed: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AcknowledgeActions persists applied status and result payloads for a
// batch of actions in one call.
func (c *Client) AcknowledgeActions(ctx context.Context, runID string, acks []models.ActionAck) (*contracts.AckResponse, error) {
	body := map[string]any{"actions": acks}
	var resp contracts.AckResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/runs/%s/actions/ack", runID), body, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateAction persists a status change for one action.
func (c *Client) UpdateAction(ctx context.Context, actionID string, update contracts.ActionUpdate) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/actions/%s", actionID), update, nil)
}

// RespondApproval dispatches an approve/deny decision.
func (c *Client) RespondApproval(ctx context.Context, actionID string, approved bool) error {
	body := map[string]any{"action_id": actionID, "approved": approved}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/actions/%s/approval", actionID), body, nil)
}

// do sends one JSON request with retry. 4xx responses are permanent; 5xx
// and transport errors retry until the elapsed cap.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return backoff.Permanent(fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.maxElapsed
	err = backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil {
		log.Debug().Err(err).Str("method", method).Str("path", path).Msg("backend call exhausted retries")
	}
	return err
}
