// Package remote posts submission envelopes to the collection
// endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/studykit/relay/pkg/core"
)

// Client handles communication with the collection server.
type Client struct {
	baseURL   string
	transport core.TransportClient
	log       zerolog.Logger
}

// New creates a client for the given server URL. When transport is nil
// a default http.Client with a 30 second timeout is used.
func New(serverURL string, transport core.TransportClient, log zerolog.Logger) *Client {
	if transport == nil {
		transport = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:   strings.TrimRight(serverURL, "/"),
		transport: transport,
		log:       log,
	}
}

// requestBody is the wire format of a trial submission.
type requestBody struct {
	TrialData     any           `json:"trial_data"`
	ParticipantID string        `json:"participant_id"`
	Timestamp     string        `json:"timestamp"`
	Metadata      core.Envelope `json:"metadata"`
}

// Post delivers the envelope in a single request and interprets the
// response. The target URL is the configured server URL plus endpoint
// (DefaultEndpoint when empty). A transport failure, a status outside
// the success range, or a non-JSON response body all yield a
// TransportError; there is no internal retry.
func (c *Client) Post(ctx context.Context, env core.Envelope, endpoint string) (core.Result, error) {
	if endpoint == "" {
		endpoint = core.DefaultEndpoint
	}
	url := c.baseURL + endpoint

	body, err := json.Marshal(requestBody{
		TrialData:     env[core.KeyTrialData],
		ParticipantID: env.String(core.KeyParticipantID),
		Timestamp:     env.String(core.KeyTimestamp),
		Metadata:      env,
	})
	if err != nil {
		return core.Result{}, &core.TransportError{Err: fmt.Errorf("encoding request body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return core.Result{}, &core.TransportError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("url", url).Msg("Posting submission")

	resp, err := c.transport.Do(req)
	if err != nil {
		return core.Result{}, &core.TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Result{}, &core.TransportError{Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return core.Result{}, &core.TransportError{Status: resp.StatusCode, Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return core.Result{}, &core.TransportError{Status: resp.StatusCode, Err: fmt.Errorf("malformed response body: %w", err)}
	}

	c.log.Debug().Int("status", resp.StatusCode).Msg("Submission accepted")

	return core.Result{Method: core.ModeServer, Success: true, Response: parsed}, nil
}
