package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/vision"
)

// Client calls the attendance API on behalf of one authenticated identity.
// It implements the orchestrator's attendance and enrollment collaborators
// so a kiosk can run sessions against a remote server.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with a bearer token for the identity.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("attendance api request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

type transitionResponse struct {
	Record attendance.Record `json:"attendance_record"`
	Error  string            `json:"error"`
}

// transitionErr maps stable API error codes back to the state machine's
// sentinel errors so callers can errors.Is on them across the wire.
func transitionErr(status int, code string) error {
	switch code {
	case "already_checked_in":
		return attendance.ErrAlreadyCheckedIn
	case "not_checked_in_yet":
		return attendance.ErrNotCheckedInYet
	case "already_checked_out":
		return attendance.ErrAlreadyCheckedOut
	}
	return fmt.Errorf("attendance api error %d: %s", status, code)
}

// CheckIn records today's check-in for the token's identity.
func (c *Client) CheckIn(ctx context.Context, _ string) (attendance.Record, error) {
	var out transitionResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/attendance/check-in", nil, &out)
	if err != nil {
		return attendance.Record{}, err
	}
	if status != http.StatusOK {
		return attendance.Record{}, transitionErr(status, out.Error)
	}
	return out.Record, nil
}

// CheckOut records today's check-out for the token's identity.
func (c *Client) CheckOut(ctx context.Context, _ string) (attendance.Record, error) {
	var out transitionResponse
	status, err := c.do(ctx, http.MethodPost, "/v1/attendance/check-out", nil, &out)
	if err != nil {
		return attendance.Record{}, err
	}
	if status != http.StatusOK {
		return attendance.Record{}, transitionErr(status, out.Error)
	}
	return out.Record, nil
}

// Today fetches today's record, creating the absent placeholder server-side.
func (c *Client) Today(ctx context.Context) (attendance.Record, error) {
	var out transitionResponse
	status, err := c.do(ctx, http.MethodGet, "/v1/attendance/today", nil, &out)
	if err != nil {
		return attendance.Record{}, err
	}
	if status != http.StatusOK {
		return attendance.Record{}, fmt.Errorf("attendance api error %d: %s", status, out.Error)
	}
	return out.Record, nil
}

// Get fetches the enrolled embedding for the token's identity.
func (c *Client) Get(ctx context.Context, _ string) (vision.Embedding, bool, error) {
	var out struct {
		Embedding []float32 `json:"embedding"`
		Error     string    `json:"error"`
	}
	status, err := c.do(ctx, http.MethodGet, "/v1/enrollment", nil, &out)
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNotFound {
		return nil, false, nil
	}
	if status != http.StatusOK {
		return nil, false, fmt.Errorf("enrollment api error %d: %s", status, out.Error)
	}
	return vision.Embedding(out.Embedding), true, nil
}

// Put stores the embedding, replacing any prior enrollment.
func (c *Client) Put(ctx context.Context, _ string, emb vision.Embedding) error {
	var out struct {
		Error string `json:"error"`
	}
	status, err := c.do(ctx, http.MethodPost, "/v1/enrollment", map[string]any{"embedding": emb}, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("enrollment api error %d: %s", status, out.Error)
	}
	return nil
}
