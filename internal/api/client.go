package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/strideworks/motion.report/internal/httputil"
	"github.com/strideworks/motion.report/internal/pose"
	"github.com/strideworks/motion.report/internal/pose/session"
)

// Client talks to a remote analysis server. Used by the replay tooling
// to forward recorded frames to a running instance.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient creates a client for the server at base, e.g.
// "http://localhost:8080". A nil httpClient uses http.DefaultClient.
func NewClient(base string, httpClient httputil.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{base: base, http: httpClient}
}

func (c *Client) postJSON(path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	return c.decode(path, resp, out)
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	return c.decode(path, resp, out)
}

func (c *Client) decode(path string, resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: server returned %d: %s", path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

// PushFrame forwards one keypoint frame.
func (c *Client) PushFrame(f *pose.KeypointFrame) error {
	return c.postJSON("/api/frames", f, nil)
}

// StartSession starts a guided session and returns its ID.
func (c *Client) StartSession(activityID string) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	err := c.postJSON("/api/session/start", startSessionRequest{ActivityID: activityID}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// EndSession ends the active guided session.
func (c *Client) EndSession() (*session.Summary, error) {
	var summary session.Summary
	if err := c.postJSON("/api/session/end", struct{}{}, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Status fetches the live session status.
func (c *Client) Status() (*session.SessionStatus, error) {
	var status session.SessionStatus
	if err := c.getJSON("/api/session/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}
