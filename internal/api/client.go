// Package api is the REST client for the AirLink session backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/JuliusCaesar79/VoiceGuideAirLinkBare/internal/session"
)

// Client makes REST calls to the session backend.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client targeting the given base URL
// (e.g. "http://127.0.0.1:8080").
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Healthz calls GET /api/healthz.
func (c *Client) Healthz(ctx context.Context) error {
	return c.get(ctx, "/api/healthz", nil)
}

// ActivateLicense calls POST /api/activate-license.
func (c *Client) ActivateLicense(ctx context.Context, code string) (*session.License, error) {
	body := map[string]string{"license_code": code}
	var lic session.License
	if err := c.post(ctx, "/api/activate-license", body, &lic); err != nil {
		return nil, err
	}
	if lic.Code == "" {
		lic.Code = code
	}
	return &lic, nil
}

// StartSession calls POST /api/start-session and returns the allocated PIN
// and session id.
func (c *Client) StartSession(ctx context.Context, licenseCode string, maxListeners int) (*StartSessionResponse, error) {
	params := url.Values{}
	params.Set("license_code", licenseCode)
	if maxListeners > 0 {
		params.Set("max_listeners", strconv.Itoa(maxListeners))
	}
	var out StartSessionResponse
	if err := c.post(ctx, "/api/start-session?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EndSession calls POST /api/end-session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	params := url.Values{}
	params.Set("session_id", sessionID)
	return c.post(ctx, "/api/end-session?"+params.Encode(), nil, nil)
}

// SessionStatus calls GET /api/sessions/{id}/status.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*session.StatusSnapshot, error) {
	var snap session.StatusSnapshot
	if err := c.get(ctx, "/api/sessions/"+url.PathEscape(sessionID)+"/status", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// JoinPin calls POST /api/join-pin.
func (c *Client) JoinPin(ctx context.Context, pin, displayName string) (*JoinPinResponse, error) {
	params := url.Values{}
	params.Set("pin", pin)
	if displayName != "" {
		params.Set("display_name", displayName)
	}
	var out JoinPinResponse
	if err := c.post(ctx, "/api/join-pin?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListenerStatus calls GET /api/listeners/{id}.
func (c *Client) ListenerStatus(ctx context.Context, listenerID string) (*ListenerStatusResponse, error) {
	var out ListenerStatusResponse
	if err := c.get(ctx, "/api/listeners/"+url.PathEscape(listenerID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LeaveListener calls POST /api/listeners/{id}/leave.
func (c *Client) LeaveListener(ctx context.Context, listenerID string) error {
	return c.post(ctx, "/api/listeners/"+url.PathEscape(listenerID)+"/leave", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError("GET", path, resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apiError("POST", path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// apiError extracts the backend's {"detail": ...} message when present,
// falling back to the raw body.
func apiError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, detail.Detail)
	}
	return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, string(body))
}
