package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AgentSource reads the current fix from a kiosk device agent over HTTP.
// The agent exposes GET /position returning the last GPS fix of the
// terminal the student is standing at.
type AgentSource struct {
	BaseURL string
	HTTP    *http.Client
}

// NewAgentSource creates a source for the given agent base URL.
func NewAgentSource(baseURL string) *AgentSource {
	return &AgentSource{
		BaseURL: baseURL,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Current fetches the agent's latest fix. Agent status codes map onto the
// closed acquisition error set.
func (s *AgentSource) Current(ctx context.Context, highAccuracy bool) (Position, error) {
	url := s.BaseURL + "/position"
	if highAccuracy {
		url += "?high_accuracy=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Position{}, err
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Position{}, ErrTimeout
		}
		return Position{}, fmt.Errorf("location agent request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return Position{}, ErrPermissionDenied
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusNotImplemented:
		return Position{}, ErrUnsupported
	case resp.StatusCode == http.StatusServiceUnavailable:
		return Position{}, ErrPositionUnavailable
	case resp.StatusCode >= 300:
		return Position{}, fmt.Errorf("location agent error %s", resp.Status)
	}

	var out struct {
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
		AccuracyM  float64 `json:"accuracy"`
		CapturedAt int64   `json:"captured_at"` // unix millis
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Position{}, fmt.Errorf("failed to decode agent response: %w", err)
	}

	pos := Position{
		Latitude:  out.Latitude,
		Longitude: out.Longitude,
		AccuracyM: out.AccuracyM,
	}
	if out.CapturedAt > 0 {
		pos.CapturedAt = time.UnixMilli(out.CapturedAt).UTC()
	}
	return pos, nil
}
