package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"airwatch/internal/model"
)

const (
	defaultBaseURL      = "http://localhost:8000"
	defaultProbeTimeout = 2 * time.Second
	defaultFetchTimeout = 5 * time.Second

	maxIdleConns    = 10
	maxConnsPerHost = 5
	idleConnTimeout = 90 * time.Second
)

// RegionSnapshot mirrors the flight-state provider's per-region document.
type RegionSnapshot struct {
	Time   *int64              `json:"time"`
	Region string              `json:"region"`
	States []model.FlightState `json:"states"`
}

// AnalyzeResult is the richer ops response: narrative plus a flight
// snapshot in one round trip.
type AnalyzeResult struct {
	Region  string              `json:"region"`
	Summary string              `json:"summary"`
	Flights []model.FlightState `json:"flights"`
}

// QueryResult is the traveler agent's answer.
type QueryResult struct {
	TravelerResponse string `json:"traveler_response"`
	NeedOps          bool   `json:"need_ops"`
	OpsSummary       string `json:"ops_summary,omitempty"`
}

type alertsResponse struct {
	Alerts []model.Alert `json:"alerts"`
}

// StatusError reports a non-2xx backend reply, keeping any structured
// detail the server attached so callers can surface it verbatim.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend status %d", e.StatusCode)
}

// Detail extracts the most specific error description available: the
// backend's structured detail when present, otherwise the error text.
func Detail(err error) string {
	var se *StatusError
	if ok := asStatusError(err, &se); ok && se.Detail != "" {
		return se.Detail
	}
	if err != nil {
		return err.Error()
	}
	return "Unknown error"
}

func asStatusError(err error, target **StatusError) bool {
	for err != nil {
		if se, ok := err.(*StatusError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeouts(probe, fetch time.Duration) ClientOption {
	return func(c *Client) {
		if probe > 0 {
			c.probeTimeout = probe
		}
		if fetch > 0 {
			c.fetchTimeout = fetch
		}
	}
}

// WithoutBreaker disables the circuit breaker (used by tests that exercise
// repeated failure paths directly).
func WithoutBreaker() ClientOption {
	return func(c *Client) { c.breaker = nil }
}

// Client talks to the airspace backend. All calls go through a circuit
// breaker so a flapping backend degrades to the disconnected path instead
// of being hammered with doomed requests.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	probeTimeout time.Duration
	fetchTimeout time.Duration
	breaker      *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(opts ...ClientOption) *Client {
	transport := &http.Transport{
		MaxIdleConns:    maxIdleConns,
		MaxConnsPerHost: maxConnsPerHost,
		IdleConnTimeout: idleConnTimeout,
	}
	c := &Client{
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Transport: transport},
		probeTimeout: defaultProbeTimeout,
		fetchTimeout: defaultFetchTimeout,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "airspace-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Probe checks connectivity: a 200 from the probe region's snapshot
// endpoint within the short probe timeout means connected.
func (c *Client) Probe(ctx context.Context, region string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	_, err := c.get(ctx, "/flights/region/"+url.PathEscape(region), nil)
	return err == nil
}

// RegionSnapshot fetches the flight set for one region.
func (c *Client) RegionSnapshot(ctx context.Context, region string) (RegionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	var snap RegionSnapshot
	body, err := c.get(ctx, "/flights/region/"+url.PathEscape(region), nil)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("parsing region snapshot: %w", err)
	}
	if snap.Region == "" {
		snap.Region = region
	}
	return snap, nil
}

// FlightByCallsign looks one flight up within a region. The second return
// is false when the backend reports it as not found.
func (c *Client) FlightByCallsign(ctx context.Context, callsign, region string) (model.FlightState, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	q := url.Values{"region": {region}}
	body, err := c.get(ctx, "/flights/"+url.PathEscape(strings.TrimSpace(callsign)), q)
	if err != nil {
		return model.FlightState{}, false, err
	}
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Error != "" {
		return model.FlightState{}, false, nil
	}
	var f model.FlightState
	if err := json.Unmarshal(body, &f); err != nil {
		return model.FlightState{}, false, fmt.Errorf("parsing flight record: %w", err)
	}
	return f, true, nil
}

// ActiveAlerts fetches the unfiltered active alert list.
func (c *Client) ActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()
	body, err := c.get(ctx, "/alerts/active", nil)
	if err != nil {
		return nil, err
	}
	var resp alertsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing alerts: %w", err)
	}
	return resp.Alerts, nil
}

// Analyze asks the ops service for a narrative summary plus a fresh flight
// snapshot for the region.
func (c *Client) Analyze(ctx context.Context, region string) (AnalyzeResult, error) {
	var out AnalyzeResult
	body, err := c.post(ctx, "/ops/analyze", map[string]string{"region": region})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("parsing analysis: %w", err)
	}
	return out, nil
}

// TravelerQuery submits a callsign+question to the traveler agent.
func (c *Client) TravelerQuery(ctx context.Context, callsign, question, region string) (QueryResult, error) {
	var out QueryResult
	body, err := c.post(ctx, "/traveler/query", map[string]string{
		"callsign": callsign,
		"question": question,
		"region":   region,
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("parsing traveler response: %w", err)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.breaker == nil {
		return c.roundTrip(req)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(req)
	})
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Detail: extractDetail(body)}
	}
	return body, nil
}

// extractDetail pulls the backend's structured error detail when the reply
// carries one, falling back to the raw body.
func extractDetail(body []byte) string {
	var wrapped struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Detail != nil {
		if s, ok := wrapped.Detail.(string); ok {
			return s
		}
		if data, err := json.Marshal(wrapped.Detail); err == nil {
			return string(data)
		}
	}
	return strings.TrimSpace(string(body))
}
