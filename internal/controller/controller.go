package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"airwatch/internal/aggregate"
	"airwatch/internal/alerts"
	"airwatch/internal/backend"
	"airwatch/internal/classify"
	"airwatch/internal/config"
	"airwatch/internal/model"
	"airwatch/internal/storage"
)

// Controller owns the mutable session state: selected region, airline
// filter, the current flight and alert snapshots, the narrative summary,
// and the in-flight request flags. All mutation happens here, in response
// to a completed request or an explicit user action; there is no
// background polling loop.
type Controller struct {
	logger *slog.Logger
	client *backend.Client
	alerts *alerts.Store
	store  storage.Store

	mu        sync.Mutex
	cls       *classify.Classifier
	agg       *aggregate.Aggregator
	regions   []string
	airlines  []string
	region    string
	airline   string
	flights   []model.FlightState
	summary   string
	connected bool

	// epoch is bumped on every selection change; a response tagged with an
	// older epoch is stale and discarded at apply time. There is no request
	// cancellation: last selection wins, not last response.
	epoch uint64

	flightsBusy flight
	alertsBusy  flight
	summaryBusy flight
}

// flight tracks one in-flight request kind. A pending request only blocks a
// duplicate of the same kind for the same selection; a newer selection
// supersedes it, so the follow-up fetch it triggers is never suppressed by
// the doomed one.
type flight struct {
	pending bool
	epoch   uint64
}

func New(cfg *config.Config, logger *slog.Logger, client *backend.Client, alertStore *alerts.Store, store storage.Store) *Controller {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cls := classify.New(cfg.Classify)
	c := &Controller{
		logger:   logger,
		client:   client,
		alerts:   alertStore,
		store:    store,
		cls:      cls,
		agg:      aggregate.New(cls),
		regions:  append([]string(nil), cfg.Regions...),
		airlines: append([]string(nil), cfg.Airlines...),
		airline:  config.Wildcard,
		epoch:    1,
	}
	if len(c.regions) > 0 {
		c.region = c.regions[0]
	}
	return c
}

// UpdateConfig swaps in reloaded thresholds and selection lists without
// touching fetched data.
func (c *Controller) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	cls := classify.New(cfg.Classify)
	c.mu.Lock()
	c.cls = cls
	c.agg = aggregate.New(cls)
	c.regions = append([]string(nil), cfg.Regions...)
	c.airlines = append([]string(nil), cfg.Airlines...)
	c.mu.Unlock()
}

// Probe checks backend connectivity and records the result. All fetch
// operations are no-ops while disconnected.
func (c *Controller) Probe(ctx context.Context, region string) bool {
	ok := c.client.Probe(ctx, region)
	c.mu.Lock()
	c.connected = ok
	c.mu.Unlock()
	return ok
}

func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetConnected is for wiring a probe result decided elsewhere.
func (c *Controller) SetConnected(ok bool) {
	c.mu.Lock()
	c.connected = ok
	c.mu.Unlock()
}

func (c *Controller) Region() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region
}

func (c *Controller) Regions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.regions...)
}

func (c *Controller) AirlineFilter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.airline
}

// SetAirlineFilter changes the filter code. It is display-side only and
// never triggers a fetch.
func (c *Controller) SetAirlineFilter(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, known := range c.airlines {
		if strings.EqualFold(known, code) {
			c.airline = code
			return nil
		}
	}
	return fmt.Errorf("unknown airline filter %q", code)
}

// SelectRegion updates the selection and triggers a fresh flight fetch and
// a fresh alert fetch for the new region. Responses still in flight for
// the old selection will be discarded when they land.
func (c *Controller) SelectRegion(ctx context.Context, region string) error {
	region, epoch, err := c.bumpSelection(region)
	if err != nil {
		return err
	}
	go c.refreshFlights(ctx, region, epoch)
	go c.refreshAlerts(ctx, epoch)
	return nil
}

// bumpSelection validates the region, records it and advances the
// selection epoch, invalidating every response dispatched before it.
func (c *Controller) bumpSelection(region string) (string, uint64, error) {
	region = strings.TrimSpace(region)
	c.mu.Lock()
	defer c.mu.Unlock()
	found := ""
	for _, r := range c.regions {
		if strings.EqualFold(r, region) {
			found = r
			break
		}
	}
	if found == "" {
		return "", 0, fmt.Errorf("unknown region %q", region)
	}
	c.region = found
	c.epoch++
	return found, c.epoch, nil
}

// RefreshFlights re-fetches the flight snapshot for the current selection.
// No-op while disconnected or while a fetch for this selection is already
// in flight. Failures are logged and leave the prior snapshot untouched.
func (c *Controller) RefreshFlights(ctx context.Context) {
	c.mu.Lock()
	region, epoch := c.region, c.epoch
	c.mu.Unlock()
	c.refreshFlights(ctx, region, epoch)
}

func (c *Controller) refreshFlights(ctx context.Context, region string, epoch uint64) {
	if !c.begin(&c.flightsBusy, epoch) {
		return
	}
	defer c.end(&c.flightsBusy, epoch)

	snap, err := c.client.RegionSnapshot(ctx, region)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("flight refresh failed", "region", region, "err", err)
		}
		return
	}
	c.applyFlights(ctx, region, epoch, snap.States)
}

// applyFlights installs a fetched snapshot unless the selection has moved
// on since the request was dispatched.
func (c *Controller) applyFlights(ctx context.Context, region string, epoch uint64, states []model.FlightState) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Debug("discarding stale flight snapshot", "region", region, "epoch", epoch)
		}
		return
	}
	c.flights = states
	agg := c.agg
	c.mu.Unlock()

	if c.store != nil {
		m := agg.Aggregate(states, c.alerts.List())
		if err := c.store.SaveMetrics(ctx, region, m); err != nil && c.logger != nil {
			c.logger.Warn("persisting metrics failed", "region", region, "err", err)
		}
	}
}

// RefreshAlerts re-fetches the active alert snapshot. The alert list is
// global across regions, so it is applied regardless of selection changes;
// only the fetch itself is guarded against being disconnected.
func (c *Controller) RefreshAlerts(ctx context.Context) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	c.refreshAlerts(ctx, epoch)
}

func (c *Controller) refreshAlerts(ctx context.Context, epoch uint64) {
	if !c.begin(&c.alertsBusy, epoch) {
		return
	}
	defer c.end(&c.alertsBusy, epoch)

	list, err := c.client.ActiveAlerts(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("alert refresh failed", "err", err)
		}
		return
	}
	c.alerts.Replace(list)
	if c.store != nil {
		if err := c.store.SaveAlerts(ctx, c.alerts.List()); err != nil && c.logger != nil {
			c.logger.Warn("persisting alerts failed", "err", err)
		}
	}
}

// AnalyzeRegion asks the ops service for a narrative summary and applies
// both the summary and the bundled flight snapshot. The user is actively
// waiting on this one, so a failure is surfaced in the summary text rather
// than swallowed; the prior flight snapshot stays untouched either way.
func (c *Controller) AnalyzeRegion(ctx context.Context) {
	c.mu.Lock()
	region, epoch := c.region, c.epoch
	c.mu.Unlock()

	if !c.begin(&c.summaryBusy, epoch) {
		return
	}
	defer c.end(&c.summaryBusy, epoch)

	res, err := c.client.Analyze(ctx, region)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	if err != nil {
		c.summary = fmt.Sprintf("Error analyzing region: %s", backend.Detail(err))
		if c.logger != nil {
			c.logger.Warn("region analysis failed", "region", region, "err", err)
		}
		return
	}
	c.summary = res.Summary
	if res.Flights != nil {
		c.flights = res.Flights
	}
}

func (c *Controller) begin(f *flight, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false
	}
	if f.pending && f.epoch == c.epoch {
		return false
	}
	f.pending = true
	f.epoch = epoch
	return true
}

func (c *Controller) end(f *flight, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.epoch == epoch {
		f.pending = false
	}
}

// Summary returns the current narrative summary text.
func (c *Controller) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

// Flights returns a copy of the stored, unfiltered snapshot.
func (c *Controller) Flights() []model.FlightState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.FlightState, len(c.flights))
	copy(out, c.flights)
	return out
}

// FilteredFlights applies the airline filter and ordering to the stored
// snapshot without mutating it.
func (c *Controller) FilteredFlights() []model.FlightState {
	c.mu.Lock()
	flights := make([]model.FlightState, len(c.flights))
	copy(flights, c.flights)
	code := c.airline
	c.mu.Unlock()
	return FilterFlights(flights, code)
}

// Metrics aggregates the current snapshot and alert set.
func (c *Controller) Metrics() model.RegionMetrics {
	c.mu.Lock()
	flights := make([]model.FlightState, len(c.flights))
	copy(flights, c.flights)
	agg := c.agg
	c.mu.Unlock()
	return agg.Aggregate(flights, c.alerts.List())
}

// LookupFlight fetches a single flight by callsign within the current
// region and classifies it. The second return is false when the backend
// does not know the callsign.
func (c *Controller) LookupFlight(ctx context.Context, callsign string) (model.FlightState, model.Classification, bool, error) {
	c.mu.Lock()
	region := c.region
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return model.FlightState{}, model.Classification{}, false, fmt.Errorf("backend not connected")
	}
	f, found, err := c.client.FlightByCallsign(ctx, callsign, region)
	if err != nil || !found {
		return model.FlightState{}, model.Classification{}, false, err
	}
	return f, c.Classify(f), true, nil
}

// Classify exposes the controller's classifier for presentation callers.
func (c *Controller) Classify(f model.FlightState) model.Classification {
	c.mu.Lock()
	cls := c.cls
	c.mu.Unlock()
	return cls.Classify(f)
}

// FilterFlights is the pure filter+order derivation: keep flights whose
// trimmed, upper-cased three-letter callsign prefix equals code (ALL keeps
// everything), then stable-sort by trimmed callsign, case-insensitively.
// Original casing is preserved in the output.
func FilterFlights(flights []model.FlightState, code string) []model.FlightState {
	code = strings.ToUpper(strings.TrimSpace(code))
	out := make([]model.FlightState, 0, len(flights))
	for _, f := range flights {
		if code == config.Wildcard || AirlineCode(f.Callsign) == code {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a := strings.ToUpper(strings.TrimSpace(out[i].Callsign))
		b := strings.ToUpper(strings.TrimSpace(out[j].Callsign))
		return a < b
	})
	return out
}

// AirlineCode extracts the three-letter airline prefix from a callsign.
func AirlineCode(callsign string) string {
	cs := strings.ToUpper(strings.TrimSpace(callsign))
	if len(cs) < 3 {
		return cs
	}
	return cs[:3]
}
