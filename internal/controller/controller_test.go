package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"airwatch/internal/alerts"
	"airwatch/internal/backend"
	"airwatch/internal/config"
	"airwatch/internal/model"
)

func newTestController(ts *httptest.Server) *Controller {
	client := backend.NewClient(
		backend.WithBaseURL(ts.URL),
		backend.WithHTTPClient(ts.Client()),
		backend.WithoutBreaker(),
	)
	c := New(config.DefaultConfig(), nil, client, alerts.NewStore(), nil)
	c.SetConnected(true)
	return c
}

func snapshotJSON(region string, callsigns ...string) string {
	var sb strings.Builder
	sb.WriteString(`{"time":1700000000,"region":"` + region + `","states":[`)
	for i, cs := range callsigns {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"icao24":"x","callsign":"` + cs + `"}`)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func TestFilterFlights(t *testing.T) {
	flights := []model.FlightState{
		{Callsign: "THY4KZ"},
		{Callsign: "QTR101"},
		{Callsign: " thy22 "},
	}
	got := FilterFlights(flights, "THY")
	if len(got) != 2 {
		t.Fatalf("filtered = %d, want 2", len(got))
	}
	// Case-insensitive ordering by trimmed callsign, original casing kept.
	if strings.TrimSpace(got[0].Callsign) != "thy22" || got[1].Callsign != "THY4KZ" {
		t.Fatalf("unexpected order/casing: %q, %q", got[0].Callsign, got[1].Callsign)
	}

	all := FilterFlights(flights, "ALL")
	if len(all) != 3 {
		t.Fatalf("wildcard kept %d, want 3", len(all))
	}
	// Input must not be reordered in place.
	if flights[0].Callsign != "THY4KZ" {
		t.Fatalf("input mutated: %v", flights)
	}
}

func TestRefreshFlightsReplacesWholesale(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			_, _ = w.Write([]byte(snapshotJSON("region1", "THY4KZ", "QTR101")))
			return
		}
		_, _ = w.Write([]byte(snapshotJSON("region1", "DLH88")))
	}))
	defer ts.Close()

	c := newTestController(ts)
	c.RefreshFlights(context.Background())
	if got := c.Flights(); len(got) != 2 {
		t.Fatalf("first refresh: %d flights", len(got))
	}
	c.RefreshFlights(context.Background())
	got := c.Flights()
	if len(got) != 1 || got[0].Callsign != "DLH88" {
		t.Fatalf("snapshot not replaced wholesale: %+v", got)
	}
}

func TestRefreshFailureRetainsPriorData(t *testing.T) {
	healthy := true
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"snapshot store offline"}`))
			return
		}
		_, _ = w.Write([]byte(snapshotJSON("region1", "THY4KZ")))
	}))
	defer ts.Close()

	c := newTestController(ts)
	c.RefreshFlights(context.Background())
	if len(c.Flights()) != 1 {
		t.Fatalf("seed refresh failed")
	}

	healthy = false
	c.RefreshFlights(context.Background())
	if got := c.Flights(); len(got) != 1 || got[0].Callsign != "THY4KZ" {
		t.Fatalf("failed refresh must not blank the display: %+v", got)
	}
}

func TestRefreshIsNoOpWhileDisconnected(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(snapshotJSON("region1", "THY4KZ")))
	}))
	defer ts.Close()

	c := newTestController(ts)
	c.SetConnected(false)
	c.RefreshFlights(context.Background())
	c.RefreshAlerts(context.Background())
	if called {
		t.Fatalf("disconnected controller must not issue requests")
	}
	if len(c.Flights()) != 0 {
		t.Fatalf("unexpected flights: %v", c.Flights())
	}
}

func TestStaleResponseDiscardedAfterSelectionChange(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/region1") {
			arrived <- struct{}{}
			<-release // hold region1's response until region2 applied
			_, _ = w.Write([]byte(snapshotJSON("region1", "AAA111")))
			return
		}
		_, _ = w.Write([]byte(snapshotJSON("region2", "BBB222")))
	}))
	defer ts.Close()

	c := newTestController(ts)

	region1, e1, err := c.bumpSelection("region1")
	if err != nil {
		t.Fatalf("bumpSelection: %v", err)
	}
	done := make(chan struct{})
	go func() {
		c.refreshFlights(context.Background(), region1, e1)
		close(done)
	}()
	<-arrived

	// User changes selection while region1's fetch is still in flight.
	region2, e2, err := c.bumpSelection("region2")
	if err != nil {
		t.Fatalf("bumpSelection: %v", err)
	}
	c.refreshFlights(context.Background(), region2, e2)
	got := c.Flights()
	if len(got) != 1 || got[0].Callsign != "BBB222" {
		t.Fatalf("region2 snapshot not applied: %+v", got)
	}

	// Now the late region1 response lands and must be discarded.
	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("stale fetch never finished")
	}
	got = c.Flights()
	if len(got) != 1 || got[0].Callsign != "BBB222" {
		t.Fatalf("stale region1 data applied over region2: %+v", got)
	}
}

func TestNewSelectionSupersedesInFlightGuard(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/region1") {
			arrived <- struct{}{}
			<-release
			_, _ = w.Write([]byte(snapshotJSON("region1", "AAA111")))
			return
		}
		_, _ = w.Write([]byte(snapshotJSON("region3", "CCC333")))
	}))
	defer ts.Close()

	c := newTestController(ts)
	region1, e1, _ := c.bumpSelection("region1")
	done := make(chan struct{})
	go func() {
		c.refreshFlights(context.Background(), region1, e1)
		close(done)
	}()
	<-arrived

	// The region1 fetch is pending, but it belongs to a superseded
	// selection: the fetch for region3 must not be treated as a duplicate.
	region3, e3, _ := c.bumpSelection("region3")
	c.refreshFlights(context.Background(), region3, e3)
	if got := c.Flights(); len(got) != 1 || got[0].Callsign != "CCC333" {
		t.Fatalf("superseding fetch was suppressed: %+v", got)
	}
	close(release)
	<-done
}

func TestDuplicateRefreshSuppressedForSameSelection(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 1)
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		arrived <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(snapshotJSON("region1", "AAA111")))
	}))
	defer ts.Close()

	c := newTestController(ts)
	done := make(chan struct{})
	go func() {
		c.RefreshFlights(context.Background())
		close(done)
	}()
	<-arrived

	// Second refresh of the same kind for the same selection: no-op.
	c.RefreshFlights(context.Background())
	if calls != 1 {
		t.Fatalf("duplicate refresh issued a request, calls = %d", calls)
	}
	close(release)
	<-done
}

func TestAnalyzeRegionSuccessAndFailure(t *testing.T) {
	healthy := true
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"detail":"model overloaded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"region":"region1","summary":"All quiet.","flights":[{"icao24":"x","callsign":"THY4KZ"}]}`))
	}))
	defer ts.Close()

	c := newTestController(ts)
	c.AnalyzeRegion(context.Background())
	if c.Summary() != "All quiet." {
		t.Fatalf("summary = %q", c.Summary())
	}
	if len(c.Flights()) != 1 {
		t.Fatalf("analyze did not apply bundled flights")
	}

	healthy = false
	c.AnalyzeRegion(context.Background())
	want := "Error analyzing region: model overloaded"
	if c.Summary() != want {
		t.Fatalf("summary = %q, want %q", c.Summary(), want)
	}
	if len(c.Flights()) != 1 {
		t.Fatalf("failed analysis must leave flights untouched")
	}
}

func TestRefreshAlertsReplacesSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alerts":[{"callsign":"THY4KZ","region":"region1","anomalies":["Altitude anomaly"],"severity":"Critical","timestamp":1700000000}]}`))
	}))
	defer ts.Close()

	store := alerts.NewStore()
	client := backend.NewClient(backend.WithBaseURL(ts.URL), backend.WithHTTPClient(ts.Client()), backend.WithoutBreaker())
	c := New(config.DefaultConfig(), nil, client, store, nil)
	c.SetConnected(true)

	c.RefreshAlerts(context.Background())
	list := store.List()
	if len(list) != 1 {
		t.Fatalf("alerts = %d, want 1", len(list))
	}
	if list[0].Severity != alerts.SeverityCritical {
		t.Fatalf("severity = %q", list[0].Severity)
	}
	if list[0].Anomalies[0] != "Altitude" {
		t.Fatalf("reason label not cleaned: %q", list[0].Anomalies[0])
	}

	m := c.Metrics()
	if m.ActiveAlerts != 1 {
		t.Fatalf("metrics alerts = %d", m.ActiveAlerts)
	}
}

func TestSetAirlineFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()
	c := newTestController(ts)

	if err := c.SetAirlineFilter("thy"); err != nil {
		t.Fatalf("known code rejected: %v", err)
	}
	if c.AirlineFilter() != "THY" {
		t.Fatalf("filter = %q", c.AirlineFilter())
	}
	if err := c.SetAirlineFilter("XYZ"); err == nil {
		t.Fatalf("unknown code accepted")
	}
}

func TestSelectRegionRejectsUnknown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()
	c := newTestController(ts)
	if err := c.SelectRegion(context.Background(), "region9"); err == nil {
		t.Fatalf("unknown region accepted")
	}
}
