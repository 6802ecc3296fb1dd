package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(ts *httptest.Server) *Client {
	return NewClient(WithBaseURL(ts.URL), WithHTTPClient(ts.Client()), WithoutBreaker())
}

func TestRegionSnapshotKeepsAbsentFieldsAbsent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flights/region/region1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"time": 1700000000,
			"region": "region1",
			"states": [
				{"icao24":"4b1805","callsign":"THY4KZ ","baro_altitude":36000.5,"velocity":null,"vertical_rate":-640}
			]
		}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	snap, err := c.RegionSnapshot(context.Background(), "region1")
	if err != nil {
		t.Fatalf("RegionSnapshot: %v", err)
	}
	if len(snap.States) != 1 {
		t.Fatalf("states = %d, want 1", len(snap.States))
	}
	f := snap.States[0]
	if f.BaroAltitude == nil || *f.BaroAltitude != 36000.5 {
		t.Errorf("baro_altitude = %v", f.BaroAltitude)
	}
	if f.Velocity != nil {
		t.Errorf("null velocity must stay absent, got %v", *f.Velocity)
	}
	if f.TrueTrack != nil {
		t.Errorf("missing true_track must stay absent, got %v", *f.TrueTrack)
	}
	if f.VerticalRate == nil || *f.VerticalRate != -640 {
		t.Errorf("vertical_rate = %v", f.VerticalRate)
	}
}

func TestFlightByCallsignNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("region"); got != "region2" {
			t.Errorf("region query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error": "Not found"}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, found, err := c.FlightByCallsign(context.Background(), "ZZZ999", "region2")
	if err != nil {
		t.Fatalf("FlightByCallsign: %v", err)
	}
	if found {
		t.Fatalf("expected not found")
	}
}

func TestAnalyzePostsRegion(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ops/analyze" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"region":"region3","summary":"12 flights, 2 anomalous","flights":[{"icao24":"abc123","callsign":"QTR101"}]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	res, err := c.Analyze(context.Background(), "region3")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Summary != "12 flights, 2 anomalous" || len(res.Flights) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTravelerQueryCarriesNeedOps(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"traveler_response":"You are at cruise.","need_ops":true,"ops_summary":"Region busy."}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	res, err := c.TravelerQuery(context.Background(), "THY4KZ", "what about other flights?", "region1")
	if err != nil {
		t.Fatalf("TravelerQuery: %v", err)
	}
	if !res.NeedOps || res.TravelerResponse == "" || res.OpsSummary == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestNonOKSurfacesStructuredDetail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream agent unavailable"}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	_, err := c.ActiveAlerts(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := Detail(err); got != "upstream agent unavailable" {
		t.Fatalf("Detail = %q", got)
	}
}

func TestProbe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"time":null,"region":"region1","states":[]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	if !c.Probe(context.Background(), "region1") {
		t.Fatalf("probe against healthy server should succeed")
	}

	ts.Close()
	if c.Probe(context.Background(), "region1") {
		t.Fatalf("probe against closed server should fail")
	}
}
