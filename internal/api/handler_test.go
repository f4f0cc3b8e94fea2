package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-threat-telemetry/internal/classifier"
	"github.com/mr1hm/go-threat-telemetry/internal/config"
	"github.com/mr1hm/go-threat-telemetry/internal/engine"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/observability"
	"github.com/mr1hm/go-threat-telemetry/internal/repository"
	"github.com/mr1hm/go-threat-telemetry/internal/stream"
	"github.com/mr1hm/go-threat-telemetry/internal/upstream"
)

var _ Engine = (*engine.Aggregator)(nil)

// stubRemote stands in for the feed, forecast and reactor services
type stubRemote struct {
	mu       sync.Mutex
	records  []models.RawRecord
	scramErr error
}

func (s *stubRemote) FetchLive(ctx context.Context) ([]models.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, nil
}

func (s *stubRemote) Forecast(ctx context.Context, req upstream.ForecastRequest) (upstream.ForecastResponse, error) {
	return upstream.ForecastResponse{PredictedRisk: 0.4, AlertLevel: "NORMAL"}, nil
}

func (s *stubRemote) Train(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *stubRemote) Scram(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scramErr != nil {
		return &models.TransientError{Op: "scram", Err: s.scramErr}
	}
	return nil
}

var testRecords = []models.RawRecord{
	{Type: "EARTHQUAKE", Lat: 35.0, Lon: 139.0, RawValue: 7.1, EnergyLevel: 0.9, Place: "Off Honshu"},
	{Type: "VOLCANO", Lat: 19.4, Lon: -155.3, RawValue: 4, EnergyLevel: 0.5, Place: "Kilauea"},
}

func newTestEngine(t *testing.T, remote *stubRemote) (*engine.Aggregator, *stream.Hub) {
	t.Helper()

	db, err := repository.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	hub := stream.NewHub()

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{StreamURL: "ws://127.0.0.1:1/api/v1/reactor/ws/status"},
		Poll:     config.PollConfig{Interval: time.Minute, EmptyRetry: 3 * time.Second, ErrorRetry: 5 * time.Second},
		Forecast: config.ForecastConfig{RadiusKm: 800, DefaultLat: 21.0285, DefaultLon: 105.8542},
		Telemetry: config.TelemetryConfig{
			CoreTempCritical: 2000,
			WindowSize:       30,
		},
		Worker: config.WorkerConfig{Count: 1, BufferSize: 8},
	}

	agg := engine.New(context.Background(), engine.Deps{
		Config:  cfg,
		Remote:  remote,
		Alerts:  db,
		Hub:     hub,
		Metrics: observability.NewMetricsForTesting(),
		Clock:   clockwork.NewFakeClock(),
		Anchors: classifier.NuclearPlants,
	})
	t.Cleanup(func() {
		agg.Close()
		hub.Close()
		db.Close()
	})
	return agg, hub
}

func setupTestRouter(t *testing.T, remote *stubRemote) (*gin.Engine, *engine.Aggregator, *stream.Hub) {
	t.Helper()
	agg, hub := newTestEngine(t, remote)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(agg, hub).RegisterRoutes(router)
	return router, agg, hub
}

// seed enables the link and waits for the first poll to land.
func seed(t *testing.T, agg *engine.Aggregator) {
	t.Helper()
	_ = agg.Enable(context.Background())

	want := len(testRecords) + len(classifier.NuclearPlants)
	deadline := time.Now().Add(2 * time.Second)
	for len(agg.RenderList()) != want {
		if time.Now().After(deadline) {
			t.Fatalf("first poll never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router, _, _ := setupTestRouter(t, &stubRemote{})

	w := do(router, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestGetThreats(t *testing.T) {
	router, agg, _ := setupTestRouter(t, &stubRemote{records: testRecords})
	seed(t, agg)

	w := do(router, "GET", "/api/v1/threats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Count   int                  `json:"count"`
		Threats []models.ThreatEvent `json:"threats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Count != len(testRecords)+len(classifier.NuclearPlants) {
		t.Errorf("unexpected count %d", resp.Count)
	}
	if resp.Threats[0].Label != "QUAKE (M7.1)" {
		t.Errorf("expected first threat QUAKE (M7.1), got %s", resp.Threats[0].Label)
	}
}

func TestGetThreats_GeoJSON(t *testing.T) {
	router, agg, _ := setupTestRouter(t, &stubRemote{records: testRecords})
	seed(t, agg)

	w := do(router, "GET", "/api/v1/threats/geojson", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", contentType)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("expected type FeatureCollection, got %s", fc.Type)
	}
	if len(fc.Features) != len(testRecords)+len(classifier.NuclearPlants) {
		t.Errorf("unexpected feature count %d", len(fc.Features))
	}

	quake := fc.Features[0]
	if quake.Geometry.Coordinates[0] != 139.0 || quake.Geometry.Coordinates[1] != 35.0 {
		t.Errorf("expected [lon, lat] = [139, 35], got %v", quake.Geometry.Coordinates)
	}
	if quake.Properties["ring_radius"] != 35.5 {
		t.Errorf("expected ring_radius 35.5, got %v", quake.Properties["ring_radius"])
	}
}

func TestToggleFilter(t *testing.T) {
	router, agg, _ := setupTestRouter(t, &stubRemote{records: testRecords})
	seed(t, agg)

	w := do(router, "POST", "/api/v1/filters/volcano/toggle", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Visible bool `json:"visible"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Visible {
		t.Error("expected volcano filter to be off")
	}

	listed := do(router, "GET", "/api/v1/threats", "")
	if strings.Contains(listed.Body.String(), "Kilauea") {
		t.Error("hidden volcano still rendered")
	}

	w = do(router, "POST", "/api/v1/filters/tsunami/toggle", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown filter, got %d", w.Code)
	}
}

func TestSetLocation(t *testing.T) {
	router, agg, _ := setupTestRouter(t, &stubRemote{records: testRecords})
	seed(t, agg)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"valid", `{"lat": 35.6762, "lon": 139.6503}`, http.StatusOK},
		{"zero is a coordinate", `{"lat": 0, "lon": 0}`, http.StatusOK},
		{"missing lon", `{"lat": 35}`, http.StatusBadRequest},
		{"out of range", `{"lat": 95, "lon": 0}`, http.StatusBadRequest},
		{"not json", `lat=1`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, "POST", "/api/v1/location", tt.body)
			if w.Code != tt.code {
				t.Errorf("expected status %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}

	w := do(router, "GET", "/api/v1/threats/nearest", "")
	var nearest engine.NearestThreat
	json.Unmarshal(w.Body.Bytes(), &nearest)
	if !nearest.Found {
		t.Error("expected a nearest threat once the user is located")
	}
}

func TestDefconAndAlerts(t *testing.T) {
	router, _, _ := setupTestRouter(t, &stubRemote{})

	w := do(router, "POST", "/api/v1/defcon", `{"level": 9}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	w = do(router, "POST", "/api/v1/defcon", `{"level": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w = do(router, "GET", "/api/v1/alerts?source=defcon&limit=10", "")
		var resp struct {
			Count  int            `json:"count"`
			Alerts []models.Alert `json:"alerts"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Count == 1 {
			if resp.Alerts[0].Severity != models.AlertSeverityInfo {
				t.Errorf("expected INFO severity, got %s", resp.Alerts[0].Severity)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("defcon alert never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScram_UpstreamFailure(t *testing.T) {
	router, _, _ := setupTestRouter(t, &stubRemote{scramErr: errors.New("reactor unreachable")})

	w := do(router, "POST", "/api/v1/scram", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
}

func TestScan_Offline(t *testing.T) {
	router, _, _ := setupTestRouter(t, &stubRemote{})

	w := do(router, "POST", "/api/v1/scan", "")
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
}

func TestForecast_PredictionOff(t *testing.T) {
	router, _, _ := setupTestRouter(t, &stubRemote{})

	w := do(router, "POST", "/api/v1/forecast", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var out engine.ForecastOutcome
	json.Unmarshal(w.Body.Bytes(), &out)
	if !out.Result.Skipped {
		t.Error("expected forecast to be skipped while prediction is off")
	}

	w = do(router, "POST", "/api/v1/prediction/toggle", "")
	if !strings.Contains(w.Body.String(), `"prediction":true`) {
		t.Errorf("expected prediction on, got %s", w.Body.String())
	}

	w = do(router, "POST", "/api/v1/forecast", "")
	json.Unmarshal(w.Body.Bytes(), &out)
	if out.Result.Skipped || out.Target.Source != engine.TargetDefault {
		t.Errorf("expected a forecast at the default target, got %+v", out)
	}
}

func TestCommand(t *testing.T) {
	router, _, _ := setupTestRouter(t, &stubRemote{})

	w := do(router, "POST", "/api/v1/command", `{"line": "defcon 4"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(router, "POST", "/api/v1/command", `{"line": "self destruct"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	w = do(router, "POST", "/api/v1/command", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing line, got %d", w.Code)
	}
}

func TestLink(t *testing.T) {
	router, _, _ := setupTestRouter(t, &stubRemote{records: testRecords})

	w := do(router, "POST", "/api/v1/link", `{"enabled": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "stream_error") {
		t.Error("expected the closed stream port to be reported")
	}

	w = do(router, "POST", "/api/v1/link", `{"enabled": false}`)
	var status engine.StatusReport
	json.Unmarshal(w.Body.Bytes(), &status)
	if status.Enabled || status.Link != engine.LinkOffline {
		t.Errorf("expected link offline, got %+v", status)
	}

	w = do(router, "POST", "/api/v1/link", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestStream_SSE(t *testing.T) {
	router, agg, _ := setupTestRouter(t, &stubRemote{})
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	waitEvent := func(name string) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before event %s", name)
				}
				if line == "event:"+name {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for event %s", name)
			}
		}
	}

	waitEvent("render")

	if err := agg.SetDefcon(1); err != nil {
		t.Fatalf("SetDefcon: %v", err)
	}
	waitEvent("alert")

	cancel()
	for range lines {
	}
}

func doFrom(router *gin.Engine, path, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	first := doFrom(router, "/ping", "10.0.0.1:5000")
	second := doFrom(router, "/ping", "10.0.0.1:5001")

	if first.Code != http.StatusOK {
		t.Errorf("expected first request to pass, got %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected second request to be limited, got %d", second.Code)
	}
	if !bytes.Contains(second.Body.Bytes(), []byte("rate limit exceeded")) {
		t.Errorf("unexpected body %s", second.Body.String())
	}
	if got := second.Header().Get("Retry-After"); got != "1" {
		t.Errorf("expected Retry-After 1, got %q", got)
	}

	// another client has its own bucket
	if w := doFrom(router, "/ping", "10.0.0.2:5000"); w.Code != http.StatusOK {
		t.Errorf("expected second client to pass, got %d", w.Code)
	}

	// health checks are never limited
	for i := 0; i < 3; i++ {
		if w := doFrom(router, "/health", "10.0.0.1:5002"); w.Code != http.StatusOK {
			t.Errorf("health request %d limited: %d", i, w.Code)
		}
	}
}
