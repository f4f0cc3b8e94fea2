package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1700000000123))
	return NewClient(srv.URL, 0, clock)
}

func TestFetchLive_DecodesRecordsWithCacheBuster(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, livePath, r.URL.Path)
		assert.Equal(t, "1700000000123", r.URL.Query().Get("t"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"type":"EARTHQUAKE","lat":35.1,"lon":139.2,"raw_val":6.4,"energy_level":0.9,"place":"Tokyo Bay"}]}`))
	})

	records, err := c.FetchLive(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.RawRecord{
		Type: "EARTHQUAKE", Lat: 35.1, Lon: 139.2, RawValue: 6.4, EnergyLevel: 0.9, Place: "Tokyo Bay",
	}, records[0])
}

func TestFetchLive_MissingDataIsEmpty(t *testing.T) {
	for _, body := range []string{`{}`, `{"data":[]}`, `{"data":null}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		records, err := c.FetchLive(context.Background())
		require.NoError(t, err, body)
		assert.Empty(t, records, body)
	}
}

func TestFetchLive_ServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.FetchLive(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
	assert.Contains(t, err.Error(), "502")
}

func TestForecast_SendsFeature(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, forecastPath, r.URL.Path)
		var req ForecastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, ForecastRequest{Lat: 10, Lon: 20, SimulatedEnergy: 0.42}, req)
		w.Write([]byte(`{"predicted_risk":0.83,"alert_level":"CRITICAL"}`))
	})

	resp, err := c.Forecast(context.Background(), ForecastRequest{Lat: 10, Lon: 20, SimulatedEnergy: 0.42})
	require.NoError(t, err)
	assert.Equal(t, ForecastResponse{PredictedRisk: 0.83, AlertLevel: "CRITICAL"}, resp)
}

func TestTrainAndScram(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case trainPath:
			w.Write([]byte(`{"total_events_learned":128}`))
		case scramPath:
			w.Write([]byte(`{"status":"SCRAM_EXECUTED"}`))
		default:
			http.NotFound(w, r)
		}
	})

	n, err := c.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128, n)
	require.NoError(t, c.Scram(context.Background()))
}

func TestClient_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, nil)
	err := c.Scram(context.Background())
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}
