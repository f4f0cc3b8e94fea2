package upstream

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

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

const (
	livePath     = "/api/v1/disasters/live"
	trainPath    = "/api/v1/predict/train"
	forecastPath = "/api/v1/predict/forecast"
	scramPath    = "/api/v1/reactor/scram"
)

type liveResponse struct {
	Data []models.RawRecord `json:"data"`
}

type trainResponse struct {
	TotalEventsLearned int `json:"total_events_learned"`
}

type ForecastRequest struct {
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	SimulatedEnergy float64 `json:"simulated_energy"`
}

type ForecastResponse struct {
	PredictedRisk float64 `json:"predicted_risk"`
	AlertLevel    string  `json:"alert_level"`
}

// Client talks to the disaster feed, forecast and reactor services.
// Every failure is returned as a *models.TransientError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	clock      clockwork.Clock
}

// NewClient creates a client. A zero timeout keeps the transport default.
func NewClient(baseURL string, timeout time.Duration, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		clock: clock,
	}
}

// FetchLive returns the current feed records. An empty or missing data
// array yields an empty slice and no error.
func (c *Client) FetchLive(ctx context.Context) ([]models.RawRecord, error) {
	params := url.Values{
		"t": {strconv.FormatInt(c.clock.Now().UnixMilli(), 10)},
	}

	var data liveResponse
	if err := c.do(ctx, http.MethodGet, livePath+"?"+params.Encode(), nil, &data); err != nil {
		return nil, &models.TransientError{Op: "fetch live feed", Err: err}
	}
	return data.Data, nil
}

func (c *Client) Train(ctx context.Context) (int, error) {
	var data trainResponse
	if err := c.do(ctx, http.MethodPost, trainPath, struct{}{}, &data); err != nil {
		return 0, &models.TransientError{Op: "train", Err: err}
	}
	return data.TotalEventsLearned, nil
}

func (c *Client) Forecast(ctx context.Context, req ForecastRequest) (ForecastResponse, error) {
	var data ForecastResponse
	if err := c.do(ctx, http.MethodPost, forecastPath, req, &data); err != nil {
		return ForecastResponse{}, &models.TransientError{Op: "forecast", Err: err}
	}
	return data, nil
}

// Scram requests an emergency shutdown. The acknowledgement body is ignored.
func (c *Client) Scram(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, scramPath, struct{}{}, nil); err != nil {
		return &models.TransientError{Op: "scram", Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d - body: %s", resp.StatusCode, msg)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return nil
}
