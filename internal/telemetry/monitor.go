// Package telemetry consumes the reactor status push stream.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/observability"
)

type Status string

const (
	StatusOffline  Status = "OFFLINE"
	StatusOnline   Status = "ONLINE"
	StatusCritical Status = "CRITICAL"
)

// Hooks are called outside the monitor lock. Any of them may be nil.
type Hooks struct {
	Sample   func(sample models.TelemetrySample, window []float64)
	Critical func(sample models.TelemetrySample)
	Status   func(status Status)
}

// Snapshot is the last-seen telemetry plus the rolling k-effective window.
type Snapshot struct {
	Sample     models.TelemetrySample `json:"sample"`
	HasSample  bool                   `json:"has_sample"`
	Window     []float64              `json:"k_eff_window"`
	Status     Status                 `json:"status"`
	Connected  bool                   `json:"connected"`
	LastUpdate time.Time              `json:"last_update,omitzero"`
}

// Monitor holds at most one stream connection. A lost connection moves it
// to OFFLINE and it stays there until Connect is called again.
type Monitor struct {
	url       string
	dialer    *websocket.Dialer
	threshold float64
	metrics   *observability.Metrics
	hooks     Hooks

	mu         sync.Mutex
	gen        uint64 // bumped by Disconnect; a dial started under an older gen is dropped
	conn       *websocket.Conn
	status     Status
	sample     models.TelemetrySample
	hasSample  bool
	lastUpdate time.Time
	window     *Window

	wg sync.WaitGroup
}

func NewMonitor(url string, threshold float64, windowSize int, metrics *observability.Metrics, hooks Hooks) *Monitor {
	return &Monitor{
		url:       url,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		threshold: threshold,
		metrics:   metrics,
		hooks:     hooks,
		status:    StatusOffline,
		window:    NewWindow(windowSize),
	}
}

// Connect dials the stream and starts the read loop. It is a no-op while a
// connection is open. A dial that completes after Disconnect is closed and
// reported as models.ErrStaleResponse.
func (m *Monitor) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	gen := m.gen
	m.mu.Unlock()

	conn, _, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return &models.TransientError{Op: "dial telemetry stream", Err: err}
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		conn.Close()
		slog.Debug("discarding telemetry dial after disconnect", "url", m.url)
		return fmt.Errorf("dial telemetry stream: %w", models.ErrStaleResponse)
	}
	if m.conn != nil {
		// lost a race with another Connect
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.status = StatusOnline
	m.mu.Unlock()

	m.metrics.StreamConnected.Set(1)
	slog.Info("telemetry stream connected", "url", m.url)
	m.notifyStatus(StatusOnline)

	m.wg.Add(1)
	go m.readLoop(conn)
	return nil
}

// Disconnect closes the stream and waits for the read loop to exit.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	m.gen++
	conn := m.conn
	m.conn = nil
	changed := m.status != StatusOffline
	m.status = StatusOffline
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	m.wg.Wait()

	m.metrics.StreamConnected.Set(0)
	if changed {
		m.notifyStatus(StatusOffline)
	}
}

func (m *Monitor) readLoop(conn *websocket.Conn) {
	defer m.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(conn, err)
			return
		}
		if err := m.HandleMessage(data); err != nil {
			m.metrics.MalformedMessages.Inc()
			slog.Warn("dropping telemetry message", "error", err)
		}
	}
}

func (m *Monitor) connectionLost(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// closed by Disconnect
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.status = StatusOffline
	m.mu.Unlock()

	conn.Close()
	m.metrics.StreamConnected.Set(0)
	slog.Error("telemetry stream lost", "error", err)
	m.notifyStatus(StatusOffline)
}

type message struct {
	NeutronFlux *float64 `json:"neutron_flux"`
	CoreTemp    *float64 `json:"core_temp"`
	KEffective  *float64 `json:"k_eff"`
}

// HandleMessage applies one push message. Unparseable or incomplete
// payloads return an error wrapping models.ErrMalformedMessage and leave
// the snapshot unchanged.
func (m *Monitor) HandleMessage(data []byte) error {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}
	if msg.NeutronFlux == nil || msg.CoreTemp == nil || msg.KEffective == nil {
		return fmt.Errorf("%w: missing field", models.ErrMalformedMessage)
	}

	sample := models.TelemetrySample{
		NeutronFlux: *msg.NeutronFlux,
		CoreTemp:    *msg.CoreTemp,
		KEffective:  *msg.KEffective,
	}
	critical := sample.CoreTemp > m.threshold

	m.mu.Lock()
	m.sample = sample
	m.hasSample = true
	m.lastUpdate = time.Now()
	m.window.Push(sample.KEffective)
	window := m.window.Values()

	prev := m.status
	switch {
	case critical:
		m.status = StatusCritical
	case m.status == StatusCritical && m.conn != nil:
		m.status = StatusOnline
	case m.status == StatusCritical:
		m.status = StatusOffline
	}
	next := m.status
	m.mu.Unlock()

	m.metrics.StreamMessages.Inc()

	if m.hooks.Sample != nil {
		m.hooks.Sample(sample, window)
	}
	if critical {
		slog.Warn("core temperature critical", "core_temp", sample.CoreTemp, "threshold", m.threshold)
		if m.hooks.Critical != nil {
			m.hooks.Critical(sample)
		}
	}
	if next != prev {
		m.notifyStatus(next)
	}
	return nil
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Sample:     m.sample,
		HasSample:  m.hasSample,
		Window:     m.window.Values(),
		Status:     m.status,
		Connected:  m.conn != nil,
		LastUpdate: m.lastUpdate,
	}
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

func (m *Monitor) notifyStatus(s Status) {
	if m.hooks.Status != nil {
		m.hooks.Status(s)
	}
}
