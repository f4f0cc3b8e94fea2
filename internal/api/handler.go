package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-threat-telemetry/internal/command"
	"github.com/mr1hm/go-threat-telemetry/internal/engine"
	"github.com/mr1hm/go-threat-telemetry/internal/filter"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
	"github.com/mr1hm/go-threat-telemetry/internal/repository"
	"github.com/mr1hm/go-threat-telemetry/internal/stream"
	"github.com/mr1hm/go-threat-telemetry/internal/telemetry"
)

// Engine is what the HTTP surface reads from and drives.
type Engine interface {
	command.Target
	RenderList() []models.ThreatEvent
	RingEligible() []models.ThreatEvent
	Histogram() models.Histogram
	Telemetry() telemetry.Snapshot
	Filters() map[filter.Key]bool
	Defcon() int
	Alerts(ctx context.Context, opts repository.Filter) ([]models.Alert, error)
}

type Handler struct {
	engine Engine
	router *command.Router
	hub    *stream.Hub
}

func NewHandler(e Engine, hub *stream.Hub) *Handler {
	return &Handler{
		engine: e,
		router: command.NewRouter(e),
		hub:    hub,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/threats", h.getThreats)
	v1.GET("/threats/rings", h.getRings)
	v1.GET("/threats/geojson", h.getGeoJSON)
	v1.GET("/threats/nearest", h.getNearest)
	v1.GET("/histogram", h.getHistogram)
	v1.GET("/telemetry", h.getTelemetry)
	v1.GET("/status", h.getStatus)
	v1.GET("/filters", h.getFilters)
	v1.GET("/alerts", h.getAlerts)
	v1.GET("/stream", h.streamUpdates)

	v1.POST("/link", h.setLink)
	v1.POST("/scan", h.scan)
	v1.POST("/filters/:key/toggle", h.toggleFilter)
	v1.POST("/prediction/toggle", h.togglePrediction)
	v1.POST("/location", h.setLocation)
	v1.POST("/viewport", h.setViewport)
	v1.POST("/forecast", h.forecast)
	v1.POST("/train", h.train)
	v1.POST("/scram", h.scram)
	v1.POST("/defcon", h.setDefcon)
	v1.POST("/command", h.runCommand)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getThreats(c *gin.Context) {
	list := h.engine.RenderList()
	c.JSON(http.StatusOK, gin.H{"count": len(list), "threats": list})
}

func (h *Handler) getRings(c *gin.Context) {
	rings := h.engine.RingEligible()
	c.JSON(http.StatusOK, gin.H{"count": len(rings), "threats": rings})
}

func (h *Handler) getGeoJSON(c *gin.Context) {
	fc := toGeoJSON(h.engine.RenderList())
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) getNearest(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.NearestThreat())
}

func (h *Handler) getHistogram(c *gin.Context) {
	hist := h.engine.Histogram()
	c.JSON(http.StatusOK, gin.H{"histogram": hist, "total": hist.Total()})
}

func (h *Handler) getTelemetry(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Telemetry())
}

func (h *Handler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

func (h *Handler) getFilters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"filters": h.engine.Filters()})
}

func (h *Handler) getAlerts(c *gin.Context) {
	opts := repository.Filter{
		Limit: 50, // Default to 50 alerts if limit param not supplied
	}

	if s := c.Query("severity"); s != "" {
		sev := models.AlertSeverity(strings.ToUpper(s))
		opts.Severity = &sev
	}
	if s := c.Query("min_severity"); s != "" {
		sev := models.AlertSeverity(strings.ToUpper(s))
		opts.MinSeverity = &sev
	}
	if s := c.Query("source"); s != "" {
		src := models.AlertSource(strings.ToLower(s))
		opts.Source = &src
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			opts.Limit = lim
		}
	}

	alerts, err := h.engine.Alerts(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch alerts",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(alerts), "alerts": alerts})
}

// streamUpdates serves hub updates as server-sent events, starting with the
// current render list.
func (h *Handler) streamUpdates(c *gin.Context) {
	id, updates := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	list := h.engine.RenderList()
	c.SSEvent(string(stream.UpdateRender), stream.Update{
		Type:    stream.UpdateRender,
		Payload: engine.RenderView{Threats: list, Rings: len(filter.RingEligible(list))},
		At:      time.Now(),
	})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case u, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(string(u.Type), u)
			return true
		}
	})
}

type linkRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handler) setLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !*req.Enabled {
		h.engine.Disable()
		c.JSON(http.StatusOK, h.engine.Status())
		return
	}

	resp := gin.H{"status": nil}
	if err := h.engine.Enable(c.Request.Context()); err != nil {
		// polling runs even without the telemetry stream
		resp["stream_error"] = err.Error()
	}
	resp["status"] = h.engine.Status()
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) scan(c *gin.Context) {
	if !h.engine.ScanNow() {
		c.JSON(http.StatusConflict, gin.H{"error": "link is offline"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "scanning"})
}

func (h *Handler) toggleFilter(c *gin.Context) {
	on, err := h.engine.ToggleFilter(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": strings.ToUpper(c.Param("key")), "visible": on})
}

func (h *Handler) togglePrediction(c *gin.Context) {
	on := h.engine.TogglePrediction(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"prediction": on})
}

type locationRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lon *float64 `json:"lon" binding:"required"`
}

func (h *Handler) setLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update, err := h.engine.SetUserLocation(c.Request.Context(), *req.Lat, *req.Lon)
	if err != nil && update.Marker.Kind == "" {
		respondError(c, err)
		return
	}
	resp := gin.H{"location": update}
	if err != nil {
		resp["forecast_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) setViewport(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.SetViewport(*req.Lat, *req.Lon); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lat": *req.Lat, "lon": *req.Lon})
}

func (h *Handler) forecast(c *gin.Context) {
	out, err := h.engine.RunForecast(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) train(c *gin.Context) {
	if !h.engine.Train() {
		c.JSON(http.StatusConflict, gin.H{"error": "training already in progress"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "training started"})
}

func (h *Handler) scram(c *gin.Context) {
	if err := h.engine.Scram(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "SCRAM acknowledged"})
}

type defconRequest struct {
	Level *int `json:"level" binding:"required"`
}

func (h *Handler) setDefcon(c *gin.Context) {
	var req defconRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.SetDefcon(*req.Level); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"defcon": h.engine.Defcon()})
}

type commandRequest struct {
	Line string `json:"line" binding:"required"`
}

func (h *Handler) runCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.router.Execute(c.Request.Context(), req.Line)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrUnknownCommand),
		errors.Is(err, models.ErrUnknownFilter),
		errors.Is(err, models.ErrInvalidDefcon),
		errors.Is(err, models.ErrInvalidLocation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrStaleResponse):
		status = http.StatusConflict
	case models.IsTransient(err):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
