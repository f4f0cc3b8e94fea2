package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

var ErrNotFound = errors.New("not found")

type Filter struct {
	Limit       int
	Offset      int
	Since       *time.Time
	Source      *models.AlertSource
	Severity    *models.AlertSeverity
	MinSeverity *models.AlertSeverity // >= this level (WARNING includes WARNING and CRITICAL)
}

type AlertRepository interface {
	AddAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, opts Filter) ([]models.Alert, error)
	CountAlerts(ctx context.Context) (int, error)
}
