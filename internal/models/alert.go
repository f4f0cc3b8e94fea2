package models

import "time"

type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "INFO"
	AlertSeverityWarning  AlertSeverity = "WARNING"
	AlertSeverityCritical AlertSeverity = "CRITICAL"
)

type AlertSource string

const (
	AlertSourceReactor  AlertSource = "reactor"
	AlertSourceForecast AlertSource = "forecast"
	AlertSourceDefcon   AlertSource = "defcon"
)

type Alert struct {
	ID        string        `json:"id"`
	Source    AlertSource   `json:"source"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
}
