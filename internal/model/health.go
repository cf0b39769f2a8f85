// internal/model/health.go
package model

const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
	HealthNoData   = "no_data"
)

type Health struct {
	Total       int     `json:"total"`
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	Last24h     int     `json:"last_24h"`
	Status      string  `json:"status"`
}
