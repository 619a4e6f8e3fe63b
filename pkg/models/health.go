package models

import "time"

// ProviderHealth is the monitor's record for one registered provider.
// A record exists iff the provider is registered; it is mutated only by
// the health monitor and never destroyed during a consultation.
type ProviderHealth struct {
	ProviderID          string      `json:"provider_id"`
	Status              HealthState `json:"status"`
	LastChecked         time.Time   `json:"last_checked"` // zero if never probed
	LatencyMs           int64       `json:"latency_ms,omitempty"`
	ErrorRate           float64     `json:"error_rate"` // failures / window length
	ConsecutiveFailures int         `json:"consecutive_failures"`
}

// IsHealthy reports whether the provider can serve as a hedge backup.
func (h *ProviderHealth) IsHealthy() bool {
	return h.Status == HealthStateHealthy
}
