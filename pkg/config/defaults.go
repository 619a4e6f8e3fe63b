package config

import (
	"time"

	"github.com/conclave-ai/conclave/pkg/models"
)

// Defaults contains system-wide default configurations.
// These values apply when a consultation's options don't override them.
type Defaults struct {
	// Fan-out profile for consultations started without an explicit mode
	Mode models.Mode `yaml:"mode,omitempty"`

	// Cost gate threshold in USD. Estimates above it require user
	// consent before any provider call. Explicit 0 disables the gate.
	CostGateUSD *float64 `yaml:"cost_gate_usd,omitempty"`

	// Stagger before a backup call is hedged alongside a slow primary
	HedgeDelayMS int `yaml:"hedge_delay_ms,omitempty"`

	// Silence threshold before the pulse asks whether to keep waiting
	PulseThresholdMS int `yaml:"pulse_threshold_ms,omitempty"`

	// Overall consultation deadline
	ConsultationTimeoutMS int `yaml:"consultation_timeout_ms,omitempty"`

	// Health probe cadence
	HealthCheckIntervalMS int `yaml:"health_check_interval_ms,omitempty"`

	// Hard per-probe timeout
	HealthCheckTimeoutMS int `yaml:"health_check_timeout_ms,omitempty"`

	// Rolling result window length per provider
	RollingWindowSize int `yaml:"rolling_window_size,omitempty"`
}

// DefaultDefaults returns the built-in system defaults.
func DefaultDefaults() *Defaults {
	gate := 1.0
	return &Defaults{
		Mode:                  models.ModeConsult,
		CostGateUSD:           &gate,
		HedgeDelayMS:          10000,
		PulseThresholdMS:      60000,
		ConsultationTimeoutMS: 600000,
		HealthCheckIntervalMS: 30000,
		HealthCheckTimeoutMS:  10000,
		RollingWindowSize:     10,
	}
}

// CostGate returns the resolved gate threshold in USD (0 = disabled).
func (d *Defaults) CostGate() float64 {
	if d.CostGateUSD == nil {
		return 0
	}
	return *d.CostGateUSD
}

// HedgeDelay returns the hedge stagger as a duration.
func (d *Defaults) HedgeDelay() time.Duration {
	return time.Duration(d.HedgeDelayMS) * time.Millisecond
}

// PulseThreshold returns the pulse silence threshold as a duration.
func (d *Defaults) PulseThreshold() time.Duration {
	return time.Duration(d.PulseThresholdMS) * time.Millisecond
}

// ConsultationTimeout returns the overall deadline as a duration.
func (d *Defaults) ConsultationTimeout() time.Duration {
	return time.Duration(d.ConsultationTimeoutMS) * time.Millisecond
}

// HealthCheckInterval returns the probe cadence as a duration.
func (d *Defaults) HealthCheckInterval() time.Duration {
	return time.Duration(d.HealthCheckIntervalMS) * time.Millisecond
}

// HealthCheckTimeout returns the per-probe timeout as a duration.
func (d *Defaults) HealthCheckTimeout() time.Duration {
	return time.Duration(d.HealthCheckTimeoutMS) * time.Millisecond
}
