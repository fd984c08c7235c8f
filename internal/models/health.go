package models

type SystemHealth struct {
	NeuralLoad       float64 `json:"neural_load"`
	LatencyMS        float64 `json:"latency_ms"`
	NetworkIntegrity float64 `json:"network_integrity"`
	UptimeSeconds    int64   `json:"uptime_seconds"`
	RateLimited      bool    `json:"rate_limited"`
}

// Stats summarizes alert volume and scheduler activity.
type Stats struct {
	TotalAlerts     int              `json:"total_alerts"`
	BySeverity      map[Severity]int `json:"by_severity"`
	WeaponsDetected int              `json:"weapons_detected"`
	Cycles          int              `json:"cycles"`
	LastCycleAt     int64            `json:"last_cycle_at,omitempty"`
	LastCycleAlerts int              `json:"last_cycle_alerts"`
	StatusLine      string           `json:"status_line"`
}
