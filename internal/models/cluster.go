package models

import "time"

type ClusterStatus string

const (
	ClusterActive   ClusterStatus = "ACTIVE"
	ClusterResolved ClusterStatus = "RESOLVED"
)

// AlertCluster groups alerts seen at one location within the correlation
// window. Alerts holds the members still in the alert history, most recent
// first; AlertCount counts every alert that ever joined.
type AlertCluster struct {
	ID          string        `json:"id"`
	Location    string        `json:"location"`
	Title       string        `json:"title"`
	Status      ClusterStatus `json:"status"`
	Severity    Severity      `json:"severity"`
	Alerts      []*Alert      `json:"alerts"`
	AlertCount  int           `json:"alert_count"`
	FirstUpdate time.Time     `json:"first_update"`
	LastUpdate  time.Time     `json:"last_update"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

func (c *AlertCluster) Clone() *AlertCluster {
	if c == nil {
		return nil
	}
	out := *c
	out.Alerts = make([]*Alert, len(c.Alerts))
	for i, a := range c.Alerts {
		out.Alerts[i] = a.Clone()
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}
