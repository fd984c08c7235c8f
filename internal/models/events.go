package models

import "time"

// FusionTrigger is a non-visual signal awaiting visual corroboration.
type FusionTrigger struct {
	Label     string    `json:"label"`
	Modality  Modality  `json:"modality"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// AccessEvent is a message from the access-control system.
type AccessEvent struct {
	DoorID    string    `json:"door_id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

type EventType string

const (
	EventAlertCreated    EventType = "alert.created"
	EventClusterResolved EventType = "cluster.resolved"
	EventLockdownChanged EventType = "lockdown.changed"
)

// Event is published to the alert stream and the live feed.
type Event struct {
	Type      EventType `json:"type"`
	Key       string    `json:"key"`
	ClusterID string    `json:"cluster_id,omitempty"`
	Alert     *Alert    `json:"alert,omitempty"`
	Lockdown  *bool     `json:"lockdown,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}
