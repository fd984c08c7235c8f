package models

import "time"

// CameraSource is a logical camera. DeviceHandle is the snapshot URL used by
// the capture adapter.
type CameraSource struct {
	ID            string    `json:"id" yaml:"id"`
	DeviceHandle  string    `json:"device_handle" yaml:"device_handle"`
	Name          string    `json:"name" yaml:"name"`
	Zone          string    `json:"zone,omitempty" yaml:"zone"`
	Primary       bool      `json:"primary,omitempty" yaml:"primary"`
	PriorityScore int       `json:"priority_score" yaml:"-"`
	ActiveAlerts  int       `json:"active_alerts" yaml:"-"`
	LastActivity  time.Time `json:"last_activity" yaml:"-"`
}
