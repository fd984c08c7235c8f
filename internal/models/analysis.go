package models

// AnalysisRequest is sent to the frame analysis gateway. Frame travels as a
// separate binary part and is not serialized.
type AnalysisRequest struct {
	Frame          []byte            `json:"-"`
	CameraID       string            `json:"camera_id"`
	Location       string            `json:"location"`
	RecentAlerts   []*Alert          `json:"recent_alerts"`
	Mode           DetectionMode     `json:"mode"`
	FacilityType   string            `json:"facility_type"`
	Rules          []string          `json:"rules"`
	ActiveProfiles []AdaptiveProfile `json:"active_profiles"`
}

type AnalysisResult struct {
	ThreatLevel    Severity  `json:"threat_level"`
	ThreatType     string    `json:"threat_type"`
	Confidence     float64   `json:"confidence"`
	Reasoning      string    `json:"reasoning"`
	Prediction     string    `json:"prediction"`
	WeaponDetected bool      `json:"weapon_detected"`
	Tracking       *Tracking `json:"tracking,omitempty"`
}

type Verification struct {
	Verified    bool    `json:"verified"`
	Confidence  float64 `json:"confidence"`
	ThreatLabel string  `json:"threat_label"`
	Reasoning   string  `json:"reasoning"`
}
