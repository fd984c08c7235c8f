package models

type Sensitivity string

const (
	SensitivityLow      Sensitivity = "LOW"
	SensitivityMedium   Sensitivity = "MEDIUM"
	SensitivityHigh     Sensitivity = "HIGH"
	SensitivityParanoid Sensitivity = "PARANOID"
)

// TargetAllCameras makes a profile apply to every camera.
const TargetAllCameras = "ALL"

// AdaptiveProfile overrides detection sensitivity for a camera during a
// daily window [Start, End). Times are "HH:MM"; End before Start wraps past
// midnight.
type AdaptiveProfile struct {
	ID             string      `json:"id"`
	Name           string      `json:"name,omitempty"`
	TargetCameraID string      `json:"target_camera_id"`
	Start          string      `json:"start"`
	End            string      `json:"end"`
	Sensitivity    Sensitivity `json:"sensitivity"`
	IsActive       bool        `json:"is_active"`
}
