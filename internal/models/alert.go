package models

import "time"

type AuditAction string

const (
	AuditCaptured        AuditAction = "CAPTURED"
	AuditVerified        AuditAction = "VERIFIED"
	AuditDismissed       AuditAction = "DISMISSED"
	AuditAnnotated       AuditAction = "ANNOTATED"
	AuditPinned          AuditAction = "PINNED"
	AuditUnpinned        AuditAction = "UNPINNED"
	AuditFusionConfirmed AuditAction = "FUSION_CONFIRMED"
	AuditFusionRejected  AuditAction = "FUSION_REJECTED"
)

// ActorSystem attributes audit entries produced by the engine itself.
const ActorSystem = "SYSTEM"

// Feedback labels attached by operators.
const (
	ClassificationVerified      = "VERIFIED"
	ClassificationFalsePositive = "FALSE_POSITIVE"
)

// ThreatSensorAnomaly classifies a fusion trigger the camera did not confirm.
const ThreatSensorAnomaly = "SENSOR_ANOMALY"

type AuditEntry struct {
	Action    AuditAction `json:"action"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
}

type Tracking struct {
	EntityID        string `json:"entity_id"`
	VisualSignature string `json:"visual_signature,omitempty"`
}

// Alert is one detected event. Fields other than Classification, Pinned,
// Annotations and AuditTrail never change after creation.
type Alert struct {
	ID             string       `json:"id"`
	CameraID       string       `json:"camera_id,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
	Severity       Severity     `json:"severity"`
	Location       string       `json:"location"`
	ThreatType     string       `json:"threat_type"`
	Confidence     float64      `json:"confidence"`
	Reasoning      string       `json:"reasoning,omitempty"`
	Prediction     string       `json:"prediction,omitempty"`
	WeaponDetected bool         `json:"weapon_detected,omitempty"`
	Tracking       *Tracking    `json:"tracking,omitempty"`
	Modalities     ModalitySet  `json:"modality_source"`
	Classification string       `json:"classification,omitempty"`
	Pinned         bool         `json:"pinned,omitempty"`
	Annotations    []string     `json:"annotations,omitempty"`
	AuditTrail     []AuditEntry `json:"audit_trail"`
}

// Clone returns a deep copy safe to hand out of a lock.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.Tracking != nil {
		t := *a.Tracking
		c.Tracking = &t
	}
	c.Annotations = append([]string(nil), a.Annotations...)
	c.AuditTrail = append([]AuditEntry(nil), a.AuditTrail...)
	return &c
}

func (a *Alert) Audit(action AuditAction, actor string, at time.Time, note string) {
	a.AuditTrail = append(a.AuditTrail, AuditEntry{
		Action:    action,
		Actor:     actor,
		Timestamp: at,
		Note:      note,
	})
}

// ClampConfidence bounds a confidence value to [0,100].
func ClampConfidence(c float64) float64 {
	return min(100, max(0, c))
}
