package auditlog

import (
	"time"

	"github.com/google/uuid"
)

// Actions written by the application.
const (
	ActionDoctorApproved = "doctor_approved"
	ActionDoctorRejected = "doctor_rejected"
	ActionScanVerified   = "scan_verified"
	ActionScanCorrected  = "scan_corrected"
	ActionHashMigrated   = "hash_migrated"
	ActionAdminCreated   = "admin_created"
)

type Entry struct {
	ID          uuid.UUID `json:"id"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	TargetUser  string    `json:"target_user"`
	ScanID      *string   `json:"scan_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Valid reports whether the entry carries the required fields.
func (e *Entry) Valid() bool {
	return e.Action != "" && e.PerformedBy != "" && e.TargetUser != ""
}
