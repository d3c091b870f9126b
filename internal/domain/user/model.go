package user

import (
	"time"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/auth"
)

// Approval statuses.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Profile is the application record for an authenticated subject.
type Profile struct {
	ID             string    `json:"id"`
	SystemID       string    `json:"system_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	ProfessionalID *string   `json:"professional_id,omitempty"`
	ApprovalStatus string    `json:"approval_status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Roles returns the effective roles granted by the profile. Doctors awaiting
// approval hold no role until approved.
func (p *Profile) Roles() []string {
	if p.Role == auth.RoleDoctor && p.ApprovalStatus != ApprovalApproved {
		return nil
	}
	return []string{p.Role}
}

// RegisterRequest is the self-registration payload.
type RegisterRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Role           string `json:"role"`
	ProfessionalID string `json:"professional_id"`
}
