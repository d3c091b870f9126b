package user

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Drewww17/m2-sa-luminarias/internal/domain/auditlog"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/auth"
)

var (
	ErrInvalid   = errors.New("invalid registration")
	ErrNotDoctor = errors.New("user is not a doctor")
)

// Auditor receives audit entries; auditlog.Logger satisfies it.
type Auditor interface {
	Log(e auditlog.Entry)
}

const systemIDAttempts = 5

type Service struct {
	repo    Repository
	audit   Auditor
	log     zerolog.Logger
	now     func() time.Time
	randInt func(n int) int
}

func NewService(repo Repository, audit Auditor, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		audit:   audit,
		log:     log,
		now:     time.Now,
		randInt: rand.Intn,
	}
}

// newSystemID returns an identifier of the form DFU-<year>-<4 digits>.
func (s *Service) newSystemID() string {
	return fmt.Sprintf("DFU-%d-%d", s.now().Year(), 1000+s.randInt(9000))
}

// Register creates the caller's profile. Any role other than doctor is
// registered as patient; doctors start pending and need a professional id.
func (s *Service) Register(ctx context.Context, userID, email string, req RegisterRequest) (*Profile, error) {
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	if first == "" || last == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalid)
	}

	now := s.now().UTC()
	p := &Profile{
		ID:             userID,
		FirstName:      first,
		LastName:       last,
		FullName:       first + " " + last,
		Email:          strings.TrimSpace(email),
		Role:           auth.RolePatient,
		ApprovalStatus: ApprovalApproved,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Role == auth.RoleDoctor {
		pid := strings.TrimSpace(req.ProfessionalID)
		if pid == "" {
			return nil, fmt.Errorf("%w: professional id is required for medical professionals", ErrInvalid)
		}
		p.Role = auth.RoleDoctor
		p.ProfessionalID = &pid
		p.ApprovalStatus = ApprovalPending
	}

	if err := s.create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", p.ID).Str("role", p.Role).Msg("user registered")
	return p, nil
}

// create inserts p, drawing a new system id on collision.
func (s *Service) create(ctx context.Context, p *Profile) error {
	for i := 0; i < systemIDAttempts; i++ {
		p.SystemID = s.newSystemID()
		err := s.repo.Create(ctx, p)
		if errors.Is(err, ErrSystemIDTaken) {
			continue
		}
		return err
	}
	return fmt.Errorf("allocate system id: %w", ErrSystemIDTaken)
}

// CreateAdmin creates an approved admin profile. Only reachable from the CLI.
func (s *Service) CreateAdmin(ctx context.Context, userID, email, firstName, lastName string) (*Profile, error) {
	first := strings.TrimSpace(firstName)
	last := strings.TrimSpace(lastName)
	if userID == "" || first == "" || last == "" {
		return nil, fmt.Errorf("%w: id, first and last name are required", ErrInvalid)
	}
	now := s.now().UTC()
	p := &Profile{
		ID:             userID,
		FirstName:      first,
		LastName:       last,
		FullName:       first + " " + last,
		Email:          strings.TrimSpace(email),
		Role:           auth.RoleAdmin,
		ApprovalStatus: ApprovalApproved,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.create(ctx, p); err != nil {
		return nil, err
	}
	s.audit.Log(auditlog.Entry{Action: auditlog.ActionAdminCreated, PerformedBy: "cli", TargetUser: p.ID})
	return p, nil
}

func (s *Service) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListPendingDoctors(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	return s.repo.ListByRole(ctx, auth.RoleDoctor, ApprovalPending, limit, offset)
}

// SetApproval approves or rejects a doctor account and records who did it.
func (s *Service) SetApproval(ctx context.Context, adminID, doctorID string, approve bool) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if p.Role != auth.RoleDoctor {
		return nil, ErrNotDoctor
	}

	status, action := ApprovalRejected, auditlog.ActionDoctorRejected
	if approve {
		status, action = ApprovalApproved, auditlog.ActionDoctorApproved
	}
	updated, err := s.repo.UpdateApproval(ctx, doctorID, status)
	if err != nil {
		return nil, fmt.Errorf("update approval: %w", err)
	}

	s.audit.Log(auditlog.Entry{Action: action, PerformedBy: adminID, TargetUser: doctorID})
	s.log.Info().Str("doctor_id", doctorID).Str("status", status).Str("admin_id", adminID).Msg("doctor approval changed")
	return updated, nil
}
