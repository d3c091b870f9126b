package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Drewww17/m2-sa-luminarias/internal/domain/auditlog"
	"github.com/Drewww17/m2-sa-luminarias/internal/integrity"
)

var (
	ErrInvalid = errors.New("invalid scan request")
	// ErrAlreadyReviewed is returned when a review would overwrite another
	// doctor's decision.
	ErrAlreadyReviewed = errors.New("scan already reviewed")
)

// Auditor receives audit entries; auditlog.Logger satisfies it.
type Auditor interface {
	Log(e auditlog.Entry)
}

type Options struct {
	Scheme        integrity.Scheme
	SystemVersion string
	ModelVersion  string
}

type Service struct {
	repo  Repository
	audit Auditor
	log   zerolog.Logger
	opts  Options
	now   func() time.Time
}

func NewService(repo Repository, audit Auditor, log zerolog.Logger, opts Options) *Service {
	if !opts.Scheme.Valid() {
		opts.Scheme = integrity.CurrentScheme
	}
	return &Service{
		repo:  repo,
		audit: audit,
		log:   log.With().Str("component", "scan").Logger(),
		opts:  opts,
		now:   time.Now,
	}
}

// CreateScan runs the consensus over the submitted model results and stores
// the scan with its hash in a single insert.
func (s *Service) CreateScan(ctx context.Context, patientID, patientName string, req CreateRequest) (*Scan, error) {
	if patientID == "" {
		return nil, fmt.Errorf("%w: missing patient", ErrInvalid)
	}
	cons, results, err := Analyze(req.ModelResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	now := s.now().UTC()
	riskScore := cons.RiskScore
	sc := &Scan{
		ID:                  uuid.New(),
		PatientID:           patientID,
		PatientName:         patientName,
		Diagnosis:           cons.Diagnosis,
		Confidence:          cons.Confidence,
		RiskScore:           &riskScore,
		Recommendation:      cons.Recommendation,
		ReliabilityScore:    cons.ReliabilityScore,
		AgreementPercentage: cons.AgreementPercentage,
		ConfidenceStdDev:    cons.ConfidenceStdDev,
		IsUlcer:             cons.IsUlcer,
		ModelResults:        results,
		SystemVersion:       s.opts.SystemVersion,
		ModelVersion:        s.opts.ModelVersion,
		ReviewStatus:        ReviewPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if cons.Severity != SeverityNone {
		sc.RiskLevel = cons.Severity
	}
	sc.applyDefaults()
	if err := sc.seal(s.opts.Scheme, now); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, sc); err != nil {
		return nil, err
	}
	s.log.Info().Str("scan_id", sc.ID.String()).Str("patient_id", patientID).
		Str("diagnosis", sc.Diagnosis).Str("scheme", sc.HashScheme.String()).Msg("scan created")
	return sc, nil
}

func (s *Service) GetScan(ctx context.Context, id uuid.UUID) (*Scan, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListPatientScans(ctx context.Context, patientID string, limit, offset int) ([]*Scan, int, error) {
	return s.repo.List(ctx, ListParams{PatientID: patientID}, limit, offset)
}

func (s *Service) SearchScans(ctx context.Context, p ListParams, limit, offset int) ([]*Scan, int, error) {
	if p.ReviewStatus != "" && !validReviewStatus(p.ReviewStatus) {
		return nil, 0, fmt.Errorf("%w: unknown review status %q", ErrInvalid, p.ReviewStatus)
	}
	return s.repo.List(ctx, p, limit, offset)
}

func validReviewStatus(v string) bool {
	return v == ReviewPending || v == ReviewVerified || v == ReviewFalsePositive
}

// ReviewScan records a doctor's decision. A scan without a hash is sealed
// in the same update; an existing hash is never recomputed here.
func (s *Service) ReviewScan(ctx context.Context, id uuid.UUID, reviewerID, reviewerName string, req ReviewRequest) (*Scan, error) {
	if req.Status != ReviewVerified && req.Status != ReviewFalsePositive {
		return nil, fmt.Errorf("%w: status must be %q or %q", ErrInvalid, ReviewVerified, ReviewFalsePositive)
	}
	if reviewerName == "" {
		reviewerName = reviewerID
	}

	now := s.now().UTC()
	updated, err := s.repo.Modify(ctx, id, func(sc *Scan) error {
		if sc.ReviewStatus != ReviewPending {
			return ErrAlreadyReviewed
		}
		sc.ReviewStatus = req.Status
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			sc.DoctorNotes = &notes
		}
		sc.ReviewedBy = &reviewerName
		sc.ReviewedAt = &now
		sc.UpdatedAt = now
		if sc.ScanHash == "" {
			sc.applyDefaults()
			return sc.seal(s.opts.Scheme, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	scanID := updated.ID.String()
	s.audit.Log(auditlog.Entry{
		Action:      auditlog.ActionScanVerified,
		PerformedBy: reviewerID,
		TargetUser:  updated.PatientID,
		ScanID:      &scanID,
	})
	return updated, nil
}

// CorrectScan is the only path that changes hashed fields. The corrected
// values and the new hash are written in one update.
func (s *Service) CorrectScan(ctx context.Context, id uuid.UUID, adminID string, c Correction) (*Scan, error) {
	if c.Diagnosis == nil && c.Confidence == nil && c.RiskLevel == nil {
		return nil, fmt.Errorf("%w: nothing to correct", ErrInvalid)
	}
	if c.Diagnosis != nil && *c.Diagnosis != DiagnosisUlcer && *c.Diagnosis != DiagnosisHealthy {
		return nil, fmt.Errorf("%w: unknown diagnosis %q", ErrInvalid, *c.Diagnosis)
	}
	if c.Confidence != nil && (*c.Confidence < 0 || *c.Confidence > 100) {
		return nil, fmt.Errorf("%w: confidence must be within 0 and 100", ErrInvalid)
	}
	if c.RiskLevel != nil {
		switch *c.RiskLevel {
		case SeverityHigh, SeverityModerate, SeverityLow:
		default:
			return nil, fmt.Errorf("%w: unknown risk level %q", ErrInvalid, *c.RiskLevel)
		}
	}

	now := s.now().UTC()
	updated, err := s.repo.Modify(ctx, id, func(sc *Scan) error {
		if c.Diagnosis != nil {
			sc.Diagnosis = *c.Diagnosis
			sc.IsUlcer = *c.Diagnosis == DiagnosisUlcer
		}
		if c.Confidence != nil {
			sc.Confidence = round2(*c.Confidence)
		}
		if c.RiskLevel != nil {
			sc.RiskLevel = *c.RiskLevel
			sc.RiskScore = nil
		}
		sc.UpdatedAt = now
		sc.applyDefaults()
		return sc.seal(s.opts.Scheme, now)
	})
	if err != nil {
		return nil, err
	}

	scanID := updated.ID.String()
	s.audit.Log(auditlog.Entry{
		Action:      auditlog.ActionScanCorrected,
		PerformedBy: adminID,
		TargetUser:  updated.PatientID,
		ScanID:      &scanID,
	})
	s.log.Info().Str("scan_id", scanID).Str("admin_id", adminID).Str("reason", c.Reason).Msg("scan corrected")
	return updated, nil
}

// Timeline returns a patient's scans oldest first with a numeric risk
// score. Scans without a stored score are scored from their risk level.
func (s *Service) Timeline(ctx context.Context, patientID string) ([]TimelinePoint, error) {
	items, _, err := s.repo.List(ctx, ListParams{PatientID: patientID}, 0, 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	points := make([]TimelinePoint, 0, len(items))
	for _, sc := range items {
		points = append(points, TimelinePoint{
			ScanID:    sc.ID,
			Date:      sc.CreatedAt,
			RiskScore: riskScoreOf(sc),
			RiskLevel: sc.RiskLevel,
		})
	}
	return points, nil
}

func riskScoreOf(sc *Scan) int {
	if sc.RiskScore != nil {
		return *sc.RiskScore
	}
	switch sc.RiskLevel {
	case SeverityHigh:
		return 90
	case SeverityModerate:
		return 60
	default:
		return 30
	}
}

// Analytics aggregates every stored scan.
func (s *Service) Analytics(ctx context.Context) (*Analytics, error) {
	a := &Analytics{
		SystemVersion: s.opts.SystemVersion,
		ModelVersion:  s.opts.ModelVersion,
		MonthlyTrend:  []MonthCount{},
	}
	months := map[string]int{}
	var confSum float64
	var falsePositives int

	err := s.repo.ForEach(ctx, func(sc *Scan) error {
		a.TotalScans++
		if sc.IsUlcer {
			a.UlcerScans++
		}
		if sc.RiskLevel == SeverityHigh {
			a.HighRisk++
		}
		switch sc.ReviewStatus {
		case ReviewVerified:
			a.VerifiedScans++
		case ReviewFalsePositive:
			falsePositives++
		default:
			a.PendingReviews++
		}
		confSum += sc.Confidence
		months[sc.CreatedAt.UTC().Format("2006-01")]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate scans: %w", err)
	}

	a.HealthyScans = a.TotalScans - a.UlcerScans
	if a.TotalScans > 0 {
		n := float64(a.TotalScans)
		a.UlcerRate = round2(float64(a.UlcerScans) / n * 100)
		a.FalsePositiveRate = round2(float64(falsePositives) / n * 100)
		a.DoctorAgreementRate = round2(float64(a.VerifiedScans) / n * 100)
		a.AverageConfidence = round2(confSum / n)
	}
	for m, c := range months {
		a.MonthlyTrend = append(a.MonthlyTrend, MonthCount{Month: m, Count: c})
	}
	sort.Slice(a.MonthlyTrend, func(i, j int) bool { return a.MonthlyTrend[i].Month < a.MonthlyTrend[j].Month })
	return a, nil
}

type rehashOutcome int

const (
	rehashNeeded rehashOutcome = iota
	rehashUnchanged
	rehashCompromised
)

var (
	errRehashUnchanged   = errors.New("hash already current")
	errRehashCompromised = errors.New("stored hash does not verify")
)

// classifyRehash decides what a migration may do with sc. A row is only
// resealed when its current hash still verifies under the scheme stored
// with it, so a tampered row keeps failing verification. Rows that were
// never sealed have nothing to protect and are sealed.
func (s *Service) classifyRehash(sc *Scan) rehashOutcome {
	if sc.ScanHash == "" {
		return rehashNeeded
	}
	ok, err := integrity.Matches(sc.HashScheme, sc.HashedFields(), sc.ScanHash)
	if err != nil || !ok {
		return rehashCompromised
	}
	if sc.HashScheme == s.opts.Scheme {
		return rehashUnchanged
	}
	return rehashNeeded
}

// RehashAll rewrites every stored hash with the configured scheme, using up
// to workers concurrent writers. Each row is checked and resealed inside
// repo.Modify. Rows whose stored hash no longer verifies are skipped and
// reported as compromised. A dry run only counts.
func (s *Service) RehashAll(ctx context.Context, dryRun bool, workers int) (*RehashReport, error) {
	if workers <= 0 {
		workers = 4
	}
	var all []*Scan
	if err := s.repo.ForEach(ctx, func(sc *Scan) error {
		all = append(all, sc)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load scans: %w", err)
	}

	report := &RehashReport{Scheme: s.opts.Scheme, DryRun: dryRun, Total: len(all)}
	var mu sync.Mutex
	count := func(o rehashOutcome, id string) {
		mu.Lock()
		defer mu.Unlock()
		switch o {
		case rehashNeeded:
			report.Updated++
		case rehashUnchanged:
			report.Unchanged++
		case rehashCompromised:
			report.Compromised++
			report.CompromisedIDs = append(report.CompromisedIDs, id)
		}
	}
	fail := func(id string) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed++
		report.FailedIDs = append(report.FailedIDs, id)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, snap := range all {
		id := snap.ID
		if dryRun {
			count(s.classifyRehash(snap), id.String())
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			var outcome rehashOutcome
			updated, err := s.repo.Modify(gctx, id, func(sc *Scan) error {
				outcome = s.classifyRehash(sc)
				switch outcome {
				case rehashUnchanged:
					return errRehashUnchanged
				case rehashCompromised:
					return errRehashCompromised
				}
				sc.applyDefaults()
				return sc.seal(s.opts.Scheme, s.now().UTC())
			})
			switch {
			case errors.Is(err, errRehashUnchanged):
				count(rehashUnchanged, id.String())
				return nil
			case errors.Is(err, errRehashCompromised):
				s.log.Warn().Str("scan_id", id.String()).Msg("stored hash does not verify, not rehashing")
				count(rehashCompromised, id.String())
				return nil
			case err != nil:
				s.log.Error().Err(err).Str("scan_id", id.String()).Msg("failed to rewrite scan hash")
				fail(id.String())
				return nil
			}

			scanID := id.String()
			s.audit.Log(auditlog.Entry{
				Action:      auditlog.ActionHashMigrated,
				PerformedBy: "cli",
				TargetUser:  updated.PatientID,
				ScanID:      &scanID,
			})
			count(outcome, scanID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	sort.Strings(report.FailedIDs)
	sort.Strings(report.CompromisedIDs)
	return report, nil
}
