package scan

import (
	"time"

	"github.com/google/uuid"

	"github.com/Drewww17/m2-sa-luminarias/internal/integrity"
)

// Review statuses.
const (
	ReviewPending       = "pending"
	ReviewVerified      = "verified"
	ReviewFalsePositive = "false_positive"
)

// Diagnoses produced by the consensus.
const (
	DiagnosisUlcer   = "Diabetic Foot Ulcer"
	DiagnosisHealthy = "Healthy"
)

// Scan is one screening record. Diagnosis, Confidence, RiskLevel,
// SystemVersion and ModelVersion are covered by ScanHash.
type Scan struct {
	ID                  uuid.UUID        `json:"id"`
	PatientID           string           `json:"patient_id"`
	PatientName         string           `json:"patient_name"`
	Diagnosis           string           `json:"diagnosis"`
	Confidence          float64          `json:"confidence"`
	RiskLevel           string           `json:"risk_level"`
	RiskScore           *int             `json:"risk_score,omitempty"`
	Recommendation      string           `json:"recommendation"`
	ReliabilityScore    float64          `json:"reliability_score"`
	AgreementPercentage float64          `json:"agreement_percentage"`
	ConfidenceStdDev    float64          `json:"confidence_std_dev"`
	IsUlcer             bool             `json:"is_ulcer"`
	ModelResults        []ModelResult    `json:"model_results"`
	SystemVersion       string           `json:"system_version"`
	ModelVersion        string           `json:"model_version"`
	ReviewStatus        string           `json:"review_status"`
	DoctorNotes         *string          `json:"doctor_notes,omitempty"`
	ReviewedBy          *string          `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time       `json:"reviewed_at,omitempty"`
	ScanHash            string           `json:"scan_hash"`
	HashScheme          integrity.Scheme `json:"hash_scheme"`
	HashedAt            *time.Time       `json:"hashed_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// HashedFields returns the live values that participate in the digest.
func (s *Scan) HashedFields() integrity.Fields {
	return integrity.Fields{
		Diagnosis:     integrity.String(s.Diagnosis),
		Confidence:    integrity.Number(s.Confidence),
		RiskLevel:     integrity.String(s.RiskLevel),
		SystemVersion: integrity.String(s.SystemVersion),
		ModelVersion:  integrity.String(s.ModelVersion),
	}
}

// seal computes the digest of the current fields with scheme and records it.
func (s *Scan) seal(scheme integrity.Scheme, at time.Time) error {
	h, err := integrity.Hash(scheme, s.HashedFields())
	if err != nil {
		return err
	}
	s.ScanHash = h
	s.HashScheme = scheme
	s.HashedAt = &at
	return nil
}

// applyDefaults stores the normalized form of the hashed fields so the row
// and its digest agree byte for byte.
func (s *Scan) applyDefaults() {
	c := integrity.Normalize(s.HashedFields())
	s.Diagnosis = c.Diagnosis
	s.Confidence = c.Confidence
	s.RiskLevel = c.RiskLevel
	s.SystemVersion = c.SystemVersion
	s.ModelVersion = c.ModelVersion
}

// CreateRequest is a patient's scan submission: the per-model inference
// results for one image.
type CreateRequest struct {
	ModelResults []ModelResult `json:"model_results"`
}

// ReviewRequest is a doctor's review.
type ReviewRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// Correction changes hashed fields. Nil members are left as they are.
type Correction struct {
	Diagnosis  *string  `json:"diagnosis"`
	Confidence *float64 `json:"confidence"`
	RiskLevel  *string  `json:"risk_level"`
	Reason     string   `json:"reason"`
}

// ListParams filters scan listings.
type ListParams struct {
	PatientID    string
	ReviewStatus string
	Since        *time.Time
	UlcerOnly    bool
}

// TimelinePoint is one entry of a patient's risk timeline.
type TimelinePoint struct {
	ScanID    uuid.UUID `json:"scan_id"`
	Date      time.Time `json:"date"`
	RiskScore int       `json:"risk_score"`
	RiskLevel string    `json:"risk_level"`
}

// MonthCount is a scan count for one YYYY-MM bucket.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Analytics summarizes all scans for administrators.
type Analytics struct {
	TotalScans          int          `json:"total_scans"`
	UlcerScans          int          `json:"ulcer_scans"`
	HealthyScans        int          `json:"healthy_scans"`
	UlcerRate           float64      `json:"ulcer_rate"`
	HighRisk            int          `json:"high_risk"`
	VerifiedScans       int          `json:"verified_scans"`
	PendingReviews      int          `json:"pending_reviews"`
	FalsePositiveRate   float64      `json:"false_positive_rate"`
	DoctorAgreementRate float64      `json:"doctor_agreement_rate"`
	AverageConfidence   float64      `json:"average_confidence"`
	MonthlyTrend        []MonthCount `json:"monthly_trend"`
	SystemVersion       string       `json:"system_version"`
	ModelVersion        string       `json:"model_version"`
}

// RehashReport is the outcome of rewriting stored hashes. Compromised rows
// failed verification under their own scheme and were left as they are.
type RehashReport struct {
	Scheme         integrity.Scheme `json:"scheme"`
	DryRun         bool             `json:"dry_run"`
	Total          int              `json:"total"`
	Updated        int              `json:"updated"`
	Unchanged      int              `json:"unchanged"`
	Failed         int              `json:"failed"`
	FailedIDs      []string         `json:"failed_ids,omitempty"`
	Compromised    int              `json:"compromised"`
	CompromisedIDs []string         `json:"compromised_ids,omitempty"`
}
