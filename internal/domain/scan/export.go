package scan

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// Export filters.
const (
	FilterAll    = "all"
	FilterUlcer  = "ulcer"
	FilterLast30 = "last30"
)

// PatientInfo identifies the patient in an export header.
type PatientInfo struct {
	ID       string
	SystemID string
	Name     string
}

func priorityOf(riskLevel string) string {
	switch riskLevel {
	case SeverityHigh:
		return "High"
	case SeverityModerate:
		return "Medium"
	default:
		return "Low"
	}
}

// classify rates a history by its ulcer share.
func classify(ulcers, total int) string {
	switch {
	case ulcers == 0 || total == 0:
		return "Low"
	case float64(ulcers)/float64(total) > 0.5:
		return "High"
	default:
		return "Moderate"
	}
}

// ExportCSV writes a patient report: a summary section, a blank line and
// the scan history, newest first.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, patient PatientInfo, filter string) error {
	p := ListParams{PatientID: patient.ID}
	now := s.now().UTC()
	switch filter {
	case "", FilterAll:
	case FilterUlcer:
		p.UlcerOnly = true
	case FilterLast30:
		since := now.AddDate(0, 0, -30)
		p.Since = &since
	default:
		return fmt.Errorf("%w: unknown export filter %q", ErrInvalid, filter)
	}

	items, _, err := s.repo.List(ctx, p, 0, 0)
	if err != nil {
		return fmt.Errorf("load scans: %w", err)
	}

	ulcers := 0
	for _, sc := range items {
		if sc.IsUlcer {
			ulcers++
		}
	}
	rate := "0%"
	if len(items) > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(ulcers)/float64(len(items))*100)
	}
	systemID := patient.SystemID
	if systemID == "" {
		systemID = patient.ID
	}

	cw := csv.NewWriter(w)
	summary := [][]string{
		{"Section", "Patient Summary"},
		{"Name", patient.Name},
		{"ID", systemID},
		{"Total scans", fmt.Sprint(len(items))},
		{"Ulcer rate", rate},
		{"Risk classification", classify(ulcers, len(items))},
		{"Generated date", now.Format(time.RFC3339)},
		{"System version", s.opts.SystemVersion},
		{"Model version", s.opts.ModelVersion},
	}
	if err := cw.WriteAll(summary); err != nil {
		return fmt.Errorf("export csv: write summary: %w", err)
	}

	// section break, written raw so it is an empty line rather than ""
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}

	rows := [][]string{
		{"Section", "Scan History"},
		{"Date", "Diagnosis", "Severity", "Confidence", "Priority", "Verified", "Reviewed By", "Scan ID"},
	}
	for _, sc := range items {
		verified := "No"
		if sc.ReviewStatus == ReviewVerified {
			verified = "Yes"
		}
		reviewer := "N/A"
		if sc.ReviewedBy != nil && *sc.ReviewedBy != "" {
			reviewer = *sc.ReviewedBy
		}
		diagnosis := sc.Diagnosis
		if diagnosis == "" {
			diagnosis = "N/A"
		}
		rows = append(rows, []string{
			sc.CreatedAt.UTC().Format("Jan 2, 2006"),
			diagnosis,
			sc.RiskLevel,
			fmt.Sprintf("%.2f%%", sc.Confidence),
			priorityOf(sc.RiskLevel),
			verified,
			reviewer,
			sc.ID.String(),
		})
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("export csv: write history: %w", err)
	}
	return nil
}
