// Package verification re-derives a scan's integrity hash from its live
// fields and reports whether the stored record can still be vouched for.
package verification

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Drewww17/m2-sa-luminarias/internal/domain/scan"
	"github.com/Drewww17/m2-sa-luminarias/internal/integrity"
)

// Status is the terminal outcome of a verification.
type Status string

const (
	StatusVerified             Status = "verified"
	StatusIntegrityCompromised Status = "integrity_compromised"
	StatusNotFound             Status = "not_found"
)

// Result carries the outcome and, for the two found states, the record as
// currently stored.
type Result struct {
	Status Status
	Record *scan.Scan
}

// Records is the read side of the scan store.
type Records interface {
	GetByID(ctx context.Context, id uuid.UUID) (*scan.Scan, error)
	ForEach(ctx context.Context, fn func(s *scan.Scan) error) error
}

type Verifier struct {
	records Records
	log     zerolog.Logger
}

func NewVerifier(records Records, log zerolog.Logger) *Verifier {
	return &Verifier{records: records, log: log.With().Str("component", "verification").Logger()}
}

// Verify never returns an error: lookup failures of any kind are reported
// as StatusNotFound, and a found record is either verified or compromised.
func (v *Verifier) Verify(ctx context.Context, recordID string) Result {
	id, err := uuid.Parse(recordID)
	if err != nil {
		return Result{Status: StatusNotFound}
	}
	rec, err := v.records.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, scan.ErrNotFound) {
			v.log.Error().Err(err).Str("scan_id", recordID).Msg("verification lookup failed")
		}
		return Result{Status: StatusNotFound}
	}

	status := Check(rec)
	if status == StatusIntegrityCompromised {
		v.log.Warn().Str("scan_id", recordID).Str("scheme", rec.HashScheme.String()).Msg("scan integrity compromised")
	}
	return Result{Status: status, Record: rec}
}

// Check recomputes the digest of rec's live fields under the scheme stored
// with it. Records with no hash or an unknown scheme cannot be verified.
func Check(rec *scan.Scan) Status {
	if rec.ScanHash == "" || !rec.HashScheme.Valid() {
		return StatusIntegrityCompromised
	}
	ok, err := integrity.Matches(rec.HashScheme, rec.HashedFields(), rec.ScanHash)
	if err != nil || !ok {
		return StatusIntegrityCompromised
	}
	return StatusVerified
}

// AuditReport summarizes a full pass over the store.
type AuditReport struct {
	Total          int      `json:"total"`
	Verified       int      `json:"verified"`
	Compromised    int      `json:"compromised"`
	CompromisedIDs []string `json:"compromised_ids"`
}

// AuditAll checks every stored scan with up to workers goroutines.
func (v *Verifier) AuditAll(ctx context.Context, workers int) (*AuditReport, error) {
	if workers <= 0 {
		workers = 4
	}
	var all []*scan.Scan
	if err := v.records.ForEach(ctx, func(s *scan.Scan) error {
		all = append(all, s)
		return nil
	}); err != nil {
		return nil, err
	}

	report := &AuditReport{Total: len(all), CompromisedIDs: []string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rec := range all {
		rec := rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			status := Check(rec)
			mu.Lock()
			defer mu.Unlock()
			if status == StatusVerified {
				report.Verified++
			} else {
				report.Compromised++
				report.CompromisedIDs = append(report.CompromisedIDs, rec.ID.String())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(report.CompromisedIDs)
	return report, nil
}
