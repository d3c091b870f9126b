package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/kv"
	"github.com/Drewww17/m2-sa-luminarias/pkg/pagination"
)

const (
	scanPrefix    = "scan/"
	patientPrefix = "scan-patient/"
)

// RepoLevel stores scans as JSON under scan/<id> with a per-patient index
// scan-patient/<patient>/<id>.
type RepoLevel struct {
	store *kv.Store
	mu    sync.Mutex
}

func NewRepoLevel(store *kv.Store) *RepoLevel {
	return &RepoLevel{store: store}
}

func patientKey(patientID string, id uuid.UUID) string {
	return patientPrefix + patientID + "/" + id.String()
}

func (r *RepoLevel) Create(_ context.Context, s *Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.store.NewBatch()
	b.PutJSON(scanPrefix+s.ID.String(), s)
	b.Put(patientKey(s.PatientID, s.ID), []byte(s.ID.String()))
	if err := r.store.Write(b); err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (r *RepoLevel) GetByID(_ context.Context, id uuid.UUID) (*Scan, error) {
	var s Scan
	err := r.store.GetJSON(scanPrefix+id.String(), &s)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p ListParams) match(s *Scan) bool {
	if p.PatientID != "" && s.PatientID != p.PatientID {
		return false
	}
	if p.ReviewStatus != "" && s.ReviewStatus != p.ReviewStatus {
		return false
	}
	if p.Since != nil && s.CreatedAt.Before(*p.Since) {
		return false
	}
	if p.UlcerOnly && !s.IsUlcer {
		return false
	}
	return true
}

func (r *RepoLevel) List(ctx context.Context, p ListParams, limit, offset int) ([]*Scan, int, error) {
	var all []*Scan
	collect := func(s *Scan) error {
		if p.match(s) {
			all = append(all, s)
		}
		return nil
	}

	var err error
	if p.PatientID != "" {
		err = r.store.Each(patientPrefix+p.PatientID+"/", func(_ string, value []byte) error {
			id, perr := uuid.ParseBytes(value)
			if perr != nil {
				return perr
			}
			s, gerr := r.GetByID(ctx, id)
			if gerr != nil {
				return gerr
			}
			return collect(s)
		})
	} else {
		err = r.ForEach(ctx, collect)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list scans: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return pagination.Window(all, limit, offset), len(all), nil
}

func (r *RepoLevel) Modify(ctx context.Context, id uuid.UUID, fn func(s *Scan) error) (*Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := r.store.PutJSON(scanPrefix+id.String(), s); err != nil {
		return nil, fmt.Errorf("update scan: %w", err)
	}
	return s, nil
}

func (r *RepoLevel) ForEach(_ context.Context, fn func(s *Scan) error) error {
	return r.store.Each(scanPrefix, func(_ string, value []byte) error {
		var s Scan
		if err := json.Unmarshal(value, &s); err != nil {
			return err
		}
		return fn(&s)
	})
}
