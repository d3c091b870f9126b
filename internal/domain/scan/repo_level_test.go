package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Drewww17/m2-sa-luminarias/internal/integrity"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/kv"
)

func newLevelRepo(t *testing.T) *RepoLevel {
	t.Helper()
	store, err := kv.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRepoLevel(store)
}

func TestRepoLevel_CreateGetList(t *testing.T) {
	repo := newLevelRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i, patient := range []string{"pat-1", "pat-1", "pat-2"} {
		s := &Scan{ID: uuid.New(), PatientID: patient, Diagnosis: DiagnosisHealthy, ReviewStatus: ReviewPending,
			ModelResults: []ModelResult{}, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, s.ID)
	}

	got, err := repo.GetByID(ctx, ids[0])
	if err != nil || got.PatientID != "pat-1" {
		t.Fatalf("get: %v %+v", err, got)
	}
	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	items, total, err := repo.List(ctx, ListParams{PatientID: "pat-1"}, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(items) != 2 || items[0].ID != ids[1] {
		t.Errorf("expected 2 scans newest first, got %d", total)
	}

	items, total, _ = repo.List(ctx, ListParams{}, 1, 1)
	if total != 3 || len(items) != 1 || items[0].ID != ids[1] {
		t.Errorf("unexpected page: total %d len %d", total, len(items))
	}
}

func TestRepoLevel_Modify(t *testing.T) {
	repo := newLevelRepo(t)
	ctx := context.Background()
	s := &Scan{ID: uuid.New(), PatientID: "pat-1", ReviewStatus: ReviewPending, CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	if _, err := repo.Modify(ctx, s.ID, func(sc *Scan) error {
		sc.ReviewStatus = ReviewVerified
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	got, _ := repo.GetByID(ctx, s.ID)
	if got.ReviewStatus != ReviewPending {
		t.Error("a failed modify must not persist")
	}

	at := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, err := repo.Modify(ctx, s.ID, func(sc *Scan) error {
		sc.IsUlcer = true
		return sc.seal(integrity.SchemeFixed, at)
	}); err != nil {
		t.Fatalf("modify: %v", err)
	}
	got, _ = repo.GetByID(ctx, s.ID)
	if !got.IsUlcer || got.HashScheme != integrity.SchemeFixed || got.HashedAt == nil || !got.HashedAt.Equal(at) {
		t.Errorf("modify not stored: %+v", got)
	}
	if _, err := repo.Modify(ctx, uuid.New(), func(*Scan) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepoLevel_ServiceRoundTrip(t *testing.T) {
	repo := newLevelRepo(t)
	svc := NewService(repo, &recordingAuditor{}, zerolog.Nop(), Options{SystemVersion: "1.0", ModelVersion: "v3"})
	ctx := context.Background()

	sc, err := svc.CreateScan(ctx, "pat-1", "", highRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stored, err := repo.GetByID(ctx, sc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !verifies(t, stored) {
		t.Error("a scan read back from the store must verify")
	}
	if len(stored.ModelResults) != 3 {
		t.Errorf("expected model results to round trip, got %d", len(stored.ModelResults))
	}
}
