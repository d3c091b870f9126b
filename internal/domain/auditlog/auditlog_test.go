package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/kv"
)

type mockRepo struct {
	mu      sync.Mutex
	entries []*Entry
	err     error
	block   chan struct{}
}

func (m *mockRepo) Create(_ context.Context, e *Entry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockRepo) List(_ context.Context, action string, limit, offset int) ([]*Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for _, e := range m.entries {
		if action == "" || e.Action == action {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestLogger_WritesEntries(t *testing.T) {
	repo := &mockRepo{}
	l := NewLogger(repo, zerolog.Nop(), 8)
	l.Start()

	scanID := "scan-1"
	l.Log(Entry{Action: ActionScanVerified, PerformedBy: "doc-1", TargetUser: "pat-1", ScanID: &scanID})
	l.Log(Entry{Action: ActionDoctorApproved, PerformedBy: "admin-1", TargetUser: "doc-1"})

	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if repo.count() != 2 {
		t.Fatalf("expected 2 entries, got %d", repo.count())
	}
	e := repo.entries[0]
	if e.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("expected generated id")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if e.ScanID == nil || *e.ScanID != "scan-1" {
		t.Errorf("expected scan id scan-1, got %v", e.ScanID)
	}
}

func TestLogger_DropsIncompleteEntries(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockRepo{}
	l := NewLogger(repo, zerolog.New(&buf), 8)
	l.Start()

	l.Log(Entry{Action: ActionScanVerified, PerformedBy: "doc-1"})
	l.Log(Entry{PerformedBy: "doc-1", TargetUser: "pat-1"})
	l.Log(Entry{Action: ActionScanVerified, TargetUser: "pat-1"})

	_ = l.Close(context.Background())
	if repo.count() != 0 {
		t.Errorf("expected incomplete entries to be dropped, got %d", repo.count())
	}
	if !strings.Contains(buf.String(), "incomplete audit entry") {
		t.Error("expected a warning for dropped entries")
	}
}

func TestLogger_FullBufferDrops(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockRepo{block: make(chan struct{})}
	l := NewLogger(repo, zerolog.New(&buf), 1)
	// not started: the single slot fills and the rest are dropped

	for i := 0; i < 3; i++ {
		l.Log(Entry{Action: ActionScanVerified, PerformedBy: "doc-1", TargetUser: "pat-1"})
	}
	if !strings.Contains(buf.String(), "audit buffer full") {
		t.Error("expected buffer full warning")
	}

	close(repo.block)
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if repo.count() != 1 {
		t.Errorf("expected 1 buffered entry written, got %d", repo.count())
	}
}

func TestLogger_WriteErrorDoesNotPropagate(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockRepo{err: errors.New("db down")}
	l := NewLogger(repo, zerolog.New(&buf), 4)
	l.Start()
	l.Log(Entry{Action: ActionScanCorrected, PerformedBy: "admin-1", TargetUser: "pat-1"})
	_ = l.Close(context.Background())

	if !strings.Contains(buf.String(), "failed to write audit entry") {
		t.Error("expected write failure to be logged")
	}
}

func TestLogger_LogAfterClose(t *testing.T) {
	repo := &mockRepo{}
	l := NewLogger(repo, zerolog.Nop(), 4)
	l.Start()
	_ = l.Close(context.Background())

	l.Log(Entry{Action: ActionScanVerified, PerformedBy: "doc-1", TargetUser: "pat-1"})
	if repo.count() != 0 {
		t.Errorf("expected no writes after close, got %d", repo.count())
	}
	if err := l.Close(context.Background()); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestLogger_CloseHonoursContext(t *testing.T) {
	repo := &mockRepo{block: make(chan struct{})}
	l := NewLogger(repo, zerolog.Nop(), 4)
	l.Start()
	l.Log(Entry{Action: ActionScanVerified, PerformedBy: "doc-1", TargetUser: "pat-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(repo.block)
}

func TestRepoLevel_NewestFirst(t *testing.T) {
	store, err := kv.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	repo := NewRepoLevel(store)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, action := range []string{ActionDoctorApproved, ActionScanVerified, ActionScanCorrected} {
		e := &Entry{Action: action, PerformedBy: "u", TargetUser: "t", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		e.ID = [16]byte{byte(i + 1)}
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	items, total, err := repo.List(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected total 3 and 2 items, got %d and %d", total, len(items))
	}
	if items[0].Action != ActionScanCorrected || items[1].Action != ActionScanVerified {
		t.Errorf("expected newest first, got %s, %s", items[0].Action, items[1].Action)
	}

	filtered, total, _ := repo.List(ctx, ActionDoctorApproved, 10, 0)
	if total != 1 || filtered[0].Action != ActionDoctorApproved {
		t.Errorf("expected one doctor_approved entry, got %d", total)
	}
}

func TestHandler_List(t *testing.T) {
	repo := &mockRepo{}
	_ = repo.Create(context.Background(), &Entry{Action: ActionScanVerified, PerformedBy: "d", TargetUser: "p"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit-logs?limit=5", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewHandler(repo).List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data  []Entry `json:"data"`
		Total int     `json:"total"`
		Limit int     `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 || body.Limit != 5 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHandler_ListEmptyIsArray(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit-logs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewHandler(&mockRepo{}).List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}
