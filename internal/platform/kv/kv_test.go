package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type doc struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_JSONRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutJSON("scan/1", doc{Name: "a", Score: 92.5}); err != nil {
		t.Fatalf("PutJSON() error: %v", err)
	}
	var got doc
	if err := s.GetJSON("scan/1", &got); err != nil {
		t.Fatalf("GetJSON() error: %v", err)
	}
	if got.Name != "a" || got.Score != 92.5 {
		t.Errorf("unexpected document: %+v", got)
	}
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)

	var got doc
	if err := s.GetJSON("scan/missing", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	ok, err := s.Has("scan/missing")
	if err != nil || ok {
		t.Errorf("Has() = %v, %v; want false, nil", ok, err)
	}
}

func TestStore_EachPrefix(t *testing.T) {
	s := newTestStore(t)

	s.Put("scan/b", []byte("2"))
	s.Put("scan/a", []byte("1"))
	s.Put("user/a", []byte("x"))

	var keys []string
	err := s.Each("scan/", func(key string, value []byte) error {
		keys = append(keys, key+"="+string(value))
		return nil
	})
	if err != nil {
		t.Fatalf("Each() error: %v", err)
	}
	if len(keys) != 2 || keys[0] != "scan/a=1" || keys[1] != "scan/b=2" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestStore_EachStopsOnError(t *testing.T) {
	s := newTestStore(t)
	s.Put("k/1", []byte("1"))
	s.Put("k/2", []byte("2"))

	stop := errors.New("stop")
	calls := 0
	err := s.Each("k/", func(string, []byte) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("expected one call and stop error, got %d calls, %v", calls, err)
	}
}

func TestStore_Batch(t *testing.T) {
	s := newTestStore(t)
	s.Put("idx/old", []byte("1"))

	b := s.NewBatch()
	b.PutJSON("scan/1", doc{Name: "batched"})
	b.Put("idx/new", []byte("1"))
	b.Delete("idx/old")
	if err := s.Write(b); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if ok, _ := s.Has("idx/old"); ok {
		t.Error("expected idx/old to be deleted")
	}
	if ok, _ := s.Has("idx/new"); !ok {
		t.Error("expected idx/new to exist")
	}
}

func TestStore_BatchEncodeError(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	b.PutJSON("bad", map[string]interface{}{"ch": make(chan int)})
	if err := s.Write(b); err == nil {
		t.Error("expected encode error")
	}
}

func TestStore_PingAfterClose(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("expected healthy store, got %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected error after close")
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dfu.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	s.Put("k", []byte("v"))
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s.Close()
	v, err := s.Get("k")
	if err != nil || string(v) != "v" {
		t.Errorf("expected persisted value, got %q, %v", v, err)
	}
}
