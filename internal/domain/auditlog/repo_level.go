package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/kv"
	"github.com/Drewww17/m2-sa-luminarias/pkg/pagination"
)

const keyPrefix = "audit/"

// RepoLevel stores entries under keys that sort newest first.
type RepoLevel struct {
	store *kv.Store
}

func NewRepoLevel(store *kv.Store) *RepoLevel {
	return &RepoLevel{store: store}
}

func entryKey(e *Entry) string {
	return fmt.Sprintf("%s%019d/%s", keyPrefix, math.MaxInt64-e.Timestamp.UnixNano(), e.ID)
}

func (r *RepoLevel) Create(_ context.Context, e *Entry) error {
	if err := r.store.PutJSON(entryKey(e), e); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *RepoLevel) List(_ context.Context, action string, limit, offset int) ([]*Entry, int, error) {
	var all []*Entry
	err := r.store.Each(keyPrefix, func(_ string, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return err
		}
		if action == "" || e.Action == action {
			all = append(all, &e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	return pagination.Window(all, limit, offset), len(all), nil
}
