package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/kv"
	"github.com/Drewww17/m2-sa-luminarias/pkg/pagination"
)

const (
	userPrefix  = "user/"
	sysIDPrefix = "user-sysid/"
)

// RepoLevel keeps profiles under user/<id> with a system id index.
type RepoLevel struct {
	store *kv.Store
	mu    sync.Mutex
}

func NewRepoLevel(store *kv.Store) *RepoLevel {
	return &RepoLevel{store: store}
}

func (r *RepoLevel) Create(_ context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ok, err := r.store.Has(userPrefix + p.ID); err != nil {
		return fmt.Errorf("insert user: %w", err)
	} else if ok {
		return ErrExists
	}
	if ok, err := r.store.Has(sysIDPrefix + p.SystemID); err != nil {
		return fmt.Errorf("insert user: %w", err)
	} else if ok {
		return ErrSystemIDTaken
	}

	b := r.store.NewBatch()
	b.PutJSON(userPrefix+p.ID, p)
	b.Put(sysIDPrefix+p.SystemID, []byte(p.ID))
	if err := r.store.Write(b); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *RepoLevel) GetByID(_ context.Context, id string) (*Profile, error) {
	var p Profile
	err := r.store.GetJSON(userPrefix+id, &p)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RepoLevel) UpdateApproval(ctx context.Context, id, status string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.ApprovalStatus = status
	p.UpdatedAt = time.Now().UTC()
	if err := r.store.PutJSON(userPrefix+id, p); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return p, nil
}

func (r *RepoLevel) ListByRole(_ context.Context, role, approval string, limit, offset int) ([]*Profile, int, error) {
	var all []*Profile
	err := r.store.Each(userPrefix, func(_ string, value []byte) error {
		var p Profile
		if err := json.Unmarshal(value, &p); err != nil {
			return err
		}
		if (role == "" || p.Role == role) && (approval == "" || p.ApprovalStatus == approval) {
			all = append(all, &p)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return pagination.Window(all, limit, offset), len(all), nil
}
