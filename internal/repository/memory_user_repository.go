package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/account-service/internal/domain"
)

// MemoryUserRepository keeps accounts in process memory. It is used when no
// Postgres DSN is configured and by tests.
type MemoryUserRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.User
	byName map[string]string
}

// NewMemoryUserRepository returns an empty in-memory store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:   make(map[string]*domain.User),
		byName: make(map[string]string),
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[user.Name]; exists {
		return ErrNameTaken
	}
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := clone(user)
	r.byID[user.ID] = stored
	r.byName[user.Name] = user.ID
	return nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Name != user.Name {
		if _, taken := r.byName[user.Name]; taken {
			return ErrNameTaken
		}
		delete(r.byName, current.Name)
		r.byName[user.Name] = user.ID
	}
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	r.byID[user.ID] = clone(user)
	return nil
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(user), nil
}

func (r *MemoryUserRepository) FindByName(ctx context.Context, name string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *MemoryUserRepository) List(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	all := make([]domain.User, 0, len(r.byID))
	for _, user := range r.byID {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		all = append(all, *clone(user))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Name < all[j].Name
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	start := filter.offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.limit()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *MemoryUserRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for _, id := range ids {
		user, ok := r.byID[id]
		if !ok {
			continue
		}
		delete(r.byName, user.Name)
		delete(r.byID, id)
		deleted++
	}
	return deleted, nil
}

func (r *MemoryUserRepository) CountByRole(ctx context.Context) (map[domain.Role]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[domain.Role]int64{}
	for _, user := range r.byID {
		counts[user.Role]++
	}
	return counts, nil
}

func clone(u *domain.User) *domain.User {
	cp := *u
	if u.DOB != nil {
		dob := *u.DOB
		cp.DOB = &dob
	}
	if u.ProfileImage != nil {
		ref := *u.ProfileImage
		cp.ProfileImage = &ref
	}
	if u.Document != nil {
		ref := *u.Document
		cp.Document = &ref
	}
	return &cp
}
