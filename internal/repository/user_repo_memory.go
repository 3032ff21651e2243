package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"loanportal/userhub/internal/model"
)

// memoryUserRepository keeps records in insertion order and enforces the same
// unique constraints as the postgres partial indexes.
type memoryUserRepository struct {
	mu     sync.Mutex
	nextID uint
	rows   []*model.UserRecord
	now    func() time.Time
}

func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{now: time.Now}
}

func (r *memoryUserRepository) Create(_ context.Context, user *model.UserRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(user)
}

func (r *memoryUserRepository) FindOne(_ context.Context, filter UserFilter, opts ...QueryOption) (*model.UserRecord, error) {
	if filter.empty() {
		return nil, ErrEmptyFilter
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.pickLocked(opts, func(u *model.UserRecord) bool {
		return (filter.UserID == "" || u.UserID == filter.UserID) &&
			(filter.ExternalProviderID == "" || u.ExternalProviderID == filter.ExternalProviderID) &&
			(filter.Email == "" || u.Email == filter.Email)
	})
	if row == nil {
		return nil, ErrNotFound
	}
	return clone(row), nil
}

func (r *memoryUserRepository) List(_ context.Context, opts ...QueryOption) ([]model.UserRecord, error) {
	o := applyOptions(opts)
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]model.UserRecord, 0, len(r.rows))
	for _, u := range r.rows {
		if u.IsDeleted && !o.includeDeleted {
			continue
		}
		users = append(users, *clone(u))
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *memoryUserRepository) UpdateByUserID(_ context.Context, userID string, patch UserPatch) (*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.pickLocked(nil, func(u *model.UserRecord) bool { return u.UserID == userID })
	if row == nil {
		return nil, ErrNotFound
	}
	next := clone(row)
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Email != nil {
		next.Email = *patch.Email
	}
	if patch.AvatarURL != nil {
		next.AvatarURL = *patch.AvatarURL
	}
	if patch.Role != nil {
		next.Role = *patch.Role
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	next.UpdatedAt = r.now()
	return r.replaceLocked(row, next)
}

func (r *memoryUserRepository) SoftDelete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.pickLocked(nil, func(u *model.UserRecord) bool { return u.UserID == userID })
	if row == nil {
		return ErrNotFound
	}
	row.IsDeleted = true
	row.UpdatedAt = r.now()
	return nil
}

func (r *memoryUserRepository) RefreshByProviderID(_ context.Context, providerID string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.pickLocked(opts, func(u *model.UserRecord) bool { return u.ExternalProviderID == providerID })
	if row == nil {
		return nil, ErrNotFound
	}
	return r.replaceLocked(row, applyProfile(clone(row), p))
}

func (r *memoryUserRepository) RefreshByEmail(_ context.Context, email string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.pickLocked(opts, func(u *model.UserRecord) bool { return u.Email == email })
	if row == nil {
		return nil, ErrNotFound
	}
	return r.replaceLocked(row, applyProfile(clone(row), p))
}

func (r *memoryUserRepository) LinkByEmail(_ context.Context, email, providerID string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.pickLocked(opts, func(u *model.UserRecord) bool {
		return u.Email == email && u.ExternalProviderID == ""
	})
	if row == nil {
		return nil, ErrNotFound
	}
	next := applyProfile(clone(row), p)
	next.ExternalProviderID = providerID
	return r.replaceLocked(row, next)
}

func (r *memoryUserRepository) UpsertByProviderID(_ context.Context, user *model.UserRecord) (*model.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.pickLocked(nil, func(u *model.UserRecord) bool {
		return u.ExternalProviderID == user.ExternalProviderID
	})
	if row != nil {
		verified := r.now()
		if user.EmailVerifiedAt != nil {
			verified = *user.EmailVerifiedAt
		}
		return r.replaceLocked(row, applyProfile(clone(row), Profile{
			Email:      user.Email,
			Name:       user.Name,
			AvatarURL:  user.AvatarURL,
			VerifiedAt: verified,
		}))
	}
	if err := r.insertLocked(user); err != nil {
		return nil, err
	}
	return clone(user), nil
}

func (r *memoryUserRepository) insertLocked(user *model.UserRecord) error {
	if r.conflictsLocked(user, nil) {
		return ErrDuplicate
	}
	now := r.now()
	r.nextID++
	user.ID = r.nextID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.UserRoleUser
	}
	if user.Status == "" {
		user.Status = model.UserStatusActive
	}
	r.rows = append(r.rows, clone(user))
	return nil
}

// replaceLocked swaps row's contents for next unless that breaks a unique key.
func (r *memoryUserRepository) replaceLocked(row, next *model.UserRecord) (*model.UserRecord, error) {
	if r.conflictsLocked(next, row) {
		return nil, ErrDuplicate
	}
	*row = *next
	return clone(row), nil
}

// conflictsLocked reports whether u would violate a unique index among active
// records other than self.
func (r *memoryUserRepository) conflictsLocked(u, self *model.UserRecord) bool {
	if u.IsDeleted {
		return false
	}
	for _, other := range r.rows {
		if other == self || other.IsDeleted {
			continue
		}
		if other.UserID == u.UserID {
			return true
		}
		if u.ExternalProviderID != "" && other.ExternalProviderID == u.ExternalProviderID {
			return true
		}
		if u.Email != "" && other.Email == u.Email {
			return true
		}
	}
	return false
}

// pickLocked returns the best matching row: active before deleted, then newest.
func (r *memoryUserRepository) pickLocked(opts []QueryOption, match func(*model.UserRecord) bool) *model.UserRecord {
	o := applyOptions(opts)
	var best *model.UserRecord
	for _, u := range r.rows {
		if (u.IsDeleted && !o.includeDeleted) || !match(u) {
			continue
		}
		if best == nil ||
			(best.IsDeleted && !u.IsDeleted) ||
			(best.IsDeleted == u.IsDeleted && !u.CreatedAt.Before(best.CreatedAt)) {
			best = u
		}
	}
	return best
}

func applyProfile(u *model.UserRecord, p Profile) *model.UserRecord {
	if p.Email != "" {
		u.Email = p.Email
	}
	if p.Name != "" {
		u.Name = p.Name
	}
	if p.AvatarURL != "" {
		u.AvatarURL = p.AvatarURL
	}
	verified := p.VerifiedAt
	u.EmailVerifiedAt = &verified
	u.UpdatedAt = p.VerifiedAt
	return u
}

func clone(u *model.UserRecord) *model.UserRecord {
	c := *u
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	return &c
}

var _ UserRepository = (*memoryUserRepository)(nil)
