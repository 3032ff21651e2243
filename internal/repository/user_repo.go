package repository

import (
	"context"
	"errors"
	"time"

	"loanportal/userhub/internal/model"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicate   = errors.New("duplicate key")
	ErrUnavailable = errors.New("store unavailable")
	ErrEmptyFilter = errors.New("user filter has no fields")
)

// UserFilter selects records by exact match on every non-empty field.
type UserFilter struct {
	UserID             string
	ExternalProviderID string
	Email              string
}

func (f UserFilter) empty() bool {
	return f.UserID == "" && f.ExternalProviderID == "" && f.Email == ""
}

// UserPatch carries a partial update; nil fields are left untouched.
type UserPatch struct {
	Name      *string
	Email     *string
	AvatarURL *string
	Role      *model.UserRole
	Status    *model.UserStatus
}

func (p UserPatch) columns() map[string]interface{} {
	cols := make(map[string]interface{}, 5)
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Email != nil {
		cols["email"] = *p.Email
	}
	if p.AvatarURL != nil {
		cols["avatar_url"] = *p.AvatarURL
	}
	if p.Role != nil {
		cols["role"] = string(*p.Role)
	}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	return cols
}

// Profile is what a successful external sign-in asserts about a user.
// Empty strings keep the stored value; VerifiedAt always overwrites.
type Profile struct {
	Email      string
	Name       string
	AvatarURL  string
	VerifiedAt time.Time
}

// nonEmpty returns the profile columns that carry a value.
func (p Profile) nonEmpty() map[string]interface{} {
	cols := map[string]interface{}{
		"email_verified_at": p.VerifiedAt,
		"updated_at":        p.VerifiedAt,
	}
	if p.Email != "" {
		cols["email"] = p.Email
	}
	if p.Name != "" {
		cols["name"] = p.Name
	}
	if p.AvatarURL != "" {
		cols["avatar_url"] = p.AvatarURL
	}
	return cols
}

type queryOptions struct {
	includeDeleted bool
}

// QueryOption adjusts record visibility for a single call.
type QueryOption func(*queryOptions)

// IncludeDeleted lifts the default is_deleted = false predicate. Reserved for
// maintenance paths and identity resolution.
func IncludeDeleted() QueryOption {
	return func(o *queryOptions) { o.includeDeleted = true }
}

func applyOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// UserRepository is the record store behind user CRUD and identity resolution.
// Every method hides soft-deleted records unless IncludeDeleted is passed.
// When several records match a single-record operation, active records win
// over deleted ones.
type UserRepository interface {
	Create(ctx context.Context, user *model.UserRecord) error
	FindOne(ctx context.Context, filter UserFilter, opts ...QueryOption) (*model.UserRecord, error)
	List(ctx context.Context, opts ...QueryOption) ([]model.UserRecord, error)
	UpdateByUserID(ctx context.Context, userID string, patch UserPatch) (*model.UserRecord, error)
	SoftDelete(ctx context.Context, userID string) error

	// RefreshByProviderID applies p to the record linked to providerID.
	RefreshByProviderID(ctx context.Context, providerID string, p Profile, opts ...QueryOption) (*model.UserRecord, error)
	// RefreshByEmail applies p to the record with the given email whether or
	// not it is linked. The provider link is never touched.
	RefreshByEmail(ctx context.Context, email string, p Profile, opts ...QueryOption) (*model.UserRecord, error)
	// LinkByEmail attaches providerID to the record with the given email,
	// only if that record has no provider link yet, and applies p.
	LinkByEmail(ctx context.Context, email, providerID string, p Profile, opts ...QueryOption) (*model.UserRecord, error)
	// UpsertByProviderID inserts user, or refreshes the active record that
	// already owns user.ExternalProviderID, in one atomic statement.
	UpsertByProviderID(ctx context.Context, user *model.UserRecord) (*model.UserRecord, error)
}
