package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"loanportal/userhub/internal/model"
	"loanportal/userhub/internal/repository"
	"loanportal/userhub/pkg/idgen"
)

// Assertion is what an identity provider vouches for after a successful
// sign-in. ProviderID must be unique across providers, e.g. "google|1234",
// and may be empty when only the email is known.
type Assertion struct {
	ProviderID string
	Email      string
	Name       string
	AvatarURL  string
}

func (a Assertion) normalized() Assertion {
	return Assertion{
		ProviderID: strings.TrimSpace(a.ProviderID),
		Email:      normalizeEmail(a.Email),
		Name:       strings.TrimSpace(a.Name),
		AvatarURL:  strings.TrimSpace(a.AvatarURL),
	}
}

type IdentityOptions struct {
	// SkipDeletedLinks excludes soft-deleted records from both lookups.
	SkipDeletedLinks bool
}

type IdentityService interface {
	// ResolveIdentity maps an assertion to exactly one user record, creating
	// or updating it. Every successful call writes to the store.
	//
	// A provider link wins over email. An assertion without ProviderID is
	// matched by email only and never attaches a link. ErrIdentityConflict is
	// returned when the email already belongs to a record linked to a
	// different provider id; the existing link is never reassigned.
	// Missing or malformed emails yield a *ValidationError and store outages
	// ErrStoreUnavailable.
	ResolveIdentity(ctx context.Context, a Assertion) (*model.UserRecord, error)
}

const (
	outcomeRefreshed = "refreshed"
	outcomeLinked    = "linked"
	outcomeCreated   = "created"
)

type identityService struct {
	userRepo repository.UserRepository
	logger   *zap.Logger
	opts     IdentityOptions
	now      func() time.Time
}

func NewIdentityService(userRepo repository.UserRepository, logger *zap.Logger, opts IdentityOptions) IdentityService {
	return &identityService{
		userRepo: userRepo,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *identityService) ResolveIdentity(ctx context.Context, a Assertion) (*model.UserRecord, error) {
	a = a.normalized()
	if err := validateVar("email", a.Email, "required,email"); err != nil {
		return nil, err
	}

	user, outcome, err := s.resolve(ctx, a, true)
	if err != nil {
		return nil, err
	}

	if user.IsDeleted {
		// Kept for compatibility with existing links; see identity.skip_deleted_links.
		s.logger.Warn("identity resolved to soft-deleted user",
			zap.String("user_id", user.UserID),
			zap.String("provider_id", a.ProviderID),
		)
	}
	s.logger.Info("identity resolved",
		zap.String("user_id", user.UserID),
		zap.String("outcome", outcome),
	)
	return user, nil
}

// resolve runs the lookup chain: provider link, then email, then create.
// allowCreate is false on the single re-run after losing a create race.
func (s *identityService) resolve(ctx context.Context, a Assertion, allowCreate bool) (*model.UserRecord, string, error) {
	now := s.now().UTC()
	profile := repository.Profile{
		Email:      a.Email,
		Name:       a.Name,
		AvatarURL:  a.AvatarURL,
		VerifiedAt: now,
	}
	opts := s.lookupOptions()

	if a.ProviderID == "" {
		return s.resolveByEmail(ctx, a, profile, allowCreate)
	}

	// 1. Provider link always wins over email.
	user, err := s.userRepo.RefreshByProviderID(ctx, a.ProviderID, profile, opts...)
	switch {
	case err == nil:
		return user, outcomeRefreshed, nil
	case errors.Is(err, repository.ErrDuplicate):
		// The new email already belongs to another active user.
		return nil, "", ErrIdentityConflict
	case !errors.Is(err, repository.ErrNotFound):
		return nil, "", storeError("refresh linked user", err)
	}

	// 2. Attach the provider to an unlinked record with the same email.
	user, err = s.userRepo.LinkByEmail(ctx, a.Email, a.ProviderID, profile, opts...)
	switch {
	case err == nil:
		return user, outcomeLinked, nil
	case errors.Is(err, repository.ErrDuplicate):
		return nil, "", ErrIdentityConflict
	case !errors.Is(err, repository.ErrNotFound):
		return nil, "", storeError("link user by email", err)
	}

	// The email may still be taken by a record linked to another identity.
	owner, err := s.userRepo.FindOne(ctx, repository.UserFilter{Email: a.Email}, opts...)
	switch {
	case err == nil:
		if owner.ExternalProviderID != a.ProviderID {
			return nil, "", ErrIdentityConflict
		}
		// Linked to this identity between steps 1 and 2.
		user, err = s.userRepo.RefreshByProviderID(ctx, a.ProviderID, profile, opts...)
		if err != nil {
			return nil, "", storeError("refresh linked user", err)
		}
		return user, outcomeRefreshed, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, "", storeError("find user by email", err)
	}

	if !allowCreate {
		return nil, "", ErrIdentityConflict
	}

	// 3. Atomic find-or-create keyed on the provider id.
	newID := idgen.NewUserID()
	candidate := &model.UserRecord{
		UserID:             newID,
		ExternalProviderID: a.ProviderID,
		Email:              a.Email,
		Name:               a.Name,
		AvatarURL:          a.AvatarURL,
		EmailVerifiedAt:    &now,
		Role:               model.UserRoleUser,
		Status:             model.UserStatusActive,
	}
	user, err = s.userRepo.UpsertByProviderID(ctx, candidate)
	switch {
	case err == nil:
		if user.UserID != newID {
			return user, outcomeRefreshed, nil
		}
		return user, outcomeCreated, nil
	case errors.Is(err, repository.ErrDuplicate):
		// Someone created a record with this email concurrently.
		return s.resolve(ctx, a, false)
	}
	return nil, "", storeError("create user", err)
}

// resolveByEmail handles assertions that carry no provider id. The matched
// record keeps whatever link it already has.
func (s *identityService) resolveByEmail(ctx context.Context, a Assertion, profile repository.Profile, allowCreate bool) (*model.UserRecord, string, error) {
	user, err := s.userRepo.RefreshByEmail(ctx, a.Email, profile, s.lookupOptions()...)
	switch {
	case err == nil:
		return user, outcomeRefreshed, nil
	case errors.Is(err, repository.ErrDuplicate):
		return nil, "", ErrIdentityConflict
	case !errors.Is(err, repository.ErrNotFound):
		return nil, "", storeError("refresh user by email", err)
	}

	if !allowCreate {
		return nil, "", ErrIdentityConflict
	}

	verified := profile.VerifiedAt
	user = &model.UserRecord{
		UserID:          idgen.NewUserID(),
		Email:           a.Email,
		Name:            a.Name,
		AvatarURL:       a.AvatarURL,
		EmailVerifiedAt: &verified,
		Role:            model.UserRoleUser,
		Status:          model.UserStatusActive,
	}
	// The active email index serializes concurrent creators.
	err = s.userRepo.Create(ctx, user)
	switch {
	case err == nil:
		return user, outcomeCreated, nil
	case errors.Is(err, repository.ErrDuplicate):
		return s.resolve(ctx, a, false)
	}
	return nil, "", storeError("create user", err)
}

func (s *identityService) lookupOptions() []repository.QueryOption {
	if s.opts.SkipDeletedLinks {
		return nil
	}
	return []repository.QueryOption{repository.IncludeDeleted()}
}

var _ IdentityService = (*identityService)(nil)
