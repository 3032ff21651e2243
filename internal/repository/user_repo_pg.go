package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loanportal/userhub/internal/model"
)

// Active records first, then newest. Used wherever one row must be picked
// from several candidates.
const pgPreferActive = "is_deleted ASC, created_at DESC"

type pgUserRepository struct {
	db *gorm.DB
}

func NewPGUserRepository(db *gorm.DB) UserRepository {
	return &pgUserRepository{db: db}
}

// visibility is the single place the soft-delete predicate is applied.
func visibility(opts []QueryOption) func(*gorm.DB) *gorm.DB {
	o := applyOptions(opts)
	return func(db *gorm.DB) *gorm.DB {
		if o.includeDeleted {
			return db
		}
		return db.Where("is_deleted = ?", false)
	}
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.UserRecord) error {
	return translateGormErr(r.db.WithContext(ctx).Create(user).Error)
}

func (r *pgUserRepository) FindOne(ctx context.Context, filter UserFilter, opts ...QueryOption) (*model.UserRecord, error) {
	if filter.empty() {
		return nil, ErrEmptyFilter
	}
	var user model.UserRecord
	err := r.db.WithContext(ctx).
		Scopes(visibility(opts), matching(filter)).
		Order(pgPreferActive).
		Take(&user).Error
	if err != nil {
		return nil, translateGormErr(err)
	}
	return &user, nil
}

func (r *pgUserRepository) List(ctx context.Context, opts ...QueryOption) ([]model.UserRecord, error) {
	var users []model.UserRecord
	err := r.db.WithContext(ctx).
		Scopes(visibility(opts)).
		Order("created_at DESC").
		Find(&users).Error
	if err != nil {
		return nil, translateGormErr(err)
	}
	return users, nil
}

func (r *pgUserRepository) UpdateByUserID(ctx context.Context, userID string, patch UserPatch) (*model.UserRecord, error) {
	cols := patch.columns()
	if len(cols) == 0 {
		return r.FindOne(ctx, UserFilter{UserID: userID})
	}
	cols["updated_at"] = time.Now()

	var users []model.UserRecord
	res := r.db.WithContext(ctx).
		Model(&users).
		Clauses(clause.Returning{}).
		Scopes(visibility(nil)).
		Where("user_id = ?", userID).
		Updates(cols)
	return firstReturned(users, res)
}

func (r *pgUserRepository) SoftDelete(ctx context.Context, userID string) error {
	res := r.db.WithContext(ctx).
		Model(&model.UserRecord{}).
		Scopes(visibility(nil)).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return translateGormErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgUserRepository) RefreshByProviderID(ctx context.Context, providerID string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	target := r.pick(opts).Where("external_provider_id = ?", providerID)
	return r.updateReturning(ctx, "id = (?)", target, p.nonEmpty())
}

func (r *pgUserRepository) RefreshByEmail(ctx context.Context, email string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	target := r.pick(opts).Where("email = ?", email)
	return r.updateReturning(ctx, "id = (?)", target, p.nonEmpty())
}

func (r *pgUserRepository) LinkByEmail(ctx context.Context, email, providerID string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	target := r.pick(opts).Where("email = ? AND external_provider_id = ''", email)

	cols := p.nonEmpty()
	cols["external_provider_id"] = providerID
	// The outer guard re-checks the link so a concurrent linker wins cleanly.
	return r.updateReturning(ctx, "id = (?) AND external_provider_id = ''", target, cols)
}

// pick selects the id of the single row a conditional update should hit.
func (r *pgUserRepository) pick(opts []QueryOption) *gorm.DB {
	return r.db.Model(&model.UserRecord{}).
		Select("id").
		Scopes(visibility(opts)).
		Order(pgPreferActive).
		Limit(1)
}

func (r *pgUserRepository) updateReturning(ctx context.Context, where string, target *gorm.DB, cols map[string]interface{}) (*model.UserRecord, error) {
	var users []model.UserRecord
	res := r.db.WithContext(ctx).
		Model(&users).
		Clauses(clause.Returning{}).
		Where(where, target).
		Updates(cols)
	return firstReturned(users, res)
}

func (r *pgUserRepository) UpsertByProviderID(ctx context.Context, user *model.UserRecord) (*model.UserRecord, error) {
	keep := func(col string) clause.Assignment {
		return clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr("COALESCE(NULLIF(EXCLUDED." + col + ", ''), users." + col + ")"),
		}
	}

	err := r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "external_provider_id"}},
				TargetWhere: clause.Where{Exprs: []clause.Expression{
					clause.Expr{SQL: "external_provider_id <> '' AND is_deleted = false"},
				}},
				DoUpdates: clause.Set{
					keep("email"),
					keep("name"),
					keep("avatar_url"),
					{Column: clause.Column{Name: "email_verified_at"}, Value: gorm.Expr("EXCLUDED.email_verified_at")},
					{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("EXCLUDED.updated_at")},
				},
			},
			clause.Returning{},
		).
		Create(user).Error
	if err != nil {
		return nil, translateGormErr(err)
	}
	return user, nil
}

func matching(f UserFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.UserID != "" {
			db = db.Where("user_id = ?", f.UserID)
		}
		if f.ExternalProviderID != "" {
			db = db.Where("external_provider_id = ?", f.ExternalProviderID)
		}
		if f.Email != "" {
			db = db.Where("email = ?", f.Email)
		}
		return db
	}
}

func firstReturned(users []model.UserRecord, res *gorm.DB) (*model.UserRecord, error) {
	if res.Error != nil {
		return nil, translateGormErr(res.Error)
	}
	if res.RowsAffected == 0 || len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

var _ UserRepository = (*pgUserRepository)(nil)
