package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"loanportal/userhub/internal/model"
)

// sqlRecorder captures every statement gorm renders, with vars inlined.
type sqlRecorder struct {
	statements []string
}

func (r *sqlRecorder) LogMode(logger.LogLevel) logger.Interface { return r }

func (r *sqlRecorder) Info(context.Context, string, ...interface{})  {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{})  {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{}) {}

func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.statements = append(r.statements, strings.Join(strings.Fields(sql), " "))
}

func (r *sqlRecorder) last(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, r.statements, "no statement rendered")
	return r.statements[len(r.statements)-1]
}

// newDryRunPG builds a postgres repository that renders SQL without a server.
func newDryRunPG(t *testing.T) (UserRepository, *sqlRecorder) {
	t.Helper()
	rec := &sqlRecorder{}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=loanportal dbname=loanportal sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               rec,
	})
	require.NoError(t, err)
	return NewPGUserRepository(db), rec
}

func TestPGUserRepository_UpsertByProviderIDStatement(t *testing.T) {
	repo, rec := newDryRunPG(t)
	verified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.UpsertByProviderID(context.Background(), &model.UserRecord{
		UserID:             "01HXAMPLE",
		ExternalProviderID: "google|1",
		Email:              "a@x.com",
		EmailVerifiedAt:    &verified,
		Role:               model.UserRoleUser,
		Status:             model.UserStatusActive,
	})
	require.NoError(t, err)

	sql := rec.last(t)
	assert.True(t, strings.HasPrefix(sql, `INSERT INTO "users"`), sql)
	assert.Contains(t, sql,
		`ON CONFLICT ("external_provider_id") WHERE external_provider_id <> '' AND is_deleted = false DO UPDATE SET`,
		"conflict target must match the partial unique index")
	for _, col := range []string{"email", "name", "avatar_url"} {
		assert.Contains(t, sql, `"`+col+`"=COALESCE(NULLIF(EXCLUDED.`+col+`, ''), users.`+col+`)`,
			"empty %s keeps the stored value", col)
	}
	assert.Contains(t, sql, `"email_verified_at"=EXCLUDED.email_verified_at`)
	assert.Contains(t, sql, `"updated_at"=EXCLUDED.updated_at`)
	assert.True(t, strings.HasSuffix(sql, "RETURNING *"), sql)
	assert.Contains(t, sql, "'google|1'")
}

func TestPGUserRepository_RefreshByProviderIDStatement(t *testing.T) {
	ctx := context.Background()
	repo, rec := newDryRunPG(t)
	p := Profile{Name: "Alice", VerifiedAt: time.Now()}

	_, _ = repo.RefreshByProviderID(ctx, "google|1", p)
	sql := rec.last(t)
	assert.True(t, strings.HasPrefix(sql, `UPDATE "users" SET`), sql)
	assert.Contains(t, sql, `"name"='Alice'`)
	assert.NotContains(t, sql, `"avatar_url"=`, "empty profile fields are not written")
	assert.NotContains(t, sql, `"email"=`)
	assert.Contains(t, sql, `WHERE id = (SELECT "id" FROM "users" WHERE`)
	assert.Contains(t, sql, "external_provider_id = 'google|1'")
	assert.Contains(t, sql, "is_deleted = false")
	assert.Contains(t, sql, "ORDER BY is_deleted ASC, created_at DESC LIMIT 1)")
	assert.True(t, strings.HasSuffix(sql, "RETURNING *"), sql)

	_, _ = repo.RefreshByProviderID(ctx, "google|1", p, IncludeDeleted())
	sql = rec.last(t)
	assert.Contains(t, sql, "external_provider_id = 'google|1'")
	assert.NotContains(t, sql, "is_deleted = false")
	assert.Contains(t, sql, "ORDER BY is_deleted ASC, created_at DESC LIMIT 1)",
		"active rows still win when deleted ones are visible")
}

func TestPGUserRepository_RefreshByEmailStatement(t *testing.T) {
	repo, rec := newDryRunPG(t)

	_, _ = repo.RefreshByEmail(context.Background(), "a@x.com", Profile{VerifiedAt: time.Now()}, IncludeDeleted())
	sql := rec.last(t)
	assert.Contains(t, sql, `WHERE id = (SELECT "id" FROM "users" WHERE email = 'a@x.com' ORDER BY`)
	assert.Contains(t, sql, `"email_verified_at"=`)
	assert.NotContains(t, sql, "external_provider_id", "the provider link is never touched")
	assert.True(t, strings.HasSuffix(sql, "RETURNING *"), sql)
}

func TestPGUserRepository_LinkByEmailStatement(t *testing.T) {
	repo, rec := newDryRunPG(t)

	_, _ = repo.LinkByEmail(context.Background(), "a@x.com", "google|1", Profile{VerifiedAt: time.Now()})
	sql := rec.last(t)
	assert.Contains(t, sql, `"external_provider_id"='google|1'`)
	assert.Contains(t, sql, "email = 'a@x.com' AND external_provider_id = ''")
	assert.Contains(t, sql, "is_deleted = false")
	assert.True(t, strings.HasSuffix(sql, "LIMIT 1) AND external_provider_id = '' RETURNING *"), sql)
}

func TestPGUserRepository_VisibilityOnWrites(t *testing.T) {
	ctx := context.Background()
	repo, rec := newDryRunPG(t)

	_ = repo.SoftDelete(ctx, "user_1")
	sql := rec.last(t)
	assert.True(t, strings.HasPrefix(sql, `UPDATE "users" SET "is_deleted"=true`), sql)
	assert.Contains(t, sql, "user_id = 'user_1'")
	assert.Contains(t, sql, "is_deleted = false")

	name := "Bob"
	_, _ = repo.UpdateByUserID(ctx, "user_1", UserPatch{Name: &name})
	sql = rec.last(t)
	assert.Contains(t, sql, `"name"='Bob'`)
	assert.Contains(t, sql, "user_id = 'user_1'")
	assert.Contains(t, sql, "is_deleted = false")
}

func TestPGUserRepository_FindOneStatement(t *testing.T) {
	ctx := context.Background()
	repo, rec := newDryRunPG(t)

	_, _ = repo.FindOne(ctx, UserFilter{Email: "a@x.com"})
	sql := rec.last(t)
	assert.True(t, strings.HasPrefix(sql, `SELECT * FROM "users" WHERE`), sql)
	assert.Contains(t, sql, "email = 'a@x.com'")
	assert.Contains(t, sql, "is_deleted = false")
	assert.Contains(t, sql, "ORDER BY is_deleted ASC, created_at DESC LIMIT 1")

	_, _ = repo.FindOne(ctx, UserFilter{Email: "a@x.com"}, IncludeDeleted())
	assert.NotContains(t, rec.last(t), "is_deleted = false")

	_, err := repo.FindOne(ctx, UserFilter{})
	assert.ErrorIs(t, err, ErrEmptyFilter)
}
