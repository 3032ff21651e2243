package repository

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"loanportal/userhub/internal/model"
)

var mongoPreferActive = bson.D{{Key: "is_deleted", Value: 1}, {Key: "created_at", Value: -1}}

type mongoUserRepository struct {
	coll *mongo.Collection
}

func NewMongoUserRepository(coll *mongo.Collection) UserRepository {
	return &mongoUserRepository{coll: coll}
}

// EnsureMongoIndexes creates the partial unique indexes the record store
// relies on. Mirrors model.AutoMigrate for postgres.
func EnsureMongoIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, mongoIndexModels())
	return translateMongoErr(err)
}

// mongoIndexModels lists the indexes. Uniqueness only covers active rows with
// a non-empty key, so unlinked and deleted documents never collide.
func mongoIndexModels() []mongo.IndexModel {
	activeWith := func(field string) bson.D {
		return bson.D{
			{Key: "is_deleted", Value: false},
			{Key: field, Value: bson.D{{Key: "$gt", Value: ""}}},
		}
	}
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_user_id_active").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "is_deleted", Value: false}}),
		},
		{
			Keys: bson.D{{Key: "external_provider_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_external_provider_id_active").
				SetUnique(true).
				SetPartialFilterExpression(activeWith("external_provider_id")),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("uniq_email_active").
				SetUnique(true).
				SetPartialFilterExpression(activeWith("email")),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at_desc"),
		},
	}
}

// scope is the single place the soft-delete predicate is applied.
func scope(filter bson.D, opts []QueryOption) bson.D {
	if applyOptions(opts).includeDeleted {
		return filter
	}
	return append(filter, bson.E{Key: "is_deleted", Value: false})
}

func (r *mongoUserRepository) Create(ctx context.Context, user *model.UserRecord) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, user)
	return translateMongoErr(err)
}

func (r *mongoUserRepository) FindOne(ctx context.Context, filter UserFilter, opts ...QueryOption) (*model.UserRecord, error) {
	if filter.empty() {
		return nil, ErrEmptyFilter
	}
	var f bson.D
	if filter.UserID != "" {
		f = append(f, bson.E{Key: "user_id", Value: filter.UserID})
	}
	if filter.ExternalProviderID != "" {
		f = append(f, bson.E{Key: "external_provider_id", Value: filter.ExternalProviderID})
	}
	if filter.Email != "" {
		f = append(f, bson.E{Key: "email", Value: filter.Email})
	}

	var user model.UserRecord
	err := r.coll.FindOne(ctx, scope(f, opts), options.FindOne().SetSort(mongoPreferActive)).Decode(&user)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	return &user, nil
}

func (r *mongoUserRepository) List(ctx context.Context, opts ...QueryOption) ([]model.UserRecord, error) {
	cur, err := r.coll.Find(ctx, scope(bson.D{}, opts),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, translateMongoErr(err)
	}
	users := []model.UserRecord{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, translateMongoErr(err)
	}
	return users, nil
}

func (r *mongoUserRepository) UpdateByUserID(ctx context.Context, userID string, patch UserPatch) (*model.UserRecord, error) {
	cols := patch.columns()
	if len(cols) == 0 {
		return r.FindOne(ctx, UserFilter{UserID: userID})
	}
	cols["updated_at"] = time.Now().UTC()
	return r.findAndSet(ctx, scope(bson.D{{Key: "user_id", Value: userID}}, nil), cols)
}

func (r *mongoUserRepository) SoftDelete(ctx context.Context, userID string) error {
	res, err := r.coll.UpdateOne(ctx,
		scope(bson.D{{Key: "user_id", Value: userID}}, nil),
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "is_deleted", Value: true},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
	)
	if err != nil {
		return translateMongoErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUserRepository) RefreshByProviderID(ctx context.Context, providerID string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	f := scope(bson.D{{Key: "external_provider_id", Value: providerID}}, opts)
	return r.findAndSet(ctx, f, p.nonEmpty())
}

func (r *mongoUserRepository) RefreshByEmail(ctx context.Context, email string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	f := scope(bson.D{{Key: "email", Value: email}}, opts)
	return r.findAndSet(ctx, f, p.nonEmpty())
}

func (r *mongoUserRepository) LinkByEmail(ctx context.Context, email, providerID string, p Profile, opts ...QueryOption) (*model.UserRecord, error) {
	cols := p.nonEmpty()
	cols["external_provider_id"] = providerID
	return r.findAndSet(ctx, unlinkedByEmail(email, opts), cols)
}

func unlinkedByEmail(email string, opts []QueryOption) bson.D {
	return scope(bson.D{
		{Key: "email", Value: email},
		// nil also matches documents where the field was never written.
		{Key: "external_provider_id", Value: bson.D{{Key: "$in", Value: bson.A{"", nil}}}},
	}, opts)
}

func (r *mongoUserRepository) UpsertByProviderID(ctx context.Context, user *model.UserRecord) (*model.UserRecord, error) {
	f, update := upsertByProviderID(user, time.Now().UTC())

	var out model.UserRecord
	err := r.coll.FindOneAndUpdate(ctx, f, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	return &out, nil
}

// upsertByProviderID builds the filter and update for an atomic find-or-create.
// Equality fields of the filter seed the inserted document, so they are
// absent from $setOnInsert.
func upsertByProviderID(user *model.UserRecord, now time.Time) (filter, update bson.D) {
	verified := now
	if user.EmailVerifiedAt != nil {
		verified = *user.EmailVerifiedAt
	}
	set := Profile{
		Email:      user.Email,
		Name:       user.Name,
		AvatarURL:  user.AvatarURL,
		VerifiedAt: verified,
	}.nonEmpty()
	set["updated_at"] = now

	filter = bson.D{
		{Key: "external_provider_id", Value: user.ExternalProviderID},
		{Key: "is_deleted", Value: false},
	}
	update = bson.D{
		{Key: "$set", Value: toBSON(set)},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "user_id", Value: user.UserID},
			{Key: "role", Value: user.Role},
			{Key: "status", Value: user.Status},
			{Key: "created_at", Value: now},
		}},
	}
	return filter, update
}

func (r *mongoUserRepository) findAndSet(ctx context.Context, f bson.D, cols map[string]interface{}) (*model.UserRecord, error) {
	var out model.UserRecord
	err := r.coll.FindOneAndUpdate(ctx, f,
		bson.D{{Key: "$set", Value: toBSON(cols)}},
		options.FindOneAndUpdate().SetSort(mongoPreferActive).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return nil, translateMongoErr(err)
	}
	return &out, nil
}

// toBSON orders keys so the same update always encodes the same way.
func toBSON(cols map[string]interface{}) bson.D {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(cols))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: cols[k]})
	}
	return doc
}

var _ UserRepository = (*mongoUserRepository)(nil)
