package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"credential-lifecycle/internal/identity/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UsersCollection is the collection holding identity documents.
const UsersCollection = "users"

type userDocument struct {
	OID                 bson.ObjectID `bson:"_id,omitempty"`
	ID                  string        `bson:"id"`
	Email               string        `bson:"email"`
	PasswordHash        string        `bson:"passwordHash"`
	IsActive            bool          `bson:"isActive"`
	ActivationToken     *string       `bson:"activationToken,omitempty"`
	ActivationExpiresAt *time.Time    `bson:"activationExpiresAt,omitempty"`
	ResetCode           *string       `bson:"resetCode,omitempty"`
	ResetExpiresAt      *time.Time    `bson:"resetExpiresAt,omitempty"`
	Name                string        `bson:"name"`
	Role                string        `bson:"role"`
	Age                 int           `bson:"age"`
	Occupation          string        `bson:"occupation"`
	DefaultCurrency     string        `bson:"defaultCurrency"`
	ActiveAccountID     string        `bson:"activeAccountId"`
	CreatedAt           time.Time     `bson:"createdAt"`
	UpdatedAt           time.Time     `bson:"updatedAt"`
}

// MongoRepository stores identities as documents. The public ID is a string
// field separate from the ObjectID primary key.
const (
	emailIndexName   = "email_1"
	duplicateKeyCode = 11000
)

type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository returns an identity repository backed by db.users.
// Call EnsureIndexes once at startup.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(UsersCollection)}
}

// EnsureIndexes creates the unique indexes the repository relies on: id, email,
// and activationToken (partial, only documents holding a token).
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailIndexName)},
		{
			Keys: bson.D{{Key: "activationToken", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "activationToken", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
	})
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.findOne(ctx, bson.D{{Key: "id", Value: id}})
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoRepository) GetByActivationToken(ctx context.Context, token string) (*domain.Identity, error) {
	return r.findOne(ctx, bson.D{{Key: "activationToken", Value: token}})
}

// ConsumeActivationToken matches token and an expiry after now, and activates in
// the same FindOneAndUpdate.
func (r *MongoRepository) ConsumeActivationToken(ctx context.Context, token string, now time.Time) (*domain.Identity, error) {
	filter := bson.D{
		{Key: "activationToken", Value: token},
		{Key: "activationExpiresAt", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDocument
	err := r.coll.FindOneAndUpdate(ctx, filter, activateUpdate(now), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *MongoRepository) ForceActivate(ctx context.Context, id, token string, now time.Time) (bool, error) {
	filter := bson.D{{Key: "id", Value: id}, {Key: "activationToken", Value: token}}
	res, err := r.coll.UpdateOne(ctx, filter, activateUpdate(now))
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoRepository) SetActivationToken(ctx context.Context, id, token string, expiresAt, now time.Time) (bool, error) {
	filter := bson.D{{Key: "id", Value: id}, {Key: "isActive", Value: false}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "activationToken", Value: token},
		{Key: "activationExpiresAt", Value: expiresAt},
		{Key: "updatedAt", Value: now},
	}}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoRepository) SetActiveAccount(ctx context.Context, id, accountID string, now time.Time) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "activeAccountId", Value: accountID},
		{Key: "updatedAt", Value: now},
	}}}
	_, err := r.coll.UpdateOne(ctx, bson.D{{Key: "id", Value: id}}, update)
	return err
}

func (r *MongoRepository) Create(ctx context.Context, i *domain.Identity) error {
	if err := i.Validate(); err != nil {
		return err
	}
	_, err := r.coll.InsertOne(ctx, fromDomain(i))
	if isDuplicateEmail(err) {
		return ErrDuplicateEmail
	}
	return err
}

// isDuplicateEmail reports whether err is a duplicate key error on the email index.
// Collisions on id or activationToken are returned unchanged.
func isDuplicateEmail(err error) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == duplicateKeyCode && strings.Contains(e.Message, "index: "+emailIndexName+" ") {
			return true
		}
	}
	return false
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.D{{Key: "id", Value: id}})
	return err
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*domain.Identity, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func activateUpdate(now time.Time) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.D{{Key: "isActive", Value: true}, {Key: "updatedAt", Value: now}}},
		{Key: "$unset", Value: bson.D{{Key: "activationToken", Value: ""}, {Key: "activationExpiresAt", Value: ""}}},
	}
}

func fromDomain(i *domain.Identity) userDocument {
	return userDocument{
		ID:                  i.ID,
		Email:               i.Email,
		PasswordHash:        i.PasswordHash,
		IsActive:            i.IsActive,
		ActivationToken:     i.ActivationToken,
		ActivationExpiresAt: i.ActivationExpiresAt,
		ResetCode:           i.ResetCode,
		ResetExpiresAt:      i.ResetExpiresAt,
		Name:                i.Name,
		Role:                i.Role,
		Age:                 i.Age,
		Occupation:          i.Occupation,
		DefaultCurrency:     i.DefaultCurrency,
		ActiveAccountID:     i.ActiveAccountID,
		CreatedAt:           i.CreatedAt,
		UpdatedAt:           i.UpdatedAt,
	}
}

func (d *userDocument) toDomain() *domain.Identity {
	return &domain.Identity{
		ID:                  d.ID,
		Email:               d.Email,
		PasswordHash:        d.PasswordHash,
		IsActive:            d.IsActive,
		ActivationToken:     d.ActivationToken,
		ActivationExpiresAt: utcPtr(d.ActivationExpiresAt),
		ResetCode:           d.ResetCode,
		ResetExpiresAt:      utcPtr(d.ResetExpiresAt),
		Name:                d.Name,
		Role:                d.Role,
		Age:                 d.Age,
		Occupation:          d.Occupation,
		DefaultCurrency:     d.DefaultCurrency,
		ActiveAccountID:     d.ActiveAccountID,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
