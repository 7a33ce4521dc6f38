package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

const collectionClients = "clients"

type ClientRepository struct {
	col *mongo.Collection
}

var _ ports.ClientRepository = (*ClientRepository)(nil)

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{col: db.Collection(collectionClients)}
}

type clientDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Name       string             `bson:"name"`
	Owner      string             `bson:"owner"`
	SecretHash string             `bson:"secret_hash"`
	SecretSalt string             `bson:"secret_salt"`
	CreatedAt  time.Time          `bson:"created_at"`
}

func (d clientDoc) toDomain() *domain.Client {
	return &domain.Client{
		ID:         d.ID.Hex(),
		Name:       d.Name,
		Owner:      d.Owner,
		SecretHash: d.SecretHash,
		SecretSalt: d.SecretSalt,
		CreatedAt:  d.CreatedAt,
	}
}

func (r *ClientRepository) Insert(ctx context.Context, client *domain.Client) (*domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := clientDoc{
		ID:         primitive.NewObjectID(),
		Name:       client.Name,
		Owner:      client.Owner,
		SecretHash: client.SecretHash,
		SecretSalt: client.SecretSalt,
		CreatedAt:  client.CreatedAt.UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrClientExists
		}
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *ClientRepository) FindByID(ctx context.Context, id string) (*domain.Client, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrClientNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc clientDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("find client: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *ClientRepository) UpdateSecret(ctx context.Context, id, secretHash, secretSalt string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrClientNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"secret_hash": secretHash, "secret_salt": secretSalt},
	})
	if err != nil {
		return fmt.Errorf("update client secret: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

// EnsureIndexes keeps client names unique per owner.
func (r *ClientRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetName("owner_name_unique").SetUnique(true),
	})
	return err
}
