package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

const collectionRestrictions = "restrictions"

// RestrictionRepository stores one document per rule scope.
type RestrictionRepository struct {
	col *mongo.Collection
}

var _ ports.RestrictionRepository = (*RestrictionRepository)(nil)

func NewRestrictionRepository(db *mongo.Database) *RestrictionRepository {
	return &RestrictionRepository{col: db.Collection(collectionRestrictions)}
}

type restrictionDoc struct {
	ControllerName string   `bson:"controller_name"`
	Endpoint       string   `bson:"endpoint"`
	AllowAll       bool     `bson:"allow_all"`
	Groups         []string `bson:"groups"`
	Users          []string `bson:"users"`
}

func keyFilter(key domain.RuleKey) bson.M {
	return bson.M{"controller_name": key.ControllerName, "endpoint": key.Endpoint}
}

// FindAll returns every rule in insertion order.
func (r *RestrictionRepository) FindAll(ctx context.Context) ([]domain.RestrictionRule, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find restrictions: %w", err)
	}

	var docs []restrictionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode restrictions: %w", err)
	}

	rules := make([]domain.RestrictionRule, 0, len(docs))
	for _, d := range docs {
		rules = append(rules, domain.RestrictionRule{
			ControllerName: d.ControllerName,
			Endpoint:       d.Endpoint,
			AllowAll:       d.AllowAll,
			Groups:         nonNilGroups(d.Groups),
			Users:          nonNilGroups(d.Users),
		})
	}
	return rules, nil
}

func (r *RestrictionRepository) Upsert(ctx context.Context, rule domain.RestrictionRule) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := restrictionDoc{
		ControllerName: rule.ControllerName,
		Endpoint:       rule.Endpoint,
		AllowAll:       rule.AllowAll,
		Groups:         nonNilGroups(rule.Groups),
		Users:          nonNilGroups(rule.Users),
	}

	_, err := r.col.ReplaceOne(ctx, keyFilter(rule.Key()), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert restriction: %w", err)
	}
	return nil
}

func (r *RestrictionRepository) Delete(ctx context.Context, key domain.RuleKey) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, keyFilter(key))
	if err != nil {
		return fmt.Errorf("delete restriction: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// EnsureIndexes enforces a single rule per (controller, endpoint) scope.
func (r *RestrictionRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "controller_name", Value: 1}, {Key: "endpoint", Value: 1}},
		Options: options.Index().SetName("scope_unique").SetUnique(true),
	})
	return err
}
