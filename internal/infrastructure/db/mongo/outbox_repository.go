package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

const collectionOutbox = "email_outbox"

// OutboxRepository keeps an audit copy of every delivered email.
type OutboxRepository struct {
	col *mongo.Collection
}

var _ ports.OutboxRepository = (*OutboxRepository)(nil)

func NewOutboxRepository(db *mongo.Database) *OutboxRepository {
	return &OutboxRepository{col: db.Collection(collectionOutbox)}
}

func (r *OutboxRepository) Insert(ctx context.Context, n domain.Notification, d domain.Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"to":          n.To,
		"subject":     n.Subject,
		"template":    n.Template,
		"text":        n.Text,
		"ref":         d.Ref,
		"accepted_at": d.Accepted.UTC(),
		"recorded_at": time.Now().UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}
