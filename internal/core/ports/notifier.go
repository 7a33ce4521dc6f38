package ports

import (
	"context"
	"time"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// Notifier delivers a notification. Failures are surfaced, never retried.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) (*domain.Delivery, error)
}

// NotificationQueue accepts notifications for asynchronous delivery.
type NotificationQueue interface {
	Enqueue(n domain.Notification)
}

// OutboxRepository records delivered email.
type OutboxRepository interface {
	Insert(ctx context.Context, n domain.Notification, d domain.Delivery) error
}

// Throttle grants at most one action per key within interval.
type Throttle interface {
	Allow(ctx context.Context, key string, interval time.Duration) (bool, error)
}
