package notify

import (
	"context"
	"fmt"

	"github.com/serendip/gatekeeper/internal/api/metrics"
	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

// Router sends each notification through the notifier of its channel.
type Router struct {
	channels map[domain.Channel]ports.Notifier
}

var _ ports.Notifier = (*Router)(nil)

func NewRouter(email, sms ports.Notifier) *Router {
	return &Router{channels: map[domain.Channel]ports.Notifier{
		domain.ChannelEmail: email,
		domain.ChannelSMS:   sms,
	}}
}

func (r *Router) Send(ctx context.Context, n domain.Notification) (*domain.Delivery, error) {
	notifier, ok := r.channels[n.Channel]
	if !ok || notifier == nil {
		return nil, domain.Validation(fmt.Sprintf("unsupported notification channel %q", n.Channel))
	}

	d, err := notifier.Send(ctx, n)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(n.Channel), "failed").Inc()
		return nil, err
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Channel), "sent").Inc()
	return d, nil
}
