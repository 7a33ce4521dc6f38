package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a writer keyed by recipient so messages to one
// number stay on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

// smsJob is the message consumed by the SMS gateway.
type smsJob struct {
	ID       string    `json:"id"`
	To       string    `json:"to"`
	Text     string    `json:"text"`
	Queued   time.Time `json:"queued"`
	Template string    `json:"template,omitempty"`
}

// SmsPublisher hands SMS jobs to the gateway topic.
type SmsPublisher struct {
	w   MessageWriter
	log zerolog.Logger
	now func() time.Time
}

func NewSmsPublisher(w MessageWriter, log zerolog.Logger) *SmsPublisher {
	return &SmsPublisher{w: w, log: log, now: time.Now}
}

func (p *SmsPublisher) Send(ctx context.Context, n domain.Notification) (*domain.Delivery, error) {
	job := smsJob{ID: uuid.NewString(), To: n.To, Text: n.Text, Queued: p.now().UTC(), Template: n.Template}
	value, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode sms job: %w", err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.To),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	})
	if err != nil {
		return nil, domain.Upstream(fmt.Errorf("publish sms: %w", err))
	}

	p.log.Debug().Str("to", n.To).Str("id", job.ID).Msg("sms queued")
	return &domain.Delivery{Channel: domain.ChannelSMS, To: n.To, Accepted: job.Queued, Ref: job.ID}, nil
}
