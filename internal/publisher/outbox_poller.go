package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	r "github.com/fjod/storefront/internal/repository"
)

const (
	Topic     = "checkout-outbox"
	batchSize = 100
)

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPoller relays confirmed checkouts from the outbox table to Kafka and
// expires card attempts nobody came back for.
type OutboxPoller struct {
	eventTick    time.Duration
	recoveryTick time.Duration
	staleAfter   time.Duration
	repo         r.OutboxRepository
	writer       MessageWriter
	log          *zap.Logger
	now          func() time.Time
}

func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo r.OutboxRepository, writer MessageWriter, log *zap.Logger, eventTick, recoveryTick time.Duration) *OutboxPoller {
	return &OutboxPoller{
		eventTick:    eventTick,
		recoveryTick: recoveryTick,
		staleAfter:   domain.PendingPaymentTTL,
		repo:         repo,
		writer:       writer,
		log:          log.Named("outbox"),
		now:          time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.expireStaleAttempts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error("fetch outbox events failed", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Error("publish outbox event failed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("mark outbox event processed failed", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		p.log.Debug("outbox event published", zap.Int64("event_id", event.ID), zap.String("event_type", event.EventType))
	}
}

// expireStaleAttempts closes card attempts whose pending payment can no
// longer be reconciled.
func (p *OutboxPoller) expireStaleAttempts(ctx context.Context) {
	n, err := p.repo.ExpireStaleAttempts(ctx, p.now().Add(-p.staleAfter))
	if err != nil {
		p.log.Error("expire stale attempts failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.log.Info("stale checkout attempts expired", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *r.OutboxEvent) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID), // attempt id keeps one checkout on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
}
