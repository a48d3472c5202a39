package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPPublisher publishes events to a durable RabbitMQ queue.  Each
// publish dials its own connection; approvals are rare enough that a
// pooled channel is not worth the reconnect bookkeeping.
type AMQPPublisher struct {
	URL   string
	Queue string
	Log   *zap.Logger
}

// PublishBookingApproved publishes ev to the queue.  Any error is
// logged and returned so the caller can choose to ignore it.  Messages
// are marked as persistent.
func (p *AMQPPublisher) PublishBookingApproved(ctx context.Context, ev BookingApprovedEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	log := p.Log.With(zap.Uint64("booking_id", ev.BookingID), zap.String("event_id", ev.EventID))

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Type:         "booking.approved",
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	log.Debug("rabbitmq: published booking approval")
	return nil
}

// LocalPublisher hands events straight to a Handler on a goroutine.  It
// stands in for the broker when RABBITMQ_URL is unset.
type LocalPublisher struct {
	Handler Handler
	Log     *zap.Logger

	wg sync.WaitGroup
}

func (p *LocalPublisher) PublishBookingApproved(ctx context.Context, ev BookingApprovedEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Detached from the request so a finished response does not
		// cancel delivery.
		hctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := p.Handler.HandleBookingApproved(hctx, ev); err != nil {
			p.Log.Warn("local delivery failed",
				zap.Uint64("booking_id", ev.BookingID), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every event handed out so far has been handled.
func (p *LocalPublisher) Wait() { p.wg.Wait() }
