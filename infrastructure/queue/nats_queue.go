package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"

	"github.com/nats-io/nats.go"
)

// NatsQueue publishes jobs to a JetStream subject consumed by a durable queue group.
type NatsQueue struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	durable string
}

// NewNatsQueue connects and creates the stream when missing.
func NewNatsQueue(url, stream, subject, durable string) (*NatsQueue, error) {
	nc, err := nats.Connect(url, nats.Name("linkhealth"))
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("error getting JetStream context: %w", err)
	}
	if _, err := js.StreamInfo(stream); errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{subject},
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream %s: %w", stream, err)
		}
	} else if err != nil {
		nc.Close()
		return nil, fmt.Errorf("stream info %s: %w", stream, err)
	}
	return &NatsQueue{nc: nc, js: js, subject: subject, durable: durable}, nil
}

func (q *NatsQueue) Enqueue(ctx context.Context, msg repository.JobMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if _, err := q.js.Publish(q.subject, raw, nats.Context(ctx), nats.MsgId(fmt.Sprintf("%s-%d", msg.JobID, msg.Attempt))); err != nil {
		return fmt.Errorf("publish job %s: %w", msg.JobID, err)
	}
	return nil
}

func (q *NatsQueue) Consume(ctx context.Context, handler repository.JobHandler) error {
	sub, err := q.js.QueueSubscribe(q.subject, q.durable, func(m *nats.Msg) {
		msg, err := decodeMessage(m.Data)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Dropping undecodable job message")
			_ = m.Term()
			return
		}
		if err := handler(ctx, msg); err != nil {
			_ = m.Nak()
			return
		}
		_ = m.Ack()
	}, nats.Durable(q.durable), nats.ManualAck(), nats.AckWait(30*time.Minute), nats.MaxAckPending(1))
	if err != nil {
		return fmt.Errorf("error subscribing to NATS: %w", err)
	}
	logger.GetLogger().WithField("subject", sub.Subject).Info("Subscribed to job subject")

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		logger.GetLogger().WithField("error", err).Warn("Error draining NATS subscription")
	}
	return nil
}

func (q *NatsQueue) Close() error {
	return q.nc.Drain()
}
