package queue

import (
	"context"
	"sync"
	"time"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"
	"linkhealth/infrastructure/metrics"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 5 * time.Second
)

// publishTimeout bounds a redelivery publish that runs after the consumer has stopped.
const publishTimeout = 10 * time.Second

// Dispatcher applies the job retry policy on top of any transport: a failed
// delivery is re-enqueued with an exponential delay until maxAttempts is
// reached, then dropped. Redeliveries are scheduled off the consume loop.
type Dispatcher struct {
	queue       repository.IWorkQueue
	maxAttempts int
	base        time.Duration
	after       func(d time.Duration) <-chan time.Time
	pending     sync.WaitGroup
}

func NewDispatcher(queue repository.IWorkQueue, maxAttempts int, base time.Duration) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return &Dispatcher{queue: queue, maxAttempts: maxAttempts, base: base, after: time.After}
}

// Delay returns the wait before the delivery that follows a failed attempt: base * 2^(attempt-1).
func (d *Dispatcher) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = d.base << d.maxAttempts
	b.Reset()

	delay := d.base
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// Enqueue publishes the first attempt of a job.
func (d *Dispatcher) Enqueue(ctx context.Context, jobID string, payload []byte) error {
	return d.queue.Enqueue(ctx, repository.JobMessage{JobID: jobID, Attempt: 1, Payload: payload})
}

// Run consumes the queue until ctx is done, then flushes scheduled redeliveries.
func (d *Dispatcher) Run(ctx context.Context, handler repository.JobHandler) error {
	err := d.queue.Consume(ctx, d.Wrap(ctx, handler))
	d.Drain()
	return err
}

// Drain blocks until every scheduled redelivery has been published or has failed.
func (d *Dispatcher) Drain() {
	d.pending.Wait()
}

// Wrap turns handler errors into delayed redeliveries and acknowledges the
// failed delivery right away. Scheduled redeliveries publish early once ctx
// is done.
func (d *Dispatcher) Wrap(ctx context.Context, handler repository.JobHandler) repository.JobHandler {
	return func(msgCtx context.Context, msg repository.JobMessage) error {
		err := handler(msgCtx, msg)
		if err == nil {
			return nil
		}

		log := logger.GetLogger().WithFields(logrus.Fields{
			"jobId":   msg.JobID,
			"attempt": msg.Attempt,
			"error":   err,
		})
		if msg.Attempt >= d.maxAttempts {
			metrics.QueueRedeliveries.WithLabelValues("dropped").Inc()
			log.Error("Job attempts exhausted, dropping message")
			return nil
		}

		delay := d.Delay(msg.Attempt)
		log.WithField("delay", delay.String()).Warn("Job attempt failed, scheduling redelivery")
		next := msg
		next.Attempt++
		d.schedule(ctx, next, delay)
		return nil
	}
}

func (d *Dispatcher) schedule(ctx context.Context, msg repository.JobMessage, delay time.Duration) {
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		select {
		case <-d.after(delay):
		case <-ctx.Done():
		}

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := d.queue.Enqueue(pubCtx, msg); err != nil {
			metrics.QueueRedeliveries.WithLabelValues("error").Inc()
			logger.GetLogger().WithFields(logrus.Fields{
				"jobId":   msg.JobID,
				"attempt": msg.Attempt,
				"error":   err,
			}).Error("Could not publish job redelivery")
			return
		}
		metrics.QueueRedeliveries.WithLabelValues("retried").Inc()
	}()
}
