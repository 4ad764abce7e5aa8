package queue

import (
	"context"
	"sync"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/logger"
)

// MemoryQueue is an in-process queue backed by a buffered channel.
// Messages do not survive a restart.
type MemoryQueue struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 100
	}
	return &MemoryQueue{ch: make(chan []byte, buffer), done: make(chan struct{})}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg repository.JobMessage) error {
	raw, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- raw:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler repository.JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case raw := <-q.ch:
			msg, err := decodeMessage(raw)
			if err != nil {
				logger.GetLogger().WithField("error", err).Error("Dropping undecodable job message")
				continue
			}
			if err := handler(ctx, msg); err != nil {
				logger.GetLogger().WithField("jobId", msg.JobID).WithField("error", err).Warn("Job delivery failed, requeueing")
				go func() {
					select {
					case q.ch <- raw:
					case <-q.done:
					}
				}()
			}
		}
	}
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
