package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"linkhealth/domain/repository"
)

// ErrQueueClosed is returned when enqueueing on a closed queue.
var ErrQueueClosed = errors.New("queue closed")

func encodeMessage(msg repository.JobMessage) ([]byte, error) {
	if msg.JobID == "" {
		return nil, errors.New("job message without job id")
	}
	if msg.Attempt <= 0 {
		msg.Attempt = 1
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", msg.JobID, err)
	}
	return raw, nil
}

func decodeMessage(data []byte) (repository.JobMessage, error) {
	var msg repository.JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode job message: %w", err)
	}
	if msg.JobID == "" {
		return msg, errors.New("decode job message: missing job id")
	}
	if msg.Attempt <= 0 {
		msg.Attempt = 1
	}
	return msg, nil
}
