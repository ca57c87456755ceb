// Package queue carries grading task identifiers from the submission path to
// the workers. Delivery is at-least-once on every driver.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// TaskMessage is the wire payload. It carries only the task ID; workers read
// everything else from the task store.
type TaskMessage struct {
	TaskID uint `json:"taskId"`
}

func Encode(msg TaskMessage) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode task message: %w", err)
	}
	return b, nil
}

func Decode(data []byte) (TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TaskMessage{}, fmt.Errorf("decode task message: %w", err)
	}
	if msg.TaskID == 0 {
		return TaskMessage{}, fmt.Errorf("decode task message: missing taskId in %q", data)
	}
	return msg, nil
}

// Handler processes one delivery. A non-nil error leaves the message
// unacknowledged so the broker delivers it again.
type Handler func(ctx context.Context, msg TaskMessage) error

type Publisher interface {
	Publish(ctx context.Context, msg TaskMessage) error
}

type Consumer interface {
	// Consume blocks until ctx is cancelled.
	Consume(ctx context.Context, handler Handler) error
}

// Broker is implemented by every driver.
type Broker interface {
	Publisher
	Consumer
	Close() error
}

// Partition maps a task to one of n ordered partitions.
func Partition(taskID uint, n int) int {
	if n <= 1 {
		return 0
	}
	return int(taskID % uint(n))
}
