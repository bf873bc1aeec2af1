package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend is an in-process queue. Messages published before a
// subscriber attaches are buffered per channel. It backs tests and
// single-process development setups.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]chan Message
	closed bool

	// redeliveryDelay is waited before a failed message is requeued.
	redeliveryDelay time.Duration
	// maxDeliveries bounds handler attempts per message; the message is
	// dropped after the last failed attempt.
	maxDeliveries int
}

const (
	memoryQueueSize       = 256
	memoryRedeliveryDelay = 100 * time.Millisecond
	memoryMaxDeliveries   = 5
)

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		queues:          make(map[string]chan Message),
		redeliveryDelay: memoryRedeliveryDelay,
		maxDeliveries:   memoryMaxDeliveries,
	}
}

func (m *MemoryBackend) queue(channel string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory queue closed")
	}
	q, ok := m.queues[channel]
	if !ok {
		q = make(chan Message, memoryQueueSize)
		m.queues[channel] = q
	}
	return q, nil
}

// Publish enqueues a copy of data on channel.
func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if channel == "" {
		return "", errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return "", err
	}

	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	msg := Message{
		ID:         uuid.NewString(),
		Data:       append([]byte(nil), data...),
		Attributes: copied,
	}
	select {
	case q <- msg:
		return msg.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Subscribe delivers messages to handler until ctx is cancelled. A failed
// message is put back on the queue after redeliveryDelay, up to
// maxDeliveries attempts.
func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	q, err := m.queue(channel)
	if err != nil {
		return err
	}
	attempts := make(map[string]int)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := handler(ctx, msg); err == nil {
				delete(attempts, msg.ID)
				continue
			}

			attempts[msg.ID]++
			if attempts[msg.ID] >= m.maxDeliveries {
				delete(attempts, msg.ID)
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.redeliveryDelay):
			}
			select {
			case q <- msg:
			default:
				delete(attempts, msg.ID)
			}
		}
	}
}

// Pending returns the number of undelivered messages on channel.
func (m *MemoryBackend) Pending(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[channel])
}

// Close rejects further publishes.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
