package queue

import (
	"context"
	"sync"
)

// Memory is an in-process queue used by tests and by single-node
// deployments that run without a broker. Jobs are delivered to handlers on
// demand via Drain, with failed jobs kept for a later attempt.
type Memory struct {
	mu   sync.Mutex
	jobs map[string][][]byte
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string][][]byte)}
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[topic] = append(m.jobs[topic], payload)
	return nil
}

// Len reports the number of pending jobs on a topic.
func (m *Memory) Len(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs[topic])
}

// Next pops the oldest pending job, or nil when the topic is empty.
func (m *Memory) Next(topic string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.jobs[topic]
	if len(pending) == 0 {
		return nil
	}
	payload := pending[0]
	m.jobs[topic] = pending[1:]
	return payload
}

// Drain runs the handler over every currently-pending job on a topic.
// Failed jobs are re-appended, mirroring broker redelivery.
func (m *Memory) Drain(ctx context.Context, topic string, handler Handler) error {
	n := m.Len(topic)
	var firstErr error
	for i := 0; i < n; i++ {
		payload := m.Next(topic)
		if payload == nil {
			break
		}
		if err := handler(ctx, payload); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if perr := m.Publish(ctx, topic, payload); perr != nil && firstErr == nil {
				firstErr = perr
			}
		}
	}
	return firstErr
}
