package database

import (
	"context"
	"sync"
	"time"

	"github.com/super-flat/pipeline/message"
)

// Memory is an in-process FIFO store. It is both a Source and a Sink, so a
// test or a demo can feed a Puller and inspect what a Pusher wrote.
type Memory struct {
	mtx     sync.Mutex
	records []*message.RecordMessage
	notify  chan struct{}
	loadErr error
	loaded  bool
	closed  bool
}

// NewMemory returns a Memory store holding records
func NewMemory(records ...*message.RecordMessage) *Memory {
	return &Memory{
		records: append([]*message.RecordMessage(nil), records...),
		notify:  make(chan struct{}, 1),
	}
}

// FailLoad makes every later Load return err
func (m *Memory) FailLoad(err error) *Memory {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.loadErr = err
	return m
}

// Load implements Source and Sink
func (m *Memory) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.loadErr != nil {
		return m.loadErr
	}
	if m.closed {
		return ErrDisconnected
	}
	m.loaded = true
	return nil
}

// Pull implements Source
func (m *Memory) Pull(ctx context.Context, timeout time.Duration) (*message.RecordMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		record, err := m.pop()
		if record != nil || err != nil {
			return record, err
		}
		select {
		case <-m.notify:
		case <-timer.C:
			return nil, ErrExhausted
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Store implements Sink
func (m *Memory) Store(ctx context.Context, record *message.RecordMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mtx.Lock()
	if !m.loaded {
		m.mtx.Unlock()
		return ErrNotLoaded
	}
	m.records = append(m.records, record)
	m.mtx.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Records returns a snapshot of the stored records
func (m *Memory) Records() []*message.RecordMessage {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return append([]*message.RecordMessage(nil), m.records...)
}

// Len returns the number of stored records
func (m *Memory) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return len(m.records)
}

// Close implements Source and Sink
func (m *Memory) Close() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.closed = true
	m.loaded = false
	return nil
}

func (m *Memory) pop() (*message.RecordMessage, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if !m.loaded {
		return nil, ErrNotLoaded
	}
	if len(m.records) == 0 {
		return nil, nil
	}
	record := m.records[0]
	m.records = m.records[1:]
	return record, nil
}
