package search

import (
	"context"
	"slices"
	"sync"
)

// StreamBuffer is the capacity of channels returned by Stream.
const StreamBuffer = 64

type stream struct {
	ch   chan Event
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

func newStream() *stream {
	return &stream{
		ch:   make(chan Event, StreamBuffer),
		done: make(chan struct{}),
	}
}

// push blocks while the buffer is full, until the event is taken or the
// stream is closed.
func (s *stream) push(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
	}
}

func (s *stream) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Stream subscribes to query and returns its events as a channel instead of
// callbacks. Callbacks set in opts are replaced. The channel is closed by
// UnsubscribeAll. A slow reader holds back delivery once StreamBuffer events
// are queued. When a request cannot be sent the stream is dropped and no
// channel is returned.
func (m *Manager) Stream(ctx context.Context, query string, opts Options) (<-chan Event, error) {
	s := newStream()
	opts.Callback = s.push
	opts.Success = nil
	opts.Error = nil

	if !m.cfg.LegacyUnvalidated {
		if err := opts.validate(query); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()

	if err := m.Subscribe(ctx, query, opts); err != nil {
		m.mu.Lock()
		m.streams = slices.DeleteFunc(m.streams, func(other *stream) bool { return other == s })
		m.mu.Unlock()
		s.close()
		return nil, err
	}
	return s.ch, nil
}
