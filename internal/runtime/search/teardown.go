package search

import (
	"context"

	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

// UnsubscribeAll drops every subscription. One unsubscribe request is sent
// for the whole node and its outcome is only logged. Listeners, streams and
// the registry are cleared regardless, and acknowledgements still in flight
// are discarded when they arrive. It does nothing when no query is registered.
func (m *Manager) UnsubscribeAll(ctx context.Context) {
	m.mu.Lock()
	if m.registry.Empty() {
		m.mu.Unlock()
		return
	}
	listeners := m.listeners
	streams := m.streams
	count := m.registry.Len()
	m.listeners = nil
	m.streams = nil
	m.registry.Clear()
	m.generation++
	generation := m.generation
	for _, l := range listeners {
		l.active.Store(false)
	}
	m.mu.Unlock()

	iq := UnsubscribeRequest(m.cfg.service(), m.cfg.node(), m.conn.JID())
	if _, err := m.conn.SendIQ(ctx, iq, nil, func(resp *protocol.Stanza) {
		m.logger.Info("Unsubscribe request rejected", loggingpkg.LogFields{
			loggingpkg.FieldCondition: resp.Condition(),
		})
	}); err != nil {
		m.logger.Error("Could not send unsubscribe request", err, nil)
	}

	for _, l := range listeners {
		m.conn.DeleteHandler(l.ref)
	}
	for _, s := range streams {
		s.close()
	}

	call(m.hooks.OnTeardown, TeardownInfo{
		Subscriptions: count,
		Listeners:     len(listeners),
		Generation:    generation,
	})
}
