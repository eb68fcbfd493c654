package search

import (
	"sync/atomic"

	"github.com/drblury/streamsearch/internal/runtime/connection"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

// listener routes live notifications to the consumer of one Subscribe call.
// It keeps the query and callback captured at that call; the registry is not
// consulted.
type listener struct {
	manager    *Manager
	query      string
	onItem     func(Event)
	matchValue bool
	ref        *connection.HandlerRef
	active     atomic.Bool
}

// handle is registered with the connection. It always keeps itself
// registered; teardown removes it.
func (l *listener) handle(s *protocol.Stanza) bool {
	if !l.active.Load() || !l.relevant(s) {
		return true
	}
	for i, entry := range s.Entries() {
		if !l.active.Load() {
			break
		}
		if !entry.IsAtom() {
			l.manager.skip(l.query, i, entry)
			continue
		}
		l.manager.deliver(l.onItem, itemEvent(l.query, entry, false))
	}
	return true
}

// relevant reports whether the notification carries a query header. In value
// mode the header must also name this listener's query.
func (l *listener) relevant(s *protocol.Stanza) bool {
	for _, h := range s.Headers {
		if h.Name != protocol.FieldQuery {
			continue
		}
		if !l.matchValue || h.Value == l.query {
			return true
		}
	}
	return false
}
