package search

import (
	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

// EventKind tags what an Event carries.
type EventKind string

const (
	// EventArchived carries an item returned by the history fetch.
	EventArchived EventKind = "archived"
	// EventLive carries an item pushed by the live subscription.
	EventLive EventKind = "live"
	// EventFailed carries the error response of a failed exchange.
	EventFailed EventKind = "failed"
)

// Event is delivered to subscription callbacks and streams.
type Event struct {
	Kind  EventKind
	Query string
	// Entry is set for archived and live events.
	Entry protocol.PayloadEntry
	// Err is set for failed events.
	Err *errspkg.ProtocolError
}

// Archived reports whether the event belongs to the history fetch.
func (e Event) Archived() bool {
	if e.Kind == EventFailed {
		return e.Err != nil && e.Err.Archived()
	}
	return e.Kind == EventArchived
}

// Failed reports whether the event is a failure.
func (e Event) Failed() bool {
	return e.Kind == EventFailed
}

// Response returns the raw error response of a failed event.
func (e Event) Response() *protocol.Stanza {
	if e.Err == nil {
		return nil
	}
	return e.Err.Response
}

// Atom decodes the item carried by the event.
func (e Event) Atom() (protocol.AtomEntry, error) {
	return protocol.DecodeAtom(e.Entry)
}

func itemEvent(query string, entry protocol.PayloadEntry, archived bool) Event {
	kind := EventLive
	if archived {
		kind = EventArchived
	}
	return Event{Kind: kind, Query: query, Entry: entry}
}

func failureEvent(query string, phase errspkg.Phase, resp *protocol.Stanza) Event {
	return Event{
		Kind:  EventFailed,
		Query: query,
		Err:   &errspkg.ProtocolError{Phase: phase, Response: resp},
	}
}
