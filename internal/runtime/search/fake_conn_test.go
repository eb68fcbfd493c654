package search

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drblury/streamsearch/internal/runtime/connection"
	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

const testJID = "client@example.org/test"

type pendingCallbacks struct {
	onResult func(*protocol.Stanza)
	onError  func(*protocol.Stanza)
}

// fakeConn records requests and lets tests answer them in any order.
type fakeConn struct {
	mu       sync.Mutex
	sendErr  error
	seq      int
	sent     []*protocol.Stanza
	pending  map[string]pendingCallbacks
	handlers []*registeredHandler
}

type registeredHandler struct {
	ref       *connection.HandlerRef
	fn        connection.Handler
	namespace string
	name      string
}

func newFakeConn() *fakeConn {
	return &fakeConn{pending: make(map[string]pendingCallbacks)}
}

func (f *fakeConn) JID() string { return testJID }

func (f *fakeConn) SendIQ(_ context.Context, iq *protocol.Stanza, onResult, onError func(*protocol.Stanza)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.seq++
	iq.ID = fmt.Sprintf("iq-%d", f.seq)
	iq.From = testJID
	f.sent = append(f.sent, iq)
	f.pending[iq.ID] = pendingCallbacks{onResult: onResult, onError: onError}
	return iq.ID, nil
}

func (f *fakeConn) AddHandler(fn connection.Handler, namespace, name string) *connection.HandlerRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := &connection.HandlerRef{}
	f.handlers = append(f.handlers, &registeredHandler{ref: ref, fn: fn, namespace: namespace, name: name})
	return ref
}

func (f *fakeConn) DeleteHandler(ref *connection.HandlerRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, h := range f.handlers {
		if h.ref == ref {
			f.handlers = append(f.handlers[:i], f.handlers[i+1:]...)
			return
		}
	}
}

func (f *fakeConn) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeConn) requests() []*protocol.Stanza {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Stanza(nil), f.sent...)
}

// request returns the n-th sent stanza (0-based).
func (f *fakeConn) request(t *testing.T, n int) *protocol.Stanza {
	t.Helper()
	sent := f.requests()
	require.Greater(t, len(sent), n, "request %d was not sent", n)
	return sent[n]
}

func (f *fakeConn) take(id string) (pendingCallbacks, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[id]
	delete(f.pending, id)
	return p, ok
}

// succeed answers req with a result carrying entries.
func (f *fakeConn) succeed(t *testing.T, req *protocol.Stanza, entries ...protocol.PayloadEntry) {
	t.Helper()
	p, ok := f.take(req.ID)
	require.True(t, ok, "no pending request %s", req.ID)
	resp := protocol.NewResult(req)
	if len(entries) > 0 {
		resp.PubSub = protocol.NewPubSub()
		resp.PubSub.Items = &protocol.Items{Node: protocol.DefaultNode, Entries: entries}
	}
	if p.onResult != nil {
		p.onResult(resp)
	}
}

// reject answers req with an error response.
func (f *fakeConn) reject(t *testing.T, req *protocol.Stanza, condition string) {
	t.Helper()
	p, ok := f.take(req.ID)
	require.True(t, ok, "no pending request %s", req.ID)
	resp := protocol.NewErrorResponse(req, "auth", condition, "")
	if p.onError != nil {
		p.onError(resp)
	}
}

// notify offers a stanza to every matching handler like the connection does.
func (f *fakeConn) notify(s *protocol.Stanza) {
	f.mu.Lock()
	snapshot := append([]*registeredHandler(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range snapshot {
		if h.name != "" && h.name != string(s.Kind) {
			continue
		}
		if h.namespace != "" && !s.HasNamespace(h.namespace) {
			continue
		}
		if !h.fn(s) {
			f.DeleteHandler(h.ref)
		}
	}
}

func atom(t *testing.T, id string) protocol.PayloadEntry {
	t.Helper()
	entry, err := protocol.NewAtomPayload(protocol.AtomEntry{ID: id, Title: "title " + id})
	require.NoError(t, err)
	return entry
}

func notification(query string, entries ...protocol.PayloadEntry) *protocol.Stanza {
	var headers []protocol.Header
	if query != "" {
		headers = []protocol.Header{{Name: protocol.FieldQuery, Value: query}}
	}
	return protocol.NewNotification(protocol.DefaultService, testJID, protocol.DefaultNode, headers, entries...)
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func entryIDs(t *testing.T, events []Event) []string {
	t.Helper()
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		a, err := ev.Atom()
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	return ids
}

type logEntry struct {
	msg    string
	fields loggingpkg.LogFields
}

// recordingLogger keeps every log call in memory.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(msg string, fields loggingpkg.LogFields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{msg: msg, fields: fields})
}

func (l *recordingLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return l }
func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) { l.record(msg, fields) }
func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields) { l.record(msg, fields) }
func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) { l.record(msg, fields) }

func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	merged := loggingpkg.LogFields{loggingpkg.FieldError: err}
	for k, v := range fields {
		merged[k] = v
	}
	l.record(msg, merged)
}

func (l *recordingLogger) fieldsOf(msg string) []loggingpkg.LogFields {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []loggingpkg.LogFields
	for _, e := range l.entries {
		if e.msg == msg {
			out = append(out, e.fields)
		}
	}
	return out
}
