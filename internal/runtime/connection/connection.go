// Package connection carries stanzas between addresses over a Watermill
// transport. Every address consumes its own inbox topic; IQ responses are
// matched to their request by ID and everything else is offered to the
// registered handlers.
package connection

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	idspkg "github.com/drblury/streamsearch/internal/runtime/ids"
	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
	metadatapkg "github.com/drblury/streamsearch/internal/runtime/metadata"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
	"github.com/drblury/streamsearch/transport"
)

// InboxHandlerName is the router handler consuming the inbox topic.
const InboxHandlerName = "stanza_inbox"

// Handler receives a matching stanza. Returning false removes the handler.
type Handler func(*protocol.Stanza) bool

// HandlerRef identifies a registered handler.
type HandlerRef struct {
	fn        Handler
	namespace string
	name      string
	removed   atomic.Bool
}

func (h *HandlerRef) matches(s *protocol.Stanza) bool {
	if h.name != "" && h.name != string(s.Kind) {
		return false
	}
	if h.namespace != "" && !s.HasNamespace(h.namespace) {
		return false
	}
	return true
}

type pendingIQ struct {
	onResult func(*protocol.Stanza)
	onError  func(*protocol.Stanza)
}

// Options configures a Connection.
type Options struct {
	// JID is the address of this end. A unique client address is generated
	// when empty.
	JID string
	// TopicPrefix namespaces inbox topics.
	TopicPrefix string
	// Capabilities of the transport; used to reject oversized stanzas.
	Capabilities transport.Capabilities
}

// Connection routes stanzas for one address.
type Connection struct {
	jid       string
	prefix    string
	caps      transport.Capabilities
	publisher message.Publisher
	router    *message.Router
	logger    loggingpkg.ServiceLogger

	mu       sync.Mutex
	pending  map[string]pendingIQ
	handlers []*HandlerRef
	started  bool
	closed   bool
}

// New creates a connection consuming the inbox of opts.JID from sub. The
// router is created but not started; call Run.
func New(opts Options, pub message.Publisher, sub message.Subscriber, logger loggingpkg.ServiceLogger) (*Connection, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if sub == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	logger = loggingpkg.OrNop(logger)

	jid := opts.JID
	if jid == "" {
		jid = idspkg.NewJID("", "")
	}

	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	c := &Connection{
		jid:       jid,
		prefix:    opts.TopicPrefix,
		caps:      opts.Capabilities,
		publisher: pub,
		router:    router,
		logger:    logger.With(loggingpkg.LogFields{loggingpkg.FieldJID: jid}),
		pending:   make(map[string]pendingIQ),
	}
	router.AddNoPublisherHandler(InboxHandlerName, c.Inbox(), sub, c.handleMessage)
	return c, nil
}

// InboxTopic returns the topic stanzas addressed to jid are published on.
// Characters outside [A-Za-z0-9_-] are replaced so the name is valid on every
// transport.
func InboxTopic(prefix, jid string) string {
	var b strings.Builder
	b.Grow(len(prefix) + 1 + len(jid))
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('-')
	}
	for _, r := range jid {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// JID returns the address of this connection.
func (c *Connection) JID() string { return c.jid }

// Inbox returns the topic this connection consumes.
func (c *Connection) Inbox() string { return InboxTopic(c.prefix, c.jid) }

// Capabilities returns the capabilities of the underlying transport.
func (c *Connection) Capabilities() transport.Capabilities { return c.caps }

// Router exposes the underlying router for plugins and metrics.
func (c *Connection) Router() *message.Router { return c.router }

// AddMiddleware adds router middleware. It must be called before Run.
func (c *Connection) AddMiddleware(m ...message.HandlerMiddleware) {
	c.router.AddMiddleware(m...)
}

// Run consumes the inbox until ctx is cancelled or Close is called. It fails
// with ErrConnectionClosed once the connection is closed.
func (c *Connection) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errspkg.ErrConnectionClosed
	}
	c.started = true
	c.mu.Unlock()
	return c.router.Run(ctx)
}

// Running is closed once the inbox subscription is established.
func (c *Connection) Running() chan struct{} {
	return c.router.Running()
}

// Close stops the router and forgets pending requests. The transport itself
// is not closed. A router that never ran is left alone.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.pending = make(map[string]pendingIQ)
	c.handlers = nil
	c.mu.Unlock()

	if !started {
		return nil
	}
	return c.router.Close()
}

// Send publishes a stanza to the inbox of its recipient. From defaults to the
// connection address.
func (c *Connection) Send(ctx context.Context, s *protocol.Stanza) error {
	if s == nil {
		return errspkg.ErrStanzaRequired
	}
	if s.To == "" {
		return fmt.Errorf("%w: stanza has no recipient", errspkg.ErrTopicRequired)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errspkg.ErrConnectionClosed
	}

	if s.From == "" {
		s.From = c.jid
	}
	payload, err := protocol.Marshal(s)
	if err != nil {
		return err
	}
	if !c.caps.Fits(len(payload)) {
		return fmt.Errorf("%w: %d bytes exceeds the %s limit of %d", errspkg.ErrStanzaTooLarge, len(payload), c.caps.Name, c.caps.MaxMessageSize)
	}

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.SetContext(ctx)
	metadatapkg.Apply(msg, stanzaMetadata(s))

	topic := InboxTopic(c.prefix, s.To)
	if err := c.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s stanza to %s: %w", s.Kind, topic, err)
	}
	c.logger.Trace("Stanza sent", loggingpkg.LogFields{
		loggingpkg.FieldStanzaID:   s.ID,
		loggingpkg.FieldStanzaKind: s.Kind,
		loggingpkg.FieldTopic:      topic,
	})
	return nil
}

// SendIQ sends an IQ request and registers callbacks for its response. An ID
// is assigned when the stanza has none. Exactly one callback runs per
// response; a request that is never answered keeps its callbacks until Close.
func (c *Connection) SendIQ(ctx context.Context, iq *protocol.Stanza, onResult, onError func(*protocol.Stanza)) (string, error) {
	if iq == nil {
		return "", errspkg.ErrStanzaRequired
	}
	if iq.Kind != protocol.KindIQ {
		return "", fmt.Errorf("%w: expected an iq, got %q", protocol.ErrMalformedStanza, iq.Kind)
	}
	if iq.ID == "" {
		iq.ID = idspkg.CreateULID()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", errspkg.ErrConnectionClosed
	}
	c.pending[iq.ID] = pendingIQ{onResult: onResult, onError: onError}
	c.mu.Unlock()

	if err := c.Send(ctx, iq); err != nil {
		c.mu.Lock()
		delete(c.pending, iq.ID)
		c.mu.Unlock()
		return "", err
	}
	return iq.ID, nil
}

// PendingCount returns the number of requests awaiting a response.
func (c *Connection) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// AddHandler registers fn for stanzas of kind name qualified by namespace.
// Empty filters match everything.
func (c *Connection) AddHandler(fn Handler, namespace, name string) *HandlerRef {
	ref := &HandlerRef{fn: fn, namespace: namespace, name: name}
	c.mu.Lock()
	c.handlers = append(c.handlers, ref)
	c.mu.Unlock()
	return ref
}

// DeleteHandler removes a handler. It is not invoked again, even for a stanza
// that is being dispatched concurrently.
func (c *Connection) DeleteHandler(ref *HandlerRef) {
	if ref == nil {
		return
	}
	ref.removed.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = slices.DeleteFunc(c.handlers, func(h *HandlerRef) bool { return h == ref })
}

// HandlerCount returns the number of registered handlers.
func (c *Connection) HandlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *Connection) handleMessage(msg *message.Message) error {
	s, err := protocol.Unmarshal(msg.Payload)
	if err != nil {
		c.logger.Error("Dropping undecodable stanza", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		return nil
	}
	c.Deliver(s)
	return nil
}

// Deliver dispatches an incoming stanza as if it had arrived on the inbox.
func (c *Connection) Deliver(s *protocol.Stanza) {
	if s == nil {
		return
	}
	if s.Kind == protocol.KindIQ && (s.Type == protocol.TypeResult || s.Type == protocol.TypeError) {
		c.mu.Lock()
		p, ok := c.pending[s.ID]
		if ok {
			delete(c.pending, s.ID)
		}
		c.mu.Unlock()
		if ok {
			callback := p.onResult
			if s.Type == protocol.TypeError {
				callback = p.onError
			}
			if callback != nil {
				c.invoke(s, func() { callback(s) })
			}
			return
		}
	}

	c.mu.Lock()
	snapshot := make([]*HandlerRef, len(c.handlers))
	copy(snapshot, c.handlers)
	c.mu.Unlock()

	matched := false
	for _, ref := range snapshot {
		if ref.removed.Load() || !ref.matches(s) {
			continue
		}
		matched = true
		keep := true
		c.invoke(s, func() { keep = ref.fn(s) })
		if !keep {
			c.DeleteHandler(ref)
		}
	}
	if !matched {
		c.logger.Debug("No handler for stanza", loggingpkg.LogFields{
			loggingpkg.FieldStanzaID:   s.ID,
			loggingpkg.FieldStanzaKind: s.Kind,
			"from":                     s.From,
		})
	}
}

// invoke runs a callback, logging a panic instead of failing the message.
func (c *Connection) invoke(s *protocol.Stanza, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Stanza callback panicked", fmt.Errorf("panic: %v", r), loggingpkg.LogFields{
				loggingpkg.FieldStanzaID:   s.ID,
				loggingpkg.FieldStanzaKind: s.Kind,
			})
		}
	}()
	fn()
}

func stanzaMetadata(s *protocol.Stanza) metadatapkg.Metadata {
	return metadatapkg.New(
		metadatapkg.KeyStanzaID, s.ID,
		metadatapkg.KeyStanzaKind, string(s.Kind),
		metadatapkg.KeyStanzaType, s.Type,
		metadatapkg.KeyFrom, s.From,
		metadatapkg.KeyTo, s.To,
		metadatapkg.KeyCorrelationID, s.ID,
	)
}
