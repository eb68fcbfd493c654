// Package search manages streaming search subscriptions. Each Subscribe
// issues a history fetch and a live subscribe to the search service; items
// from both are delivered to the query's consumer until UnsubscribeAll tears
// every subscription down at once.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drblury/streamsearch/internal/runtime/connection"
	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

// Conn is the part of a connection the manager needs.
type Conn interface {
	JID() string
	SendIQ(ctx context.Context, iq *protocol.Stanza, onResult, onError func(*protocol.Stanza)) (string, error)
	AddHandler(fn connection.Handler, namespace, name string) *connection.HandlerRef
	DeleteHandler(ref *connection.HandlerRef)
}

// Manager owns the subscriptions issued over one connection.
type Manager struct {
	conn   Conn
	cfg    Config
	logger loggingpkg.ServiceLogger
	hooks  Hooks
	now    func() time.Time

	mu         sync.Mutex
	registry   *Registry
	listeners  []*listener
	streams    []*stream
	generation uint64
}

// NewManager creates a manager issuing requests over conn.
func NewManager(conn Conn, cfg Config, logger loggingpkg.ServiceLogger, hooks Hooks) (*Manager, error) {
	if conn == nil {
		return nil, errspkg.ErrConnectionRequired
	}
	logger = loggingpkg.OrNop(logger)
	return &Manager{
		conn: conn,
		cfg:  cfg,
		logger: logger.With(loggingpkg.LogFields{
			loggingpkg.FieldService: cfg.service(),
			loggingpkg.FieldNode:    cfg.node(),
		}),
		hooks:    hooks,
		now:      time.Now,
		registry: NewRegistry(),
	}, nil
}

// Subscribe registers query and issues its history fetch and live subscribe.
// Both requests are in flight when Subscribe returns; results arrive through
// the callbacks in opts. Registering a query again replaces its record but
// the earlier live listener keeps delivering until UnsubscribeAll.
//
// A *errors.ConfigurationError is returned without sending anything when the
// query or API key is missing, unless Config.LegacyUnvalidated is set.
func (m *Manager) Subscribe(ctx context.Context, query string, opts Options) error {
	if !m.cfg.LegacyUnvalidated {
		if err := opts.validate(query); err != nil {
			return err
		}
	}

	onItem, onError := opts.handlers()
	contextCount := opts.ContextCount
	if contextCount <= 0 {
		contextCount = m.cfg.contextCount()
	}
	sub := &Subscription{
		Query:          query,
		APIKey:         opts.APIKey,
		RateLimit:      opts.RateLimit,
		ScoreThreshold: opts.ScoreThreshold,
		ContextCount:   contextCount,
		SubscribedAt:   m.now(),
		onItem:         onItem,
		onError:        onError,
	}

	m.mu.Lock()
	_, replaced := m.registry.Get(query)
	m.registry.Put(query, sub)
	generation := m.generation
	m.mu.Unlock()

	req := Request{
		Service:        m.cfg.service(),
		Node:           m.cfg.node(),
		Query:          query,
		APIKey:         opts.APIKey,
		ContextCount:   contextCount,
		RateLimit:      opts.RateLimit,
		ScoreThreshold: opts.ScoreThreshold,
	}

	_, historyErr := m.conn.SendIQ(ctx, HistoryRequest(req),
		func(resp *protocol.Stanza) { m.onHistory(sub, resp) },
		func(resp *protocol.Stanza) { m.fail(sub, errspkg.PhaseHistory, resp) })
	if historyErr != nil {
		historyErr = fmt.Errorf("send history request: %w", historyErr)
	}

	_, subscribeErr := m.conn.SendIQ(ctx, SubscribeRequest(req, m.conn.JID()),
		func(*protocol.Stanza) { m.onSubscribed(sub, generation) },
		func(resp *protocol.Stanza) { m.fail(sub, errspkg.PhaseSubscribe, resp) })
	if subscribeErr != nil {
		subscribeErr = fmt.Errorf("send subscribe request: %w", subscribeErr)
	}

	call(m.hooks.OnSubscribe, SubscribeInfo{
		Query:        query,
		ContextCount: contextCount,
		Replaced:     replaced,
		At:           sub.SubscribedAt,
	})
	return errors.Join(historyErr, subscribeErr)
}

// onHistory delivers the items of a history response in response order.
func (m *Manager) onHistory(sub *Subscription, resp *protocol.Stanza) {
	if sub.onItem == nil {
		return
	}
	for i, entry := range resp.Entries() {
		if !entry.IsAtom() {
			m.skip(sub.Query, i, entry)
			continue
		}
		m.deliver(sub.onItem, itemEvent(sub.Query, entry, true))
	}
}

// onSubscribed registers the live listener of an acknowledged subscription.
// Acknowledgements that arrive after an UnsubscribeAll are discarded.
func (m *Manager) onSubscribed(sub *Subscription, generation uint64) {
	if sub.onItem == nil {
		m.logger.Debug("Live subscription acknowledged without an item callback", loggingpkg.LogFields{
			loggingpkg.FieldQuery: sub.Query,
		})
		return
	}

	l := &listener{manager: m, query: sub.Query, onItem: sub.onItem, matchValue: m.cfg.MatchHeaderValue}

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		m.logger.Debug("Discarding subscribe acknowledgement from before teardown", loggingpkg.LogFields{
			loggingpkg.FieldQuery: sub.Query,
		})
		return
	}
	l.active.Store(true)
	l.ref = m.conn.AddHandler(l.handle, protocol.NSPubSubEvent, string(protocol.KindMessage))
	m.listeners = append(m.listeners, l)
	sub.listener = l
	m.mu.Unlock()

	call(m.hooks.OnListen, sub.Query)
}

func (m *Manager) fail(sub *Subscription, phase errspkg.Phase, resp *protocol.Stanza) {
	ev := failureEvent(sub.Query, phase, resp)
	call(m.hooks.OnFailure, ev)
	if sub.onError != nil {
		sub.onError(ev)
	}
}

func (m *Manager) deliver(fn func(Event), ev Event) {
	call(m.hooks.OnItem, ev)
	fn(ev)
}

func (m *Manager) skip(query string, index int, entry protocol.PayloadEntry) {
	err := &errspkg.DispatchError{
		Query:  query,
		Index:  index,
		Reason: fmt.Sprintf("entry %q in %q is not an atom entry", entry.Name, entry.Namespace),
	}
	m.logger.Debug("Skipping payload entry", loggingpkg.LogFields{
		loggingpkg.FieldQuery: query,
		loggingpkg.FieldError: err,
	})
}

// Get returns a copy of the record stored for query.
func (m *Manager) Get(query string) (Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.registry.Get(query)
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// Subscriptions returns copies of every registered record ordered by query.
func (m *Manager) Subscriptions() []Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Snapshot()
}

// ListenerCount returns the number of registered live listeners.
func (m *Manager) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Generation returns the number of teardowns performed so far.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}
