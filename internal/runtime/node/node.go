// Package node is a reference search service. It answers history fetches
// from an item store, records live subscriptions and pushes every newly
// published item to the subscribers whose query it matches.
package node

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/drblury/streamsearch/internal/runtime/connection"
	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	idspkg "github.com/drblury/streamsearch/internal/runtime/ids"
	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

// DefaultMaxItems is used when a history fetch does not set a limit.
const DefaultMaxItems = 10

// Error conditions returned to clients.
const (
	ConditionNotAuthorized  = "not-authorized"
	ConditionBadRequest     = "bad-request"
	ConditionNotImplemented = "feature-not-implemented"
	ConditionItemNotFound   = "item-not-found"
	ConditionInternal       = "internal-server-error"
)

// Conn is the part of a connection the node needs.
type Conn interface {
	JID() string
	Send(ctx context.Context, s *protocol.Stanza) error
	AddHandler(fn connection.Handler, namespace, name string) *connection.HandlerRef
	DeleteHandler(ref *connection.HandlerRef)
}

// Config configures a Node.
type Config struct {
	// Node is the pubsub node served. Defaults to "search".
	Node string
	// APIKeys lists accepted keys. Empty accepts any non-empty key.
	APIKeys []string
	// MaxItems caps history fetches without a limit.
	MaxItems int
}

// Subscriber is a live subscription held by the node.
type Subscriber struct {
	JID          string    `json:"jid"`
	Query        string    `json:"query"`
	SubID        string    `json:"subid"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// Node serves the search protocol on a connection.
type Node struct {
	conn   Conn
	store  Store
	cfg    Config
	logger loggingpkg.ServiceLogger
	ref    *connection.HandlerRef

	mu   sync.RWMutex
	subs map[string]map[string]Subscriber
}

// New creates a node answering requests that arrive on conn.
func New(conn Conn, store Store, cfg Config, logger loggingpkg.ServiceLogger) (*Node, error) {
	if conn == nil {
		return nil, errspkg.ErrConnectionRequired
	}
	if store == nil {
		return nil, errspkg.ErrStoreRequired
	}
	if cfg.Node == "" {
		cfg.Node = protocol.DefaultNode
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	logger = loggingpkg.OrNop(logger)

	n := &Node{
		conn:   conn,
		store:  store,
		cfg:    cfg,
		logger: logger.With(loggingpkg.LogFields{loggingpkg.FieldService: conn.JID(), loggingpkg.FieldNode: cfg.Node}),
		subs:   make(map[string]map[string]Subscriber),
	}
	n.ref = conn.AddHandler(n.handleIQ, protocol.NSPubSub, string(protocol.KindIQ))
	return n, nil
}

// Detach stops answering requests.
func (n *Node) Detach() {
	n.conn.DeleteHandler(n.ref)
}

func (n *Node) handleIQ(s *protocol.Stanza) bool {
	if s.Type != protocol.TypeGet && s.Type != protocol.TypeSet {
		return true
	}
	ctx := context.Background()
	ps := s.PubSub

	var resp *protocol.Stanza
	switch {
	case s.Type == protocol.TypeGet && ps.Items != nil:
		resp = n.history(ctx, s)
	case s.Type == protocol.TypeSet && ps.Subscribe != nil:
		resp = n.subscribe(s)
	case s.Type == protocol.TypeSet && ps.Unsubscribe != nil:
		resp = n.unsubscribe(s)
	default:
		resp = errorResponse(s, "cancel", ConditionNotImplemented, "unsupported pubsub request")
	}

	if err := n.conn.Send(ctx, resp); err != nil {
		n.logger.Error("Could not answer request", err, loggingpkg.LogFields{
			loggingpkg.FieldStanzaID: s.ID,
			loggingpkg.FieldJID:      s.From,
		})
	}
	return true
}

func (n *Node) history(ctx context.Context, s *protocol.Stanza) *protocol.Stanza {
	ps := s.PubSub
	if ps.Items.Node != n.cfg.Node {
		return errorResponse(s, "cancel", ConditionItemNotFound, fmt.Sprintf("unknown node %q", ps.Items.Node))
	}
	var form *protocol.Form
	if ps.Options != nil {
		form = ps.Options.Form
	}
	if resp := n.authorize(s, form); resp != nil {
		return resp
	}
	query := form.Value(protocol.FieldQuery)
	if query == "" {
		return errorResponse(s, "modify", ConditionBadRequest, "query is required")
	}

	limit := n.cfg.MaxItems
	if ps.Set != nil && ps.Set.Max > 0 {
		limit = ps.Set.Max
	}
	items, err := n.store.Recent(ctx, query, limit)
	if err != nil {
		n.logger.Error("History lookup failed", err, loggingpkg.LogFields{loggingpkg.FieldQuery: query})
		return errorResponse(s, "wait", ConditionInternal, "")
	}

	entries := make([]protocol.PayloadEntry, 0, len(items))
	for _, item := range items {
		entry, err := protocol.NewAtomPayload(item)
		if err != nil {
			n.logger.Error("Skipping unencodable item", err, loggingpkg.LogFields{"item_id": item.ID})
			continue
		}
		entries = append(entries, entry)
	}

	resp := protocol.NewResult(s)
	resp.PubSub = protocol.NewPubSub()
	resp.PubSub.Items = &protocol.Items{Node: n.cfg.Node, Entries: entries}
	n.logger.Debug("History served", loggingpkg.LogFields{
		loggingpkg.FieldQuery: query,
		loggingpkg.FieldCount: len(entries),
		loggingpkg.FieldJID:   s.From,
	})
	return resp
}

func (n *Node) subscribe(s *protocol.Stanza) *protocol.Stanza {
	ps := s.PubSub
	if ps.Subscribe.Node != n.cfg.Node {
		return errorResponse(s, "cancel", ConditionItemNotFound, fmt.Sprintf("unknown node %q", ps.Subscribe.Node))
	}
	var form *protocol.Form
	if ps.Options != nil {
		form = ps.Options.Form
	}
	if resp := n.authorize(s, form); resp != nil {
		return resp
	}
	query := form.Value(protocol.FieldQuery)
	if query == "" {
		return errorResponse(s, "modify", ConditionBadRequest, "query is required")
	}
	jid := ps.Subscribe.JID
	if jid == "" {
		jid = s.From
	}

	sub := Subscriber{JID: jid, Query: query, SubID: idspkg.CreateULID(), SubscribedAt: time.Now()}
	n.mu.Lock()
	if n.subs[jid] == nil {
		n.subs[jid] = make(map[string]Subscriber)
	}
	n.subs[jid][query] = sub
	n.mu.Unlock()

	n.logger.Info("Subscriber added", loggingpkg.LogFields{loggingpkg.FieldQuery: query, loggingpkg.FieldJID: jid})

	resp := protocol.NewResult(s)
	resp.PubSub = protocol.NewPubSub()
	resp.PubSub.Subscription = &protocol.Subscription{Node: n.cfg.Node, JID: jid, SubID: sub.SubID, State: "subscribed"}
	return resp
}

func (n *Node) unsubscribe(s *protocol.Stanza) *protocol.Stanza {
	jid := s.PubSub.Unsubscribe.JID
	if jid == "" {
		jid = s.From
	}
	n.mu.Lock()
	count := len(n.subs[jid])
	delete(n.subs, jid)
	n.mu.Unlock()

	n.logger.Info("Subscriber removed", loggingpkg.LogFields{loggingpkg.FieldJID: jid, loggingpkg.FieldCount: count})
	return protocol.NewResult(s)
}

func (n *Node) authorize(s *protocol.Stanza, form *protocol.Form) *protocol.Stanza {
	key := form.Value(protocol.FieldAPIKey)
	if key == "" || (len(n.cfg.APIKeys) > 0 && !slices.Contains(n.cfg.APIKeys, key)) {
		n.logger.Info("Rejected request with invalid api key", loggingpkg.LogFields{loggingpkg.FieldJID: s.From})
		return errorResponse(s, "auth", ConditionNotAuthorized, "invalid api key")
	}
	return nil
}

// Publish stores item and notifies every subscriber whose query it matches.
// It returns the number of notifications sent.
func (n *Node) Publish(ctx context.Context, item protocol.AtomEntry) (int, error) {
	if item.ID == "" {
		item.ID = idspkg.CreateULID()
	}
	if item.Published.IsZero() {
		item.Published = time.Now().UTC()
	}
	if err := n.store.Add(ctx, item); err != nil {
		return 0, err
	}
	entry, err := protocol.NewAtomPayload(item)
	if err != nil {
		return 0, err
	}

	var errs []error
	sent := 0
	for _, sub := range n.Subscribers() {
		if !Matches(sub.Query, item) {
			continue
		}
		headers := []protocol.Header{{Name: protocol.FieldQuery, Value: sub.Query}}
		msg := protocol.NewNotification(n.conn.JID(), sub.JID, n.cfg.Node, headers, entry)
		if err := n.conn.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", sub.JID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Subscribers returns every live subscription ordered by JID and query.
func (n *Node) Subscribers() []Subscriber {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []Subscriber
	for _, queries := range n.subs {
		for _, sub := range queries {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JID != out[j].JID {
			return out[i].JID < out[j].JID
		}
		return out[i].Query < out[j].Query
	})
	return out
}

func errorResponse(s *protocol.Stanza, errType, condition, text string) *protocol.Stanza {
	resp := protocol.NewErrorResponse(s, errType, condition, text)
	resp.Error.AppNamespace = protocol.NSSearchError
	return resp
}
