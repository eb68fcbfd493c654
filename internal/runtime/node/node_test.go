package node

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/streamsearch/internal/runtime/connection"
	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

const (
	clientJID  = "client@example.org/test"
	serviceJID = "search.example.org"
)

type harness struct {
	client *connection.Connection
	node   *Node
	store  *MemoryStore
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })

	client, err := connection.New(connection.Options{JID: clientJID, TopicPrefix: "test"}, pubSub, pubSub, nil)
	require.NoError(t, err)
	service, err := connection.New(connection.Options{JID: serviceJID, TopicPrefix: "test"}, pubSub, pubSub, nil)
	require.NoError(t, err)

	store := NewMemoryStore(0)
	n, err := New(service, store, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = client.Close()
		_ = service.Close()
	})
	for _, c := range []*connection.Connection{client, service} {
		go func(c *connection.Connection) { _ = c.Run(ctx) }(c)
		select {
		case <-c.Running():
		case <-time.After(2 * time.Second):
			t.Fatal("router did not start")
		}
	}
	return &harness{client: client, node: n, store: store}
}

// exchange sends iq and waits for its response.
func (h *harness) exchange(t *testing.T, iq *protocol.Stanza) *protocol.Stanza {
	t.Helper()
	responses := make(chan *protocol.Stanza, 1)
	deliver := func(s *protocol.Stanza) { responses <- s }
	_, err := h.client.SendIQ(context.Background(), iq, deliver, deliver)
	require.NoError(t, err)
	select {
	case resp := <-responses:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("no response")
		return nil
	}
}

func historyIQ(apiKey, query string, limit int) *protocol.Stanza {
	iq := protocol.NewIQ(protocol.TypeGet, serviceJID)
	iq.PubSub = protocol.NewPubSub()
	iq.PubSub.Items = &protocol.Items{Node: protocol.DefaultNode}
	iq.PubSub.Options = &protocol.Options{
		Node: protocol.DefaultNode,
		Form: protocol.NewSubmitForm(protocol.FormTypeSearchOptions).
			With(protocol.FieldAPIKey, apiKey).
			With(protocol.FieldQuery, query),
	}
	iq.PubSub.Set = &protocol.ResultSet{Namespace: protocol.NSResultSet, Max: limit}
	return iq
}

func subscribeIQ(apiKey, query string) *protocol.Stanza {
	iq := protocol.NewIQ(protocol.TypeSet, serviceJID)
	iq.PubSub = protocol.NewPubSub()
	iq.PubSub.Subscribe = &protocol.Subscribe{Node: protocol.DefaultNode, JID: clientJID}
	iq.PubSub.Options = &protocol.Options{
		Node: protocol.DefaultNode,
		Form: protocol.NewSubmitForm(protocol.NSPubSubSubscribeOptions).
			With(protocol.FieldAPIKey, apiKey).
			With(protocol.FieldQuery, query),
	}
	return iq
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, NewMemoryStore(0), Config{}, nil)
	assert.ErrorIs(t, err, errspkg.ErrConnectionRequired)
}

func TestHistoryReturnsNewestMatchingItems(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		require.NoError(t, h.store.Add(ctx, item(id, "golang "+id, base.Add(time.Duration(i)*time.Minute))))
	}

	resp := h.exchange(t, historyIQ("key", "golang", 2))

	require.Equal(t, protocol.TypeResult, resp.Type)
	entries := resp.Entries()
	require.Len(t, entries, 2)
	first, err := protocol.DecodeAtom(entries[0])
	require.NoError(t, err)
	assert.Equal(t, "3", first.ID)
	assert.True(t, base.Add(2*time.Minute).Equal(first.Published))
}

func TestRequestsWithInvalidKeyAreRejected(t *testing.T) {
	h := newHarness(t, Config{APIKeys: []string{"good"}})

	for _, iq := range []*protocol.Stanza{historyIQ("bad", "golang", 10), subscribeIQ("", "golang")} {
		resp := h.exchange(t, iq)
		require.Equal(t, protocol.TypeError, resp.Type)
		assert.Equal(t, ConditionNotAuthorized, resp.Condition())
		assert.Equal(t, protocol.NSSearchError, resp.Error.AppNamespace)
	}
	assert.Empty(t, h.node.Subscribers())

	resp := h.exchange(t, subscribeIQ("good", "golang"))
	assert.Equal(t, protocol.TypeResult, resp.Type)
}

func TestMalformedRequestsAreRejected(t *testing.T) {
	h := newHarness(t, Config{})

	resp := h.exchange(t, historyIQ("key", "", 10))
	assert.Equal(t, ConditionBadRequest, resp.Condition())

	wrongNode := subscribeIQ("key", "golang")
	wrongNode.PubSub.Subscribe.Node = "other"
	resp = h.exchange(t, wrongNode)
	assert.Equal(t, ConditionItemNotFound, resp.Condition())

	empty := protocol.NewIQ(protocol.TypeSet, serviceJID)
	empty.PubSub = protocol.NewPubSub()
	resp = h.exchange(t, empty)
	assert.Equal(t, ConditionNotImplemented, resp.Condition())
}

func TestPublishNotifiesMatchingSubscribers(t *testing.T) {
	h := newHarness(t, Config{})

	resp := h.exchange(t, subscribeIQ("key", "golang"))
	require.Equal(t, protocol.TypeResult, resp.Type)
	require.NotNil(t, resp.PubSub.Subscription)
	assert.Equal(t, "subscribed", resp.PubSub.Subscription.State)
	assert.NotEmpty(t, resp.PubSub.Subscription.SubID)

	notifications := make(chan *protocol.Stanza, 4)
	h.client.AddHandler(func(s *protocol.Stanza) bool {
		notifications <- s
		return true
	}, protocol.NSPubSubEvent, string(protocol.KindMessage))

	sent, err := h.node.Publish(context.Background(), protocol.AtomEntry{Title: "Rust only"})
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	sent, err = h.node.Publish(context.Background(), protocol.AtomEntry{ID: "g1", Title: "GoLang weekly"})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	select {
	case msg := <-notifications:
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, protocol.FieldQuery, msg.Headers[0].Name)
		assert.Equal(t, "golang", msg.Headers[0].Value)
		entries := msg.Entries()
		require.Len(t, entries, 1)
		a, err := protocol.DecodeAtom(entries[0])
		require.NoError(t, err)
		assert.Equal(t, "g1", a.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
	assert.Equal(t, 2, h.store.Len(), "every published item is stored")
}

func TestUnsubscribeDropsEverySubscriptionOfTheJID(t *testing.T) {
	h := newHarness(t, Config{})
	h.exchange(t, subscribeIQ("key", "golang"))
	h.exchange(t, subscribeIQ("key", "rust"))
	require.Len(t, h.node.Subscribers(), 2)

	iq := protocol.NewIQ(protocol.TypeSet, serviceJID)
	iq.PubSub = protocol.NewPubSub()
	iq.PubSub.Unsubscribe = &protocol.Unsubscribe{Node: protocol.DefaultNode, JID: clientJID}
	resp := h.exchange(t, iq)

	assert.Equal(t, protocol.TypeResult, resp.Type)
	assert.Empty(t, h.node.Subscribers())
}
