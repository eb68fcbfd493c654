package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

func TestRequestsCarryOptionalFieldsOnlyWhenSet(t *testing.T) {
	req := Request{Service: "svc", Node: "search", Query: "golang", APIKey: "key", ContextCount: 4}

	form := HistoryRequest(req).PubSub.Options.Form
	assert.Len(t, form.Fields, 3)
	assert.Equal(t, "", form.Value(protocol.FieldRateLimit))

	req.RateLimit = 20
	req.ScoreThreshold = 0.75
	for _, iq := range []*protocol.Stanza{HistoryRequest(req), SubscribeRequest(req, testJID)} {
		form := iq.PubSub.Options.Form
		assert.Equal(t, "20", form.Value(protocol.FieldRateLimit))
		assert.Equal(t, "0.75", form.Value(protocol.FieldScoreThreshold))
		assert.Equal(t, "svc", iq.To)
	}
}

func TestRequestsRoundTripTheWire(t *testing.T) {
	req := Request{Service: "svc", Node: "search", Query: "golang", APIKey: "key", ContextCount: 4}

	payload, err := protocol.Marshal(SubscribeRequest(req, testJID))
	require.NoError(t, err)
	decoded, err := protocol.Unmarshal(payload)
	require.NoError(t, err)

	assert.Equal(t, testJID, decoded.PubSub.Subscribe.JID)
	assert.Equal(t, "golang", decoded.PubSub.Options.Form.Value(protocol.FieldQuery))
	assert.True(t, decoded.HasNamespace(protocol.NSPubSub))

	unsub := UnsubscribeRequest("svc", "search", testJID)
	assert.Equal(t, protocol.TypeSet, unsub.Type)
	assert.Nil(t, unsub.PubSub.Options)
}
