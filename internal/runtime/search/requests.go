package search

import (
	"strconv"

	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

// Request holds what the history fetch and the live subscribe are built from.
type Request struct {
	Service        string
	Node           string
	Query          string
	APIKey         string
	ContextCount   int
	RateLimit      int
	ScoreThreshold float64
}

// HistoryRequest builds the IQ fetching the most recent items matching the
// query, limited to ContextCount.
func HistoryRequest(r Request) *protocol.Stanza {
	iq := protocol.NewIQ(protocol.TypeGet, r.Service)
	iq.PubSub = protocol.NewPubSub()
	iq.PubSub.Items = &protocol.Items{Node: r.Node}
	iq.PubSub.Options = &protocol.Options{
		Node: r.Node,
		Form: r.form(protocol.FormTypeSearchOptions),
	}
	iq.PubSub.Set = &protocol.ResultSet{Namespace: protocol.NSResultSet, Max: r.ContextCount}
	return iq
}

// SubscribeRequest builds the IQ subscribing jid to the live results of the
// query.
func SubscribeRequest(r Request, jid string) *protocol.Stanza {
	iq := protocol.NewIQ(protocol.TypeSet, r.Service)
	iq.PubSub = protocol.NewPubSub()
	iq.PubSub.Subscribe = &protocol.Subscribe{Node: r.Node, JID: jid}
	iq.PubSub.Options = &protocol.Options{
		Node: r.Node,
		Form: r.form(protocol.NSPubSubSubscribeOptions),
	}
	return iq
}

// UnsubscribeRequest builds the IQ dropping every subscription of jid on node.
func UnsubscribeRequest(service, node, jid string) *protocol.Stanza {
	iq := protocol.NewIQ(protocol.TypeSet, service)
	iq.PubSub = protocol.NewPubSub()
	iq.PubSub.Unsubscribe = &protocol.Unsubscribe{Node: node, JID: jid}
	return iq
}

func (r Request) form(formType string) *protocol.Form {
	form := protocol.NewSubmitForm(formType).
		With(protocol.FieldAPIKey, r.APIKey).
		With(protocol.FieldQuery, r.Query)
	if r.RateLimit != 0 {
		form.With(protocol.FieldRateLimit, strconv.Itoa(r.RateLimit))
	}
	if r.ScoreThreshold != 0 {
		form.With(protocol.FieldScoreThreshold, strconv.FormatFloat(r.ScoreThreshold, 'g', -1, 64))
	}
	return form
}
