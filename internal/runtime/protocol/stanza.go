package protocol

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/streamsearch/internal/runtime/jsoncodec"
)

// Kind distinguishes request/response stanzas from unsolicited messages.
type Kind string

const (
	KindIQ      Kind = "iq"
	KindMessage Kind = "message"
)

// IQ types.
const (
	TypeGet    = "get"
	TypeSet    = "set"
	TypeResult = "result"
	TypeError  = "error"
)

// Form types.
const (
	FormSubmit      = "submit"
	FormResult      = "result"
	FieldTypeHidden = "hidden"
)

// Stanza is the envelope exchanged with the search service. IQ stanzas carry
// a pubsub request or its answer, message stanzas carry pubsub events.
type Stanza struct {
	Kind    Kind     `json:"kind"`
	ID      string   `json:"id,omitempty"`
	Type    string   `json:"type,omitempty"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
	PubSub  *PubSub  `json:"pubsub,omitempty"`
	Event   *Event   `json:"event,omitempty"`
	Headers []Header `json:"headers,omitempty"`
	Error   *Error   `json:"error,omitempty"`
}

// PubSub is the request/response body of an IQ stanza.
type PubSub struct {
	Namespace    string        `json:"xmlns"`
	Items        *Items        `json:"items,omitempty"`
	Subscribe    *Subscribe    `json:"subscribe,omitempty"`
	Unsubscribe  *Unsubscribe  `json:"unsubscribe,omitempty"`
	Options      *Options      `json:"options,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Set          *ResultSet    `json:"set,omitempty"`
}

// Items names a node and, in responses and events, the entries published to it.
type Items struct {
	Node    string         `json:"node"`
	Entries []PayloadEntry `json:"entries,omitempty"`
}

type Subscribe struct {
	Node string `json:"node"`
	JID  string `json:"jid"`
}

type Unsubscribe struct {
	Node string `json:"node"`
	JID  string `json:"jid"`
}

// Options carries the data form qualifying a request.
type Options struct {
	Node string `json:"node"`
	Form *Form  `json:"x,omitempty"`
}

// Subscription is returned by the service when a subscribe request succeeds.
type Subscription struct {
	Node  string `json:"node"`
	JID   string `json:"jid"`
	SubID string `json:"subid,omitempty"`
	State string `json:"subscription,omitempty"`
}

// ResultSet limits the number of items returned by a history fetch.
type ResultSet struct {
	Namespace string `json:"xmlns"`
	Max       int    `json:"max"`
}

// Event is the body of a pubsub notification message.
type Event struct {
	Namespace string `json:"xmlns"`
	Items     *Items `json:"items,omitempty"`
}

type Form struct {
	Namespace string  `json:"xmlns"`
	Type      string  `json:"type"`
	Fields    []Field `json:"fields,omitempty"`
}

type Field struct {
	Var    string   `json:"var"`
	Type   string   `json:"type,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Header is a single SHIM header attached to a notification.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Error describes a failed request.
type Error struct {
	Type         string `json:"type"`
	Condition    string `json:"condition"`
	Text         string `json:"text,omitempty"`
	AppNamespace string `json:"app_xmlns,omitempty"`
}

// PayloadEntry is a single structured result item embedded in a stanza.
type PayloadEntry struct {
	Name      string           `json:"name"`
	Namespace string           `json:"xmlns"`
	Data      *structpb.Struct `json:"data,omitempty"`
}

type payloadEntryWire struct {
	Name      string          `json:"name"`
	Namespace string          `json:"xmlns"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes Data with protojson so the payload stays a plain JSON
// object on the wire.
func (e PayloadEntry) MarshalJSON() ([]byte, error) {
	wire := payloadEntryWire{Name: e.Name, Namespace: e.Namespace}
	if e.Data != nil {
		raw, err := protojson.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		wire.Data = raw
	}
	return jsoncodec.Marshal(wire)
}

func (e *PayloadEntry) UnmarshalJSON(data []byte) error {
	var wire payloadEntryWire
	if err := jsoncodec.Unmarshal(data, &wire); err != nil {
		return err
	}
	e.Name = wire.Name
	e.Namespace = wire.Namespace
	e.Data = nil
	if len(wire.Data) > 0 && string(wire.Data) != "null" {
		e.Data = &structpb.Struct{}
		if err := protojson.Unmarshal(wire.Data, e.Data); err != nil {
			return err
		}
	}
	return nil
}

// IsAtom reports whether the entry is tagged as an Atom result item.
func (e PayloadEntry) IsAtom() bool {
	return e.Name == EntryName && e.Namespace == NSAtom
}

// Value returns the first value of the named field, or "".
func (f *Form) Value(name string) string {
	if f == nil {
		return ""
	}
	for _, field := range f.Fields {
		if field.Var == name && len(field.Values) > 0 {
			return field.Values[0]
		}
	}
	return ""
}

// IsError reports whether the stanza is an error response.
func (s *Stanza) IsError() bool {
	return s != nil && s.Type == TypeError
}

// HasNamespace reports whether the stanza or one of its direct children is
// qualified by ns.
func (s *Stanza) HasNamespace(ns string) bool {
	if s == nil || ns == "" {
		return false
	}
	if s.PubSub != nil && s.PubSub.Namespace == ns {
		return true
	}
	if s.Event != nil && s.Event.Namespace == ns {
		return true
	}
	if len(s.Headers) > 0 && ns == NSHeaders {
		return true
	}
	return false
}

// Entries returns every payload entry carried by the stanza in document order.
func (s *Stanza) Entries() []PayloadEntry {
	if s == nil {
		return nil
	}
	var entries []PayloadEntry
	if s.PubSub != nil && s.PubSub.Items != nil {
		entries = append(entries, s.PubSub.Items.Entries...)
	}
	if s.Event != nil && s.Event.Items != nil {
		entries = append(entries, s.Event.Items.Entries...)
	}
	return entries
}

// Condition returns the error condition of an error response, or "".
func (s *Stanza) Condition() string {
	if s == nil || s.Error == nil {
		return ""
	}
	return s.Error.Condition
}
