package protocol

// Protocol namespaces used by the search service.
const (
	NSPubSub                 = "http://jabber.org/protocol/pubsub"
	NSPubSubEvent            = NSPubSub + "#event"
	NSPubSubSubscribeOptions = NSPubSub + "#subscribe_options"
	NSDataForms              = "jabber:x:data"
	NSResultSet              = "http://jabber.org/protocol/rsm"
	NSHeaders                = "http://jabber.org/protocol/shim"
	NSAtom                   = "http://www.w3.org/2005/Atom"
	NSStanzas                = "urn:ietf:params:xml:ns:xmpp-stanzas"

	NSSearchBase    = "http://api.collecta.com/ns/search-0"
	NSSearchResults = NSSearchBase + "#results"
	NSSearchError   = NSSearchBase + "#error"
	NSSearchImage   = "collecta-abstract-image"
)

// Data form field identifiers understood by the search service.
const (
	FieldFormType       = "FORM_TYPE"
	FieldAPIKey         = "x-collecta#apikey"
	FieldQuery          = "x-collecta#query"
	FieldRateLimit      = "x-collecta#rate_limit"
	FieldScoreThreshold = "x-collecta#score_threshold"

	// FormTypeSearchOptions is the FORM_TYPE of history fetch requests.
	FormTypeSearchOptions = "collecta#options"
)

// Default addressing of the search service.
const (
	DefaultService = "search.collecta.com"
	DefaultNode    = "search"
)

// EntryName is the element name of result items carried in payloads.
const EntryName = "entry"
