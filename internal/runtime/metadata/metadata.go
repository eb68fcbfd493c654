package metadata

// Metadata represents the headers carried alongside a stanza on the transport.
type Metadata map[string]string

// Keys set on every stanza published by a connection.
const (
	KeyStanzaID      = "stanza_id"
	KeyStanzaKind    = "stanza_kind"
	KeyStanzaType    = "stanza_type"
	KeyFrom          = "stanza_from"
	KeyTo            = "stanza_to"
	KeyCorrelationID = "correlation_id"
)

// Clone returns a shallow copy of the metadata map. It never returns nil.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
// Empty values are skipped.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	if value != "" {
		cloned[key] = value
	}
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			md[pairs[i]] = pairs[i+1]
		}
	}
	return md
}

// CorrelationID returns the correlation identifier, falling back to the
// stanza ID.
func (m Metadata) CorrelationID() string {
	if id := m[KeyCorrelationID]; id != "" {
		return id
	}
	return m[KeyStanzaID]
}
