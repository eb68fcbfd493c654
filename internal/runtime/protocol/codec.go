package protocol

import (
	"errors"
	"fmt"

	"github.com/drblury/streamsearch/internal/runtime/jsoncodec"
)

// ErrMalformedStanza is returned when a payload cannot be decoded into a stanza.
var ErrMalformedStanza = errors.New("streamsearch: malformed stanza")

// Marshal encodes the stanza for the wire.
func Marshal(s *Stanza) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil stanza", ErrMalformedStanza)
	}
	return jsoncodec.Marshal(s)
}

// Unmarshal decodes a wire payload into a stanza.
func Unmarshal(data []byte) (*Stanza, error) {
	var s Stanza
	if err := jsoncodec.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedStanza, err)
	}
	switch s.Kind {
	case KindIQ, KindMessage:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedStanza, s.Kind)
	}
	return &s, nil
}
