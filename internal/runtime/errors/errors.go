package errors

import (
	sterrors "errors"
	"fmt"

	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

var (
	ErrConfigRequired     = sterrors.New("streamsearch: configuration is required")
	ErrLoggerRequired     = sterrors.New("streamsearch: logger is required")
	ErrConnectionRequired = sterrors.New("streamsearch: connection is required")
	ErrPublisherRequired  = sterrors.New("streamsearch: publisher is required")
	ErrSubscriberRequired = sterrors.New("streamsearch: subscriber is required")
	ErrTopicRequired      = sterrors.New("streamsearch: topic is required")
	ErrStanzaRequired     = sterrors.New("streamsearch: stanza is required")
	ErrConnectionClosed   = sterrors.New("streamsearch: connection is closed")
	ErrStanzaTooLarge     = sterrors.New("streamsearch: stanza exceeds the transport message size")
	ErrQueryRequired      = sterrors.New("streamsearch: query is required")
	ErrAPIKeyRequired     = sterrors.New("streamsearch: api key is required")
	ErrStoreRequired      = sterrors.New("streamsearch: item store is required")
)

// ConfigValidationError wraps the joined errors returned by Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "streamsearch: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil for a nil error.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// ConfigurationError reports subscription options that cannot be sent. No
// request is issued when it is returned.
type ConfigurationError struct {
	Query string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("streamsearch: invalid subscription %q: %v", e.Query, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Phase names the exchange a protocol failure belongs to.
type Phase string

const (
	PhaseHistory     Phase = "history"
	PhaseSubscribe   Phase = "subscribe"
	PhaseUnsubscribe Phase = "unsubscribe"
)

// Archived reports whether failures in this phase are delivered with the
// archived flag set.
func (p Phase) Archived() bool {
	return p == PhaseHistory
}

// ProtocolError carries the raw error response of a failed exchange.
type ProtocolError struct {
	Phase    Phase
	Response *protocol.Stanza
}

// Archived reports whether the failure belongs to the history fetch.
func (e *ProtocolError) Archived() bool {
	return e.Phase.Archived()
}

func (e *ProtocolError) Error() string {
	condition := e.Response.Condition()
	if condition == "" {
		condition = "unknown"
	}
	if e.Response != nil && e.Response.Error != nil && e.Response.Error.Text != "" {
		return fmt.Sprintf("streamsearch: %s request failed: %s (%s)", e.Phase, condition, e.Response.Error.Text)
	}
	return fmt.Sprintf("streamsearch: %s request failed: %s", e.Phase, condition)
}

// DispatchError describes a notification entry that could not be delivered.
// Dispatch skips such entries.
type DispatchError struct {
	Query  string
	Index  int
	Reason string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("streamsearch: skipped entry %d for %q: %s", e.Index, e.Query, e.Reason)
}
