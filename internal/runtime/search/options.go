package search

import (
	"fmt"

	"github.com/drblury/streamsearch/internal/runtime/config"
	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

// Config holds the manager-wide settings.
type Config struct {
	// Service is the address of the search service.
	Service string
	// Node is the pubsub node queries are issued against.
	Node string
	// MatchHeaderValue makes live listeners require the query header value to
	// equal their own query. By default the presence of the header is enough.
	MatchHeaderValue bool
	// LegacyUnvalidated sends subscriptions with an empty query or API key
	// instead of rejecting them.
	LegacyUnvalidated bool
	// DefaultContextCount is used when Options.ContextCount is zero.
	DefaultContextCount int
}

// ConfigFrom derives the manager settings from the runtime configuration.
func ConfigFrom(conf *config.Config) Config {
	if conf == nil {
		return Config{}
	}
	return Config{
		Service:             conf.ServiceAddress(),
		Node:                conf.NodeName(),
		MatchHeaderValue:    conf.MatchHeaderValue(),
		LegacyUnvalidated:   conf.LegacyUnvalidated,
		DefaultContextCount: conf.HistorySize(),
	}
}

func (c Config) service() string {
	if c.Service == "" {
		return protocol.DefaultService
	}
	return c.Service
}

func (c Config) node() string {
	if c.Node == "" {
		return protocol.DefaultNode
	}
	return c.Node
}

func (c Config) contextCount() int {
	if c.DefaultContextCount <= 0 {
		return config.DefaultContextCount
	}
	return c.DefaultContextCount
}

// Options configures a single subscription.
type Options struct {
	// APIKey is the credential sent with both requests. Required.
	APIKey string
	// RateLimit and ScoreThreshold are passed to the service unvalidated.
	// Zero leaves them unset.
	RateLimit      int
	ScoreThreshold float64
	// ContextCount is the number of historical items to fetch. Zero uses the
	// manager default.
	ContextCount int

	// Callback receives items and failures unless Success or Error is set.
	Callback func(Event)
	// Success receives archived and live items.
	Success func(Event)
	// Error receives failed exchanges.
	Error func(Event)
}

// handlers resolves the item and failure callbacks. Success and Error each
// override Callback independently.
func (o Options) handlers() (onItem, onError func(Event)) {
	onItem, onError = o.Callback, o.Callback
	if o.Success != nil {
		onItem = o.Success
	}
	if o.Error != nil {
		onError = o.Error
	}
	return onItem, onError
}

func (o Options) validate(query string) error {
	switch {
	case query == "":
		return &errspkg.ConfigurationError{Query: query, Err: errspkg.ErrQueryRequired}
	case o.APIKey == "":
		return &errspkg.ConfigurationError{Query: query, Err: errspkg.ErrAPIKeyRequired}
	case o.ContextCount < 0:
		return &errspkg.ConfigurationError{Query: query, Err: fmt.Errorf("context count cannot be negative, got %d", o.ContextCount)}
	}
	return nil
}
