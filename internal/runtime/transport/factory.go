package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/streamsearch/internal/runtime/config"
	pubtransport "github.com/drblury/streamsearch/transport"

	// Register the built-in transports.
	_ "github.com/drblury/streamsearch/transport/transports"
)

// Transport is the publisher/subscriber pair stanzas are routed through.
type Transport = pubtransport.Transport

// Capabilities describes how a transport delivers stanzas.
type Capabilities = pubtransport.Capabilities

// Factory abstracts how the service obtains its transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, Capabilities, error)
}

// DefaultFactory returns the factory backed by the transport registry.
func DefaultFactory() Factory {
	return registryFactory{registry: pubtransport.DefaultRegistry}
}

// RegistryFactory returns a factory backed by reg.
func RegistryFactory(reg *pubtransport.Registry) Factory {
	return registryFactory{registry: reg}
}

type registryFactory struct {
	registry *pubtransport.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, Capabilities, error) {
	if conf == nil {
		return Transport{}, Capabilities{}, fmt.Errorf("config is required")
	}
	t, err := f.registry.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, Capabilities{}, err
	}
	return t, f.registry.GetCapabilities(conf.PubSubSystem), nil
}

// StaticFactory always returns t. It lets several services of one process
// share an in-memory transport.
func StaticFactory(t Transport, caps Capabilities) Factory {
	return staticFactory{transport: t, caps: caps}
}

type staticFactory struct {
	transport Transport
	caps      Capabilities
}

func (f staticFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, Capabilities, error) {
	if f.transport.Publisher == nil || f.transport.Subscriber == nil {
		return Transport{}, Capabilities{}, fmt.Errorf("static transport requires a publisher and a subscriber")
	}
	return f.transport, f.caps, nil
}
