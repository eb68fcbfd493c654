// Package nats provides the NATS transport. "nats" uses core NATS subjects and
// "nats-jetstream" provisions a JetStream stream per inbox so stanzas sent
// while a client is offline are delivered when it comes back.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/streamsearch/transport"
)

const (
	// TransportName is the name of the core NATS transport.
	TransportName = "nats"
	// JetStreamTransportName is the name of the JetStream backed transport.
	JetStreamTransportName = "nats-jetstream"

	// ClientName identifies streamsearch connections on the NATS server.
	ClientName = "streamsearch"
	// DurablePrefix prefixes the JetStream consumer names.
	DurablePrefix = "streamsearch"

	reconnectWait = 2 * time.Second
)

// JetStreamCapabilities describes the JetStream backed transport.
var JetStreamCapabilities = transport.Capabilities{
	Name:           JetStreamTransportName,
	Ordered:        true,
	Durable:        true,
	Acknowledged:   true,
	Distributed:    true,
	MaxMessageSize: 1048576,
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.NATSCapabilities)
	transport.Register(JetStreamTransportName, BuildJetStream, JetStreamCapabilities)
}

// Build creates a core NATS transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return build(cfg, nats.JetStreamConfig{Disabled: true}, logger)
}

// BuildJetStream creates a JetStream backed transport.
func BuildJetStream(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return build(cfg, nats.JetStreamConfig{
		AutoProvision: true,
		TrackMsgId:    true,
		DurablePrefix: DurablePrefix,
	}, logger)
}

// ConnectOptions returns the nats.go options used for every connection.
func ConnectOptions() []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(ClientName),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(reconnectWait),
	}
}

func build(cfg transport.Config, js nats.JetStreamConfig, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: ConnectOptions(),
			Marshaler:   marshaler,
			JetStream:   js,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			NatsOptions: ConnectOptions(),
			Unmarshaler: marshaler,
			JetStream:   js,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of the core NATS transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
