// Package http provides the HTTP transport. Stanzas are POSTed to
// <publisher URL>/<topic> and received on /<topic> of the local server.
package http

import (
	"context"
	nethttp "net/http"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/streamsearch/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.HTTPCapabilities)
}

// Build creates a new HTTP transport. The server starts with the first
// subscription.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	publisherURL := strings.TrimRight(cfg.GetHTTPPublisherURL(), "/")

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(TopicURL(publisherURL, topic), msg)
			},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		cfg.GetHTTPServerAddress(),
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: &pathSubscriber{inner: subscriber, logger: logger},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}

// TopicURL returns the URL a stanza for topic is posted to.
func TopicURL(baseURL, topic string) string {
	return strings.TrimRight(baseURL, "/") + TopicPath(topic)
}

// TopicPath returns the server route of topic.
func TopicPath(topic string) string {
	return "/" + strings.TrimLeft(topic, "/")
}

type httpServer interface {
	StartHTTPServer() error
}

// pathSubscriber maps topics to server routes and starts the server once the
// first route exists.
type pathSubscriber struct {
	inner  message.Subscriber
	logger watermill.LoggerAdapter
	start  sync.Once
}

func (s *pathSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := s.inner.Subscribe(ctx, TopicPath(topic))
	if err != nil {
		return nil, err
	}
	s.start.Do(func() {
		server, ok := s.inner.(httpServer)
		if !ok {
			return
		}
		go func() {
			if err := server.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
				s.logger.Error("HTTP subscriber server stopped", err, nil)
			}
		}()
	})
	return messages, nil
}

func (s *pathSubscriber) Close() error {
	return s.inner.Close()
}
