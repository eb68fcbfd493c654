// Package kafka provides the Kafka transport. Inbox topics are created with a
// single partition so stanzas for one address keep their order.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/streamsearch/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// InboxTopicDetail is used when the subscriber creates a missing inbox topic.
var InboxTopicDetail = sarama.TopicDetail{
	NumPartitions:     1,
	ReplicationFactor: 1,
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	transport.Register(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a new Kafka transport. Without a consumer group every
// subscriber reads its inbox from the newest offset.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	saramaConfig := kafka.DefaultSaramaSubscriberConfig()
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.ClientID = "streamsearch"

	detail := InboxTopicDetail
	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:                brokers,
			Unmarshaler:            kafka.DefaultMarshaler{},
			ConsumerGroup:          cfg.GetKafkaConsumerGroup(),
			OverwriteSaramaConfig:  saramaConfig,
			InitializeTopicDetails: &detail,
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

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
