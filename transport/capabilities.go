package transport

// Capabilities describes how a backend delivers stanzas.
type Capabilities struct {
	// Name is the registered transport name.
	Name string

	// Ordered means stanzas published to one inbox topic are delivered in
	// publish order. Without it history results and live notifications for the
	// same query may interleave.
	Ordered bool

	// Durable means stanzas published while the recipient is offline are kept.
	Durable bool

	// Acknowledged means the subscriber acks every stanza and unacked stanzas
	// are redelivered.
	Acknowledged bool

	// Distributed means client and service may live in different processes.
	Distributed bool

	// MaxMessageSize is the largest encoded stanza in bytes (0 = unlimited).
	MaxMessageSize int64
}

// Fits reports whether an encoded stanza of size bytes can be published.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

// RequiresSharedProcess reports whether both ends of a conversation must run
// in the same process.
func (c Capabilities) RequiresSharedProcess() bool {
	return !c.Distributed
}

var (
	ChannelCapabilities = Capabilities{
		Name:         "channel",
		Ordered:      false,
		Acknowledged: true,
	}

	KafkaCapabilities = Capabilities{
		Name:           "kafka",
		Ordered:        true,
		Durable:        true,
		Acknowledged:   true,
		Distributed:    true,
		MaxMessageSize: 1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:         "rabbitmq",
		Ordered:      true,
		Durable:      true,
		Acknowledged: true,
		Distributed:  true,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		Ordered:        true,
		Distributed:    true,
		MaxMessageSize: 1048576,
	}

	AWSCapabilities = Capabilities{
		Name:           "aws",
		Durable:        true,
		Acknowledged:   true,
		Distributed:    true,
		MaxMessageSize: 262144,
	}

	HTTPCapabilities = Capabilities{
		Name:        "http",
		Distributed: true,
	}
)

// GetCapabilities returns the capabilities registered for a transport name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
