// Package transports imports every built-in transport so it registers with
// the default registry.
package transports

import (
	_ "github.com/drblury/streamsearch/transport/aws"
	_ "github.com/drblury/streamsearch/transport/channel"
	_ "github.com/drblury/streamsearch/transport/http"
	_ "github.com/drblury/streamsearch/transport/kafka"
	_ "github.com/drblury/streamsearch/transport/nats"
	_ "github.com/drblury/streamsearch/transport/rabbitmq"
)
