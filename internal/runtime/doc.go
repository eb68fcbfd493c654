/*
Package runtime wires the streaming search client together.

# Architecture Overview

A Service owns one transport, one stanza connection consuming its inbox
topic, and one subscription manager. Requests to the search service are
published to the service's inbox; responses and live notifications come back
on the client's inbox and are routed by the connection.

# Package Structure

## Core Service (service.go)

The Service struct ties together:
  - the transport built from Config (or a custom TransportFactory)
  - the stanza connection and its Watermill router
  - the search.Manager holding the subscription registry
  - an optional reference search node (AttachNode)
  - HTTP servers for metrics and the web UI

## Middleware (middleware.go)

Router middleware applied to every inbound stanza:
  - CorrelationID: stanza ID or a fresh ULID
  - LogMessages: trace logging of payloads
  - Tracer: OpenTelemetry consumer span
  - Metrics: Watermill Prometheus router metrics
  - Recoverer: panic recovery

## Search Metrics (metrics.go)

SearchMetrics counts subscriptions, delivered items and failures. It is fed by
lifecycle hooks installed on the manager.

## WebUI (webui.go)

Read-only JSON API listing subscriptions, metric snapshots and, when a node is
attached, its subscribers.

# Sub-packages

  - config/: Service configuration with validation and YAML loading
  - connection/: Stanza routing over a Watermill publisher and subscriber
  - errors/: Sentinel errors and error types
  - ids/: ULID and JID generation
  - jsoncodec/: JSON encoding
  - logging/: Logger interface and adapters
  - metadata/: Message metadata utilities
  - node/: Reference search node and item stores
  - protocol/: Stanza model, builders and Atom entries
  - search/: Subscription manager
  - transport/: Transport factory

# Usage Example

	cfg := &streamsearch.Config{
		PubSubSystem: "nats",
		NATSURL:      "nats://localhost:4222",
	}

	svc := streamsearch.NewService(cfg, logger, ctx, streamsearch.ServiceDependencies{})
	go svc.Start(ctx)
	<-svc.Running()

	err := svc.Subscribe(ctx, "golang", streamsearch.Options{
		APIKey:   key,
		Callback: handleEvent,
	})
*/
package runtime
