// Package streamsearch is a client for real-time search streams. A query is
// registered once: the service answers with the most recent matching items,
// then pushes every new match as it is indexed, until the subscriptions are
// torn down.
//
// Requests and notifications are JSON stanzas modelled on XMPP publish-subscribe
// and travel over a Watermill transport (Kafka, RabbitMQ, AWS SNS/SQS, NATS,
// HTTP, or Go Channels) selected in Config. Each address consumes its own inbox
// topic, so the client only needs the address of the search service.
//
// A minimal setup fills Config, creates a Service, calls Start, and then
// Subscribe (callbacks) or Stream (channel) per query. UnsubscribeAll ends
// every subscription at once.
//
// # Events
//
// Every callback receives an Event tagged archived, live or failed. History
// and live delivery are independent: live items can arrive before the history
// response, and a failure of one exchange does not cancel the other.
//
// # Search node
//
// Service.AttachNode turns a Service into a reference search node backed by an
// in-memory, SQLite or PostgreSQL item store. cmd/searchnode runs one.
//
// # Hooks
//
// Hooks observe subscribe, listen, item, failure and teardown events. Logging
// hooks are always installed and metrics hooks are added when metrics are
// enabled; ServiceDependencies.Hooks adds custom ones.
package streamsearch
