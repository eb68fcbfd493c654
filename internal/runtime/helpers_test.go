package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/streamsearch/internal/runtime/config"
	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
	"github.com/drblury/streamsearch/internal/runtime/node"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
	transportpkg "github.com/drblury/streamsearch/internal/runtime/transport"
	channeltransport "github.com/drblury/streamsearch/transport/channel"
)

const (
	testNodeJID   = "search.example.org"
	testClientJID = "client@example.org/test"
	testAPIKey    = "secret"
)

func newTestSlogLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(newTestSlogLogger())
}

// sharedChannel returns a factory handing the same in-memory transport to
// every service built with it.
func sharedChannel(t *testing.T) transportpkg.Factory {
	t.Helper()
	shared := channeltransport.New(nil)
	t.Cleanup(func() { _ = shared.Close() })
	return transportpkg.StaticFactory(shared, channeltransport.Capabilities())
}

// startService builds a service on factory, runs it and closes it on cleanup.
func startService(t *testing.T, conf *configpkg.Config, factory transportpkg.Factory, deps ServiceDependencies) *Service {
	t.Helper()
	deps.TransportFactory = factory
	if deps.MetricsRegisterer == nil {
		deps.MetricsRegisterer = prometheus.NewRegistry()
	}
	svc, err := TryNewService(conf, newTestLogger(), context.Background(), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = svc.Close()
	})
	go func() { _ = svc.Start(ctx) }()
	select {
	case <-svc.Running():
	case <-time.After(2 * time.Second):
		t.Fatal("service did not start")
	}
	return svc
}

// startNode runs a service answering search requests from a memory store.
func startNode(t *testing.T, factory transportpkg.Factory, items ...protocol.AtomEntry) (*Service, *node.Node) {
	t.Helper()
	conf := &configpkg.Config{
		PubSubSystem: channeltransport.TransportName,
		JID:          testNodeJID,
		TopicPrefix:  "test",
		NodeAPIKeys:  []string{testAPIKey},
	}
	store := node.NewMemoryStore(0)
	for _, item := range items {
		require.NoError(t, store.Add(context.Background(), item))
	}

	svc := startService(t, conf, factory, ServiceDependencies{})
	n, err := svc.AttachNode(store)
	require.NoError(t, err)
	return svc, n
}

func clientConfig() *configpkg.Config {
	return &configpkg.Config{
		PubSubSystem: channeltransport.TransportName,
		JID:          testClientJID,
		Service:      testNodeJID,
		TopicPrefix:  "test",
	}
}
