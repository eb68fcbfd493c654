package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/streamsearch/internal/runtime/config"
	"github.com/drblury/streamsearch/internal/runtime/connection"
	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
	"github.com/drblury/streamsearch/internal/runtime/node"
	"github.com/drblury/streamsearch/internal/runtime/search"
	transportpkg "github.com/drblury/streamsearch/internal/runtime/transport"
)

var connectionRun = func(conn *connection.Connection, ctx context.Context) error {
	return conn.Run(ctx)
}

// shutdownTimeout bounds the graceful shutdown of the HTTP servers.
const shutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators that the Service can use.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	// Hooks observe the subscription lifecycle in addition to the logging
	// and metrics hooks installed by the Service.
	Hooks search.Hooks
	// MetricsRegisterer receives the router and search collectors. Defaults
	// to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
}

// Service wires a transport, the stanza connection, the subscription manager
// and, optionally, a reference search node.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport transportpkg.Transport
	caps      transportpkg.Capabilities
	conn      *connection.Connection
	manager   *search.Manager

	node   *node.Node
	store  node.Store
	nodeMu sync.RWMutex

	metrics           *SearchMetrics
	metricsRegisterer prometheus.Registerer

	httpServers   map[int]*http.ServeMux
	running       []*http.Server
	httpServersMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewService constructs a Service for the supplied configuration. It panics
// when the service cannot be built; use TryNewService to get the error.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService constructs a Service and reports configuration, transport
// and middleware errors.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, err
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating search service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, caps, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	if !caps.Ordered {
		log.Info("Transport does not guarantee ordering; live items may arrive out of order", loggingpkg.LogFields{
			"transport": caps.Name,
		})
	}
	if caps.RequiresSharedProcess() && deps.TransportFactory == nil {
		log.Info("In-memory transport only reaches services sharing it; use a shared transport factory to reach a node", loggingpkg.LogFields{
			"transport": caps.Name,
		})
	}

	conn, err := connection.New(connection.Options{
		JID:          conf.JID,
		TopicPrefix:  conf.Prefix(),
		Capabilities: caps,
	}, transport.Publisher, transport.Subscriber, log)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	conn.Router().AddPlugin(plugin.SignalsHandler)

	s := &Service{
		Conf:              conf,
		Logger:            log,
		transport:         transport,
		caps:              caps,
		conn:              conn,
		metricsRegisterer: deps.MetricsRegisterer,
	}
	if s.metricsRegisterer == nil {
		s.metricsRegisterer = prometheus.DefaultRegisterer
	}

	hooks := search.LoggingHooks(log)
	if conf.MetricsEnabled {
		s.metrics = NewSearchMetrics(s.metricsRegisterer)
		if err := s.metrics.Register(); err != nil {
			_ = s.closeTransport()
			return nil, fmt.Errorf("register search metrics: %w", err)
		}
		hooks = hooks.Merge(MetricsHooks(s.metrics))
	}
	hooks = hooks.Merge(deps.Hooks)

	s.manager, err = search.NewManager(conn, search.ConfigFrom(conf), log, hooks)
	if err != nil {
		_ = s.closeTransport()
		return nil, err
	}

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = s.closeTransport()
		return nil, err
	}
	return s, nil
}

// Start runs the HTTP servers and consumes the inbox until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.StartWebUIServer()
	s.startHTTPServers()
	return connectionRun(s.conn, ctx)
}

// Running is closed once the inbox is being consumed.
func (s *Service) Running() chan struct{} {
	return s.conn.Running()
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

// JID returns the address of this service.
func (s *Service) JID() string { return s.conn.JID() }

// Connection exposes the stanza connection.
func (s *Service) Connection() *connection.Connection { return s.conn }

// Manager exposes the subscription manager.
func (s *Service) Manager() *search.Manager { return s.manager }

// Capabilities returns the capabilities of the transport in use.
func (s *Service) Capabilities() transportpkg.Capabilities { return s.caps }

// Metrics returns the search metrics, or nil when metrics are disabled.
func (s *Service) Metrics() *SearchMetrics { return s.metrics }

// Subscribe starts a streaming search. See search.Manager.Subscribe.
func (s *Service) Subscribe(ctx context.Context, query string, opts search.Options) error {
	return s.manager.Subscribe(ctx, query, opts)
}

// Stream starts a streaming search delivered on a channel.
func (s *Service) Stream(ctx context.Context, query string, opts search.Options) (<-chan search.Event, error) {
	return s.manager.Stream(ctx, query, opts)
}

// UnsubscribeAll tears every subscription down.
func (s *Service) UnsubscribeAll(ctx context.Context) {
	s.manager.UnsubscribeAll(ctx)
}

// Subscriptions lists the registered queries.
func (s *Service) Subscriptions() []search.Subscription {
	return s.manager.Subscriptions()
}

// AttachNode makes this service answer search requests addressed to its JID
// from store. The store is closed with the service.
func (s *Service) AttachNode(store node.Store) (*node.Node, error) {
	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()
	if s.node != nil {
		return nil, errors.New("a search node is already attached")
	}
	n, err := node.New(s.conn, store, node.Config{
		Node:     s.Conf.NodeName(),
		APIKeys:  s.Conf.NodeAPIKeys,
		MaxItems: s.Conf.HistorySize(),
	}, s.Logger)
	if err != nil {
		return nil, err
	}
	s.node = n
	s.store = store
	return n, nil
}

// Node returns the attached search node, or nil.
func (s *Service) Node() *node.Node {
	s.nodeMu.RLock()
	defer s.nodeMu.RUnlock()
	return s.node
}

// Close tears down the subscriptions and releases the connection, the
// transport, the item store and the HTTP servers.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.manager.UnsubscribeAll(ctx)
		errs := []error{s.stopHTTPServers(ctx), s.conn.Close(), s.transport.Close()}

		s.nodeMu.Lock()
		if s.node != nil {
			s.node.Detach()
			errs = append(errs, s.store.Close())
		}
		s.nodeMu.Unlock()

		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Service) closeTransport() error {
	return errors.Join(s.conn.Close(), s.transport.Close())
}

// RegisterHTTPHandler serves handler on pattern of the server listening on
// port. Servers start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.running = append(s.running, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}(srv)
	}
	s.httpServers = nil
}

func (s *Service) stopHTTPServers(ctx context.Context) error {
	s.httpServersMu.Lock()
	servers := s.running
	s.running = nil
	s.httpServersMu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}

// routerOf is used by middleware builders that need the underlying router.
func (s *Service) routerOf() *message.Router {
	return s.conn.Router()
}
