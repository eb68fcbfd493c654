package streamsearch

import (
	runtimepkg "github.com/drblury/streamsearch/internal/runtime"
	configpkg "github.com/drblury/streamsearch/internal/runtime/config"
	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	idspkg "github.com/drblury/streamsearch/internal/runtime/ids"
	jsoncodec "github.com/drblury/streamsearch/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
	metadatapkg "github.com/drblury/streamsearch/internal/runtime/metadata"
	nodepkg "github.com/drblury/streamsearch/internal/runtime/node"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
	"github.com/drblury/streamsearch/internal/runtime/search"
	transportpkg "github.com/drblury/streamsearch/internal/runtime/transport"
	newtransport "github.com/drblury/streamsearch/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Transport           = transportpkg.Transport
	TransportFactory    = transportpkg.Factory

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Subscriptions
	Options       = search.Options
	Event         = search.Event
	EventKind     = search.EventKind
	Subscription  = search.Subscription
	Hooks         = search.Hooks
	SubscribeInfo = search.SubscribeInfo
	TeardownInfo  = search.TeardownInfo

	// Protocol
	Stanza       = protocol.Stanza
	PayloadEntry = protocol.PayloadEntry
	AtomEntry    = protocol.AtomEntry

	// Search node
	Node        = nodepkg.Node
	NodeConfig  = nodepkg.Config
	Subscriber  = nodepkg.Subscriber
	Store       = nodepkg.Store
	MemoryStore = nodepkg.MemoryStore
	SQLStore    = nodepkg.SQLStore

	// Search metrics
	SearchMetrics         = runtimepkg.SearchMetrics
	QueryMetrics          = runtimepkg.QueryMetrics
	SearchMetricsSnapshot = runtimepkg.SearchMetricsSnapshot
	SubscriptionView      = runtimepkg.SubscriptionView

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	ConfigurationError    = errspkg.ConfigurationError
	ProtocolError         = errspkg.ProtocolError
	DispatchError         = errspkg.DispatchError
	Phase                 = errspkg.Phase

	// Transport capabilities
	Capabilities = transportpkg.Capabilities

	TransportBuilder  = newtransport.Builder
	TransportConfig   = newtransport.Config
	TransportRegistry = newtransport.Registry
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.LoadFile

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	LoggingHooks     = search.LoggingHooks
	MetricsHooks     = runtimepkg.MetricsHooks
	NewSearchMetrics = runtimepkg.NewSearchMetrics

	NewMemoryStore = nodepkg.NewMemoryStore
	OpenStore      = nodepkg.OpenStore
	OpenSQLStore   = nodepkg.OpenSQLStore

	NewAtomPayload = protocol.NewAtomPayload
	DecodeAtom     = protocol.DecodeAtom

	DefaultTransportFactory = transportpkg.DefaultFactory
	StaticTransportFactory  = transportpkg.StaticFactory
	GetCapabilities         = newtransport.GetCapabilities

	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode

	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrConnectionClosed   = errspkg.ErrConnectionClosed
	ErrStanzaTooLarge     = errspkg.ErrStanzaTooLarge
	ErrQueryRequired      = errspkg.ErrQueryRequired
	ErrAPIKeyRequired     = errspkg.ErrAPIKeyRequired
	ErrStoreRequired      = errspkg.ErrStoreRequired

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger  = loggingpkg.NewNopServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Event kinds.
const (
	EventArchived = search.EventArchived
	EventLive     = search.EventLive
	EventFailed   = search.EventFailed
)

// Request phases reported by ProtocolError.
const (
	PhaseHistory     = errspkg.PhaseHistory
	PhaseSubscribe   = errspkg.PhaseSubscribe
	PhaseUnsubscribe = errspkg.PhaseUnsubscribe
)

// Store drivers accepted by OpenStore.
const (
	StoreMemory   = nodepkg.DriverMemory
	StoreSQLite   = nodepkg.DriverSQLite
	StorePostgres = nodepkg.DriverPostgres
)

// Defaults of the search protocol.
const (
	DefaultService      = protocol.DefaultService
	DefaultNode         = protocol.DefaultNode
	DefaultContextCount = configpkg.DefaultContextCount
)
