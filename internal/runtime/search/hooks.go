package search

import (
	"time"

	loggingpkg "github.com/drblury/streamsearch/internal/runtime/logging"
)

// SubscribeInfo describes a subscription whose requests were issued.
type SubscribeInfo struct {
	Query        string
	ContextCount int
	// Replaced is true when the query was already registered.
	Replaced bool
	At       time.Time
}

// TeardownInfo describes a completed UnsubscribeAll.
type TeardownInfo struct {
	Subscriptions int
	Listeners     int
	Generation    uint64
}

// Hooks observe the subscription lifecycle. All hooks are optional; nil hooks
// are not called. Hooks run on the goroutine delivering the event and should
// not block.
type Hooks struct {
	// OnSubscribe is called once both requests of a Subscribe were sent.
	OnSubscribe func(SubscribeInfo)
	// OnListen is called when a live subscription is acknowledged and its
	// listener registered.
	OnListen func(query string)
	// OnItem is called for every archived and live item before the consumer.
	OnItem func(Event)
	// OnFailure is called for every failed exchange before the consumer.
	OnFailure func(Event)
	// OnTeardown is called after UnsubscribeAll cleared the registry.
	OnTeardown func(TeardownInfo)
}

// Merge combines two Hooks. The hooks from other are called after those from h.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnSubscribe: chain(h.OnSubscribe, other.OnSubscribe),
		OnListen:    chain(h.OnListen, other.OnListen),
		OnItem:      chain(h.OnItem, other.OnItem),
		OnFailure:   chain(h.OnFailure, other.OnFailure),
		OnTeardown:  chain(h.OnTeardown, other.OnTeardown),
	}
}

func chain[T any](a, b func(T)) func(T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(v T) {
		a(v)
		b(v)
	}
}

func call[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}

// LoggingHooks returns hooks that log the subscription lifecycle.
func LoggingHooks(logger loggingpkg.ServiceLogger) Hooks {
	logger = loggingpkg.OrNop(logger)
	return Hooks{
		OnSubscribe: func(info SubscribeInfo) {
			logger.Info("Subscription requested", loggingpkg.LogFields{
				loggingpkg.FieldQuery: info.Query,
				loggingpkg.FieldCount: info.ContextCount,
				"replaced":            info.Replaced,
			})
		},
		OnListen: func(query string) {
			logger.Info("Live subscription acknowledged", loggingpkg.LogFields{
				loggingpkg.FieldQuery: query,
			})
		},
		OnItem: func(ev Event) {
			logger.Trace("Item received", loggingpkg.LogFields{
				loggingpkg.FieldQuery:    ev.Query,
				loggingpkg.FieldArchived: ev.Archived(),
			})
		},
		OnFailure: func(ev Event) {
			logger.Error("Search request failed", ev.Err, loggingpkg.LogFields{
				loggingpkg.FieldQuery:     ev.Query,
				loggingpkg.FieldArchived:  ev.Archived(),
				loggingpkg.FieldCondition: ev.Response().Condition(),
			})
		},
		OnTeardown: func(info TeardownInfo) {
			logger.Info("Subscriptions torn down", loggingpkg.LogFields{
				loggingpkg.FieldCount: info.Subscriptions,
				"listeners":           info.Listeners,
			})
		},
	}
}
