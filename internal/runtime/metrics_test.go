package runtime

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/streamsearch/internal/runtime/errors"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
	"github.com/drblury/streamsearch/internal/runtime/search"
)

func TestSearchMetricsRecordLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSearchMetrics(reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	hooks := MetricsHooks(m)
	hooks.OnSubscribe(search.SubscribeInfo{Query: "golang", ContextCount: 10, At: time.Now()})
	hooks.OnListen("golang")
	hooks.OnItem(search.Event{Kind: search.EventArchived, Query: "golang"})
	hooks.OnItem(search.Event{Kind: search.EventLive, Query: "golang"})
	hooks.OnItem(search.Event{Kind: search.EventLive, Query: "golang"})

	failure := protocol.NewErrorResponse(protocol.NewIQ(protocol.TypeGet, "x"), "auth", "not-authorized", "")
	hooks.OnFailure(search.Event{
		Kind:  search.EventFailed,
		Query: "golang",
		Err:   &errspkg.ProtocolError{Phase: errspkg.PhaseHistory, Response: failure},
	})

	stats := m.QueryMetrics("golang")
	require.NotNil(t, stats)
	assert.Equal(t, uint64(1), stats.ArchivedItems)
	assert.Equal(t, uint64(2), stats.LiveItems)
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Equal(t, uint64(1), stats.Listeners)
	assert.False(t, stats.LastItemAt.IsZero())

	assert.InDelta(t, 2, testutil.ToFloat64(m.itemsTotal.WithLabelValues("live")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.failuresTotal.WithLabelValues("history", "not-authorized")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.activeListeners), 0)

	hooks.OnTeardown(search.TeardownInfo{Subscriptions: 1, Listeners: 1})
	snapshot := m.Snapshot()
	assert.Empty(t, snapshot.Queries)
	assert.Equal(t, uint64(1), snapshot.Subscriptions)
	assert.Equal(t, uint64(1), snapshot.Teardowns)
	assert.InDelta(t, 0, testutil.ToFloat64(m.activeListeners), 0)
	assert.Nil(t, m.QueryMetrics("golang"))
}

func TestSearchMetricsRegisterToleratesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, NewSearchMetrics(reg).Register())
	require.NoError(t, NewSearchMetrics(reg).Register())
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewSearchMetrics(prometheus.NewRegistry())
	m.RecordListen("golang")

	snapshot := m.Snapshot()
	snapshot.Queries["golang"].Listeners = 42
	assert.Equal(t, uint64(1), m.QueryMetrics("golang").Listeners)
}

func TestMetricsHooksNil(t *testing.T) {
	hooks := MetricsHooks(nil)
	assert.Nil(t, hooks.OnItem)
}
