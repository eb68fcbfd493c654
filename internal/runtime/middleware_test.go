package runtime

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	idspkg "github.com/drblury/streamsearch/internal/runtime/ids"
	metadatapkg "github.com/drblury/streamsearch/internal/runtime/metadata"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	t.Run("prefers the stanza id", func(t *testing.T) {
		msg := message.NewMessage(idspkg.CreateULID(), nil)
		msg.Metadata.Set(metadatapkg.KeyStanzaID, "iq-1")
		_, err := correlationIDMiddleware(func(m *message.Message) ([]*message.Message, error) {
			assert.Equal(t, "iq-1", m.Metadata.Get(metadatapkg.KeyCorrelationID))
			return nil, nil
		})(msg)
		require.NoError(t, err)
	})

	t.Run("generates a missing id", func(t *testing.T) {
		msg := message.NewMessage(idspkg.CreateULID(), nil)
		called := false
		_, err := correlationIDMiddleware(func(m *message.Message) ([]*message.Message, error) {
			called = true
			assert.NotEmpty(t, m.Metadata.Get(metadatapkg.KeyCorrelationID))
			return nil, nil
		})(msg)
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("keeps an existing id", func(t *testing.T) {
		msg := message.NewMessage(idspkg.CreateULID(), nil)
		msg.Metadata.Set(metadatapkg.KeyCorrelationID, "fixed")
		_, err := correlationIDMiddleware(func(m *message.Message) ([]*message.Message, error) {
			assert.Equal(t, "fixed", m.Metadata.Get(metadatapkg.KeyCorrelationID))
			return nil, nil
		})(msg)
		require.NoError(t, err)
	})
}

func TestTracerMiddlewarePropagatesSpanContext(t *testing.T) {
	mw := tracerMiddleware(noop.NewTracerProvider().Tracer("test"))
	msg := message.NewMessage(idspkg.CreateULID(), nil)
	boom := errors.New("boom")

	_, err := mw(func(m *message.Message) ([]*message.Message, error) {
		assert.NotNil(t, trace.SpanFromContext(m.Context()))
		return nil, boom
	})(msg)
	assert.ErrorIs(t, err, boom)
}

func TestLogMessagesMiddlewareCallsHandler(t *testing.T) {
	mw := logMessagesMiddleware(newTestLogger())
	called := false
	_, err := mw(func(*message.Message) ([]*message.Message, error) {
		called = true
		return nil, nil
	})(message.NewMessage(idspkg.CreateULID(), []byte(`{"kind":"iq"}`)))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRecovererMiddlewareTurnsPanicIntoError(t *testing.T) {
	mw := RecovererMiddleware().Middleware
	_, err := mw(func(*message.Message) ([]*message.Message, error) {
		panic("handler exploded")
	})(message.NewMessage(idspkg.CreateULID(), nil))
	assert.Error(t, err)
}

func TestRegisterMiddlewareRequiresMiddlewareOrBuilder(t *testing.T) {
	svc, err := TryNewService(clientConfig(), newTestLogger(), t.Context(), ServiceDependencies{
		TransportFactory:          sharedChannel(t),
		DisableDefaultMiddlewares: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	assert.Error(t, svc.RegisterMiddleware(MiddlewareRegistration{Name: "empty"}))
	assert.NoError(t, svc.RegisterMiddleware(MiddlewareRegistration{
		Name:    "disabled",
		Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, nil },
	}))
	assert.NoError(t, svc.RegisterMiddleware(CorrelationIDMiddleware()))
}

func TestMetricsMiddlewareDisabledByDefault(t *testing.T) {
	svc := &Service{Conf: clientConfig()}
	mw, err := MetricsMiddleware().Builder(svc)
	require.NoError(t, err)
	assert.Nil(t, mw)
}
