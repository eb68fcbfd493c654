package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/streamsearch"
	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"--api-key", "k", "-q", "golang", "--context-count", "3", "nats"})
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "nats"}, f.queries)
	assert.Equal(t, 3, f.contextCount)

	_, err = parseFlags([]string{"--api-key", "k"})
	assert.Error(t, err)
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pubsub_system: channel\napi_key: file-key\nservice: search.example.org\n"), 0o600))

	conf, err := loadConfig(flags{configPath: path, apiKey: "flag-key", contextCount: 5})
	require.NoError(t, err)
	assert.Equal(t, "flag-key", conf.APIKey)
	assert.Equal(t, "search.example.org", conf.ServiceAddress())
	assert.Equal(t, 5, conf.HistorySize())

	_, err = loadConfig(flags{})
	assert.Error(t, err)
}

func TestNewRecord(t *testing.T) {
	entry, err := streamsearch.NewAtomPayload(streamsearch.AtomEntry{ID: "1", Title: "hello"})
	require.NoError(t, err)
	r := newRecord(streamsearch.Event{Kind: streamsearch.EventLive, Query: "q", Entry: entry})
	require.NotNil(t, r.Item)
	assert.Equal(t, "hello", r.Item.Title)

	resp := protocol.NewErrorResponse(protocol.NewIQ(protocol.TypeGet, "x"), "auth", "not-authorized", "bad key")
	r = newRecord(streamsearch.Event{
		Kind:  streamsearch.EventFailed,
		Query: "q",
		Err:   &streamsearch.ProtocolError{Phase: streamsearch.PhaseHistory, Response: resp},
	})
	assert.Equal(t, "not-authorized", r.Condition)
	assert.Equal(t, streamsearch.PhaseHistory, r.Phase)
	assert.Nil(t, r.Item)
}
