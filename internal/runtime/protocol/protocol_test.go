package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStanzaWireRoundTripKeepsEntriesInOrder(t *testing.T) {
	first, err := NewAtomPayload(AtomEntry{ID: "1", Title: "first"})
	require.NoError(t, err)
	second, err := NewAtomPayload(AtomEntry{ID: "2", Title: "second"})
	require.NoError(t, err)

	msg := NewNotification(DefaultService, "client@example/res", DefaultNode,
		[]Header{{Name: FieldQuery, Value: "golang"}}, first, second)

	data, err := Marshal(msg)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, KindMessage, decoded.Kind)
	assert.True(t, decoded.HasNamespace(NSPubSubEvent))
	assert.True(t, decoded.HasNamespace(NSHeaders))
	assert.False(t, decoded.HasNamespace(NSPubSub))

	entries := decoded.Entries()
	require.Len(t, entries, 2)
	a, err := DecodeAtom(entries[0])
	require.NoError(t, err)
	b, err := DecodeAtom(entries[1])
	require.NoError(t, err)
	assert.Equal(t, "first", a.Title)
	assert.Equal(t, "second", b.Title)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"presence"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedStanza))

	_, err = Unmarshal([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformedStanza))
}

func TestMarshalNil(t *testing.T) {
	_, err := Marshal(nil)
	assert.ErrorIs(t, err, ErrMalformedStanza)
}

func TestFormValue(t *testing.T) {
	form := NewSubmitForm(FormTypeSearchOptions).
		With(FieldAPIKey, "secret").
		With(FieldQuery, "golang")

	assert.Equal(t, FormTypeSearchOptions, form.Value(FieldFormType))
	assert.Equal(t, "secret", form.Value(FieldAPIKey))
	assert.Equal(t, "golang", form.Value(FieldQuery))
	assert.Equal(t, "", form.Value("missing"))

	var nilForm *Form
	assert.Equal(t, "", nilForm.Value(FieldQuery))
}

func TestErrorResponseAddressing(t *testing.T) {
	req := NewIQ(TypeGet, DefaultService)
	req.ID = "abc"
	req.From = "client@example/res"

	resp := NewErrorResponse(req, "auth", "not-authorized", "bad key")
	assert.True(t, resp.IsError())
	assert.Equal(t, "abc", resp.ID)
	assert.Equal(t, DefaultService, resp.From)
	assert.Equal(t, "client@example/res", resp.To)
	assert.Equal(t, "not-authorized", resp.Condition())

	var nilStanza *Stanza
	assert.Equal(t, "", nilStanza.Condition())
	assert.Nil(t, nilStanza.Entries())
}

func TestAtomPayloadRoundTrip(t *testing.T) {
	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry, err := NewAtomPayload(AtomEntry{
		ID:        "urn:1",
		Title:     "Go 1.26 released",
		Summary:   "release notes",
		Link:      "https://go.dev/doc",
		Score:     0.75,
		Published: published,
	})
	require.NoError(t, err)
	assert.True(t, entry.IsAtom())

	decoded, err := DecodeAtom(entry)
	require.NoError(t, err)
	assert.Equal(t, "urn:1", decoded.ID)
	assert.Equal(t, 0.75, decoded.Score)
	assert.True(t, decoded.Published.Equal(published))
	assert.Contains(t, decoded.Text(), "release notes")
}

func TestDecodeAtomRejectsMistaggedEntry(t *testing.T) {
	_, err := DecodeAtom(PayloadEntry{Name: "entry", Namespace: "urn:other"})
	assert.ErrorIs(t, err, ErrMalformedStanza)
}
