package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestWatermillServiceLoggerDelegates(t *testing.T) {
	base := newRecordingWatermillLogger()
	logger := NewWatermillServiceLogger(base)

	logger.Debug("dbg", LogFields{FieldQuery: "golang"})
	logger.Info("info", nil)
	logger.Trace("trace", LogFields{"trace": true})
	logger.Error("oops", errors.New("boom"), LogFields{"failed": true})

	child := logger.With(LogFields{FieldJID: "client@example/res"})
	child.Info("child_info", nil)

	if len(*base.sink) != 6 {
		t.Fatalf("expected 6 log entries, got %d", len(*base.sink))
	}
	entries := *base.sink
	if entries[0].level != "debug" || entries[0].fields[FieldQuery] != "golang" {
		t.Fatalf("unexpected first entry: %#v", entries[0])
	}
	if entries[3].err == nil {
		t.Fatal("expected error to be forwarded")
	}
	if entries[4].level != "with" || entries[4].fields[FieldJID] != "client@example/res" {
		t.Fatalf("expected With to propagate fields, got %#v", entries[4])
	}
}

func TestWithEmptyFieldsReturnsSameLogger(t *testing.T) {
	logger := NewWatermillServiceLogger(newRecordingWatermillLogger())
	if logger.With(nil) != logger {
		t.Fatal("expected With(nil) to return the receiver")
	}
}

func TestConstructorsPanicOnNil(t *testing.T) {
	cases := map[string]func(){
		"slog":      func() { NewSlogServiceLogger(nil) },
		"watermill": func() { NewWatermillServiceLogger(nil) },
		"adapter":   func() { NewWatermillAdapter(nil) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Fatal("expected panic")
				}
			}()
			fn()
		})
	}
}

func TestWatermillAdapterDelegates(t *testing.T) {
	base := &recordingServiceLogger{}
	adapter := NewWatermillAdapter(base)

	adapter.Debug("dbg", watermill.LogFields{"k": "v"})
	adapter.Info("info", nil)
	adapter.Trace("trace", nil)
	adapter.Error("err", errors.New("boom"), nil)

	child := adapter.With(watermill.LogFields{"child": "yes"})
	child.Info("child_info", nil)

	if len(base.entries) != 4 {
		t.Fatalf("expected 4 delegated entries on base, got %d", len(base.entries))
	}
	typedChild, ok := child.(*serviceLoggerAdapter)
	if !ok {
		t.Fatal("expected service logger adapter child")
	}
	childBase := typedChild.base.(*recordingServiceLogger)
	if len(childBase.entries) != 2 || childBase.entries[0].fields["child"] != "yes" {
		t.Fatalf("expected child fields to be preserved, got %#v", childBase.entries)
	}
}

func TestWatermillAdapterUnwrapsWatermillLogger(t *testing.T) {
	base := newRecordingWatermillLogger()
	adapter := NewWatermillAdapter(NewWatermillServiceLogger(base))
	if adapter != watermill.LoggerAdapter(base) {
		t.Fatal("expected the wrapped watermill logger to be returned as is")
	}
}

func TestNopAndOrNop(t *testing.T) {
	nop := NewNopServiceLogger()
	nop.Info("ignored", LogFields{"k": "v"})
	nop.Error("ignored", errors.New("boom"), nil)

	if OrNop(nil) == nil {
		t.Fatal("expected a discarding logger for nil")
	}
	base := &recordingServiceLogger{}
	if OrNop(base) != base {
		t.Fatal("expected OrNop to keep a non-nil logger")
	}
}

func TestNewSlogServiceLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	logger := NewSlogServiceLogger(base)
	logger.Info("subscribed", LogFields{FieldQuery: "golang"})

	if !strings.Contains(buf.String(), "subscribed") || !strings.Contains(buf.String(), "query=golang") {
		t.Fatalf("unexpected slog output: %s", buf.String())
	}
}

type watermillEntry struct {
	level  string
	fields watermill.LogFields
	err    error
}

type recordingWatermillLogger struct {
	sink *[]watermillEntry
}

func newRecordingWatermillLogger() *recordingWatermillLogger {
	return &recordingWatermillLogger{sink: &[]watermillEntry{}}
}

func (r *recordingWatermillLogger) record(entry watermillEntry) {
	*r.sink = append(*r.sink, entry)
}

func (r *recordingWatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	r.record(watermillEntry{level: "error", fields: fields, err: err})
}

func (r *recordingWatermillLogger) Info(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "info", fields: fields})
}

func (r *recordingWatermillLogger) Debug(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "debug", fields: fields})
}

func (r *recordingWatermillLogger) Trace(msg string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "trace", fields: fields})
}

func (r *recordingWatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	child := &recordingWatermillLogger{sink: r.sink}
	child.record(watermillEntry{level: "with", fields: fields})
	return child
}

type loggedEntry struct {
	level  string
	msg    string
	fields LogFields
	err    error
}

type recordingServiceLogger struct {
	entries []loggedEntry
}

func (r *recordingServiceLogger) With(fields LogFields) ServiceLogger {
	return &recordingServiceLogger{entries: []loggedEntry{{level: "with", fields: fields}}}
}

func (r *recordingServiceLogger) Debug(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "debug", msg: msg, fields: fields})
}

func (r *recordingServiceLogger) Info(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "info", msg: msg, fields: fields})
}

func (r *recordingServiceLogger) Error(msg string, err error, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "error", msg: msg, fields: fields, err: err})
}

func (r *recordingServiceLogger) Trace(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "trace", msg: msg, fields: fields})
}
