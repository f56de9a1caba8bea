package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"log/slog"
)

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatKV,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithRID(Background(), "rid-123")
	ctx = WithEventMeta(ctx, 42, 9)
	ctx = WithState(ctx, "idle")

	log := slog.New(handler).With("component", "engine")
	LogEvent(ctx, log, slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=engine", "event=test.event", "status=ok", "rid=rid-123", "update_id=42", "chat_id=9", "state=idle"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithRID(Background(), "rid-json")
	ctx = WithEventMeta(ctx, 11, 33)

	log := slog.New(handler).With("component", "store.goals")
	LogEvent(ctx, log, slog.LevelError, "store.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	checks := map[string]string{
		"level":     "ERROR",
		"component": "store.goals",
		"event":     "store.failed",
		"status":    "fail",
		"rid":       "rid-json",
		"err":       "boom",
	}
	for key, want := range checks {
		if got, _ := payload[key].(string); got != want {
			t.Fatalf("%s = %v, want %s", key, payload[key], want)
		}
	}
	if got, _ := payload["chat_id"].(float64); int64(got) != 33 {
		t.Fatalf("chat_id = %v, want 33", payload["chat_id"])
	}
}

func TestDurationKeyNormalization(t *testing.T) {
	cases := map[string]string{
		"duration":      "duration_ms",
		"poll_duration": "poll_duration_ms",
		"elapsed_ms":    "elapsed_ms",
		"took":          "took_ms",
	}
	for in, want := range cases {
		if got := durationKey(in); got != want {
			t.Fatalf("durationKey(%s) = %s, want %s", in, got, want)
		}
	}
}
