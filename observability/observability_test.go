package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestLogrusJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus("debug", "json", &buf)
	log.With(String("op", "redact")).Info("done", Int("pages", 3), Error("cause", errors.New("boom")))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "done" || entry["op"] != "redact" || entry["cause"] != "boom" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if pages, ok := entry["pages"].(float64); !ok || pages != 3 {
		t.Fatalf("pages field missing: %v", entry)
	}
}

func TestLogrusLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus("warn", "text", &buf)
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filter not applied: %q", out)
	}
}

func TestSafeTrackSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	SafeTrack(ctx, nil, EventPDFMerged, nil)
	SafeTrack(ctx, TrackerFunc(func(context.Context, string, map[string]interface{}) error {
		return errors.New("offline")
	}), EventPDFMerged, nil)
	SafeTrack(ctx, TrackerFunc(func(context.Context, string, map[string]interface{}) error {
		panic("tracker bug")
	}), EventPDFMerged, nil)

	var got string
	SafeTrack(ctx, TrackerFunc(func(_ context.Context, event string, _ map[string]interface{}) error {
		got = event
		return nil
	}), EventPDFSplit, map[string]interface{}{"pages": 2})
	if got != EventPDFSplit {
		t.Fatalf("event not forwarded, got %q", got)
	}
}

func TestLogTracker(t *testing.T) {
	var buf bytes.Buffer
	tr := LogTracker{Logger: NewLogrus("debug", "json", &buf)}
	if err := tr.Track(context.Background(), EventImageStripped, map[string]interface{}{"format": "png"}); err != nil {
		t.Fatalf("track: %v", err)
	}
	if !strings.Contains(buf.String(), `"event":"image_metadata_stripped"`) {
		t.Fatalf("event missing from log: %q", buf.String())
	}
	if err := (LogTracker{}).Track(context.Background(), "x", nil); err == nil {
		t.Fatalf("expected error without logger")
	}
}
