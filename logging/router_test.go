package logging_test

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"arena-rooms/server/logging"
	"arena-rooms/server/logging/sinks"
)

func waitForEvents(t *testing.T, sink *sinks.MemorySink, n int) []logging.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := sink.Events(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d events, got %d", n, len(sink.Events()))
	return nil
}

func TestRouterForwardsToEnabledSinks(t *testing.T) {
	enabled := sinks.NewMemorySink()
	disabled := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	cfg.Fields = map[string]any{"service": "arena"}
	now := time.Unix(1_700_000_000, 0)

	router, err := logging.NewRouter(cfg, logging.ClockFunc(func() time.Time { return now }), nil, map[string]logging.Sink{
		"memory": enabled,
		"spare":  disabled,
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Close(context.Background()) })

	router.Publish(context.Background(), logging.Event{Type: "test.one", RoomID: 3, Severity: logging.SeverityInfo})
	events := waitForEvents(t, enabled, 1)

	if events[0].RoomID != 3 || !events[0].Time.Equal(now) {
		t.Fatalf("unexpected event %+v", events[0])
	}
	if events[0].Extra["service"] != "arena" {
		t.Fatalf("expected config fields merged, got %v", events[0].Extra)
	}
	if len(disabled.Events()) != 0 {
		t.Fatalf("disabled sink received events")
	}
	if stats := router.Stats(); stats.EventsTotal != 1 || len(stats.Sinks) != 1 || stats.Sinks[0] != "memory" {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRouterDropsBelowMinimumSeverity(t *testing.T) {
	sink := sinks.NewMemorySink()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	cfg.MinimumSeverity = logging.SeverityWarn

	router, err := logging.NewRouter(cfg, nil, nil, map[string]logging.Sink{"memory": sink})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	router.Publish(context.Background(), logging.Event{Type: "test.debug", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "test.warn", Severity: logging.SeverityWarn})
	router.Publish(context.Background(), logging.Event{Severity: logging.SeverityError})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	events := sink.Events()
	if len(events) != 1 || events[0].Type != "test.warn" {
		t.Fatalf("expected only the warn event, got %+v", events)
	}

	router.Publish(context.Background(), logging.Event{Type: "test.late", Severity: logging.SeverityError})
	if len(sink.Events()) != 1 {
		t.Fatalf("closed router accepted an event")
	}
}

func TestRouterRejectsUnknownSinks(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"console", "kafka"}
	_, err := logging.NewRouter(cfg, nil, nil, map[string]logging.Sink{"console": sinks.NewMemorySink()})
	if err == nil || !strings.Contains(err.Error(), "kafka") {
		t.Fatalf("expected unknown sink error naming kafka, got %v", err)
	}
}

func TestRouterMetricsSnapshot(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = nil
	var fallback bytes.Buffer
	router, err := logging.NewRouter(cfg, nil, log.New(&fallback, "", 0), nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Close(context.Background()) })

	metrics := router.Metrics()
	metrics.TelemetryAdd("rooms_created_total", 2)
	metrics.TelemetryAdd("rooms_created_total", 1)
	metrics.TelemetryStore("connections", 7)

	snapshot := router.Stats().Metrics
	if snapshot["rooms_created_total"] != 3 || snapshot["connections"] != 7 {
		t.Fatalf("unexpected metrics %v", snapshot)
	}
}

func TestJSONSinkWritesOneObjectPerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := sinks.NewJSON(&buf, 0)
	event := logging.Event{
		Type:     "lifecycle.room_created",
		RoomID:   2,
		Time:     time.Unix(1_700_000_000, 0).UTC(),
		Actor:    logging.EntityRef{ID: "room-2", Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
	}
	if err := sink.Write(event); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := buf.String()
	for _, want := range []string{`"type":"lifecycle.room_created"`, `"roomId":2`, `"severity":"info"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %s in %s", want, line)
		}
	}
	if strings.Count(line, "\n") != 1 {
		t.Fatalf("expected a single line, got %q", line)
	}
}
