package sse

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriterEncodesDataLines(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.Send(NewStarted("battery life", "req-1")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := w.Send(NewCompleted(3, 0, 42)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	body := rec.Body.String()
	lines := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 events, got %d: %q", len(lines), body)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "data: ") {
			t.Fatalf("expected data: prefix, got %q", line)
		}
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if _, ok := payload["type"]; !ok {
			t.Errorf("event missing type field: %v", payload)
		}
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream content type, got %q", ct)
	}
}

func TestCollectorRecordsEvents(t *testing.T) {
	c := &Collector{}
	c.Send(NewStarted("q", "r1"))
	c.Send(NewProgress(StageEmbedding, 10, ""))
	if len(c.Events) != 2 {
		t.Fatalf("expected 2 collected events, got %d", len(c.Events))
	}
}
