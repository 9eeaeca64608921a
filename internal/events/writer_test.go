package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"keyline/internal/events"
)

func TestAppendAndTail(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	l := events.NewLog(logger, func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	for _, typ := range []string{"key.created", "key.checkout", "task.created", "key.return"} {
		if err := l.Append(ctx, typ, "key", "k1", "sv-default", events.EventPayload{"key_number": "KEY-001"}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	if l.LatestID() != 4 {
		t.Fatalf("expected latest id 4, got %d", l.LatestID())
	}

	page := l.After(1, 2, "")
	if len(page) != 2 || page[0].ID != 2 || page[1].ID != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
	keys := l.After(0, 0, "key")
	if len(keys) != 3 {
		t.Fatalf("expected 3 key events, got %d", len(keys))
	}
	if got := l.After(10, 5, ""); len(got) != 0 {
		t.Fatalf("cursor past end must return nothing")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(page[0].Payload), &payload); err != nil || payload["key_number"] != "KEY-001" {
		t.Fatalf("unexpected payload %q", page[0].Payload)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || !strings.Contains(lines[1], `"msg":"key.checkout"`) {
		t.Fatalf("expected one structured line per event, got %q", buf.String())
	}
}
