package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"keyline/internal/domain"
	"keyline/internal/ids"
)

type EventPayload map[string]any

// Log is an in-memory audit log of state changes. Every append is also
// written to Logger as one structured line.
type Log struct {
	Logger *slog.Logger
	Now    func() time.Time

	mu     sync.RWMutex
	events []domain.Event
}

func NewLog(logger *slog.Logger, now func() time.Time) *Log {
	return &Log{Logger: logger, Now: now}
}

func (l *Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Log) Append(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	at := l.now().UTC()
	l.mu.Lock()
	evt := domain.Event{
		ID:         int64(len(l.events)) + 1,
		UID:        ids.Sortable(at),
		TS:         at.Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}
	l.events = append(l.events, evt)
	l.mu.Unlock()

	if l.Logger != nil {
		attrs := []any{
			slog.Int64("event_id", evt.ID),
			slog.String("entity_kind", entityKind),
			slog.String("entity_id", entityID),
			slog.String("actor_id", actorID),
		}
		for k, v := range payload {
			attrs = append(attrs, slog.Any(k, v))
		}
		l.Logger.InfoContext(ctx, evtType, attrs...)
	}
	return nil
}

// After returns up to limit events with id greater than cursor, oldest first.
// A non-empty evtType keeps only events of that type or with that prefix followed by a dot.
func (l *Log) After(cursor int64, limit int, evtType string) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cursor < 0 {
		cursor = 0
	}
	var out []domain.Event
	for _, evt := range l.events[min(int(cursor), len(l.events)):] {
		if evtType != "" && evt.Type != evtType && !strings.HasPrefix(evt.Type, evtType+".") {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (l *Log) LatestID() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.events))
}
