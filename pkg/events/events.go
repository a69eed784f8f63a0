// Package events announces committed entity mutations to subscribers.
//
// Events follow the change-event envelope used by CDC tools: an operation
// code, the row before and after the change and where it came from.
package events

import (
	"context"
	"time"
)

// Operation is the kind of mutation.
type Operation string

const (
	OpCreate Operation = "c"
	OpUpdate Operation = "u"
	OpDelete Operation = "d"
)

// Source identifies the entity that changed.
type Source struct {
	Entity    string `json:"entity"`
	Table     string `json:"table"`
	RequestID string `json:"request_id,omitempty"`
}

type Event struct {
	Op     Operation `json:"op"`
	Source Source    `json:"source"`
	Before any       `json:"before"`
	After  any       `json:"after"`
	TsMs   int64     `json:"ts_ms"`
}

// New stamps an event with the current time.
func New(op Operation, src Source, before, after any) Event {
	return Event{
		Op:     op,
		Source: src,
		Before: before,
		After:  after,
		TsMs:   time.Now().UnixMilli(),
	}
}

// Publisher delivers events. Publish is called after the mutation committed;
// a failure is reported but does not undo the change.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

type requestIDKey struct{}

// WithRequestID attaches the id of the request causing a mutation to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
