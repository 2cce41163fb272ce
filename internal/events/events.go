// Package events defines the progress notifications of update runs and the
// sinks delivering them to observers.
//
// Delivery is best-effort and in the order events are published.
package events

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/oshokin/swupdate/internal/domain/update"
)

// Type names a progress event.
type Type string

// Progress event types.
const (
	Updating        Type = "updating"
	LogLines        Type = "loglines"
	UpdateFailed    Type = "update_failed"
	Restarting      Type = "restarting"
	RestartFailed   Type = "restart_failed"
	RestartManually Type = "restart_manually"
	Success         Type = "success"
	Error           Type = "error"
)

// Final reports whether no further events follow in the same run.
// Restarting is not final: restart_failed may follow it.
func (t Type) Final() bool {
	switch t {
	case RestartFailed, RestartManually, Success, Error:
		return true
	case Updating, LogLines, UpdateFailed, Restarting:
		return false
	default:
		return false
	}
}

// Event is one progress notification.
type Event struct {
	Type Type           `json:"type"`
	Data map[string]any `json:"data"`
}

// Sink receives progress events.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, e Event) {
	f(ctx, e)
}

// Multi fans events out to every sink in order.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, e)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// NewUpdating announces an update attempt.
func NewUpdating(target, version, name string) Event {
	return Event{Type: Updating, Data: map[string]any{"target": target, "version": version, "name": name}}
}

// NewLogLines carries output lines of a target's update.
func NewLogLines(target, stream string, lines ...string) Event {
	return Event{Type: LogLines, Data: map[string]any{"target": target, "stream": stream, "lines": lines}}
}

// NewUpdateFailed reports a failed update attempt.
func NewUpdateFailed(target, version, name string, reason any) Event {
	return Event{Type: UpdateFailed, Data: map[string]any{
		"target": target, "version": version, "name": name, "reason": reason,
	}}
}

// NewRestart reports a restart phase: Restarting, RestartFailed or RestartManually.
func NewRestart(t Type, restart update.RestartType, results map[string]any) Event {
	return Event{Type: t, Data: map[string]any{"restart_type": string(restart), "results": results}}
}

// NewResult reports the end of a run: Success or Error.
func NewResult(t Type, results map[string]any) Event {
	return Event{Type: t, Data: map[string]any{"results": results}}
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink.
func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	events := r.Events()

	types := make([]Type, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}

	return types
}

// Transcript writes update output and run milestones into a plain log.
type Transcript struct {
	l *zap.SugaredLogger
}

// NewTranscript creates a sink writing to l.
func NewTranscript(l *zap.SugaredLogger) *Transcript {
	return &Transcript{l: l}
}

// Publish implements Sink.
func (t *Transcript) Publish(_ context.Context, e Event) {
	target, _ := e.Data["target"].(string)

	switch e.Type {
	case LogLines:
		lines, _ := e.Data["lines"].([]string)
		for _, line := range lines {
			t.l.Infof("%s> %s", target, strings.TrimRight(line, "\r\n"))
		}
	case Updating:
		t.l.Infof("%s> updating to %v", target, e.Data["version"])
	case UpdateFailed:
		t.l.Infof("%s> update failed: %v", target, e.Data["reason"])
	case Restarting, RestartFailed, RestartManually:
		t.l.Infof("%s: %v", e.Type, e.Data["restart_type"])
	case Success, Error:
		t.l.Infof("run finished: %s", e.Type)
	}
}
