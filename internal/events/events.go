// Package events delivers staging notifications to pluggable sinks: the log, a redis
// channel, build manifests on an object store and mail.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Type names a notification
type Type string

// Notification types
const (
	RefUpdated          Type = "ref-updated"
	ChangeStaged        Type = "change-staged"
	ChangeUnstaged      Type = "change-unstaged"
	ChangeMerged        Type = "change-merged"
	ChangeReverted      Type = "change-reverted"
	ChangeStatusChanged Type = "change-status-changed"
	BuildCreated        Type = "build-created"
	BuildFailed         Type = "build-failed"
)

// ChangeInfo summarizes a change inside an event
type ChangeInfo struct {
	Number   int    `json:"number"`
	Key      string `json:"key"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
	PatchSet int    `json:"patchSet"`
	Commit   string `json:"commit"`
}

// Event is one notification. Ref events carry OldValue/NewValue; change events carry Changes.
type Event struct {
	Type      Type         `json:"type"`
	RequestID string       `json:"requestId,omitempty"`
	Actor     string       `json:"actor,omitempty"`
	Branch    string       `json:"branch,omitempty"`
	Ref       string       `json:"ref,omitempty"`
	OldValue  string       `json:"oldValue,omitempty"`
	NewValue  string       `json:"newValue,omitempty"`
	Build     string       `json:"build,omitempty"`
	Message   string       `json:"message,omitempty"`
	Changes   []ChangeInfo `json:"changes,omitempty"`
	// Email asks mail sinks to tell the change owners
	Email bool      `json:"email,omitempty"`
	Time  time.Time `json:"time"`
}

// Notifier receives events after the state they describe has been committed
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Sink delivers events somewhere
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Dispatcher fans events out to sinks. Delivery failures are logged and never
// reported back: the state change already happened.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given sinks
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Notify delivers ev to every sink
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, ev); err != nil {
			d.logger.Warn("event delivery failed",
				"sink", sink.Name(), "type", string(ev.Type), "request_id", ev.RequestID, "error", err)
		}
	}
}

// Discard drops every event
type Discard struct{}

// Notify does nothing
func (Discard) Notify(context.Context, Event) {}

// Recorder keeps delivered events in memory. It is both a Sink and a Notifier.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Name returns the sink name
func (r *Recorder) Name() string { return "recorder" }

// Deliver records ev
func (r *Recorder) Deliver(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Notify records ev
func (r *Recorder) Notify(ctx context.Context, ev Event) {
	_ = r.Deliver(ctx, ev)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
