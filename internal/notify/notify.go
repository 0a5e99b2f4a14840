// Package notify delivers lifecycle events to external collaborators.
// Delivery is fire-and-forget: a failing sink is logged and never rolls back
// the state transition that produced the event.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/dealyard/internal/logging"
)

// Kind names a lifecycle event.
type Kind string

const (
	OfferAccepted     Kind = "offer.accepted"
	OfferRejected     Kind = "offer.rejected"
	StepApproved      Kind = "step.approved"
	StepRejected      Kind = "step.rejected"
	StepReminder      Kind = "step.reminder"
	ContractCompleted Kind = "contract.completed"
	ContractCancelled Kind = "contract.cancelled"
)

// Severity returns the display severity for k.
func (k Kind) Severity() string {
	switch k {
	case OfferAccepted, StepApproved, ContractCompleted:
		return "success"
	case StepReminder:
		return "warning"
	case OfferRejected, StepRejected, ContractCancelled:
		return "error"
	}
	return "info"
}

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// SeverityColor maps a severity string to a sidebar color.
func SeverityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// Event is one notification addressed to a single recipient.
type Event struct {
	Kind       Kind
	Recipient  string // user ID
	Subject    string
	Body       string
	EntityID   string // offer, step, or contract ID
	ProposalID string
	ContractID string
	At         time.Time
}

// Fields returns the key/value pairs chat sinks render alongside the body.
func (e Event) Fields() [][2]string {
	var out [][2]string
	if e.ProposalID != "" {
		out = append(out, [2]string{"Proposal", e.ProposalID})
	}
	if e.ContractID != "" {
		out = append(out, [2]string{"Contract", e.ContractID})
	}
	if e.Recipient != "" {
		out = append(out, [2]string{"For", e.Recipient})
	}
	return out
}

// Notifier accepts events after their transition has committed.
type Notifier interface {
	Notify(ctx context.Context, events ...Event)
}

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Hub fans events out to every sink, logging failures.
type Hub struct {
	sinks []Sink
}

// NewHub returns a Hub delivering to sinks in order.
func NewHub(sinks ...Sink) *Hub {
	return &Hub{sinks: sinks}
}

// Add appends a sink.
func (h *Hub) Add(s Sink) {
	h.sinks = append(h.sinks, s)
}

// Len returns the number of configured sinks.
func (h *Hub) Len() int {
	return len(h.sinks)
}

// Notify delivers each event to every sink. Errors are logged, not returned.
func (h *Hub) Notify(ctx context.Context, events ...Event) {
	for _, ev := range events {
		if ev.At.IsZero() {
			ev.At = time.Now()
		}
		for _, s := range h.sinks {
			if err := s.Deliver(ctx, ev); err != nil {
				logging.FromContext(ctx).Warn("notify: delivery failed",
					"sink", s.Name(), "kind", string(ev.Kind), "recipient", ev.Recipient, "err", err)
			}
		}
	}
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, ...Event) {}

// LogSink writes each event as a structured log line.
type LogSink struct{}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (LogSink) Deliver(ctx context.Context, ev Event) error {
	logging.FromContext(ctx).Info("notify: event",
		"kind", string(ev.Kind), "recipient", ev.Recipient, "entity_id", ev.EntityID, "subject", ev.Subject)
	return nil
}

// Recorder keeps every delivered event in memory. Tests use it as a Sink or
// directly as a Notifier.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error // returned from Deliver when set
}

// Name implements Sink.
func (r *Recorder) Name() string { return "recorder" }

// Deliver implements Sink.
func (r *Recorder) Deliver(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Notify implements Notifier.
func (r *Recorder) Notify(ctx context.Context, events ...Event) {
	for _, ev := range events {
		r.Deliver(ctx, ev)
	}
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Reset clears recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Text renders an event as a single plain-text line.
func Text(ev Event) string {
	var b strings.Builder
	b.WriteString(ev.Subject)
	if ev.Body != "" {
		fmt.Fprintf(&b, ": %s", ev.Body)
	}
	return b.String()
}
