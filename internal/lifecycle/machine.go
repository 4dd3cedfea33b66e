// Package lifecycle drives the Idle / Predicting / Suggesting state machine
// of one editing session.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/document"
	"github.com/hpungsan/fern/internal/pipeline"
	"github.com/hpungsan/fern/internal/suggestion"
)

// FailureNotice is shown to the user when a prediction fails. The full error
// goes to the log only.
const FailureNotice = "Fern: Something went wrong, cannot make a prediction. The full error is available in the log. Please check your settings."

// Kind names a lifecycle state.
type Kind int

const (
	Idle Kind = iota
	Predicting
	Suggesting
)

func (k Kind) String() string {
	switch k {
	case Predicting:
		return "predicting"
	case Suggesting:
		return "suggesting"
	default:
		return "idle"
	}
}

// Request is one prediction attempt.
type Request struct {
	ID      string           `json:"id"`
	Split   document.Split   `json:"split"`
	Context blockctx.Context `json:"-"`
}

// State is a snapshot of the machine. Request is nil in Idle; Text and
// SuggestionID are only set in Suggesting. Notice is set on the Idle state
// entered after a failed prediction.
type State struct {
	Kind         Kind
	Request      *Request
	Text         string
	SuggestionID string
	Notice       string
}

// Change describes what a document edit did.
type Change struct {
	CursorMoved  bool
	Typed        bool
	Deleted      bool
	TextInserted bool
}

// Any reports whether the change is relevant to an in-flight prediction.
func (c Change) Any() bool {
	return c.CursorMoved || c.Typed || c.Deleted || c.TextInserted
}

// Dispatcher starts predictions. *pipeline.Pipeline implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, split document.Split) *pipeline.Prediction
}

// Notifier surfaces user-visible messages.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

type flight struct {
	req  *Request
	pred *pipeline.Prediction
	done chan struct{}
}

// Machine serializes every transition behind one mutex. At most one
// prediction is in flight; a resolution for any other request is ignored.
type Machine struct {
	dispatcher Dispatcher
	notifier   Notifier
	logger     *slog.Logger

	mu      sync.Mutex
	state   State
	current *flight
	flights map[string]*flight
}

// Option configures a Machine.
type Option func(*Machine)

// WithNotifier sets where failure notices go.
func WithNotifier(n Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New returns an Idle machine.
func New(d Dispatcher, opts ...Option) *Machine {
	m := &Machine{
		dispatcher: d,
		notifier:   NotifierFunc(func(string) {}),
		logger:     slog.Default(),
		flights:    map[string]*flight{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start cancels any in-flight prediction and dispatches a new one.
func (m *Machine) Start(ctx context.Context, prefix, suffix string) (Request, error) {
	id, err := suggestion.NewID()
	if err != nil {
		return Request{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelLocked()

	split := document.New(prefix, suffix)
	pred := m.dispatcher.Dispatch(ctx, split)
	req := &Request{ID: id, Split: split, Context: pred.Context}
	f := &flight{req: req, pred: pred, done: make(chan struct{})}
	m.current = f
	m.flights[id] = f
	m.state = State{Kind: Predicting, Request: req}

	go func() {
		m.resolve(f, pred.Wait())
	}()

	return *req, nil
}

// DocumentChanged handles an edit. In Predicting, a relevant change cancels
// the request; in Suggesting, any change drops the suggestion.
func (m *Machine) DocumentChanged(c Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Kind {
	case Predicting:
		if c.Any() {
			m.cancelLocked()
			m.state = State{Kind: Idle}
		}
	case Suggesting:
		m.state = State{Kind: Idle}
	}
}

// CancelKey handles the cancel key. It reports whether the key was consumed.
func (m *Machine) CancelKey() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Kind {
	case Predicting:
		m.cancelLocked()
		m.state = State{Kind: Idle}
		return true
	case Suggesting:
		m.state = State{Kind: Idle}
		return true
	default:
		return false
	}
}

// Accept takes the current suggestion and returns to Idle.
func (m *Machine) Accept() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Kind != Suggesting {
		return State{}, false
	}
	accepted := m.state
	m.state = State{Kind: Idle}
	return accepted, true
}

// Await blocks until request id has been resolved or superseded, then
// returns the state at that moment.
func (m *Machine) Await(ctx context.Context, id string) (State, error) {
	m.mu.Lock()
	f := m.flights[id]
	m.mu.Unlock()

	if f != nil {
		select {
		case <-f.done:
		case <-ctx.Done():
			return m.State(), ctx.Err()
		}
	}
	return m.State(), nil
}

// StatusText describes the state for a status line.
func (m *Machine) StatusText() string {
	s := m.State()
	switch s.Kind {
	case Predicting:
		return fmt.Sprintf("Predicting for %s", s.Request.Context)
	case Suggesting:
		return fmt.Sprintf("Suggesting for %s", s.Request.Context)
	default:
		return "Idle"
	}
}

// cancelLocked cancels and retires the in-flight prediction, if any.
func (m *Machine) cancelLocked() {
	if m.current == nil {
		return
	}
	m.current.pred.Cancel()
	m.retireLocked(m.current)
}

func (m *Machine) retireLocked(f *flight) {
	if _, ok := m.flights[f.req.ID]; ok {
		delete(m.flights, f.req.ID)
		close(f.done)
	}
	if m.current == f {
		m.current = nil
	}
}

func (m *Machine) resolve(f *flight, o pipeline.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != f || m.state.Kind != Predicting {
		m.logger.Debug("ignoring stale prediction", "request", f.req.ID, "outcome", o.Kind.String())
		m.retireLocked(f)
		return
	}
	defer m.retireLocked(f)

	switch o.Kind {
	case pipeline.OutcomeFailed:
		m.logger.Error("prediction failed", "request", f.req.ID, "context", f.req.Context.String(), "error", o.Err)
		m.notifier.Notify(FailureNotice)
		m.state = State{Kind: Idle, Notice: FailureNotice}
	case pipeline.OutcomeAborted:
		m.state = State{Kind: Idle}
	default:
		if o.Text == "" {
			m.state = State{Kind: Idle}
			return
		}
		m.state = State{Kind: Suggesting, Request: f.req, Text: o.Text, SuggestionID: o.SuggestionID}
	}
}
