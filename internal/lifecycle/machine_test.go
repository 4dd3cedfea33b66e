package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/fern/internal/backend"
	"github.com/hpungsan/fern/internal/config"
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/pipeline"
)

type reply struct {
	text string
	err  error
}

// gatedGenerator hands every stream to the test, which decides when and how
// it resolves.
type gatedGenerator struct {
	started      chan *gatedStream
	ignoreCancel bool
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{started: make(chan *gatedStream, 16)}
}

func (g *gatedGenerator) Generate(ctx context.Context, req backend.Request) (backend.Stream, error) {
	st := &gatedStream{ctx: ctx, req: req, release: make(chan reply, 1), ignoreCancel: g.ignoreCancel}
	g.started <- st
	return st, nil
}

func (g *gatedGenerator) next(t *testing.T) *gatedStream {
	t.Helper()
	select {
	case st := <-g.started:
		return st
	case <-time.After(5 * time.Second):
		t.Fatal("no request reached the backend")
		return nil
	}
}

type gatedStream struct {
	ctx          context.Context
	req          backend.Request
	release      chan reply
	ignoreCancel bool
	sent         bool
}

func (s *gatedStream) Next() (backend.Chunk, error) {
	if s.sent {
		return backend.Chunk{}, nil
	}
	var r reply
	if s.ignoreCancel {
		r = <-s.release
	} else {
		select {
		case r = <-s.release:
		case <-s.ctx.Done():
			return backend.Chunk{}, s.ctx.Err()
		}
	}
	if r.err != nil {
		return backend.Chunk{}, r.err
	}
	s.sent = true
	return backend.Chunk{Response: r.text, Done: true}, nil
}

func (s *gatedStream) Close() error { return nil }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func newMachine(t *testing.T, gen backend.Generator, opts ...Option) *Machine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Model = "test-model"
	p, err := pipeline.New(cfg, gen)
	require.NoError(t, err)
	return New(p, opts...)
}

func await(t *testing.T, m *Machine, id string) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := m.Await(ctx, id)
	require.NoError(t, err)
	return s
}

func TestStart_ToSuggesting(t *testing.T) {
	gen := newGatedGenerator()
	m := newMachine(t, gen)
	require.Equal(t, Idle, m.State().Kind)
	require.Equal(t, "Idle", m.StatusText())

	req, err := m.Start(context.Background(), "Hello ", "")
	require.NoError(t, err)
	require.Len(t, req.ID, 26)
	require.Equal(t, Predicting, m.State().Kind)
	require.Equal(t, "Predicting for Text", m.StatusText())

	gen.next(t).release <- reply{text: "world"}

	s := await(t, m, req.ID)
	require.Equal(t, Suggesting, s.Kind)
	require.Equal(t, "world", s.Text)
	require.Equal(t, req.ID, s.Request.ID)
	require.Equal(t, "Suggesting for Text", m.StatusText())

	accepted, ok := m.Accept()
	require.True(t, ok)
	require.Equal(t, "world", accepted.Text)
	require.Equal(t, Idle, m.State().Kind)

	_, ok = m.Accept()
	require.False(t, ok)
}

func TestStart_EmptyCompletionGoesIdle(t *testing.T) {
	gen := newGatedGenerator()
	m := newMachine(t, gen)

	req, err := m.Start(context.Background(), "Hello ", "")
	require.NoError(t, err)
	gen.next(t).release <- reply{text: ""}

	require.Equal(t, Idle, await(t, m, req.ID).Kind)
}

func TestStart_FailureNotifies(t *testing.T) {
	gen := newGatedGenerator()
	notes := &recordingNotifier{}
	m := newMachine(t, gen, WithNotifier(notes))

	req, err := m.Start(context.Background(), "Hello ", "")
	require.NoError(t, err)
	gen.next(t).release <- reply{err: errors.NewBackendStatus(500, "boom")}

	s := await(t, m, req.ID)
	require.Equal(t, Idle, s.Kind)
	require.Equal(t, FailureNotice, s.Notice)
	require.Equal(t, []string{FailureNotice}, notes.all())
}

func TestCancelKey(t *testing.T) {
	gen := newGatedGenerator()
	notes := &recordingNotifier{}
	m := newMachine(t, gen, WithNotifier(notes))

	require.False(t, m.CancelKey(), "cancel in Idle should not be consumed")

	req, err := m.Start(context.Background(), "Hello ", "")
	require.NoError(t, err)
	st := gen.next(t)

	require.True(t, m.CancelKey())
	require.Equal(t, Idle, m.State().Kind)

	select {
	case <-st.ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("backend request was not cancelled")
	}
	require.Equal(t, Idle, await(t, m, req.ID).Kind)
	require.Empty(t, notes.all(), "cancellation must not notify")
}

func TestDocumentChanged(t *testing.T) {
	gen := newGatedGenerator()
	m := newMachine(t, gen)

	_, err := m.Start(context.Background(), "Hello ", "")
	require.NoError(t, err)
	st := gen.next(t)

	m.DocumentChanged(Change{})
	require.Equal(t, Predicting, m.State().Kind, "an empty change keeps the prediction")

	m.DocumentChanged(Change{Typed: true})
	require.Equal(t, Idle, m.State().Kind)
	<-st.ctx.Done()
}

func TestDocumentChanged_DropsSuggestion(t *testing.T) {
	gen := newGatedGenerator()
	m := newMachine(t, gen)

	req, err := m.Start(context.Background(), "Hello ", "")
	require.NoError(t, err)
	gen.next(t).release <- reply{text: "world"}
	require.Equal(t, Suggesting, await(t, m, req.ID).Kind)

	m.DocumentChanged(Change{CursorMoved: true})
	require.Equal(t, Idle, m.State().Kind)
}

func TestStart_SingleFlight(t *testing.T) {
	gen := newGatedGenerator()
	gen.ignoreCancel = true
	m := newMachine(t, gen)

	first, err := m.Start(context.Background(), "first ", "")
	require.NoError(t, err)
	stFirst := gen.next(t)

	second, err := m.Start(context.Background(), "second ", "")
	require.NoError(t, err)
	stSecond := gen.next(t)

	require.Error(t, stFirst.ctx.Err(), "first request should be cancelled")

	// The superseded request resolves late with text; it must not win.
	stFirst.release <- reply{text: "stale"}
	require.Never(t, func() bool {
		s := m.State()
		return s.Kind != Predicting || s.Request.ID != second.ID
	}, 100*time.Millisecond, 10*time.Millisecond)

	// Awaiting a superseded request returns at once.
	await(t, m, first.ID)

	stSecond.release <- reply{text: "fresh"}
	s := await(t, m, second.ID)
	require.Equal(t, Suggesting, s.Kind)
	require.Equal(t, "fresh", s.Text)
}

func TestStart_ClassifiesContext(t *testing.T) {
	gen := newGatedGenerator()
	m := newMachine(t, gen)

	req, err := m.Start(context.Background(), "## Intro", "\n")
	require.NoError(t, err)
	require.Equal(t, "Heading", req.Context.String())
	require.Equal(t, "Predicting for Heading", m.StatusText())

	st := gen.next(t)
	require.Contains(t, st.req.System, "Markdown heading")
	m.CancelKey()
}

func TestAwait_ContextDone(t *testing.T) {
	gen := newGatedGenerator()
	m := newMachine(t, gen)

	req, err := m.Start(context.Background(), "Hello ", "")
	require.NoError(t, err)
	gen.next(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Await(ctx, req.ID)
	require.ErrorIs(t, err, context.Canceled)
	m.CancelKey()
}
