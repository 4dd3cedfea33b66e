// Package pipeline prepares cursor-split text for the backend, dispatches a
// fill-in-the-middle request, and post-processes the completion.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/hpungsan/fern/internal/backend"
	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/config"
	"github.com/hpungsan/fern/internal/document"
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/script"
	"github.com/hpungsan/fern/internal/suggestion"
)

// Store persists completed suggestions and serves cache hits.
type Store interface {
	Lookup(key string) (*suggestion.Suggestion, error)
	Insert(s *suggestion.Suggestion) error
}

// Pipeline holds the ordered processors assembled from configuration.
// It is safe for concurrent use.
type Pipeline struct {
	model   string
	system  string
	options backend.Options
	debug   bool
	cache   bool

	pre  []PreProcessor
	post []PostProcessor

	gen    backend.Generator
	store  Store
	logger *slog.Logger
	hook   *script.Processor
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore enables suggestion history and, if configured, caching.
func WithStore(s Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New assembles a pipeline from cfg. gen may be nil when only Prepare and
// Finish are used.
func New(cfg *config.Config, gen backend.Generator, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		model:   cfg.Model,
		system:  cfg.SystemMessage,
		options: backendOptions(cfg.ModelOptions),
		debug:   cfg.Debug,
		cache:   cfg.CacheEnabled(),
		gen:     gen,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.DataviewStrippingEnabled() {
		p.pre = append(p.pre, DataviewRemover{})
	}
	if cfg.MathConversionEnabled() {
		p.pre = append(p.pre, MathConverter{})
	}
	// Limiting must come last so it never cuts through a native delimiter.
	p.pre = append(p.pre, LengthLimiter{PrefixLimit: cfg.PrefixCharLimit, SuffixLimit: cfg.SuffixCharLimit})

	if cfg.MathIndicatorSuppressionEnabled() {
		p.post = append(p.post, RemoveMathIndicators{})
	}
	if cfg.CodeIndicatorSuppressionEnabled() {
		p.post = append(p.post, RemoveCodeIndicators{})
	}
	if cfg.MathConversionEnabled() {
		p.post = append(p.post, MathReverter{})
	}
	if cfg.PostProcessScript != "" {
		hook, err := script.Load(cfg.PostProcessScript, script.WithLogger(p.logger))
		if err != nil {
			return nil, errors.NewInvalidConfig("post_process_script", err.Error())
		}
		p.hook = hook
		p.post = append(p.post, hook)
	}
	p.post = append(p.post, RemoveOverlap{}, RemoveWhitespace{})

	return p, nil
}

func backendOptions(m config.ModelOptions) backend.Options {
	deref := func(f *float64) float64 {
		if f == nil {
			return 0
		}
		return *f
	}
	return backend.Options{
		Temperature:      deref(m.Temperature),
		TopP:             deref(m.TopP),
		FrequencyPenalty: deref(m.FrequencyPenalty),
		PresencePenalty:  deref(m.PresencePenalty),
		NumPredict:       m.MaxTokens,
		NumCtx:           m.NumCtx,
	}
}

// Close releases the script hook, if any.
func (p *Pipeline) Close() error {
	if p.hook != nil {
		return p.hook.Close()
	}
	return nil
}

// Prepared is the result of running the pre-processors.
type Prepared struct {
	// Original is the split as received.
	Original document.Split
	// Split is the text that is sent to the backend.
	Split document.Split
	// Context is classified once from Original and reused by every step.
	Context blockctx.Context
	// Skip is set when a pre-processor rejected the cursor position.
	Skip bool
}

// Prepare classifies the context and applies the pre-processors.
func (p *Pipeline) Prepare(split document.Split) Prepared {
	prep := Prepared{
		Original: split,
		Split:    split,
		Context:  blockctx.Classify(split.Prefix, split.Suffix),
	}
	for _, pre := range p.pre {
		if pre.RemovesCursor(split) {
			prep.Skip = true
			return prep
		}
	}
	for _, pre := range p.pre {
		prep.Split = pre.Process(prep.Split, prep.Context)
	}
	return prep
}

// Finish applies the post-processors to a raw completion.
func (p *Pipeline) Finish(prep Prepared, completion string) string {
	for _, post := range p.post {
		completion = post.Process(prep.Split, completion, prep.Context)
	}
	return completion
}

// SystemMessageFor returns the system prompt sent for context c.
func (p *Pipeline) SystemMessageFor(c blockctx.Context) string {
	return SystemMessage(p.system, c)
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	// OutcomeOK carries a completion, possibly empty.
	OutcomeOK OutcomeKind = iota
	// OutcomeAborted means the prediction was cancelled. Not an error.
	OutcomeAborted
	// OutcomeFailed carries a backend or configuration error.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeAborted:
		return "aborted"
	default:
		return "failed"
	}
}

// Outcome is the resolution of a Prediction.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error

	// SuggestionID is the stored suggestion, when a store is configured.
	SuggestionID string
	// Cached is set when Text came from the suggestion cache.
	Cached bool
}

// OK returns a successful outcome.
func OK(text string) Outcome { return Outcome{Kind: OutcomeOK, Text: text} }

// Aborted returns a cancelled outcome.
func Aborted() Outcome { return Outcome{Kind: OutcomeAborted} }

// Failed returns a failed outcome.
func Failed(err error) Outcome { return Outcome{Kind: OutcomeFailed, Err: err} }

// Empty reports whether there is nothing to suggest.
func (o Outcome) Empty() bool {
	return o.Kind != OutcomeOK || o.Text == ""
}

// Prediction is an in-flight request. Cancel is idempotent and safe to call
// after the prediction resolved.
type Prediction struct {
	Context blockctx.Context

	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

// Cancel stops the request. A cancelled prediction resolves as Aborted
// unless it had already resolved.
func (pr *Prediction) Cancel() { pr.cancel() }

// Done is closed once the outcome is available.
func (pr *Prediction) Done() <-chan struct{} { return pr.done }

// Wait blocks until the prediction resolves.
func (pr *Prediction) Wait() Outcome {
	<-pr.done
	return pr.outcome
}

func resolved(c blockctx.Context, o Outcome) *Prediction {
	pr := &Prediction{Context: c, cancel: func() {}, done: make(chan struct{}), outcome: o}
	close(pr.done)
	return pr
}

// Dispatch prepares split and starts the backend request in the background.
func (p *Pipeline) Dispatch(ctx context.Context, split document.Split) *Prediction {
	prep := p.Prepare(split)
	if prep.Skip {
		return resolved(prep.Context, OK(""))
	}
	if p.model == "" {
		return resolved(prep.Context, Failed(errors.NewInvalidConfig("model", "must be set")))
	}
	if p.gen == nil {
		return resolved(prep.Context, Failed(errors.NewInternal(stderrors.New("pipeline has no backend"))))
	}

	ctx, cancel := context.WithCancel(ctx)
	pr := &Prediction{Context: prep.Context, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(pr.done)
		defer cancel()
		pr.outcome = p.run(ctx, prep)
	}()
	return pr
}

func (p *Pipeline) run(ctx context.Context, prep Prepared) Outcome {
	system := p.SystemMessageFor(prep.Context)
	key := suggestion.CacheKey(p.model, system, prep.Context.String(), prep.Split)

	if p.cache && p.store != nil {
		hit, err := p.store.Lookup(key)
		if err != nil {
			p.logger.Warn("suggestion cache lookup failed", "error", err)
		} else if hit != nil {
			p.logger.Debug("suggestion cache hit", "id", hit.ID, "context", prep.Context.String())
			return Outcome{Kind: OutcomeOK, Text: hit.Completion, SuggestionID: hit.ID, Cached: true}
		}
	}

	req := backend.Request{
		Model:   p.model,
		System:  system,
		Prompt:  prep.Split.Prefix,
		Suffix:  prep.Split.Suffix,
		Options: p.options,
	}
	if p.debug {
		p.logger.Debug("sending request",
			"model", req.Model,
			"context", prep.Context.String(),
			"system", req.System,
			"prompt", req.Prompt,
			"suffix", req.Suffix,
			"options", fmt.Sprintf("%+v", req.Options),
		)
	}

	raw, err := p.generate(ctx, req)
	if err != nil {
		if isCancellation(ctx, err) {
			if p.debug {
				p.logger.Debug("prediction aborted", "context", prep.Context.String())
			}
			return Aborted()
		}
		return Failed(err)
	}

	completion := p.Finish(prep, raw)
	if p.debug {
		p.logger.Debug("final response", "raw", raw, "completion", completion)
	}

	out := OK(completion)
	if completion != "" && p.store != nil {
		s, err := suggestion.New(key, p.model, prep.Context.String(), prep.Split, completion)
		if err == nil {
			err = p.store.Insert(s)
		}
		if err != nil {
			p.logger.Warn("failed to record suggestion", "error", err)
		} else {
			out.SuggestionID = s.ID
		}
	}
	return out
}

func (p *Pipeline) generate(ctx context.Context, req backend.Request) (string, error) {
	st, err := p.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	defer st.Close()
	return backend.Collect(st)
}

// isCancellation separates a caller cancel from a timeout or transport error.
func isCancellation(ctx context.Context, err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(ctx.Err(), context.Canceled)
}
