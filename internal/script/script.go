// Package script runs a user-supplied Lua post-processing hook.
//
// The script must define a global function
//
//	process(prefix, suffix, completion, context)
//
// returning the new completion string. Returning nil keeps the completion.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/document"
)

// DefaultTimeout bounds a single process call.
const DefaultTimeout = 500 * time.Millisecond

// HookName is the global function the script must define.
const HookName = "process"

// unsafeGlobals are removed from the base library after opening it.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// Processor is a completion post-processor backed by a Lua state.
// gopher-lua states are not goroutine-safe; mu serializes calls.
type Processor struct {
	name    string
	timeout time.Duration
	logger  *slog.Logger

	mu sync.Mutex
	L  *lua.LState
}

// Option configures a Processor.
type Option func(*Processor)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) { p.timeout = d }
}

// WithLogger sets the logger used to report script failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// Load reads and compiles the script at path.
func Load(path string, opts ...Option) (*Processor, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return LoadString(path, string(src), opts...)
}

// LoadString compiles src. name is used in error messages.
func LoadString(name, src string, opts ...Option) (*Processor, error) {
	p := &Processor{
		name:    name,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, g := range unsafeGlobals {
		L.SetGlobal(g, lua.LNil)
	}

	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("load script %s: %w", name, err)
	}
	if fn := L.GetGlobal(HookName); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("script %s: global %q is not a function (got %s)", name, HookName, fn.Type())
	}

	p.L = L
	return p, nil
}

// Run calls the hook and returns its result.
func (p *Processor) Run(split document.Split, completion string, c blockctx.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.L == nil {
		return "", fmt.Errorf("script %s: closed", p.name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.L.SetContext(ctx)
	defer p.L.RemoveContext()

	err := p.callWithRecovery(
		p.L.GetGlobal(HookName),
		lua.LString(split.Prefix),
		lua.LString(split.Suffix),
		lua.LString(completion),
		lua.LString(c.String()),
	)
	if err != nil {
		return "", fmt.Errorf("script %s: %w", p.name, err)
	}

	ret := p.L.Get(-1)
	p.L.Pop(1)
	switch v := ret.(type) {
	case lua.LString:
		return string(v), nil
	case *lua.LNilType:
		return completion, nil
	default:
		return "", fmt.Errorf("script %s: %s returned %s, want string", p.name, HookName, ret.Type())
	}
}

func (p *Processor) callWithRecovery(fn lua.LValue, args ...lua.LValue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return p.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
}

// Process runs the hook and falls back to the unmodified completion when the
// script fails.
func (p *Processor) Process(split document.Split, completion string, c blockctx.Context) string {
	out, err := p.Run(split, completion, c)
	if err != nil {
		p.logger.Error("post-process script failed", "script", p.name, "error", err)
		return completion
	}
	return out
}

// Close releases the Lua state.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.L != nil {
		p.L.Close()
		p.L = nil
	}
	return nil
}
