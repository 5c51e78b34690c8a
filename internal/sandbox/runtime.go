// Package sandbox runs untrusted plugin scripts in an embedded ECMAScript VM.
//
// A script sees no filesystem, process or network access of its own. It gets exactly
// three capabilities: the lx.utils helpers, lx.request (routed to a Requester) and
// lx.on to register action handlers. Every load and every call is bounded by a
// wall-clock timeout enforced through the VM's interrupt mechanism.
package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/NamanBalaji/tunedl/internal/errors"
	"github.com/NamanBalaji/tunedl/internal/logger"
	"github.com/NamanBalaji/tunedl/internal/proxy"
)

const DefaultTimeout = 15 * time.Second

var (
	ErrNoHandlers   = errors.New("script registered no action handler")
	ErrNoSuchAction = errors.New("no handler registered for action")
	ErrUnsettled    = errors.New("handler returned a promise that never settled")

	errInterrupted = errors.New("execution interrupted")
)

// Requester performs outbound HTTP on behalf of a script.
type Requester interface {
	Request(ctx context.Context, url string, opts proxy.Options) (*proxy.Response, error)
}

type Options struct {
	Timeout   time.Duration
	Requester Requester
}

// Runtime is one loaded script with its own VM. Calls into the VM are serialized.
type Runtime struct {
	id      string
	meta    Metadata
	timeout time.Duration
	req     Requester

	sem    chan struct{}
	closed atomic.Bool

	vm        *goja.Runtime
	wrapBuf   goja.Callable
	jsonParse goja.Callable
	handlers  map[string]goja.Callable
	generic   goja.Callable
	sources   []string
	timers    timerQueue
	callCtx   context.Context
}

// Load evaluates script once and captures the handlers it registers.
func Load(ctx context.Context, id, script string, opts Options) (*Runtime, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r := &Runtime{
		id:       id,
		meta:     ParseMetadata(script),
		timeout:  timeout,
		req:      opts.Requester,
		sem:      make(chan struct{}, 1),
		vm:       goja.New(),
		handlers: make(map[string]goja.Callable),
		callCtx:  context.Background(),
	}

	if err := r.install(); err != nil {
		return nil, errors.NewHandlerError(id, fmt.Errorf("failed to prepare sandbox: %w", err))
	}

	_, err := r.exec(ctx, id, func() (goja.Value, error) {
		if _, err := r.vm.RunScript(id, script); err != nil {
			return nil, err
		}
		return nil, r.timers.drain(r.callCtx)
	})
	if err != nil {
		logger.Errorf("Failed to load plugin %s: %v", id, err)
		return nil, err
	}

	r.collectGlobals()

	if len(r.handlers) == 0 && r.generic == nil {
		logger.Errorf("Plugin %s registered no handlers", id)
		return nil, errors.NewMissingHandler(id, ErrNoHandlers)
	}

	r.meta.Actions = r.actions()
	r.meta.Sources = r.sources

	logger.Infof("Loaded plugin %s (%s %s) actions=%v sources=%v", id, r.meta.Name, r.meta.Version, r.meta.Actions, r.meta.Sources)

	return r, nil
}

func (r *Runtime) install() error {
	parse, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("parse"))
	if !ok {
		return errors.New("JSON.parse unavailable")
	}
	r.jsonParse = parse

	v, err := r.vm.RunString(prelude)
	if err != nil {
		return err
	}

	setup, ok := goja.AssertFunction(v)
	if !ok {
		return errors.New("prelude did not evaluate to a function")
	}

	wrap, err := setup(goja.Undefined(), r.natives(), r.toJS(r.meta.info()))
	if err != nil {
		return err
	}

	r.wrapBuf, ok = goja.AssertFunction(wrap)
	if !ok {
		return errors.New("prelude did not return the buffer wrapper")
	}

	return nil
}

// collectGlobals picks up top-level functions named after an action, the older
// registration style that predates lx.on.
func (r *Runtime) collectGlobals() {
	names := make([]string, 0, len(actionAliases))
	for name := range actionAliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		canonical := actionAliases[name]
		if _, ok := r.handlers[canonical]; ok {
			continue
		}

		if fn, ok := goja.AssertFunction(r.vm.Get(name)); ok {
			r.handlers[canonical] = fn
		}
	}
}

func (r *Runtime) actions() []string {
	out := make([]string, 0, len(r.handlers)+1)
	for a := range r.handlers {
		out = append(out, a)
	}

	if r.generic != nil {
		out = append(out, genericEvent)
	}

	sort.Strings(out)

	return out
}

func (r *Runtime) ID() string {
	return r.id
}

func (r *Runtime) Metadata() Metadata {
	return r.meta
}

// Serves reports whether the script declared the platform tag through lx.send('inited').
func (r *Runtime) Serves(source string) bool {
	for _, s := range r.sources {
		if s == source {
			return true
		}
	}

	return false
}

// Handles reports whether action can be dispatched, directly or through the catch-all.
func (r *Runtime) Handles(action string) bool {
	_, ok := r.handlers[CanonicalAction(action)]
	return ok || r.generic != nil
}

// Close stops the runtime from accepting new calls. Calls already running finish.
func (r *Runtime) Close() {
	r.closed.Store(true)
}

// Invoke calls the handler for action with params and returns the exported result.
// params["source"], when set, is forwarded to a catch-all handler as the platform tag.
func (r *Runtime) Invoke(ctx context.Context, action string, params map[string]any) (any, error) {
	op := r.id + "." + action

	if r.closed.Load() {
		return nil, errors.NewUnknownPlugin(r.id)
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()

	if r.closed.Load() {
		return nil, errors.NewUnknownPlugin(r.id)
	}

	canonical := CanonicalAction(action)

	var arg any = params
	fn, ok := r.handlers[canonical]
	if !ok {
		if r.generic == nil {
			return nil, errors.NewHandlerError(op, fmt.Errorf("%w: %s", ErrNoSuchAction, action))
		}

		source, _ := params["source"].(string)
		fn = r.generic
		arg = map[string]any{"source": source, "action": lxAction(canonical), "info": params}
	}

	logger.Debugf("Invoking %s", op)

	v, err := r.exec(ctx, op, func() (goja.Value, error) {
		return fn(goja.Undefined(), r.toJS(arg))
	})
	if err != nil {
		logger.Warnf("Plugin call %s failed: %v", op, err)
		return nil, err
	}

	return export(v), nil
}

// exec runs fn under the call timeout and settles a returned promise. The VM is
// interrupted when the deadline passes.
func (r *Runtime) exec(ctx context.Context, op string, fn func() (goja.Value, error)) (goja.Value, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.callCtx = callCtx

	fired := make(chan struct{})
	stop := context.AfterFunc(callCtx, func() {
		r.vm.Interrupt(errInterrupted)
		close(fired)
	})

	defer func() {
		if !stop() {
			<-fired
		}
		r.vm.ClearInterrupt()
		r.timers.reset()
		r.callCtx = context.Background()
	}()

	v, err := fn()
	if err == nil {
		v, err = r.settle(callCtx, v)
	}

	if err != nil {
		return nil, r.classify(ctx, callCtx, op, err)
	}

	return v, nil
}

type rejection struct {
	reason string
}

func (e *rejection) Error() string {
	return e.reason
}

func (r *Runtime) settle(ctx context.Context, v goja.Value) (goja.Value, error) {
	for {
		p, ok := promiseOf(v)
		if !ok {
			return v, nil
		}

		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result(), nil
		case goja.PromiseStateRejected:
			return nil, &rejection{reason: describe(p.Result())}
		}

		ran, err := r.timers.runNext(ctx, false)
		if err != nil {
			return nil, err
		}

		if !ran {
			return nil, ErrUnsettled
		}
	}
}

func (r *Runtime) classify(parent, callCtx context.Context, op string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return errors.NewSandboxTimeout(op, fmt.Errorf("exceeded %s", r.timeout))
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return errors.NewHandlerError(op, errors.New(describe(exc.Value())))
	}

	return errors.NewHandlerError(op, err)
}

func promiseOf(v goja.Value) (*goja.Promise, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}

	p, ok := v.Export().(*goja.Promise)

	return p, ok
}

// describe renders a thrown or rejected value as a message.
func describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}

	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}

	return v.String()
}

// export converts a JS value to plain Go data: maps, slices, strings, numbers and bools.
func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	return v.Export()
}
