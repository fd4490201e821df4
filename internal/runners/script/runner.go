// Package script provides a runner whose behavior is written in Lua.
//
// A script defines two global functions:
//
//	function can_run(task)       -- returns true to claim task
//	function run(tasks, ctx)     -- runs a batch, returns its outcome
//
// run may return nothing or true for success, false for failure, one of
// the strings "ok", "failed", "aborted", or a table
// { aborted = bool, errors = bool, failed = { "task-id", ... } }.
// A Lua error fails the batch.
//
// Task tables carry id, name, kind and dependencies, plus module,
// incremental, files, configuration or command depending on the kind.
// The ctx table carries session_id, run_configuration and auto_run, and a
// generated(root, path) function reporting produced files.
//
// Scripts run sandboxed with the base, table, string and math libraries
// only, one call at a time.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/promise"
)

var (
	// ErrClosed is returned when calling into a closed runner.
	ErrClosed = errors.New("script runner is closed")

	// ErrNoRunFunction is returned when a script does not define run.
	ErrNoRunFunction = errors.New("script does not define run(tasks, ctx)")
)

// Runner is a projecttask.Runner backed by a Lua script.
type Runner struct {
	name    string
	timeout time.Duration
	log     logging.Logger

	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger receiving print and ptask.log output.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTimeout bounds every call into the script.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// New loads source as a runner named name.
func New(name, source string, opts ...Option) (*Runner, error) {
	r := &Runner{
		name: name,
		log:  logging.Nop(),
		L:    lua.NewState(lua.Options{SkipOpenLibs: true}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.WithComponent(r.log, "runner."+name)

	openSafeLibraries(r.L)
	r.installAPI()

	if err := r.L.DoString(source); err != nil {
		r.L.Close()
		return nil, fmt.Errorf("load script %s: %w", name, err)
	}
	if r.L.GetGlobal("run").Type() != lua.LTFunction {
		r.L.Close()
		return nil, fmt.Errorf("load script %s: %w", name, ErrNoRunFunction)
	}
	return r, nil
}

// Load reads a script file. The runner is named after the file.
func Load(path string, opts ...Option) (*Runner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return New(name, string(data), opts...)
}

func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (r *Runner) installAPI() {
	logFn := func(level string) lua.LGFunction {
		return func(L *lua.LState) int {
			parts := make([]string, 0, L.GetTop())
			for i := 1; i <= L.GetTop(); i++ {
				parts = append(parts, L.ToStringMeta(L.Get(i)).String())
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "debug":
				r.log.Debug(msg)
			case "warn":
				r.log.Warn(msg)
			case "error":
				r.log.Error(msg)
			default:
				r.log.Info(msg)
			}
			return 0
		}
	}

	r.L.SetGlobal("print", r.L.NewFunction(logFn("info")))
	r.L.SetGlobal("ptask", r.L.SetFuncs(r.L.NewTable(), map[string]lua.LGFunction{
		"debug": logFn("debug"),
		"info":  logFn("info"),
		"warn":  logFn("warn"),
		"error": logFn("error"),
	}))
}

// Name implements projecttask.Runner.
func (r *Runner) Name() string { return r.name }

// CanRun implements projecttask.Runner. A script without can_run claims
// nothing.
func (r *Runner) CanRun(_ *projecttask.TaskContext, task projecttask.Task) (bool, error) {
	var claimed bool
	err := r.call(context.Background(), func(L *lua.LState) error {
		fn := L.GetGlobal("can_run")
		if fn.Type() != lua.LTFunction {
			return nil
		}
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, taskTable(L, task)); err != nil {
			return err
		}
		claimed = lua.LVAsBool(L.Get(-1))
		L.Pop(1)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("script %s: can_run: %w", r.name, err)
	}
	return claimed, nil
}

// Run implements projecttask.Runner.
func (r *Runner) Run(ctx context.Context, tc *projecttask.TaskContext, tasks []projecttask.Task) *promise.Promise[*projecttask.Result] {
	p := promise.New[*projecttask.Result]()

	go func() {
		var ret lua.LValue = lua.LNil
		err := r.call(ctx, func(L *lua.LState) error {
			list := L.NewTable()
			for _, t := range tasks {
				list.Append(taskTable(L, t))
			}
			if err := L.CallByParam(lua.P{Fn: L.GetGlobal("run"), NRet: 1, Protect: true}, list, contextTable(L, tc)); err != nil {
				return err
			}
			ret = L.Get(-1)
			L.Pop(1)
			return nil
		})

		switch {
		case err != nil && ctx.Err() != nil:
			r.log.Info("script canceled", "error", err)
			p.Resolve(projecttask.AbortedResult())
		case err != nil:
			p.Reject(fmt.Errorf("script %s: run: %w", r.name, err))
		default:
			p.Resolve(resultFrom(ret, tasks, tc))
		}
	}()

	return p
}

// Close releases the Lua state.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.L.Close()
	}
}

// call runs fn with exclusive access to the state. ctx, bounded by the
// runner timeout, interrupts the script.
func (r *Runner) call(ctx context.Context, fn func(L *lua.LState) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("lua panic: %v", rec)
		}
	}()
	return fn(r.L)
}
