package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/projecttask"
	"github.com/dshills/projecttask/internal/promise"
)

// DefaultName is the runner name used when none is given.
const DefaultName = "process"

// Runner runs tasks as processes. It implements projecttask.Runner.
type Runner struct {
	name     string
	cfg      Config
	resolver *Resolver
	matchers *Matchers
	policy   *compiledPolicy
	sem      *semaphore.Weighted
	log      logging.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// Option configures a Runner.
type Option func(*Runner)

// WithName overrides the runner name.
func WithName(name string) Option {
	return func(r *Runner) {
		if name != "" {
			r.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithResolver replaces the variable resolver.
func WithResolver(res *Resolver) Option {
	return func(r *Runner) {
		if res != nil {
			r.resolver = res
		}
	}
}

// WithMatchers replaces the problem matcher registry.
func WithMatchers(ms *Matchers) Option {
	return func(r *Runner) {
		if ms != nil {
			r.matchers = ms
		}
	}
}

// NewRunner creates a Runner. It fails when a policy pattern does not
// compile.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	defaults := DefaultConfig()
	if cfg.Shell == "" {
		cfg.Shell = defaults.Shell
	}
	if len(cfg.ShellArgs) == 0 {
		cfg.ShellArgs = defaults.ShellArgs
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}

	policy, err := cfg.Policy.compile()
	if err != nil {
		return nil, err
	}

	r := &Runner{
		name:     DefaultName,
		cfg:      cfg,
		resolver: NewResolver(),
		matchers: NewMatchers(),
		policy:   policy,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.WithComponent(r.log, "runner."+r.name)
	return r, nil
}

// Name implements projecttask.Runner.
func (r *Runner) Name() string { return r.name }

// Resolver returns the variable resolver.
func (r *Runner) Resolver() *Resolver { return r.resolver }

// Matchers returns the problem matcher registry.
func (r *Runner) Matchers() *Matchers { return r.matchers }

// AddListener registers an execution listener.
func (r *Runner) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// CanRun implements projecttask.Runner.
func (r *Runner) CanRun(_ *projecttask.TaskContext, task projecttask.Task) (bool, error) {
	spec, _ := r.commandTask(task)
	return spec != nil, nil
}

// Run implements projecttask.Runner. The commands of the batch run
// concurrently, bounded by Config.MaxConcurrent.
func (r *Runner) Run(ctx context.Context, tc *projecttask.TaskContext, tasks []projecttask.Task) *promise.Promise[*projecttask.Result] {
	p := promise.New[*projecttask.Result]()

	go func() {
		execs := make([]*Execution, len(tasks))
		var g errgroup.Group
		for i, task := range tasks {
			g.Go(func() error {
				if err := r.sem.Acquire(ctx, 1); err != nil {
					e := newExecution(task.ID(), nil)
					e.finish(StateCanceled, err)
					execs[i] = e
					return nil
				}
				defer r.sem.Release(1)
				execs[i] = r.runTask(ctx, tc, task)
				return nil
			})
		}
		_ = g.Wait()

		p.Resolve(r.summarize(ctx, tc, execs))
	}()

	return p
}

func (r *Runner) summarize(ctx context.Context, tc *projecttask.TaskContext, execs []*Execution) *projecttask.Result {
	res := &projecttask.Result{
		Aborted: ctx.Err() != nil,
		States:  make(map[projecttask.TaskID]projecttask.TaskState, len(execs)),
		Context: tc,
	}
	for _, e := range execs {
		failed := e.State() == StateFailed || e.HasErrorProblems()
		canceled := e.State() == StateCanceled
		if failed {
			res.HasErrors = true
		}
		if canceled {
			res.Aborted = true
		}
		res.States[e.TaskID] = projecttask.StateFor(canceled, failed)
	}
	ReportFor(tc).add(execs...)
	return res
}

// commandTask returns the command a task runs as, plus the task specific
// variables. It returns nil for tasks the runner does not handle.
func (r *Runner) commandTask(task projecttask.Task) (*CommandTask, map[string]string) {
	derived := func(command string) *CommandTask {
		if command == "" {
			return nil
		}
		ct := NewCommandTask(task.ID(), command)
		ct.SetName(task.Name())
		ct.ProblemMatcher = r.cfg.ProblemMatcher
		return ct
	}

	switch t := task.(type) {
	case *CommandTask:
		return t, nil
	case *projecttask.ModuleBuildTask:
		command := r.cfg.BuildCommand
		if !t.Incremental && r.cfg.RebuildCommand != "" {
			command = r.cfg.RebuildCommand
		}
		return derived(command), map[string]string{"module": t.Module}
	case *projecttask.FilesBuildTask:
		quoted := make([]string, len(t.Files))
		for i, f := range t.Files {
			quoted[i] = shellQuote(f)
		}
		return derived(r.cfg.CompileCommand), map[string]string{"files": strings.Join(quoted, " ")}
	case *projecttask.RunConfigurationTask:
		return derived(r.cfg.RunConfigurations[t.Configuration]), map[string]string{"configuration": t.Configuration}
	default:
		return nil, nil
	}
}

func (r *Runner) runTask(ctx context.Context, tc *projecttask.TaskContext, task projecttask.Task) *Execution {
	spec, extra := r.commandTask(task)
	e := newExecution(task.ID(), NewOutput(r.cfg.MaxOutputLines, r.cfg.OutputBufferSize))
	if spec == nil {
		e.finish(StateFailed, fmt.Errorf("%s runner cannot run %T", r.name, task))
		r.notifyFinished(e)
		return e
	}

	scope := &Scope{
		WorkspaceFolder: r.cfg.WorkingDir,
		TaskID:          string(task.ID()),
		TaskName:        task.Name(),
		SessionID:       tc.SessionID,
		Extra:           extra,
	}
	e.Command = r.commandLine(spec, scope)
	e.Dir = r.workDir(spec, scope)

	if err := r.policy.check(e.Command); err != nil {
		r.log.Warn("command refused", "task", task.ID(), "error", err)
		e.finish(StateFailed, err)
		r.notifyFinished(e)
		return e
	}

	backoff := retry.WithMaxRetries(uint64(max(r.cfg.Retries, 0)), retry.NewExponential(r.cfg.RetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return r.attempt(ctx, e, spec, scope)
	})

	switch {
	case ctx.Err() != nil:
		e.finish(StateCanceled, ctx.Err())
	case err != nil:
		e.finish(StateFailed, err)
	default:
		e.finish(StateSucceeded, nil)
		for _, out := range spec.Outputs {
			tc.FileGenerated(e.Dir, r.resolver.Resolve(out, scope))
		}
	}

	r.log.Debug("command finished",
		"task", task.ID(), "state", e.State(), "exit", e.ExitCode(),
		"attempts", e.Attempts(), "duration", e.Duration())
	r.notifyFinished(e)
	return e
}

// attempt starts the command once. A non-zero exit is retryable.
func (r *Runner) attempt(ctx context.Context, e *Execution, spec *CommandTask, scope *Scope) error {
	cmd, err := r.command(ctx, spec, scope, e.Dir)
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	matcher, _ := r.matchers.Get(spec.ProblemMatcher)

	e.begin()
	r.notifyStarted(e)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	var wg sync.WaitGroup
	for stream, rd := range map[Stream]io.Reader{Stdout: stdout, Stderr: stderr} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.consume(e, rd, stream, matcher)
		}()
	}
	wg.Wait()

	err = cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		e.setExitCode(exitErr.ExitCode())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Debug("command failed", "task", e.TaskID, "exit", exitErr.ExitCode())
		return retry.RetryableError(fmt.Errorf("%s: exit status %d", e.TaskID, exitErr.ExitCode()))
	case err != nil:
		return err
	}
	e.setExitCode(0)
	return nil
}

func (r *Runner) consume(e *Execution, rd io.Reader, stream Stream, matcher *Matcher) {
	err := e.output.Consume(rd, stream, func(line OutputLine) {
		r.notifyOutput(e, line)
		if matcher == nil {
			return
		}
		if p, ok := matcher.Match(line.Content); ok {
			e.addProblem(p)
			r.notifyProblem(e, p)
		}
	})
	if err != nil {
		r.log.Warn("output truncated", "task", e.TaskID, "stream", stream, "error", err)
		_, _ = io.Copy(io.Discard, rd)
	}
}

func (r *Runner) commandLine(spec *CommandTask, scope *Scope) string {
	parts := []string{r.resolver.Resolve(spec.Command, scope)}
	for _, arg := range spec.Args {
		parts = append(parts, shellQuote(r.resolver.Resolve(arg, scope)))
	}
	return strings.Join(parts, " ")
}

func (r *Runner) workDir(spec *CommandTask, scope *Scope) string {
	if spec.Cwd != "" {
		return r.resolver.Resolve(spec.Cwd, scope)
	}
	return r.cfg.WorkingDir
}

func (r *Runner) command(ctx context.Context, spec *CommandTask, scope *Scope, dir string) (*exec.Cmd, error) {
	command := strings.TrimSpace(r.resolver.Resolve(spec.Command, scope))
	if command == "" {
		return nil, errors.New("empty command")
	}
	args := make([]string, len(spec.Args))
	for i, arg := range spec.Args {
		args[i] = r.resolver.Resolve(arg, scope)
	}

	var cmd *exec.Cmd
	switch spec.kind() {
	case KindProcess:
		cmd = exec.CommandContext(ctx, command, args...)
	default:
		line := command
		for _, arg := range args {
			line += " " + shellQuote(arg)
		}
		cmd = exec.CommandContext(ctx, r.cfg.Shell, slices.Concat(r.cfg.ShellArgs, []string{line})...)
	}

	cmd.Dir = dir
	cmd.Env = r.environ(spec, scope)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
	return cmd, nil
}

// environ merges os.Environ, Config.Env and the task Env, later entries
// winning, and returns them sorted.
func (r *Runner) environ(spec *CommandTask, scope *Scope) []string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	for k, v := range r.cfg.Env {
		env[k] = r.resolver.Resolve(v, scope)
	}
	for k, v := range spec.Env {
		env[k] = r.resolver.Resolve(v, scope)
	}
	env["PTASK_SESSION_ID"] = scope.SessionID
	env["PTASK_TASK_ID"] = scope.TaskID

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// shellQuote single-quotes s unless it only holds safe characters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := strings.IndexFunc(s, func(c rune) bool {
		return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
			c == '-' || c == '_' || c == '.' || c == '/' || c == '=' || c == ',')
	}) < 0
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (r *Runner) snapshot() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.listeners)
}

func (r *Runner) notifyStarted(e *Execution) {
	for _, l := range r.snapshot() {
		l.ExecutionStarted(e)
	}
}

func (r *Runner) notifyOutput(e *Execution, line OutputLine) {
	for _, l := range r.snapshot() {
		l.ExecutionOutput(e, line)
	}
}

func (r *Runner) notifyProblem(e *Execution, p Problem) {
	for _, l := range r.snapshot() {
		l.ExecutionProblem(e, p)
	}
}

func (r *Runner) notifyFinished(e *Execution) {
	for _, l := range r.snapshot() {
		l.ExecutionFinished(e)
	}
}
