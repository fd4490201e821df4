package process

import (
	"os"
	"time"
)

// Config configures a Runner.
type Config struct {
	// Shell runs KindShell commands, invoked as Shell ShellArgs... line.
	Shell     string
	ShellArgs []string

	// Env is added to every command's environment.
	Env map[string]string

	// WorkingDir is the default working directory and workspace folder.
	WorkingDir string

	// OutputBufferSize is the longest output line accepted, in bytes.
	OutputBufferSize int

	// MaxOutputLines is the number of lines kept per execution.
	MaxOutputLines int

	// MaxConcurrent bounds the commands running at once across batches.
	MaxConcurrent int

	// Retries is how many times a command exiting non-zero is restarted.
	Retries int

	// RetryBackoff is the first retry delay; it doubles on each retry.
	RetryBackoff time.Duration

	// BuildCommand builds ${module} incrementally. Empty leaves module
	// builds to other runners.
	BuildCommand string

	// RebuildCommand builds ${module} from scratch. Empty falls back to
	// BuildCommand.
	RebuildCommand string

	// CompileCommand compiles ${files}.
	CompileCommand string

	// RunConfigurations maps run configuration names to commands.
	RunConfigurations map[string]string

	// ProblemMatcher applies to commands derived from the fields above.
	ProblemMatcher string

	// Policy refuses dangerous commands.
	Policy Policy
}

// DefaultConfig returns defaults using $SHELL, or /bin/sh.
func DefaultConfig() Config {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return Config{
		Shell:            shell,
		ShellArgs:        []string{"-c"},
		OutputBufferSize: 64 * 1024,
		MaxOutputLines:   1000,
		MaxConcurrent:    4,
		RetryBackoff:     200 * time.Millisecond,
		Policy:           DefaultPolicy(),
	}
}
