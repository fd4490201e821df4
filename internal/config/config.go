// Package config loads ptask settings.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults
//  2. the user file, $XDG_CONFIG_HOME/ptask/config.toml
//  3. the project file, <project>/.ptask/config.toml
//  4. an explicit file given on the command line
//  5. PTASK_* environment variables
//
// The result is validated before use.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dshills/projecttask/internal/discovery"
	"github.com/dshills/projecttask/internal/logging"
	"github.com/dshills/projecttask/internal/projecttask/manager"
	"github.com/dshills/projecttask/internal/runners/process"
	"github.com/dshills/projecttask/internal/watch"
)

// Config holds every ptask setting.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Engine    EngineConfig    `toml:"engine"`
	Process   ProcessConfig   `toml:"process"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Watch     WatchConfig     `toml:"watch"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `toml:"level"  validate:"oneof=debug info warn error" env:"PTASK_LOG_LEVEL"`
	Format string `toml:"format" validate:"oneof=text json"             env:"PTASK_LOG_FORMAT"`
}

// EngineConfig configures the worker pool and the manager.
type EngineConfig struct {
	Workers      int      `toml:"workers"       validate:"min=1,max=256" env:"PTASK_WORKERS"`
	QueueSize    int      `toml:"queue_size"    validate:"min=1"         env:"PTASK_QUEUE_SIZE"`
	PollInterval Duration `toml:"poll_interval" validate:"gt=0"          env:"PTASK_POLL_INTERVAL"`
}

// ProcessConfig configures the process runner.
type ProcessConfig struct {
	Shell             string            `toml:"shell"              validate:"required"  env:"PTASK_SHELL"`
	ShellArgs         []string          `toml:"shell_args"`
	Env               map[string]string `toml:"env"`
	OutputBufferSize  int               `toml:"output_buffer_size" validate:"min=1024"`
	MaxOutputLines    int               `toml:"max_output_lines"   validate:"min=1"`
	MaxConcurrent     int               `toml:"max_concurrent"     validate:"min=1"     env:"PTASK_MAX_CONCURRENT"`
	Retries           int               `toml:"retries"            validate:"min=0,max=10" env:"PTASK_RETRIES"`
	RetryBackoff      Duration          `toml:"retry_backoff"      validate:"gte=0"`
	BuildCommand      string            `toml:"build_command"                           env:"PTASK_BUILD_COMMAND"`
	RebuildCommand    string            `toml:"rebuild_command"`
	CompileCommand    string            `toml:"compile_command"`
	RunConfigurations map[string]string `toml:"run_configurations"`
	ProblemMatcher    string            `toml:"problem_matcher"`
	BlockedCommands   []string          `toml:"blocked_commands"`
	BlockedPatterns   []string          `toml:"blocked_patterns"`
	MaxCommandLength  int               `toml:"max_command_length" validate:"min=0"`
}

// DiscoveryConfig configures task discovery.
type DiscoveryConfig struct {
	MaxDepth    int      `toml:"max_depth"    validate:"min=0,max=16" env:"PTASK_DISCOVERY_DEPTH"`
	ExcludeDirs []string `toml:"exclude_dirs"`
	Sources     []string `toml:"sources"      validate:"dive,oneof=makefile taskfile npm ptask"`
	CacheSize   int      `toml:"cache_size"   validate:"min=0"`
	CacheTTL    Duration `toml:"cache_ttl"    validate:"gte=0"`
	Timeout     Duration `toml:"timeout"      validate:"gte=0"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce Duration `toml:"debounce" validate:"gt=0" env:"PTASK_WATCH_DEBOUNCE"`
	Ignore   []string `toml:"ignore"`

	// NoGitignore stops the root .gitignore from being applied.
	NoGitignore bool `toml:"no_gitignore" env:"PTASK_WATCH_NO_GITIGNORE"`
}

// Default returns the built-in settings.
func Default() *Config {
	proc := process.DefaultConfig()
	disc := discovery.DefaultOptions("")
	w := watch.DefaultConfig()
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			Workers:      4,
			QueueSize:    100,
			PollInterval: Duration(manager.DefaultPollInterval),
		},
		Process: ProcessConfig{
			Shell:            proc.Shell,
			ShellArgs:        proc.ShellArgs,
			OutputBufferSize: proc.OutputBufferSize,
			MaxOutputLines:   proc.MaxOutputLines,
			MaxConcurrent:    proc.MaxConcurrent,
			RetryBackoff:     Duration(proc.RetryBackoff),
			BlockedCommands:  proc.Policy.BlockedCommands,
			BlockedPatterns:  proc.Policy.BlockedPatterns,
			MaxCommandLength: proc.Policy.MaxCommandLength,
		},
		Discovery: DiscoveryConfig{
			MaxDepth:    disc.MaxDepth,
			ExcludeDirs: disc.ExcludeDirs,
			CacheSize:   discovery.DefaultCacheSize,
			CacheTTL:    Duration(discovery.DefaultCacheTTL),
			Timeout:     Duration(disc.Timeout),
		},
		Watch: WatchConfig{
			Debounce: Duration(w.Debounce),
			Ignore:   w.IgnorePatterns,
		},
	}
}

// LoggerConfig returns the logging settings for logging.New.
func (c *Config) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.Logging.Level)
	lc.JSON = c.Logging.Format == "json"
	lc.Output = os.Stderr
	return lc
}

// ProcessRunnerConfig returns the process runner settings for workDir.
func (c *Config) ProcessRunnerConfig(workDir string) process.Config {
	p := c.Process
	return process.Config{
		Shell:             p.Shell,
		ShellArgs:         p.ShellArgs,
		Env:               p.Env,
		WorkingDir:        workDir,
		OutputBufferSize:  p.OutputBufferSize,
		MaxOutputLines:    p.MaxOutputLines,
		MaxConcurrent:     p.MaxConcurrent,
		Retries:           p.Retries,
		RetryBackoff:      time.Duration(p.RetryBackoff),
		BuildCommand:      p.BuildCommand,
		RebuildCommand:    p.RebuildCommand,
		CompileCommand:    p.CompileCommand,
		RunConfigurations: p.RunConfigurations,
		ProblemMatcher:    p.ProblemMatcher,
		Policy: process.Policy{
			BlockedCommands:  p.BlockedCommands,
			BlockedPatterns:  p.BlockedPatterns,
			MaxCommandLength: p.MaxCommandLength,
		},
	}
}

// DiscoveryOptions returns the discovery settings for root.
func (c *Config) DiscoveryOptions(root string) discovery.Options {
	return discovery.Options{
		Root:        root,
		MaxDepth:    c.Discovery.MaxDepth,
		ExcludeDirs: c.Discovery.ExcludeDirs,
		Sources:     c.Discovery.Sources,
		Timeout:     time.Duration(c.Discovery.Timeout),
	}
}

// WatcherConfig returns the watcher settings.
func (c *Config) WatcherConfig() watch.Config {
	return watch.Config{
		Debounce:       time.Duration(c.Watch.Debounce),
		IgnorePatterns: c.Watch.Ignore,
		UseGitignore:   !c.Watch.NoGitignore,
	}
}

// Duration is a time.Duration read from strings like "250ms" or "5m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) String() string { return time.Duration(d).String() }
