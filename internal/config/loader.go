package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"
)

// ProjectFile is the project config path relative to the project root.
const ProjectFile = ".ptask/config.toml"

// Options selects the files Load reads.
type Options struct {
	// ProjectDir is searched for ProjectFile. Empty skips the project layer.
	ProjectDir string

	// File is an explicit config file. It must exist when set.
	File string

	// SkipUserFile skips the per-user file.
	SkipUserFile bool

	// Getenv looks up environment variables. Defaults to os.LookupEnv.
	Getenv func(string) (string, bool)
}

// UserFile returns the per-user config path, or "" when the user config
// directory is unknown.
func UserFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ptask", "config.toml")
}

// Load builds the configuration from every layer and validates it.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	var files []string
	if !opts.SkipUserFile {
		if f := UserFile(); f != "" {
			files = append(files, f)
		}
	}
	if opts.ProjectDir != "" {
		files = append(files, filepath.Join(opts.ProjectDir, ProjectFile))
	}
	for _, f := range files {
		if err := mergeFile(cfg, f, false); err != nil {
			return nil, err
		}
	}
	if opts.File != "" {
		if err := mergeFile(cfg, opts.File, true); err != nil {
			return nil, err
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.LookupEnv
	}
	if err := applyEnv(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads one TOML document. Unknown keys are errors.
func Parse(name string, data []byte) (*Config, error) {
	var layer Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&layer); err != nil {
		return nil, newParseError(name, err)
	}
	return &layer, nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	layer, err := Parse(path, data)
	if err != nil {
		return err
	}
	// Zero values in the file leave the lower layer untouched.
	if err := mergo.Merge(cfg, layer, mergo.WithOverride); err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}
	return nil
}

var durationType = reflect.TypeOf(Duration(0))

// applyEnv walks v and overrides every field carrying an env tag whose
// variable is set.
func applyEnv(v reflect.Value, getenv func(string) (string, bool)) error {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		fv := v.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if err := applyEnv(fv, getenv); err != nil {
				return err
			}
			continue
		}
		name := field.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := getenv(name)
		if !ok {
			continue
		}
		if err := setField(fv, raw); err != nil {
			return &EnvError{Var: name, Value: raw, Err: err}
		}
	}
	return nil
}

func setField(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Slice:
		var items []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return errors.New("unsupported field type " + fv.Type().String())
	}
	return nil
}
