package config

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their TOML key.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// Validate checks struct rules and the cross-field rules tags cannot
// express.
func Validate(cfg *Config) error {
	var fields []FieldError
	if err := validatorInstance().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field: dottedKey(fe.Namespace()),
				Rule:  fe.Tag(),
				Param: fe.Param(),
				Value: fe.Value(),
			})
		}
	}

	for _, p := range cfg.Process.BlockedPatterns {
		if _, err := regexp.Compile(p); err != nil {
			fields = append(fields, FieldError{Field: "process.blocked_patterns", Rule: "regexp", Value: p})
		}
	}
	for _, p := range cfg.Watch.Ignore {
		if !doublestar.ValidatePattern(strings.TrimPrefix(strings.TrimSuffix(p, "/"), "!")) {
			fields = append(fields, FieldError{Field: "watch.ignore", Rule: "glob", Value: p})
		}
	}
	for _, p := range cfg.Discovery.ExcludeDirs {
		if !doublestar.ValidatePattern(p) {
			fields = append(fields, FieldError{Field: "discovery.exclude_dirs", Rule: "glob", Value: p})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// dottedKey turns "Config.engine.workers" into "engine.workers" and
// "Config.discovery.sources[1]" into "discovery.sources".
func dottedKey(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	if i := strings.Index(rest, "["); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
