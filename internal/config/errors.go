package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ParseError reports a config file that is not valid TOML or has keys
// ptask does not know.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func newParseError(path string, err error) *ParseError {
	pe := &ParseError{Path: path, Err: err}
	var de *toml.DecodeError
	if errors.As(err, &de) {
		pe.Line, pe.Column = de.Position()
	}
	var sme *toml.StrictMissingError
	if errors.As(err, &sme) && len(sme.Errors) > 0 {
		pe.Line, pe.Column = sme.Errors[0].Position()
	}
	return pe
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EnvError reports an environment variable that cannot be converted.
type EnvError struct {
	Var   string
	Value string
	Err   error
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("environment variable %s=%q: %v", e.Var, e.Value, e.Err)
}

func (e *EnvError) Unwrap() error { return e.Err }

// FieldError is one failed validation rule.
type FieldError struct {
	// Field is the dotted TOML key, e.g. "engine.workers".
	Field string
	Rule  string
	Param string
	Value any
}

func (f FieldError) String() string {
	rule := f.Rule
	if f.Param != "" {
		rule += "=" + f.Param
	}
	return fmt.Sprintf("%s: must satisfy %s (got %v)", f.Field, rule, f.Value)
}

// ValidationError lists every setting that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Field returns the error for a dotted key, if any.
func (e *ValidationError) Field(key string) (FieldError, bool) {
	for _, f := range e.Fields {
		if f.Field == key {
			return f, true
		}
	}
	return FieldError{}, false
}
