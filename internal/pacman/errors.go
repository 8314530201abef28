package pacman

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ConfigError reports missing or invalid declarative configuration.
// It is always raised before any external tool is invoked.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

// NewConfigError builds a ConfigError with a stack trace.
func NewConfigError(format string, args ...any) error {
	return errors.WithStack(&ConfigError{msg: fmt.Sprintf(format, args...)})
}

// LookupError reports an unknown database, package, or group name.
// It is fatal to the specific lookup only.
type LookupError struct {
	Kind string // "database", "package", or "group"
	Name string
}

func (e *LookupError) Error() string {
	return e.Kind + " " + e.Name + " not found"
}

// NewLookupError builds a LookupError with a stack trace.
func NewLookupError(kind, name string) error {
	return errors.WithStack(&LookupError{Kind: kind, Name: name})
}

// NotFoundError reports a package archive absent from all cache
// directories.
type NotFoundError struct {
	Package string
}

func (e *NotFoundError) Error() string {
	return "package " + e.Package + " not found in any cache directory"
}

// NewNotFoundError builds a NotFoundError with a stack trace.
func NewNotFoundError(pkg string) error {
	return errors.WithStack(&NotFoundError{Package: pkg})
}
