package core

import (
	"errors"
	"fmt"
)

// ConfigError reports an unknown or invalid scale, count or policy setting.
type ConfigError struct {
	Field   string
	Value   any
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error: %s=%v: %s", e.Field, e.Value, e.Message)
}

// EmptyPoolError reports sampling from an identifier pool that is empty or whose
// owning generator has not completed yet.
type EmptyPoolError struct {
	Entity string
	Reason string
}

func (e *EmptyPoolError) Error() string {
	return fmt.Sprintf("empty identifier pool for %s: %s", e.Entity, e.Reason)
}

// PrecisionError reports a value that cannot be represented as DECIMAL(38,2).
type PrecisionError struct {
	Entity string
	Field  string
	Value  string
	Reason string
}

func (e *PrecisionError) Error() string {
	loc := e.Field
	if e.Entity != "" {
		loc = e.Entity + "." + e.Field
	}
	if loc == "" {
		return fmt.Sprintf("precision error: value %s: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("precision error: %s value %s: %s", loc, e.Value, e.Reason)
}

// SchemaMismatchError reports a value or schema that disagrees with the declared
// physical schema of a table.
type SchemaMismatchError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema mismatch for table %s: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("schema mismatch for %s.%s: %s", e.Table, e.Column, e.Reason)
}

// WithEntity returns a copy of err annotated with the entity and field it was raised for.
// Errors that are not PrecisionErrors are returned unchanged.
func WithEntity(err error, entity, field string) error {
	var pe *PrecisionError
	if errors.As(err, &pe) {
		cp := *pe
		cp.Entity, cp.Field = entity, field
		return &cp
	}
	return err
}

func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

func IsEmptyPoolError(err error) bool {
	var target *EmptyPoolError
	return errors.As(err, &target)
}

func IsPrecisionError(err error) bool {
	var target *PrecisionError
	return errors.As(err, &target)
}

func IsSchemaMismatchError(err error) bool {
	var target *SchemaMismatchError
	return errors.As(err, &target)
}
