package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflictingModes is returned when more than one build mode is requested.
	ErrConflictingModes = errors.New("--only, --changed and --force are mutually exclusive")

	// ErrEmptySelection is returned when a selective build names no unit or
	// a blank one.
	ErrEmptySelection = errors.New("--only needs at least one unit name")
)

// UnknownUnitsError lists every requested unit that was not discovered.
type UnknownUnitsError struct {
	Names     []string
	Available []string
}

func (e *UnknownUnitsError) Error() string {
	noun := "unit"
	if len(e.Names) > 1 {
		noun = "units"
	}
	msg := fmt.Sprintf("unknown %s: %s", noun, strings.Join(e.Names, ", "))
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(e.Available, ", "))
	}
	return msg
}

// CompileError is a bundler failure for one unit. It aborts the whole run.
type CompileError struct {
	Unit string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to build %s: %v", e.Unit, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
