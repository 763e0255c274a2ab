// Package clipboard copies note text to the system clipboard of the machine
// running the worker.
package clipboard

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when no clipboard utility is available, for
// example on a headless host.
var ErrUnsupported = errors.New("system clipboard unavailable")

// writeAll is a package-level variable to allow mocking in tests.
var writeAll = clipboard.WriteAll

// unsupported reports whether the platform has no clipboard backend.
var unsupported = func() bool { return clipboard.Unsupported }

// System writes to the OS clipboard.
type System struct{}

// New returns the system clipboard writer.
func New() *System {
	return &System{}
}

// Write replaces the clipboard contents with text verbatim.
func (System) Write(text string) error {
	if unsupported() {
		return ErrUnsupported
	}
	if err := writeAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return nil
}
