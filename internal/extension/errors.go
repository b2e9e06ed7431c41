package extension

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/elasticd/internal/protocol"
)

var (
	// ErrPluginNotLoaded means the plugin ID is unknown to the plugin manager.
	ErrPluginNotLoaded = errors.New("plugin not loaded")
	// ErrPluginFailed means the plugin answered with status=error.
	ErrPluginFailed = errors.New("plugin reported failure")
)

// InvocationError describes a failed call across the plugin boundary.
type InvocationError struct {
	PluginID  string
	Operation protocol.Operation
	Stderr    string
	Err       error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("plugin %q %s: %v", e.PluginID, e.Operation, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
