package reactor

import (
	"github.com/corvid-systems/reactor/internal/backend"
	"github.com/corvid-systems/reactor/internal/interfaces"
)

// Re-export constants for the public API.
const (
	// MaxEventsPerSet bounds how many events the mock backend's
	// per-set used-bit tracking can hold.
	MaxEventsPerSet = backend.MaxEventsPerSet

	// DefaultListenBacklog matches the backlog every real backend's Listen
	// passes to listen(2).
	DefaultListenBacklog = backend.DefaultListenBacklog

	// WaitForever passed to Wait or Run blocks until an atom is ready,
	// with no timeout.
	WaitForever = interfaces.IntMax
)
