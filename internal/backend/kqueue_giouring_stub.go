//go:build !giouring

package backend

import (
	"fmt"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// NewKernelQueueGIOURING is available when built with -tags giouring.
func NewKernelQueueGIOURING(log interfaces.Logger, queueDepth uint32) (*KernelQueueGIOURING, error) {
	return nil, fmt.Errorf("giouring not enabled; build with -tags giouring")
}

// KernelQueueGIOURING stub type so callers can reference it without the tag.
type KernelQueueGIOURING struct{}

var _ interfaces.Poller = (*KernelQueueGIOURING)(nil)

func (b *KernelQueueGIOURING) Kind() interfaces.BackendKind { return interfaces.KernelQueue }
func (b *KernelQueueGIOURING) Dispose() error               { return nil }
func (b *KernelQueueGIOURING) FDCheck() int                  { return 0 }
func (b *KernelQueueGIOURING) Add(*interfaces.Atom, interfaces.Interest) error {
	return fmt.Errorf("giouring not enabled")
}
func (b *KernelQueueGIOURING) Set(*interfaces.Atom, interfaces.Interest) error {
	return fmt.Errorf("giouring not enabled")
}
func (b *KernelQueueGIOURING) Remove(*interfaces.Atom) error { return fmt.Errorf("giouring not enabled") }
func (b *KernelQueueGIOURING) Wait(int64) (int, error)       { return 0, fmt.Errorf("giouring not enabled") }
func (b *KernelQueueGIOURING) Dispatch() int                 { return 0 }
func (b *KernelQueueGIOURING) Listen(interfaces.SocketAddr, interfaces.Proc) (*interfaces.Atom, error) {
	return nil, fmt.Errorf("giouring not enabled")
}
func (b *KernelQueueGIOURING) Connect(interfaces.SocketAddr, interfaces.Proc, interfaces.Proc) (*interfaces.Atom, error) {
	return nil, fmt.Errorf("giouring not enabled")
}
func (b *KernelQueueGIOURING) Accept(*interfaces.Atom, interfaces.Proc, interfaces.Proc) (*interfaces.Atom, interfaces.SocketAddr, error) {
	return nil, interfaces.SocketAddr{}, fmt.Errorf("giouring not enabled")
}
func (b *KernelQueueGIOURING) Read(*interfaces.Atom, []byte) (int, error) {
	return 0, fmt.Errorf("giouring not enabled")
}
func (b *KernelQueueGIOURING) Write(*interfaces.Atom, []byte) (int, error) {
	return 0, fmt.Errorf("giouring not enabled")
}
func (b *KernelQueueGIOURING) Close(*interfaces.Atom) error { return fmt.Errorf("giouring not enabled") }
