//go:build !linux

package dhcpd

import (
	"context"
	"fmt"
	"runtime"
)

// PacketDeviceManager opens raw sockets on named interfaces.  It is only
// implemented on Linux.
type PacketDeviceManager struct{}

// type check
var _ NetworkDeviceManager = PacketDeviceManager{}

// Open implements the [NetworkDeviceManager] interface for
// PacketDeviceManager.  It always returns an error on this platform.
func (PacketDeviceManager) Open(_ context.Context, _ string) (dev NetworkDevice, err error) {
	return nil, fmt.Errorf("raw packet devices are not supported on %s", runtime.GOOS)
}
