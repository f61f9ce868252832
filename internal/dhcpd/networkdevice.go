package dhcpd

import (
	"context"
	"io"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// NetworkDeviceManager opens the network devices the subnets listen on.
type NetworkDeviceManager interface {
	// Open opens the named network device.  name must be a valid interface
	// name on the system.  An attempt to open the same device multiple times
	// may return an error.
	Open(ctx context.Context, name string) (dev NetworkDevice, err error)
}

// NetworkDevice reads and writes raw layer-2 frames on a single network
// interface.  It generalizes over platforms and simplifies testing.
type NetworkDevice interface {
	// No methods of a device should be called after Close.  Closing the
	// device unblocks a concurrent ReadPacketData.
	io.Closer

	// ReadPacketData reads a single frame from the interface.  It makes the
	// device a [gopacket.PacketDataSource].
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)

	// WritePacketData writes a serialized frame to the interface.
	WritePacketData(data []byte) (err error)

	// HardwareAddr returns the hardware address of the interface.  Replies
	// are framed with it as the source.
	HardwareAddr() (mac net.HardwareAddr)

	// LinkType returns the link type of the interface.
	LinkType() (lt layers.LinkType)
}

// inboundFrame is the link-level context of a received request: the client's
// source hardware address, needed to unicast replies to hosts that have no
// IP address yet, and the device to answer on.
type inboundFrame struct {
	srcMAC net.HardwareAddr
	device NetworkDevice
}
