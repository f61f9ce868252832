//go:build linux

package dhcpd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/packet"
)

// etherHeaderLen is the length of an Ethernet v2 header: destination and
// source addresses plus the EtherType.
const etherHeaderLen = 14

// packetDevice is a [NetworkDevice] over an AF_PACKET socket bound to the
// IPv4 EtherType on a single interface.
type packetDevice struct {
	conn  *packet.Conn
	iface *net.Interface
}

// type check
var _ NetworkDevice = (*packetDevice)(nil)

// PacketDeviceManager opens AF_PACKET sockets on named interfaces.
type PacketDeviceManager struct{}

// type check
var _ NetworkDeviceManager = PacketDeviceManager{}

// Open implements the [NetworkDeviceManager] interface for
// PacketDeviceManager.
func (PacketDeviceManager) Open(_ context.Context, name string) (dev NetworkDevice, err error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("finding interface %q: %w", name, err)
	}

	conn, err := packet.Listen(iface, packet.Raw, int(ethernet.EtherTypeIPv4), nil)
	if err != nil {
		return nil, fmt.Errorf("creating raw connection on %q: %w", name, err)
	}

	return &packetDevice{
		conn:  conn,
		iface: iface,
	}, nil
}

// ReadPacketData implements the [NetworkDevice] interface for *packetDevice.
func (d *packetDevice) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	buf := make([]byte, d.iface.MTU+etherHeaderLen)
	n, _, err := d.conn.ReadFrom(buf)
	if err != nil {
		return nil, gopacket.CaptureInfo{}, err
	}

	ci = gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: n,
		Length:        n,
	}

	return buf[:n], ci, nil
}

// WritePacketData implements the [NetworkDevice] interface for
// *packetDevice.  data must be a whole Ethernet frame.
func (d *packetDevice) WritePacketData(data []byte) (err error) {
	if len(data) < etherHeaderLen {
		return fmt.Errorf("frame of %d bytes is too short", len(data))
	}

	dst := net.HardwareAddr(data[:hwAddrLen])
	_, err = d.conn.WriteTo(data, &packet.Addr{HardwareAddr: dst})

	return err
}

// HardwareAddr implements the [NetworkDevice] interface for *packetDevice.
func (d *packetDevice) HardwareAddr() (mac net.HardwareAddr) {
	return d.iface.HardwareAddr
}

// LinkType implements the [NetworkDevice] interface for *packetDevice.
func (d *packetDevice) LinkType() (lt layers.LinkType) {
	return layers.LinkTypeEthernet
}

// Close implements the [io.Closer] interface for *packetDevice.
func (d *packetDevice) Close() (err error) {
	return d.conn.Close()
}
