package dhcpd

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Port numbers for DHCPv4.
//
// See RFC 2131 Section 4.1.
const (
	serverPort layers.UDPPort = 67
	clientPort layers.UDPPort = 68
)

// ipv4DefaultTTL is the default Time to Live value as recommended by
// RFC 1700.
const ipv4DefaultTTL = 64

// broadcastMAC is the Ethernet broadcast address.
var broadcastMAC = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// broadcastIPv4 is the IPv4 limited broadcast address.
var broadcastIPv4 = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// broadcastFlag is the BOOTP flags field bit requesting a broadcast reply.
const broadcastFlag uint16 = 0x8000

// replyDest is the layer-2 and layer-3 destination of an outgoing reply.
type replyDest struct {
	// mac is the destination hardware address of the Ethernet frame.
	mac net.HardwareAddr

	// ip is the destination address of the IPv4 header.
	ip netip.Addr

	// dstPort is the destination UDP port: the server port when relaying, the
	// client port otherwise.
	dstPort layers.UDPPort
}

// addr4 converts a BOOTP header address into a [netip.Addr], normalizing a
// missing address to the IPv4 unspecified one.
func addr4(ip net.IP) (addr netip.Addr) {
	if ip4 := ip.To4(); ip4 != nil {
		return netip.AddrFrom4([4]byte(ip4))
	}

	return netip.IPv4Unspecified()
}

// isZero4 returns true if addr is missing or the IPv4 unspecified address.
func isZero4(addr netip.Addr) (ok bool) {
	return !addr.IsValid() || addr.IsUnspecified()
}

// buildReply assembles a reply message to req with the given BOOTP addresses
// and options, and computes its destination according to RFC 2131 Section
// 4.1.  opts must contain a message-type option of OFFER, ACK, or NAK; any
// other use is a programmer error and panics.  req and frm must not be nil.
func (sn *subnet4) buildReply(
	req *layers.DHCPv4,
	frm *inboundFrame,
	ciaddr netip.Addr,
	yiaddr netip.Addr,
	siaddr netip.Addr,
	giaddr netip.Addr,
	opts layers.DHCPOptions,
) (resp *layers.DHCPv4, dst *replyDest) {
	typ, ok := msgType(opts)
	if !ok {
		panic(fmt.Errorf("dhcpd: building reply to xid %#x: no message type option", req.Xid))
	}

	resp = &layers.DHCPv4{
		Operation:    layers.DHCPOpReply,
		HardwareType: layers.LinkTypeEthernet,
		HardwareLen:  hwAddrLen,
		HardwareOpts: 0,
		Xid:          req.Xid,
		Secs:         0,
		Flags:        req.Flags,
		ClientIP:     ciaddr.AsSlice(),
		YourClientIP: yiaddr.AsSlice(),
		NextServerIP: siaddr.AsSlice(),
		RelayAgentIP: giaddr.AsSlice(),
		ClientHWAddr: req.ClientHWAddr,
		ServerName:   []byte(sn.conf.Hostname),
		File:         nil,
		Options:      opts,
	}

	dst = &replyDest{dstPort: clientPort}
	if !isZero4(giaddr) {
		// Send any return messages to the server port on the BOOTP relay
		// agent whose address appears in giaddr.
		dst.mac, dst.ip, dst.dstPort = frm.srcMAC, giaddr, serverPort

		return resp, dst
	}

	switch typ {
	case layers.DHCPMsgTypeNak:
		// Broadcast any DHCPNAK messages to 0xffffffff.
		dst.mac, dst.ip = broadcastMAC, broadcastIPv4
	case layers.DHCPMsgTypeOffer, layers.DHCPMsgTypeAck:
		switch {
		case !isZero4(ciaddr):
			// Unicast to the address the client already has.
			dst.mac, dst.ip = frm.srcMAC, ciaddr
		case req.Flags&broadcastFlag == 0:
			// Unicast to the client's hardware address and yiaddr.
			dst.mac, dst.ip = frm.srcMAC, yiaddr
		default:
			dst.mac, dst.ip = broadcastMAC, broadcastIPv4
		}
	default:
		panic(fmt.Errorf("dhcpd: building reply to xid %#x: bad message type %v", req.Xid, typ))
	}

	return resp, dst
}

// send serializes resp with its Ethernet, IPv4, and UDP framing and writes it
// to the subnet's device.  The source hardware address is the device's own.
func (sn *subnet4) send(
	ctx context.Context,
	frm *inboundFrame,
	resp *layers.DHCPv4,
	dst *replyDest,
) (err error) {
	eth := &layers.Ethernet{
		SrcMAC:       frm.device.HardwareAddr(),
		DstMAC:       dst.mac,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      ipv4DefaultTTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    sn.ourIP.AsSlice(),
		DstIP:    dst.ip.AsSlice(),
	}
	udp := &layers.UDP{
		SrcPort: serverPort,
		DstPort: dst.dstPort,
	}

	// Ignore the error since it's only returned for invalid network layer's
	// type.
	_ = udp.SetNetworkLayerForChecksum(ip)

	buf := gopacket.NewSerializeBuffer()
	setts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	err = gopacket.SerializeLayers(buf, setts, eth, ip, udp, resp)
	if err != nil {
		return fmt.Errorf("serializing reply: %w", err)
	}

	err = frm.device.WritePacketData(buf.Bytes())
	if err != nil {
		return fmt.Errorf("writing reply: %w", err)
	}

	typ, _ := msgType(resp.Options)
	sn.metrics.incReply(typ)
	sn.logger.DebugContext(
		ctx, "sent reply",
		"type", typ,
		"xid", req4XidValue(resp),
		"dstmac", dst.mac,
		"dstip", dst.ip,
	)

	return nil
}

// req4XidValue formats the transaction id of msg for logging.
func req4XidValue(msg *layers.DHCPv4) (s string) {
	return fmt.Sprintf("%#08x", msg.Xid)
}

// nakReply builds and sends a DHCPNAK carrying reason, echoing the client
// identifier and vendor class of the request when present.  req and frm must
// not be nil.
//
// See RFC 2131 Section 4.3.2.
func (sn *subnet4) nakReply(
	ctx context.Context,
	req *layers.DHCPv4,
	frm *inboundFrame,
	reason string,
) {
	opts := layers.DHCPOptions{
		optMessageType(layers.DHCPMsgTypeNak),
		optServerID(sn.ourIP),
		optMessage(reason),
	}
	if id, ok := clientID(req.Options); ok {
		opts = append(opts, layers.NewDHCPOption(layers.DHCPOptClientID, id))
	}
	if vc, ok := vendorClassID(req.Options); ok {
		opts = append(opts, layers.NewDHCPOption(layers.DHCPOptClassID, vc))
	}

	zero := netip.IPv4Unspecified()
	resp, dst := sn.buildReply(req, frm, zero, zero, zero, addr4(req.RelayAgentIP), opts)

	sn.logger.DebugContext(ctx, "sending nak", "xid", req4XidValue(req), "reason", reason)

	err := sn.send(ctx, frm, resp, dst)
	if err != nil {
		sn.logger.ErrorContext(ctx, "sending nak", slogutil.KeyError, err)
	}
}
