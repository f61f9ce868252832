package dhcpd

import (
	"context"
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubnet4_buildReply_fields(t *testing.T) {
	sn, dev, _ := newTestSubnet(t)

	req := newTestRequest(layers.DHCPMsgTypeDiscover, testMAC1)
	frm := newInboundFrame(dev, testMAC1)

	zero := netip.IPv4Unspecified()
	yiaddr := netip.MustParseAddr("192.168.1.100")

	resp, _ := sn.buildReply(req, frm, zero, yiaddr, testServerIP, zero, layers.DHCPOptions{
		optMessageType(layers.DHCPMsgTypeOffer),
	})

	assert.Equal(t, layers.DHCPOpReply, resp.Operation)
	assert.Equal(t, layers.LinkTypeEthernet, resp.HardwareType)
	assert.Equal(t, uint8(hwAddrLen), resp.HardwareLen)
	assert.Equal(t, uint8(0), resp.HardwareOpts)
	assert.Equal(t, req.Xid, resp.Xid)
	assert.Equal(t, uint16(0), resp.Secs)
	assert.Equal(t, req.Flags, resp.Flags)
	assert.Equal(t, req.ClientHWAddr, resp.ClientHWAddr)
	assert.Equal(t, []byte("dhcpd-test"), resp.ServerName)
	assert.Empty(t, resp.File)
	assert.Equal(t, yiaddr.AsSlice(), []byte(resp.YourClientIP))
	assert.Equal(t, testServerIP.AsSlice(), []byte(resp.NextServerIP))
}

func TestSubnet4_buildReply_noMsgType(t *testing.T) {
	sn, dev, _ := newTestSubnet(t)

	req := newTestRequest(layers.DHCPMsgTypeDiscover, testMAC1)
	frm := newInboundFrame(dev, testMAC1)
	zero := netip.IPv4Unspecified()

	assert.Panics(t, func() {
		sn.buildReply(req, frm, zero, zero, zero, zero, nil)
	})
}

func TestSubnet4_buildReply_destination(t *testing.T) {
	giaddr := netip.MustParseAddr("192.168.2.1")
	ciaddr := netip.MustParseAddr("192.168.1.105")
	yiaddr := netip.MustParseAddr("192.168.1.100")
	zero := netip.IPv4Unspecified()

	testCases := []struct {
		name        string
		typ         layers.DHCPMsgType
		giaddr      netip.Addr
		ciaddr      netip.Addr
		unicastFlag bool
		wantMAC     net.HardwareAddr
		wantIP      netip.Addr
		wantPort    layers.UDPPort
	}{{
		name:     "nak_relayed",
		typ:      layers.DHCPMsgTypeNak,
		giaddr:   giaddr,
		ciaddr:   zero,
		wantMAC:  testMAC1,
		wantIP:   giaddr,
		wantPort: serverPort,
	}, {
		name:     "nak_broadcast",
		typ:      layers.DHCPMsgTypeNak,
		giaddr:   zero,
		ciaddr:   zero,
		wantMAC:  broadcastMAC,
		wantIP:   broadcastIPv4,
		wantPort: clientPort,
	}, {
		name:     "ack_relayed",
		typ:      layers.DHCPMsgTypeAck,
		giaddr:   giaddr,
		ciaddr:   zero,
		wantMAC:  testMAC1,
		wantIP:   giaddr,
		wantPort: serverPort,
	}, {
		name:     "ack_ciaddr",
		typ:      layers.DHCPMsgTypeAck,
		giaddr:   zero,
		ciaddr:   ciaddr,
		wantMAC:  testMAC1,
		wantIP:   ciaddr,
		wantPort: clientPort,
	}, {
		name:        "offer_unicast",
		typ:         layers.DHCPMsgTypeOffer,
		giaddr:      zero,
		ciaddr:      zero,
		unicastFlag: true,
		wantMAC:     testMAC1,
		wantIP:      yiaddr,
		wantPort:    clientPort,
	}, {
		name:     "offer_broadcast",
		typ:      layers.DHCPMsgTypeOffer,
		giaddr:   zero,
		ciaddr:   zero,
		wantMAC:  broadcastMAC,
		wantIP:   broadcastIPv4,
		wantPort: clientPort,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sn, dev, _ := newTestSubnet(t)

			mods := []func(req *layers.DHCPv4){}
			if tc.unicastFlag {
				mods = append(mods, withUnicastFlag())
			}

			req := newTestRequest(layers.DHCPMsgTypeRequest, testMAC1, mods...)
			frm := newInboundFrame(dev, testMAC1)

			opts := layers.DHCPOptions{optMessageType(tc.typ)}
			_, dst := sn.buildReply(req, frm, tc.ciaddr, yiaddr, testServerIP, tc.giaddr, opts)

			require.NotNil(t, dst)
			assert.Equal(t, tc.wantMAC, dst.mac)
			assert.Equal(t, tc.wantIP, dst.ip)
			assert.Equal(t, tc.wantPort, dst.dstPort)
		})
	}
}

func TestSubnet4_nakReply(t *testing.T) {
	sn, dev, _ := newTestSubnet(t)

	clientIDOpt := layers.NewDHCPOption(layers.DHCPOptClientID, []byte{0x01, 0xAA, 0xBB})
	req := newTestRequest(
		layers.DHCPMsgTypeRequest,
		testMAC1,
		withOption(clientIDOpt),
	)
	frm := newInboundFrame(dev, testMAC1)

	sn.nakReply(context.Background(), req, frm, nakNotAvailable)

	rf := lastReply(t, dev)
	requireMsgType(t, rf.dhcp.Options, layers.DHCPMsgTypeNak)

	// yiaddr, ciaddr, and siaddr must be zero, giaddr echoed.
	assert.True(t, net.IP(rf.dhcp.YourClientIP).IsUnspecified())
	assert.True(t, net.IP(rf.dhcp.ClientIP).IsUnspecified())
	assert.True(t, net.IP(rf.dhcp.NextServerIP).IsUnspecified())
	assert.True(t, net.IP(rf.dhcp.RelayAgentIP).IsUnspecified())

	assert.Equal(t, []byte(nakNotAvailable), optValue(rf.dhcp.Options, layers.DHCPOptMessage))
	assert.Equal(t, clientIDOpt.Data, optValue(rf.dhcp.Options, layers.DHCPOptClientID))
	assert.Equal(t, testServerIP.AsSlice(), optValue(rf.dhcp.Options, layers.DHCPOptServerID))
}
