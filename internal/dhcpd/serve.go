package dhcpd

import (
	"context"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// serveSubnet reads frames from dev and dispatches the DHCPv4 requests among
// them.  It's used to run in a separate goroutine as it blocks until the
// device is closed.  No single-packet failure terminates the loop: malformed
// frames are logged and skipped, and handler panics are recovered.  sn and
// dev must not be nil.
func (srv *Server) serveSubnet(ctx context.Context, sn *subnet4, dev NetworkDevice) {
	defer slogutil.RecoverAndLog(ctx, sn.logger)

	src := gopacket.NewPacketSource(dev, dev.LinkType())

	for pkt := range src.Packets() {
		srv.servePacket(ctx, sn, dev, pkt)
	}
}

// servePacket decodes a single frame and hands it to the dispatcher.  Decode
// and handler failures are contained here.
func (srv *Server) servePacket(
	ctx context.Context,
	sn *subnet4,
	dev NetworkDevice,
	pkt gopacket.Packet,
) {
	defer slogutil.RecoverAndLog(ctx, sn.logger)

	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		sn.logger.WarnContext(ctx, "dropped packet", slogutil.KeyError, errLayer.Error())

		return
	}

	etherLayer, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		sn.logger.DebugContext(ctx, "skipping non-ethernet packet")

		return
	}

	udpLayer, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok || udpLayer.DstPort != serverPort {
		return
	}

	req, ok := pkt.Layer(layers.LayerTypeDHCPv4).(*layers.DHCPv4)
	if !ok {
		sn.logger.DebugContext(ctx, "skipping non-dhcpv4 packet")

		return
	}

	frm := &inboundFrame{
		srcMAC: etherLayer.SrcMAC,
		device: dev,
	}

	sn.handlePacket(ctx, req, frm)
}
