package dhcpd

import (
	"context"
	"net/netip"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket/layers"
)

// handleInform handles messages of type DHCPINFORM: a client that already
// has an address asks for local configuration parameters.  The reply is a
// DHCPACK carrying only the requested options, with no lease time and no
// lease database changes.  req and frm must not be nil.
//
// See RFC 2131 Section 4.3.5.
func (sn *subnet4) handleInform(ctx context.Context, req *layers.DHCPv4, frm *inboundFrame) {
	ciaddr := addr4(req.ClientIP)
	if isZero4(ciaddr) {
		sn.logger.WarnContext(ctx, "inform without ciaddr", "xid", req4XidValue(req))
		sn.metrics.dropped.Inc()

		return
	}

	sn.logger.DebugContext(ctx, "inform", "xid", req4XidValue(req), "ciaddr", ciaddr)

	opts := layers.DHCPOptions{
		optMessageType(layers.DHCPMsgTypeAck),
		optServerID(sn.ourIP),
	}
	if vc, ok := vendorClassID(req.Options); ok {
		opts = append(opts, layers.NewDHCPOption(layers.DHCPOptClassID, vc))
	}
	opts = append(opts, sn.paramRequestSubset(req)...)

	resp, dst := sn.buildReply(
		req,
		frm,
		ciaddr,
		netip.IPv4Unspecified(),
		sn.ourIP,
		addr4(req.RelayAgentIP),
		opts,
	)

	err := sn.send(ctx, frm, resp, dst)
	if err != nil {
		sn.logger.ErrorContext(ctx, "sending inform ack", slogutil.KeyError, err)
	}
}
