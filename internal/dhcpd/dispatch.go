package dhcpd

import (
	"context"

	"github.com/google/gopacket/layers"
)

// hwAddrLen is the length of an Ethernet hardware address.
const hwAddrLen = 6

// validPkt returns true if req has the shape of a DHCPv4 request the server
// handles: a BOOTP request over Ethernet with a 6-byte hardware address that
// hasn't passed through an unexpected relay hop count.
func validPkt(req *layers.DHCPv4) (ok bool) {
	return req.Operation == layers.DHCPOpRequest &&
		req.HardwareType == layers.LinkTypeEthernet &&
		req.HardwareLen == hwAddrLen &&
		req.HardwareOpts == 0
}

// handlePacket validates req and routes it to the handler for its message
// type.  Invalid and unhandled packets are dropped with a log record.  req
// and frm must not be nil.
func (sn *subnet4) handlePacket(ctx context.Context, req *layers.DHCPv4, frm *inboundFrame) {
	sn.metrics.received.Inc()

	if !validPkt(req) {
		sn.logger.WarnContext(
			ctx, "dropping invalid packet",
			"xid", req4XidValue(req),
			"op", req.Operation,
			"htype", req.HardwareType,
			"hlen", req.HardwareLen,
			"hops", req.HardwareOpts,
		)
		sn.metrics.dropped.Inc()

		return
	}

	typ, ok := msgType(req.Options)
	if !ok {
		sn.logger.WarnContext(ctx, "no dhcp msgtype", "xid", req4XidValue(req))
		sn.metrics.dropped.Inc()

		return
	}

	switch typ {
	case layers.DHCPMsgTypeDiscover:
		sn.handleDiscover(ctx, req, frm)
	case layers.DHCPMsgTypeRequest:
		sn.handleRequest(ctx, req, frm)
	case layers.DHCPMsgTypeDecline, layers.DHCPMsgTypeRelease:
		sn.handleLeaseReturn(ctx, typ, req)
	case layers.DHCPMsgTypeInform:
		sn.handleInform(ctx, req, frm)
	default:
		sn.logger.DebugContext(ctx, "unhandled msgtype", "xid", req4XidValue(req), "type", typ)
		sn.metrics.dropped.Inc()
	}
}
