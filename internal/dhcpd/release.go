package dhcpd

import (
	"context"

	"github.com/google/gopacket/layers"
)

// handleLeaseReturn handles messages of type DHCPDECLINE and DHCPRELEASE.
// Both return the client's address to the pool: a decline because the client
// found it in use elsewhere, a release because the client is done with it.
// Neither is answered.  typ must be one of the two types, req must not be
// nil.
//
// See RFC 2131 Sections 4.3.3 and 4.3.4.
func (sn *subnet4) handleLeaseReturn(
	ctx context.Context,
	typ layers.DHCPMsgType,
	req *layers.DHCPv4,
) {
	ck := keyForPacket(req)

	sn.logger.DebugContext(
		ctx, "lease return",
		"type", typ,
		"xid", req4XidValue(req),
		"mac", req.ClientHWAddr,
	)

	sid, ok := serverID(req.Options)
	if !ok {
		sn.logger.WarnContext(ctx, "lease return without server id", "type", typ)
		sn.metrics.dropped.Inc()

		return
	}

	if sid != sn.ourIP {
		// Addressed to another server.
		sn.metrics.dropped.Inc()

		return
	}

	reqIP, ok := requestedIP(req.Options)
	if !ok {
		sn.logger.WarnContext(ctx, "lease return without requested ip", "type", typ)
		sn.metrics.dropped.Inc()

		return
	}

	sn.dbMu.Lock()
	defer sn.dbMu.Unlock()

	lease := sn.db.lookup(ck)
	if lease == nil {
		sn.logger.WarnContext(ctx, "lease return for unknown client", "mac", req.ClientHWAddr)
		sn.metrics.dropped.Inc()

		return
	}

	sn.db.remove(ck)

	msg, ok := messageOption(req.Options)
	if !ok {
		msg = "unspecified"
	}

	sn.logger.InfoContext(
		ctx, "lease returned",
		"type", typ,
		"ip", reqIP,
		"mac", req.ClientHWAddr,
		"message", msg,
	)
}
