package dhcpd

import (
	"context"
	"net/netip"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket/layers"
)

// Reasons put into the message option of DHCPNAK replies.
const (
	nakNotInRange   = "Requested address is not in subnet range"
	nakNotAvailable = "Requested address is not available"
	nakExpiredTaken = "Lease has expired and address is taken"
	nakWrongAddr    = "Requested address is incorrect"
)

// handleRequest handles messages of type DHCPREQUEST, distinguishing the
// client state by which of the server-identifier and requested-IP options
// are present and whether the client already holds a lease.  req and frm must
// not be nil.
//
// See RFC 2131 Section 4.3.2.
func (sn *subnet4) handleRequest(ctx context.Context, req *layers.DHCPv4, frm *inboundFrame) {
	ck := keyForPacket(req)

	sn.logger.DebugContext(ctx, "request", "xid", req4XidValue(req), "mac", req.ClientHWAddr)

	sid, hasSID := serverID(req.Options)
	reqIP, hasReqIP := requestedIP(req.Options)

	sn.dbMu.Lock()
	defer sn.dbMu.Unlock()

	lease := sn.db.lookup(ck)

	switch {
	case hasSID && hasReqIP:
		// The client has chosen an offer.  The server identifier names the
		// chosen server.
		sn.handleSelecting(ctx, req, frm, ck, sid, reqIP, lease)
	case !hasSID && hasReqIP && lease != nil:
		// The client is verifying a previously allocated, cached
		// configuration after a reboot.
		sn.handleInitReboot(ctx, req, frm, ck, reqIP, lease)
	case !hasSID && !hasReqIP && lease != nil:
		// The client is extending its lease, by unicast when RENEWING and by
		// broadcast when REBINDING.
		sn.handleRenew(ctx, req, frm, ck, lease)
	default:
		sn.logger.DebugContext(
			ctx, "ignoring request",
			"xid", req4XidValue(req),
			"has_sid", hasSID,
			"has_reqip", hasReqIP,
			"has_lease", lease != nil,
		)
		sn.metrics.dropped.Inc()
	}
}

// handleSelecting handles a DHCPREQUEST generated in the SELECTING state.
// The database mutex must be locked.
func (sn *subnet4) handleSelecting(
	ctx context.Context,
	req *layers.DHCPv4,
	frm *inboundFrame,
	ck clientKey,
	sid netip.Addr,
	reqIP netip.Addr,
	lease *Lease,
) {
	if sid != sn.ourIP {
		sn.logger.DebugContext(ctx, "selecting request for another server", "serverid", sid)
		sn.metrics.dropped.Inc()

		return
	}

	if ciaddr := addr4(req.ClientIP); !isZero4(ciaddr) {
		sn.logger.WarnContext(ctx, "non-zero ciaddr in selecting request", "ciaddr", ciaddr)
		sn.metrics.dropped.Inc()

		return
	}

	if !sn.db.addrInRange(reqIP) {
		sn.nakReply(ctx, req, frm, nakNotInRange)

		return
	}

	// The client's own lease doesn't make the address unavailable, so that a
	// retransmitted request after a lost DHCPACK still succeeds.
	ownAddr := lease != nil && lease.IP == reqIP
	if !ownAddr && !sn.db.addrAvailable(reqIP) {
		sn.nakReply(ctx, req, frm, nakNotAvailable)

		return
	}

	fresh := sn.db.makeLease(ck, req.ClientHWAddr, reqIP, sn.conf.DefaultLeaseTime)
	sn.ackLease(ctx, req, frm, ck, fresh)
}

// handleInitReboot handles a DHCPREQUEST generated in the INIT-REBOOT state.
// lease must not be nil.  The database mutex must be locked.
func (sn *subnet4) handleInitReboot(
	ctx context.Context,
	req *layers.DHCPv4,
	frm *inboundFrame,
	ck clientKey,
	reqIP netip.Addr,
	lease *Lease,
) {
	if ciaddr := addr4(req.ClientIP); !isZero4(ciaddr) {
		sn.logger.WarnContext(ctx, "non-zero ciaddr in init-reboot request", "ciaddr", ciaddr)
		sn.metrics.dropped.Inc()

		return
	}

	if lease.Expired(sn.db.clock.Now()) && !sn.db.addrAvailable(lease.IP) {
		sn.nakReply(ctx, req, frm, nakExpiredTaken)

		return
	}

	// A relayed client may be rebooting on another net; only check the range
	// for directly connected ones.
	if isZero4(addr4(req.RelayAgentIP)) && !sn.db.addrInRange(reqIP) {
		sn.nakReply(ctx, req, frm, nakNotInRange)

		return
	}

	if lease.IP != reqIP {
		sn.nakReply(ctx, req, frm, nakWrongAddr)

		return
	}

	renewed := sn.db.makeLease(ck, req.ClientHWAddr, lease.IP, sn.conf.DefaultLeaseTime)
	sn.ackLease(ctx, req, frm, ck, renewed)
}

// handleRenew handles a DHCPREQUEST generated in the RENEWING or REBINDING
// state.  lease must not be nil.  The database mutex must be locked.
func (sn *subnet4) handleRenew(
	ctx context.Context,
	req *layers.DHCPv4,
	frm *inboundFrame,
	ck clientKey,
	lease *Lease,
) {
	ciaddr := addr4(req.ClientIP)
	if isZero4(ciaddr) {
		sn.logger.WarnContext(ctx, "no ciaddr in renew request", "mac", req.ClientHWAddr)
		sn.metrics.dropped.Inc()

		return
	}

	if lease.Expired(sn.db.clock.Now()) && !sn.db.addrAvailable(lease.IP) {
		sn.nakReply(ctx, req, frm, nakExpiredTaken)

		return
	}

	if lease.IP != ciaddr {
		sn.nakReply(ctx, req, frm, nakWrongAddr)

		return
	}

	renewed := sn.db.makeLease(ck, req.ClientHWAddr, lease.IP, sn.conf.DefaultLeaseTime)
	sn.ackLease(ctx, req, frm, ck, renewed)
}

// ackLease commits lease into the database and answers req with a DHCPACK
// for it.  lease.ClientID must equal ck.  The database mutex must be locked.
func (sn *subnet4) ackLease(
	ctx context.Context,
	req *layers.DHCPv4,
	frm *inboundFrame,
	ck clientKey,
	lease *Lease,
) {
	sn.db.replace(ck, lease)

	lt, t1, t2 := sn.db.timeLeft3(lease, sn.conf.T1Ratio, sn.conf.T2Ratio)

	opts := layers.DHCPOptions{
		optMessageType(layers.DHCPMsgTypeAck),
		optSubnetMask(sn.network),
		optSeconds(layers.DHCPOptLeaseTime, lt),
		optSeconds(layers.DHCPOptT1, t1),
		optSeconds(layers.DHCPOptT2, t2),
		optServerID(sn.ourIP),
	}
	if vc, ok := vendorClassID(req.Options); ok {
		opts = append(opts, layers.NewDHCPOption(layers.DHCPOptClassID, vc))
	}
	opts = append(opts, sn.paramRequestSubset(req)...)

	resp, dst := sn.buildReply(
		req,
		frm,
		addr4(req.ClientIP),
		lease.IP,
		sn.ourIP,
		addr4(req.RelayAgentIP),
		opts,
	)

	err := sn.send(ctx, frm, resp, dst)
	if err != nil {
		sn.logger.ErrorContext(ctx, "sending ack", slogutil.KeyError, err)
	}
}
