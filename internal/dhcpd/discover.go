package dhcpd

import (
	"context"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket/layers"
)

// handleDiscover handles messages of type DHCPDISCOVER and answers with a
// DHCPOFFER.  The offer doesn't touch the lease database: the lease is only
// committed once the client confirms the address with a DHCPREQUEST.  req
// and frm must not be nil.
//
// See RFC 2131 Section 4.3.1.
func (sn *subnet4) handleDiscover(ctx context.Context, req *layers.DHCPv4, frm *inboundFrame) {
	ck := keyForPacket(req)

	sn.logger.DebugContext(ctx, "discover", "xid", req4XidValue(req), "mac", req.ClientHWAddr)

	sn.dbMu.Lock()
	defer sn.dbMu.Unlock()

	lease := sn.db.lookup(ck)
	addr, fresh := sn.offerAddr(req, lease)
	if isZero4(addr) {
		sn.logger.WarnContext(ctx, "no addresses to offer", "mac", req.ClientHWAddr)
		sn.metrics.dropped.Inc()

		return
	}

	if fresh {
		ok, err := sn.addrChecker.IsAvailable(addr)
		if err != nil {
			sn.logger.ErrorContext(ctx, "probing address", "ip", addr, slogutil.KeyError, err)
		} else if !ok {
			sn.logger.WarnContext(ctx, "address already in use, not offering", "ip", addr)
			sn.metrics.dropped.Inc()

			return
		}
	}

	leaseTime := sn.offerLeaseTime(req, lease)
	lt, t1, t2 := leaseTimes(leaseTime, sn.conf.T1Ratio, sn.conf.T2Ratio)

	opts := layers.DHCPOptions{
		optMessageType(layers.DHCPMsgTypeOffer),
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
		netip.IPv4Unspecified(),
		addr,
		sn.ourIP,
		addr4(req.RelayAgentIP),
		opts,
	)

	err := sn.send(ctx, frm, resp, dst)
	if err != nil {
		sn.logger.ErrorContext(ctx, "sending offer", slogutil.KeyError, err)
	}
}

// offerAddr selects the address to offer to the client.  lease is the
// client's existing lease, or nil.  fresh is true when the address isn't the
// client's current one and should be probed before being offered.  addr is
// empty when the pool is exhausted.
func (sn *subnet4) offerAddr(req *layers.DHCPv4, lease *Lease) (addr netip.Addr, fresh bool) {
	now := sn.db.clock.Now()

	if lease != nil {
		if !lease.Expired(now) {
			return lease.IP, false
		}

		if sn.db.addrAvailable(lease.IP) {
			return lease.IP, false
		}
	}

	if reqIP, ok := requestedIP(req.Options); ok {
		if sn.db.addrInRange(reqIP) && sn.db.addrAvailable(reqIP) {
			return reqIP, true
		}
	}

	return sn.db.nextUsableAddr(), true
}

// offerLeaseTime selects the duration of the offered lease: the duration the
// client asked for when it is within the configured bounds, the remainder of
// the client's unexpired lease otherwise, and the configured default as the
// fallback.
func (sn *subnet4) offerLeaseTime(req *layers.DHCPv4, lease *Lease) (d time.Duration) {
	if secs, ok := leaseTimeOption(req.Options); ok {
		reqDur := time.Duration(secs) * time.Second
		if sn.conf.leaseTimeGood(reqDur) {
			return reqDur
		}
	}

	if lease != nil && !lease.Expired(sn.db.clock.Now()) {
		return time.Duration(sn.db.timeLeft(lease)) * time.Second
	}

	return sn.conf.DefaultLeaseTime
}

// leaseTimes converts a lease duration into the triple of whole-second
// option values: the lease time itself and the T1 and T2 times derived from
// the configured ratios.
func leaseTimes(d time.Duration, t1Ratio, t2Ratio float64) (lt, t1, t2 uint32) {
	lt = uint32((d + time.Second/2) / time.Second)

	return lt, roundRatio(lt, t1Ratio), roundRatio(lt, t2Ratio)
}
