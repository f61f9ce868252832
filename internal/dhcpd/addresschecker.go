package dhcpd

import (
	"net/netip"
	"time"

	"github.com/go-ping/ping"
)

// addressChecker checks addresses for availability on the wire before they
// are offered.
type addressChecker interface {
	// IsAvailable returns true if the address doesn't answer on the current
	// subnet.  Any error is a network error.
	IsAvailable(ip netip.Addr) (ok bool, err error)
}

// noopAddressChecker is an implementation of [addressChecker] that doesn't
// perform any checks.
type noopAddressChecker struct{}

// IsAvailable implements the [addressChecker] interface for
// noopAddressChecker.
func (noopAddressChecker) IsAvailable(_ netip.Addr) (ok bool, err error) {
	return true, nil
}

// icmpAddressChecker probes an address with a single ICMP echo request.  An
// address that replies within the timeout is already in use by another host.
type icmpAddressChecker struct {
	timeout time.Duration
}

// type check
var _ addressChecker = (*icmpAddressChecker)(nil)

// IsAvailable implements the [addressChecker] interface for
// *icmpAddressChecker.
func (c *icmpAddressChecker) IsAvailable(ip netip.Addr) (ok bool, err error) {
	pinger, err := ping.NewPinger(ip.String())
	if err != nil {
		return false, err
	}

	pinger.SetPrivileged(true)
	pinger.Timeout = c.timeout
	pinger.Count = 1

	replied := false
	pinger.OnRecv = func(_ *ping.Packet) {
		replied = true
	}

	err = pinger.Run()
	if err != nil {
		return false, err
	}

	return !replied, nil
}
