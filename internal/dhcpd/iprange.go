package dhcpd

import (
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// ipRange is an inclusive range of IPv4 addresses kept as host-order 32-bit
// integers.  A zero range doesn't contain any IP addresses.
//
// It is safe for concurrent use.
type ipRange struct {
	start uint32
	end   uint32
}

// addrToU32 converts an IPv4 address into its 32-bit integer form.  ip must
// be a valid IPv4 address.
func addrToU32(ip netip.Addr) (v uint32) {
	b := ip.As4()

	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// u32ToAddr converts a 32-bit integer back into an IPv4 address.
func u32ToAddr(v uint32) (ip netip.Addr) {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// newIPRange creates a new IP address range.  start and end must be IPv4 and
// start must be less than end.
func newIPRange(start, end netip.Addr) (r ipRange, err error) {
	defer func() { err = errors.Annotate(err, "invalid ip range: %w") }()

	if !start.Is4() || !end.Is4() {
		return ipRange{}, fmt.Errorf("%s and %s must both be valid ipv4", start, end)
	}

	lo, hi := addrToU32(start), addrToU32(end)
	if lo >= hi {
		return ipRange{}, fmt.Errorf("start %s is greater than or equal to end %s", start, end)
	}

	return ipRange{
		start: lo,
		end:   hi,
	}, nil
}

// contains returns true if r contains ip.
func (r ipRange) contains(ip netip.Addr) (ok bool) {
	if r == (ipRange{}) || !ip.Is4() {
		return false
	}

	v := addrToU32(ip)

	return v >= r.start && v <= r.end
}

// ipPredicate is a function that is called on every IP address in
// [ipRange.find].
type ipPredicate func(ip netip.Addr) (ok bool)

// find finds the first IP address in r for which p returns true.  It returns
// an empty [netip.Addr] if there are no addresses that satisfy p.
func (r ipRange) find(p ipPredicate) (ip netip.Addr) {
	if r == (ipRange{}) {
		return netip.Addr{}
	}

	// Iterate over a wider type so that a range ending at 255.255.255.255
	// terminates.
	for v := uint64(r.start); v <= uint64(r.end); v++ {
		ip = u32ToAddr(uint32(v))
		if p(ip) {
			return ip
		}
	}

	return netip.Addr{}
}

// String implements the fmt.Stringer interface for ipRange.
func (r ipRange) String() (s string) {
	return fmt.Sprintf("%s-%s", u32ToAddr(r.start), u32ToAddr(r.end))
}
