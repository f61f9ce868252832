package dhcpd

import (
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/google/gopacket/layers"
)

// clientKey uniquely identifies a DHCP client within a subnet.  It is the
// value of the client-identifier option when the client sends one, and the
// hardware type concatenated with the hardware address otherwise.  A client
// that changes its client-identifier over the same hardware address is a
// distinct client.
type clientKey string

// keyForPacket computes the client key for req.  req must not be nil.
func keyForPacket(req *layers.DHCPv4) (ck clientKey) {
	if id, ok := clientID(req.Options); ok {
		return clientKey(id)
	}

	b := make([]byte, 0, 1+len(req.ClientHWAddr))
	b = append(b, byte(req.HardwareType))
	b = append(b, req.ClientHWAddr...)

	return clientKey(b)
}

// Lease is a DHCP lease.
type Lease struct {
	// Start is the time the lease was issued.
	Start time.Time

	// Expiry is the expiration time of the lease.
	Expiry time.Time

	// IP is the IP address leased to the client.  It must be a valid IPv4
	// address.
	IP netip.Addr

	// HWAddr is the physical hardware (MAC) address.  It must not be nil.
	HWAddr net.HardwareAddr

	// ClientID is the stable identifier of the client holding the lease.
	ClientID clientKey
}

// Expired returns true if the lease is expired at the given moment.
func (l *Lease) Expired(now time.Time) (ok bool) {
	return !now.Before(l.Expiry)
}

// Clone returns a deep copy of l.
func (l *Lease) Clone() (clone *Lease) {
	if l == nil {
		return nil
	}

	return &Lease{
		Start:    l.Start,
		Expiry:   l.Expiry,
		IP:       l.IP,
		HWAddr:   slices.Clone(l.HWAddr),
		ClientID: l.ClientID,
	}
}
