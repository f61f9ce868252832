package dhcpd

import (
	"fmt"
	"math"
	"net"
	"net/netip"
	"slices"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"
)

// leaseDB is the in-memory lease database of a single subnet.  Leases are
// keyed by the client key; expiry is evaluated lazily, so an expired lease
// stays in the maps but no longer counts as holding its address.
//
// The database itself performs no locking; the owning subnet serializes
// access to it.
type leaseDB struct {
	// clock is used to get current time.  It must not be nil.
	clock timeutil.Clock

	// leases maps client keys to their leases.  At most one lease per client
	// key.
	leases map[clientKey]*Lease

	// byAddr indexes the leases by their IP addresses.  At most one unexpired
	// lease per address; an entry may belong to an expired lease until its
	// address is reallocated.
	byAddr map[netip.Addr]*Lease

	// addrSpace is the IPv4 address range allocated for leasing.
	addrSpace ipRange
}

// newLeaseDB returns a new lease database over the given address range.
// clock must not be nil.
func newLeaseDB(clock timeutil.Clock, addrSpace ipRange) (db *leaseDB) {
	return &leaseDB{
		clock:     clock,
		leases:    map[clientKey]*Lease{},
		byAddr:    map[netip.Addr]*Lease{},
		addrSpace: addrSpace,
	}
}

// lookup returns the lease for ck, or nil if there is none.  It doesn't
// mutate the database.
func (db *leaseDB) lookup(ck clientKey) (l *Lease) {
	return db.leases[ck]
}

// replace inserts l for ck, overwriting any previous lease of that client.
// l must not be nil and l.ClientID must equal ck.
func (db *leaseDB) replace(ck clientKey, l *Lease) {
	if l.ClientID != ck {
		panic(fmt.Errorf("dhcpd: lease client id %q does not match key %q", l.ClientID, ck))
	}

	prev := db.leases[ck]
	if prev != nil && prev.IP != l.IP && db.byAddr[prev.IP] == prev {
		delete(db.byAddr, prev.IP)
	}

	db.leases[ck] = l
	db.byAddr[l.IP] = l
}

// remove deletes the lease for ck.  It is a no-op if there is none.
func (db *leaseDB) remove(ck clientKey) {
	l := db.leases[ck]
	if l == nil {
		return
	}

	delete(db.leases, ck)

	// The address entry may already belong to another client if this lease
	// expired and the address was reallocated.
	if db.byAddr[l.IP] == l {
		delete(db.byAddr, l.IP)
	}
}

// addrInRange returns true if addr lies within the subnet's address range.
func (db *leaseDB) addrInRange(addr netip.Addr) (ok bool) {
	return db.addrSpace.contains(addr)
}

// addrAvailable returns true if no unexpired lease holds addr.  Addresses
// outside the range are available to the store, although allocation never
// hands them out.
func (db *leaseDB) addrAvailable(addr netip.Addr) (ok bool) {
	l, held := db.byAddr[addr]

	return !held || l.Expired(db.clock.Now())
}

// nextUsableAddr returns the first address in the range that is currently
// available.  It returns an empty [netip.Addr] if every address in the range
// is held by an unexpired lease.
func (db *leaseDB) nextUsableAddr() (ip netip.Addr) {
	now := db.clock.Now()

	return db.addrSpace.find(func(next netip.Addr) (ok bool) {
		l, held := db.byAddr[next]

		return !held || l.Expired(now)
	})
}

// timeLeft returns the number of seconds until the lease expires, clamped at
// zero.
func (db *leaseDB) timeLeft(l *Lease) (secs uint32) {
	rem := l.Expiry.Sub(db.clock.Now())
	if rem < 0 {
		return 0
	}

	return uint32((rem + time.Second/2) / time.Second)
}

// timeLeft3 returns the remaining lifetime of the lease along with the
// renewal (T1) and rebinding (T2) times derived from it, rounded to whole
// seconds.
func (db *leaseDB) timeLeft3(l *Lease, t1Ratio, t2Ratio float64) (lt, t1, t2 uint32) {
	lt = db.timeLeft(l)

	return lt, roundRatio(lt, t1Ratio), roundRatio(lt, t2Ratio)
}

// roundRatio returns ratio of secs, rounded to the nearest whole second.
func roundRatio(secs uint32, ratio float64) (res uint32) {
	return uint32(math.Round(ratio * float64(secs)))
}

// makeLease creates a lease for ck starting now and expiring after d.  The
// lease is not inserted into the database.
func (db *leaseDB) makeLease(
	ck clientKey,
	mac net.HardwareAddr,
	addr netip.Addr,
	d time.Duration,
) (l *Lease) {
	now := db.clock.Now()

	return &Lease{
		Start:    now,
		Expiry:   now.Add(d),
		IP:       addr,
		HWAddr:   slices.Clone(mac),
		ClientID: ck,
	}
}

// leases4 returns a snapshot of all unexpired leases in the database.
func (db *leaseDB) leases4() (leases []*Lease) {
	now := db.clock.Now()
	for _, l := range db.leases {
		if !l.Expired(now) {
			leases = append(leases, l.Clone())
		}
	}

	return leases
}
