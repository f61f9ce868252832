package dhcpd

import (
	"log/slog"
	"net/netip"
	"sync"

	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/google/gopacket/layers"
)

// subnet4 is a single served subnet: the interface it is bound to, the
// address range handed out to clients, the per-subnet default options, and
// the lease database.
type subnet4 struct {
	// logger logs the events related to the subnet.
	logger *slog.Logger

	// conf is the global server configuration.
	conf *Config

	// metrics counts the served and dropped packets.
	metrics *metrics

	// addrChecker probes addresses before they are offered.
	addrChecker addressChecker

	// network is the served IPv4 network.
	network netip.Prefix

	// ourIP is the server's address on the interface, used as the server
	// identifier.
	ourIP netip.Addr

	// ifaceName is the name of the bound network interface.
	ifaceName string

	// defaults are the per-subnet default options handed to clients that
	// request them.
	defaults layers.DHCPOptions

	// dbMu protects db.  Each subnet is served by a single goroutine, but the
	// control-plane accessors read the database concurrently.
	dbMu *sync.Mutex

	// db is the subnet's lease database.
	db *leaseDB
}

// newSubnet4 creates a subnet from its configuration.  conf and sc must be
// valid, logger and m must not be nil.
func newSubnet4(
	logger *slog.Logger,
	conf *Config,
	sc *SubnetConfig,
	clock timeutil.Clock,
	m *metrics,
) (sn *subnet4, err error) {
	addrSpace, err := newIPRange(sc.RangeStart, sc.RangeEnd)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	var checker addressChecker = noopAddressChecker{}
	if conf.ICMPTimeout > 0 {
		checker = &icmpAddressChecker{timeout: conf.ICMPTimeout}
	}

	return &subnet4{
		logger:      logger,
		conf:        conf,
		metrics:     m,
		addrChecker: checker,
		network:     sc.Subnet.Masked(),
		ourIP:       sc.ServerIP,
		ifaceName:   sc.InterfaceName,
		defaults:    sc.Options,
		dbMu:        &sync.Mutex{},
		db:          newLeaseDB(clock, addrSpace),
	}, nil
}

// paramRequestSubset returns the subset of the subnet's default options that
// the client asked for in its parameter request list, if any.
func (sn *subnet4) paramRequestSubset(req *layers.DHCPv4) (opts layers.DHCPOptions) {
	preqs, ok := paramRequestList(req.Options)
	if !ok {
		return nil
	}

	return optionsFromParamRequests(preqs, sn.defaults)
}
