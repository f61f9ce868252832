// Package dhcpd implements a DHCPv4 server: it listens for client requests
// on the configured network interfaces, assigns IPv4 addresses out of
// per-subnet pools, tracks leases, and drives clients through the RFC 2131
// state machine.
package dhcpd

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// Server is a DHCPv4 server serving one or more subnets, each bound to its
// own network interface.
type Server struct {
	// conf is the server configuration.  It must not be modified after [New].
	conf *Config

	// metrics counts the served and dropped packets.
	metrics *metrics

	// subnets are the served subnets.
	subnets []*subnet4

	// devices are the network devices opened in [Server.Start], in the order
	// of conf.Subnets.  Those are closed in [Server.Shutdown].
	devices []NetworkDevice
}

// New creates a new DHCP server with the given configuration.  conf must be
// valid.
func New(ctx context.Context, conf *Config) (srv *Server, err error) {
	defer func() { err = errors.Annotate(err, "dhcpd: %w") }()

	err = conf.Validate()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	c := *conf
	c.setDefaults()

	m, err := newMetrics(c.PromRegistry)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}

	srv = &Server{
		conf:    &c,
		metrics: m,
	}

	for _, sc := range c.Subnets {
		snLogger := c.Logger.With("iface", sc.InterfaceName, "subnet", sc.Subnet)

		var sn *subnet4
		sn, err = newSubnet4(snLogger, srv.conf, sc, c.Clock, m)
		if err != nil {
			return nil, fmt.Errorf("subnet %s: %w", sc.Subnet, err)
		}

		srv.subnets = append(srv.subnets, sn)
	}

	return srv, nil
}

// Start opens the network devices and starts serving each subnet in its own
// goroutine.
func (srv *Server) Start(ctx context.Context) (err error) {
	srv.conf.Logger.DebugContext(ctx, "starting dhcp server")

	var errs []error
	for _, sn := range srv.subnets {
		dev, openErr := srv.conf.DeviceManager.Open(ctx, sn.ifaceName)
		if openErr != nil {
			errs = append(errs, fmt.Errorf("opening device %q: %w", sn.ifaceName, openErr))

			continue
		}

		srv.devices = append(srv.devices, dev)

		go srv.serveSubnet(context.WithoutCancel(ctx), sn, dev)

		sn.logger.InfoContext(ctx, "listening")
	}

	return errors.Join(errs...)
}

// Shutdown closes the network devices, stopping the subnet goroutines.
func (srv *Server) Shutdown(ctx context.Context) (err error) {
	srv.conf.Logger.DebugContext(ctx, "shutting down dhcp server")

	var errs []error
	for i, dev := range srv.devices {
		closeErr := dev.Close()
		if closeErr != nil {
			name := srv.subnets[i].ifaceName
			errs = append(errs, fmt.Errorf("closing device %q: %w", name, closeErr))
		}
	}

	return errors.Join(errs...)
}

// Leases returns a snapshot of the unexpired leases of all subnets.  It is
// safe for concurrent use.
func (srv *Server) Leases() (leases []*Lease) {
	for _, sn := range srv.subnets {
		sn.dbMu.Lock()
		leases = append(leases, sn.db.leases4()...)
		sn.dbMu.Unlock()
	}

	return leases
}

// MACByIP returns the hardware address of the client currently holding ip,
// or nil if there is none.  It is safe for concurrent use.
func (srv *Server) MACByIP(ip netip.Addr) (mac net.HardwareAddr) {
	for _, sn := range srv.subnets {
		sn.dbMu.Lock()
		l, held := sn.db.byAddr[ip]
		if held && !l.Expired(sn.db.clock.Now()) {
			mac = l.HWAddr
		}
		sn.dbMu.Unlock()

		if mac != nil {
			return mac
		}
	}

	return nil
}
