package dhcpd

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
)

// Default T1 and T2 ratios as suggested by RFC 2131 Section 4.4.5.
const (
	defaultT1Ratio = 0.5
	defaultT2Ratio = 0.875
)

// Default bounds for lease times requested by clients.
const (
	defaultLeaseTime    = 24 * time.Hour
	defaultMinLeaseTime = 1 * time.Minute
	defaultMaxLeaseTime = 7 * 24 * time.Hour
)

// Config is the configuration for the DHCP server.
type Config struct {
	// Logger is used to log the DHCP events.  It must not be nil.
	Logger *slog.Logger

	// Clock is used to get current time.  If nil, [timeutil.SystemClock] is
	// used.
	Clock timeutil.Clock

	// DeviceManager opens the network devices the subnets listen on.  It must
	// not be nil.
	DeviceManager NetworkDeviceManager

	// PromRegistry receives the server's metrics.  If nil, the metrics are
	// not registered.
	PromRegistry prometheus.Registerer

	// Hostname is the server hostname announced in the sname field of
	// replies.
	Hostname string

	// Subnets are the served subnets.  It must not be empty and each entry
	// must be valid.
	Subnets []*SubnetConfig

	// DefaultLeaseTime is the lease duration granted when the client doesn't
	// ask for a particular one.  If zero, a default of a day is used.
	DefaultLeaseTime time.Duration

	// MinLeaseTime and MaxLeaseTime bound the lease durations the server
	// accepts from clients.
	MinLeaseTime time.Duration
	MaxLeaseTime time.Duration

	// T1Ratio and T2Ratio are the fractions of the lease time after which the
	// client enters the RENEWING and REBINDING states.  If zero, the RFC 2131
	// defaults of 0.5 and 0.875 are used.
	T1Ratio float64
	T2Ratio float64

	// ICMPTimeout is the timeout for probing an address before offering it.
	// If zero, the probe is skipped.
	ICMPTimeout time.Duration
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (conf *Config) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", conf.Logger),
		validate.NotNilInterface("DeviceManager", conf.DeviceManager),
		validate.NotNegative("DefaultLeaseTime", conf.DefaultLeaseTime),
		validate.NotNegative("ICMPTimeout", conf.ICMPTimeout),
		validate.NotEmptySlice("Subnets", conf.Subnets),
	}

	if conf.T1Ratio < 0 || conf.T1Ratio > 1 {
		errs = append(errs, fmt.Errorf("T1Ratio: %w: %v", errors.ErrOutOfRange, conf.T1Ratio))
	}
	if conf.T2Ratio < 0 || conf.T2Ratio > 1 {
		errs = append(errs, fmt.Errorf("T2Ratio: %w: %v", errors.ErrOutOfRange, conf.T2Ratio))
	}

	for i, sc := range conf.Subnets {
		errs = validate.Append(errs, fmt.Sprintf("Subnets at index %d", i), sc)
	}

	return errors.Join(errs...)
}

// setDefaults fills the zero fields of conf that have defaults.
func (conf *Config) setDefaults() {
	if conf.Clock == nil {
		conf.Clock = timeutil.SystemClock{}
	}
	if conf.DefaultLeaseTime == 0 {
		conf.DefaultLeaseTime = defaultLeaseTime
	}
	if conf.MinLeaseTime == 0 {
		conf.MinLeaseTime = defaultMinLeaseTime
	}
	if conf.MaxLeaseTime == 0 {
		conf.MaxLeaseTime = defaultMaxLeaseTime
	}
	if conf.T1Ratio == 0 {
		conf.T1Ratio = defaultT1Ratio
	}
	if conf.T2Ratio == 0 {
		conf.T2Ratio = defaultT2Ratio
	}
}

// leaseTimeGood returns true if a client-requested lease duration is within
// the configured bounds.
func (conf *Config) leaseTimeGood(d time.Duration) (ok bool) {
	return d >= conf.MinLeaseTime && d <= conf.MaxLeaseTime
}

// SubnetConfig is the configuration of a single served subnet.
type SubnetConfig struct {
	// InterfaceName is the name of the network interface the subnet is bound
	// to.  It must not be empty.
	InterfaceName string

	// Subnet is the IPv4 network served on the interface.
	Subnet netip.Prefix

	// ServerIP is the IPv4 address of the server on the interface.  It must
	// be within Subnet and outside of the address range.
	ServerIP netip.Addr

	// RangeStart and RangeEnd bound, inclusively, the addresses handed out to
	// clients.  Both must be within Subnet.
	RangeStart netip.Addr
	RangeEnd   netip.Addr

	// Options is the list of per-subnet default options offered to clients
	// that request them.
	Options layers.DHCPOptions
}

// type check
var _ validate.Interface = (*SubnetConfig)(nil)

// Validate implements the [validate.Interface] interface for *SubnetConfig.
func (sc *SubnetConfig) Validate() (err error) {
	if sc == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("InterfaceName", sc.InterfaceName),
	}

	if !sc.Subnet.IsValid() || !sc.Subnet.Addr().Is4() {
		errs = append(errs, newMustErr("Subnet", "be a valid ipv4 prefix", sc.Subnet))
	}
	if !sc.ServerIP.Is4() {
		errs = append(errs, newMustErr("ServerIP", "be a valid ipv4", sc.ServerIP))
	}

	addrSpace, err := newIPRange(sc.RangeStart, sc.RangeEnd)
	if err != nil {
		errs = append(errs, err)
	} else if addrSpace.contains(sc.ServerIP) {
		errs = append(errs, fmt.Errorf("server ip %s in the ip range %s", sc.ServerIP, addrSpace))
	}

	switch {
	case !sc.Subnet.Contains(sc.RangeStart):
		errs = append(errs, fmt.Errorf("range start %s is not within %s", sc.RangeStart, sc.Subnet))
	case !sc.Subnet.Contains(sc.RangeEnd):
		errs = append(errs, fmt.Errorf("range end %s is not within %s", sc.RangeEnd, sc.Subnet))
	case !sc.Subnet.Contains(sc.ServerIP):
		errs = append(errs, fmt.Errorf("server ip %s is not within %s", sc.ServerIP, sc.Subnet))
	}

	return errors.Join(errs...)
}

// newMustErr returns an error stating the requirement on the value of a
// configuration field.
func newMustErr(name, must string, val any) (err error) {
	return fmt.Errorf("%s %v must %s", name, val, must)
}
