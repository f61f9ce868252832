package dhcpd

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

// testLogger is a common logger for tests.
var testLogger = slogutil.NewDiscardLogger()

// testIfaceName is the name of the test network interface.
const testIfaceName = "iface0"

// testXid is a common transaction ID for tests.
const testXid uint32 = 0x3903F326

// testLeaseTime is the default lease duration used in tests.
const testLeaseTime = 3600 * time.Second

// Test addresses of the served subnet.
var (
	testSubnet     = netip.MustParsePrefix("192.168.1.0/24")
	testServerIP   = netip.MustParseAddr("192.168.1.1")
	testRangeStart = netip.MustParseAddr("192.168.1.100")
	testRangeEnd   = netip.MustParseAddr("192.168.1.200")
)

// Test hardware addresses.
var (
	testMAC1      = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01}
	testMAC2      = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x02}
	testServerMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
)

// testStartTime is the fixed initial time of the test clock.
var testStartTime = time.Date(2025, 1, 1, 1, 1, 1, 0, time.UTC)

// testClock is a [timeutil.Clock] for tests that can be advanced manually.
type testClock struct {
	mu  *sync.Mutex
	now time.Time
}

// newTestClock returns a clock set to [testStartTime].
func newTestClock() (c *testClock) {
	return &testClock{
		mu:  &sync.Mutex{},
		now: testStartTime,
	}
}

// Now implements the [timeutil.Clock] interface for *testClock.
func (c *testClock) Now() (now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// advance moves the clock forward by d.
func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// captureDevice is a [NetworkDevice] that collects the written frames.
type captureDevice struct {
	frames [][]byte
}

// type check
var _ NetworkDevice = (*captureDevice)(nil)

// ReadPacketData implements the [gopacket.PacketDataSource] interface for
// *captureDevice.  It isn't used by handler tests.
func (d *captureDevice) ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error) {
	return nil, gopacket.CaptureInfo{}, nil
}

// Close implements the [io.Closer] interface for *captureDevice.
func (d *captureDevice) Close() (err error) { return nil }

// HardwareAddr implements the [NetworkDevice] interface for *captureDevice.
func (d *captureDevice) HardwareAddr() (mac net.HardwareAddr) { return testServerMAC }

// LinkType implements the [NetworkDevice] interface for *captureDevice.
func (d *captureDevice) LinkType() (lt layers.LinkType) { return layers.LinkTypeEthernet }

// WritePacketData implements the [NetworkDevice] interface for
// *captureDevice.
func (d *captureDevice) WritePacketData(data []byte) (err error) {
	d.frames = append(d.frames, data)

	return nil
}

// newTestSubnet creates a subnet over the test network with a manually
// advanced clock and a capturing device.
func newTestSubnet(tb testing.TB) (sn *subnet4, dev *captureDevice, clock *testClock) {
	tb.Helper()

	clock = newTestClock()
	conf := &Config{
		Logger:           testLogger,
		Clock:            clock,
		DeviceManager:    testDeviceManager{},
		Hostname:         "dhcpd-test",
		DefaultLeaseTime: testLeaseTime,
		MinLeaseTime:     1 * time.Minute,
		MaxLeaseTime:     24 * time.Hour,
		T1Ratio:          defaultT1Ratio,
		T2Ratio:          defaultT2Ratio,
	}

	m, err := newMetrics(nil)
	require.NoError(tb, err)

	sn, err = newSubnet4(testLogger, conf, &SubnetConfig{
		InterfaceName: testIfaceName,
		Subnet:        testSubnet,
		ServerIP:      testServerIP,
		RangeStart:    testRangeStart,
		RangeEnd:      testRangeEnd,
	}, clock, m)
	require.NoError(tb, err)

	dev = &captureDevice{}

	return sn, dev, clock
}

// testDeviceManager is a [NetworkDeviceManager] that isn't expected to be
// called by handler tests.
type testDeviceManager struct{}

// Open implements the [NetworkDeviceManager] interface for
// testDeviceManager.
func (testDeviceManager) Open(_ context.Context, _ string) (dev NetworkDevice, err error) {
	return &captureDevice{}, nil
}

// newInboundFrame returns the link-level context for a request from the
// given client hardware address.
func newInboundFrame(dev NetworkDevice, mac net.HardwareAddr) (frm *inboundFrame) {
	return &inboundFrame{
		srcMAC: mac,
		device: dev,
	}
}

// newTestRequest constructs a valid inbound DHCPv4 request of the given type
// from mac, applying mods to it afterwards.
func newTestRequest(
	typ layers.DHCPMsgType,
	mac net.HardwareAddr,
	mods ...func(req *layers.DHCPv4),
) (req *layers.DHCPv4) {
	req = &layers.DHCPv4{
		Operation:    layers.DHCPOpRequest,
		HardwareType: layers.LinkTypeEthernet,
		HardwareLen:  hwAddrLen,
		Xid:          testXid,
		Flags:        broadcastFlag,
		ClientIP:     net.IPv4zero.To4(),
		YourClientIP: net.IPv4zero.To4(),
		NextServerIP: net.IPv4zero.To4(),
		RelayAgentIP: net.IPv4zero.To4(),
		ClientHWAddr: mac,
		Options: layers.DHCPOptions{
			optMessageType(typ),
		},
	}

	for _, mod := range mods {
		mod(req)
	}

	return req
}

// Request modifiers for [newTestRequest].

// withOption appends an option to the request.
func withOption(opt layers.DHCPOption) (mod func(req *layers.DHCPv4)) {
	return func(req *layers.DHCPv4) {
		req.Options = append(req.Options, opt)
	}
}

// withRequestedIP appends a requested-IP option to the request.
func withRequestedIP(ip netip.Addr) (mod func(req *layers.DHCPv4)) {
	return withOption(layers.NewDHCPOption(layers.DHCPOptRequestIP, ip.AsSlice()))
}

// withServerID appends a server-identifier option to the request.
func withServerID(ip netip.Addr) (mod func(req *layers.DHCPv4)) {
	return withOption(optServerID(ip))
}

// withCiaddr sets the ciaddr field of the request.
func withCiaddr(ip netip.Addr) (mod func(req *layers.DHCPv4)) {
	return func(req *layers.DHCPv4) {
		req.ClientIP = ip.AsSlice()
	}
}

// withUnicastFlag clears the broadcast bit of the request.
func withUnicastFlag() (mod func(req *layers.DHCPv4)) {
	return func(req *layers.DHCPv4) {
		req.Flags = 0
	}
}

// replyFrame is a decoded reply written by the subnet under test.
type replyFrame struct {
	eth  *layers.Ethernet
	ip   *layers.IPv4
	udp  *layers.UDP
	dhcp *layers.DHCPv4
}

// lastReply requires that at least one frame has been written to dev and
// decodes the last one.
func lastReply(tb testing.TB, dev *captureDevice) (rf *replyFrame) {
	tb.Helper()

	require.NotEmpty(tb, dev.frames)

	return decodeReply(tb, dev.frames[len(dev.frames)-1])
}

// decodeReply decodes a written frame into its layers.
func decodeReply(tb testing.TB, data []byte) (rf *replyFrame) {
	tb.Helper()

	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(tb, pkt.ErrorLayer())

	rf = &replyFrame{}

	var ok bool
	rf.eth, ok = pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(tb, ok)

	rf.ip, ok = pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(tb, ok)

	rf.udp, ok = pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(tb, ok)

	rf.dhcp, ok = pkt.Layer(layers.LayerTypeDHCPv4).(*layers.DHCPv4)
	require.True(tb, ok)

	return rf
}

// optValue returns the payload of the first option with the given code in
// opts, or nil if there is none.
func optValue(opts layers.DHCPOptions, code layers.DHCPOpt) (data []byte) {
	for _, opt := range opts {
		if opt.Type == code {
			return opt.Data
		}
	}

	return nil
}

// optCount returns the number of options with the given code in opts.
func optCount(opts layers.DHCPOptions, code layers.DHCPOpt) (n int) {
	for _, opt := range opts {
		if opt.Type == code {
			n++
		}
	}

	return n
}

// requireMsgType requires that opts carry the given message type.
func requireMsgType(tb testing.TB, opts layers.DHCPOptions, want layers.DHCPMsgType) {
	tb.Helper()

	typ, ok := msgType(opts)
	require.True(tb, ok)
	require.Equal(tb, want, typ)
}
