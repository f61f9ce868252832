package dhcpd

import (
	"encoding/binary"
	"net"
	"net/netip"

	"github.com/google/gopacket/layers"
)

// Pure extractors over the option list of a DHCPv4 message.  Each returns the
// value of a well-known option and whether it was present with a usable
// payload.

// msgType returns the message type of the option list, if present.
func msgType(opts layers.DHCPOptions) (typ layers.DHCPMsgType, ok bool) {
	for _, opt := range opts {
		if opt.Type == layers.DHCPOptMessageType && len(opt.Data) > 0 {
			return layers.DHCPMsgType(opt.Data[0]), true
		}
	}

	return 0, false
}

// requestedIP returns the address from the requested-IP option, if any.
func requestedIP(opts layers.DHCPOptions) (ip netip.Addr, ok bool) {
	return ipOption(opts, layers.DHCPOptRequestIP)
}

// serverID returns the address from the server-identifier option, if any.
func serverID(opts layers.DHCPOptions) (ip netip.Addr, ok bool) {
	return ipOption(opts, layers.DHCPOptServerID)
}

// ipOption returns the IPv4 address carried by the option with the given
// code, if any.
func ipOption(opts layers.DHCPOptions, code layers.DHCPOpt) (ip netip.Addr, ok bool) {
	for _, opt := range opts {
		if opt.Type == code && len(opt.Data) == net.IPv4len {
			return netip.AddrFromSlice(opt.Data)
		}
	}

	return netip.Addr{}, false
}

// clientID returns the raw value of the client-identifier option, if any.
func clientID(opts layers.DHCPOptions) (id []byte, ok bool) {
	for _, opt := range opts {
		if opt.Type == layers.DHCPOptClientID && len(opt.Data) > 0 {
			return opt.Data, true
		}
	}

	return nil, false
}

// paramRequestList returns the option codes from the parameter-request-list
// option, if any.
func paramRequestList(opts layers.DHCPOptions) (codes []layers.DHCPOpt, ok bool) {
	for _, opt := range opts {
		if opt.Type != layers.DHCPOptParamsRequest || len(opt.Data) == 0 {
			continue
		}

		codes = make([]layers.DHCPOpt, 0, len(opt.Data))
		for _, c := range opt.Data {
			codes = append(codes, layers.DHCPOpt(c))
		}

		return codes, true
	}

	return nil, false
}

// leaseTimeOption returns the value of the IP-address-lease-time option in
// seconds, if any.
func leaseTimeOption(opts layers.DHCPOptions) (secs uint32, ok bool) {
	for _, opt := range opts {
		if opt.Type == layers.DHCPOptLeaseTime && len(opt.Data) == 4 {
			return binary.BigEndian.Uint32(opt.Data), true
		}
	}

	return 0, false
}

// vendorClassID returns the raw value of the vendor-class-identifier option,
// if any.
func vendorClassID(opts layers.DHCPOptions) (id []byte, ok bool) {
	for _, opt := range opts {
		if opt.Type == layers.DHCPOptClassID && len(opt.Data) > 0 {
			return opt.Data, true
		}
	}

	return nil, false
}

// messageOption returns the human-readable message option, if any.
func messageOption(opts layers.DHCPOptions) (msg string, ok bool) {
	for _, opt := range opts {
		if opt.Type == layers.DHCPOptMessage && len(opt.Data) > 0 {
			return string(opt.Data), true
		}
	}

	return "", false
}

// optionsFromParamRequests returns the subset of defaults whose codes appear
// in preqs, in the order given by preqs.  If a code appears in preqs more
// than once, the first occurrence wins; codes with no matching default are
// skipped.
func optionsFromParamRequests(
	preqs []layers.DHCPOpt,
	defaults layers.DHCPOptions,
) (res layers.DHCPOptions) {
	seen := map[layers.DHCPOpt]struct{}{}
	for _, code := range preqs {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		for _, opt := range defaults {
			if opt.Type == code {
				res = append(res, opt)

				break
			}
		}
	}

	return res
}

// Constructors for the options the handlers put into replies.

// optMessageType creates a message-type (53) option.
func optMessageType(typ layers.DHCPMsgType) (opt layers.DHCPOption) {
	return layers.NewDHCPOption(layers.DHCPOptMessageType, []byte{byte(typ)})
}

// optServerID creates a server-identifier (54) option.
func optServerID(ip netip.Addr) (opt layers.DHCPOption) {
	return layers.NewDHCPOption(layers.DHCPOptServerID, ip.AsSlice())
}

// optSubnetMask creates a subnet-mask (1) option for the given network.
func optSubnetMask(network netip.Prefix) (opt layers.DHCPOption) {
	mask := net.CIDRMask(network.Bits(), 32)

	return layers.NewDHCPOption(layers.DHCPOptSubnetMask, mask)
}

// optSeconds creates an option with code carrying secs as a big-endian
// 32-bit value, as used by the lease-time (51), renewal-time (58), and
// rebinding-time (59) options.
func optSeconds(code layers.DHCPOpt, secs uint32) (opt layers.DHCPOption) {
	return layers.NewDHCPOption(code, binary.BigEndian.AppendUint32(nil, secs))
}

// optMessage creates a message (56) option with the given reason.
func optMessage(reason string) (opt layers.DHCPOption) {
	return layers.NewDHCPOption(layers.DHCPOptMessage, []byte(reason))
}
