package dhcpd

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket/layers"
)

// optionHandler is a parser for the value of a single option type.
type optionHandler func(s string) (data []byte, err error)

// hexOptionHandler parses an option value as a hex-encoded string.  For
// example:
//
//	252 hex 736f636b733a2f2f70726f78792e6578616d706c652e6f7267
func hexOptionHandler(s string) (data []byte, err error) {
	data, err = hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}

	return data, nil
}

// ipOptionHandler parses an option value as a single IPv4 address.  For
// example:
//
//	3 ip 192.168.1.1
func ipOptionHandler(s string) (data []byte, err error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, errors.Error("invalid ip")
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%s is not an ipv4 address", s)
	}

	return ip4, nil
}

// ipsOptionHandler parses an option value as a comma-separated list of IPv4
// addresses.  For example:
//
//	6 ips 192.168.1.1,192.168.1.2
func ipsOptionHandler(s string) (data []byte, err error) {
	for i, ipStr := range strings.Split(s, ",") {
		var ipData []byte
		ipData, err = ipOptionHandler(ipStr)
		if err != nil {
			return nil, fmt.Errorf("parsing ip at index %d: %w", i, err)
		}

		data = append(data, ipData...)
	}

	return data, nil
}

// textOptionHandler parses an option value as a simple UTF-8 encoded text.
// For example:
//
//	252 text http://192.168.1.1/wpad.dat
func textOptionHandler(s string) (data []byte, err error) {
	return []byte(s), nil
}

// optionHandlers maps the option value types to their parsers.
var optionHandlers = map[string]optionHandler{
	"hex":  hexOptionHandler,
	"ip":   ipOptionHandler,
	"ips":  ipsOptionHandler,
	"text": textOptionHandler,
}

// ParseOption parses a DHCP option from its "code type value" textual form,
// as used in the configuration file.
func ParseOption(s string) (opt layers.DHCPOption, err error) {
	defer func() { err = errors.Annotate(err, "invalid option string %q: %w", s) }()

	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, " ", 3)
	if len(parts) < 3 {
		return layers.DHCPOption{}, errors.Error("need at least three fields")
	}

	codeStr, typ, val := parts[0], parts[1], parts[2]

	code, err := strconv.ParseUint(codeStr, 10, 8)
	if err != nil {
		return layers.DHCPOption{}, fmt.Errorf("parsing option code: %w", err)
	}

	h, ok := optionHandlers[typ]
	if !ok {
		return layers.DHCPOption{}, fmt.Errorf("unknown option type %q", typ)
	}

	data, err := h(val)
	if err != nil {
		// Don't wrap the error since there is already an annotation deferred.
		return layers.DHCPOption{}, err
	}

	return layers.NewDHCPOption(layers.DHCPOpt(code), data), nil
}
