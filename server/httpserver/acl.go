package httpserver

import (
	"net"
	"strings"

	"github.com/pkg/errors"
)

// accessList decides which peers may talk to the HTTP server. Loopback
// sources are always permitted; everything else has to match one of the
// configured subnets.
type accessList struct {
	subnets []*net.IPNet
}

// newAccessList builds an access list from -rpcallowip style values. Each
// value is a single IP, a network/CIDR or a network/netmask. The loopback
// networks are seeded unconditionally.
func newAccessList(allowIPs []string) (*accessList, error) {
	acl := &accessList{}
	for _, loopback := range []string{"127.0.0.0/8", "::1/128"} {
		_, subnet, err := net.ParseCIDR(loopback)
		if err != nil {
			return nil, err
		}
		acl.subnets = append(acl.subnets, subnet)
	}

	for _, allowIP := range allowIPs {
		subnet, err := parseSubnet(allowIP)
		if err != nil {
			return nil, err
		}
		acl.subnets = append(acl.subnets, subnet)
	}

	return acl, nil
}

// parseSubnet converts a single IP, network/CIDR or network/netmask value
// into a subnet.
func parseSubnet(allowIP string) (*net.IPNet, error) {
	if !strings.Contains(allowIP, "/") {
		ip := net.ParseIP(allowIP)
		if ip == nil {
			return nil, errors.Errorf("invalid IP address or subnet '%s'", allowIP)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
	}

	if _, subnet, err := net.ParseCIDR(allowIP); err == nil {
		return subnet, nil
	}

	// network/netmask form, e.g. 1.2.3.4/255.255.255.0
	parts := strings.SplitN(allowIP, "/", 2)
	ip := net.ParseIP(parts[0])
	maskIP := net.ParseIP(parts[1])
	if ip == nil || maskIP == nil {
		return nil, errors.Errorf("invalid IP address or subnet '%s'", allowIP)
	}
	mask := net.IPMask(maskIP.To4())
	if maskIP.To4() == nil {
		mask = net.IPMask(maskIP.To16())
	}
	if _, bits := mask.Size(); bits == 0 {
		return nil, errors.Errorf("invalid netmask in subnet '%s'", allowIP)
	}
	return &net.IPNet{IP: ip.Mask(mask), Mask: mask}, nil
}

// clientAllowed returns whether the given peer address may use the server.
func (acl *accessList) clientAllowed(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, subnet := range acl.subnets {
		if subnet.Contains(ip) {
			return true
		}
	}
	return false
}

// String returns the allowed subnets as a space separated list for logging.
func (acl *accessList) String() string {
	strs := make([]string, 0, len(acl.subnets))
	for _, subnet := range acl.subnets {
		strs = append(strs, subnet.String())
	}
	return strings.Join(strs, " ")
}
