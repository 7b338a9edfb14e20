package network

import (
	"net"

	"github.com/pkg/errors"
)

// NormalizeAddresses appends the default port to every address in addrs that
// does not name one and drops duplicates, preserving the order in which the
// addresses first appear.
func NormalizeAddresses(addrs []string, defaultPort string) ([]string, error) {
	normalized := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		addr, err := NormalizeAddress(addr, defaultPort)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		normalized = append(normalized, addr)
	}
	return normalized, nil
}

// NormalizeAddress appends the default port to addr if it does not already
// name one.
func NormalizeAddress(addr, defaultPort string) (string, error) {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr, nil
	}

	// SplitHostPort also fails on addresses that are malformed in other
	// ways than a missing port, so the joined form is validated again.
	addrWithPort := net.JoinHostPort(addr, defaultPort)
	if _, _, err := net.SplitHostPort(addrWithPort); err != nil {
		return "", errors.Wrapf(err, "invalid address %q", addr)
	}
	return addrWithPort, nil
}
