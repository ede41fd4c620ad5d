package executor

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"
)

var reservedPrefixes []netip.Prefix

func init() {
	for _, cidr := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.0.0.0/24",
		"192.0.2.0/24",
		"192.168.0.0/16",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"224.0.0.0/4",
		"240.0.0.0/4",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		reservedPrefixes = append(reservedPrefixes, netip.MustParsePrefix(cidr))
	}
}

// isReserved reports whether addr is loopback, private, link-local or
// otherwise not publicly routable.
func isReserved(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// blockReserved is a net.Dialer Control hook. It runs after name
// resolution, so it sees the address actually being dialed.
func blockReserved(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("blocked: invalid address %q", address)
	}
	if isReserved(ap.Addr()) {
		return fmt.Errorf("blocked: target address %s is private or reserved", ap.Addr())
	}
	return nil
}

func dialControl(blockPrivate bool) func(string, string, syscall.RawConn) error {
	if !blockPrivate {
		return nil
	}
	return blockReserved
}

// TargetError means the target host is unusable before any case runs.
type TargetError struct {
	Host string
	Err  error
}

func (e *TargetError) Error() string { return fmt.Sprintf("target %s: %v", e.Host, e.Err) }
func (e *TargetError) Unwrap() error { return e.Err }

// resolveTarget checks that host resolves and, when private targets are
// blocked, that at least one address is public.
func resolveTarget(ctx context.Context, resolver *net.Resolver, host string, blockPrivate bool) error {
	if addr, err := netip.ParseAddr(host); err == nil {
		if blockPrivate && isReserved(addr) {
			return &TargetError{Host: host, Err: fmt.Errorf("address %s is private or reserved", addr)}
		}
		return nil
	}
	addrs, err := resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return &TargetError{Host: host, Err: err}
	}
	if len(addrs) == 0 {
		return &TargetError{Host: host, Err: fmt.Errorf("no addresses")}
	}
	if !blockPrivate {
		return nil
	}
	for _, a := range addrs {
		if !isReserved(a) {
			return nil
		}
	}
	return &TargetError{Host: host, Err: fmt.Errorf("resolves only to private or reserved addresses")}
}
