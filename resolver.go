package tftp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ResolveErrorKind classifies why the resolver stub could not produce a
// peer address, mirroring original_source's dns::errc enum (spec §4.4).
type ResolveErrorKind int

const (
	ResolveNameNotFound ResolveErrorKind = iota
	ResolveAddressNotFound
	ResolveServiceNotFound
	ResolveTransientFailure
	ResolvePermanentFailure
	ResolveInvalidFlags
	ResolveOutOfMemory
	ResolveSystemError
	ResolveAddressFamilyUnsupported
)

func (k ResolveErrorKind) String() string {
	switch k {
	case ResolveNameNotFound:
		return "name not found"
	case ResolveAddressNotFound:
		return "address not found"
	case ResolveServiceNotFound:
		return "service not found"
	case ResolveTransientFailure:
		return "transient failure"
	case ResolvePermanentFailure:
		return "permanent failure"
	case ResolveInvalidFlags:
		return "invalid flags"
	case ResolveOutOfMemory:
		return "out of memory"
	case ResolveSystemError:
		return "system error"
	case ResolveAddressFamilyUnsupported:
		return "address family unsupported"
	default:
		return "unknown"
	}
}

// ResolveError reports a resolver-stub failure (spec §4.4, §9 "Resolve").
type ResolveError struct {
	Kind ResolveErrorKind
	Host string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("tftp: resolve %q: %s: %v", e.Host, e.Kind, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// resolve adapts net.Resolver (the external name-resolution capability, out
// of scope per spec §1) into a concrete *net.UDPAddr, classifying failures
// into the resolver's error taxonomy. hostport may carry an explicit
// ":port" suffix (spec §6 CLI -H/--host); defaultPort (69) applies
// otherwise.
func resolve(ctx context.Context, resolver *net.Resolver, hostport string, defaultPort int) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
		portStr = strconv.Itoa(defaultPort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, &ResolveError{Kind: ResolveServiceNotFound, Host: hostport, Err: err}
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}
	ips, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, &ResolveError{Kind: classifyDNSError(err), Host: hostport, Err: err}
	}
	if len(ips) == 0 {
		return nil, &ResolveError{Kind: ResolveAddressNotFound, Host: hostport, Err: errors.New("no addresses returned")}
	}
	return &net.UDPAddr{IP: ips[0].IP, Port: port, Zone: ips[0].Zone}, nil
}

func classifyDNSError(err error) ResolveErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return ResolveNameNotFound
		case dnsErr.IsTimeout:
			return ResolveTransientFailure
		case dnsErr.IsTemporary:
			return ResolveTransientFailure
		default:
			return ResolvePermanentFailure
		}
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return ResolveAddressFamilyUnsupported
	}
	return ResolveSystemError
}
