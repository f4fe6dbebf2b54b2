// Package target validates and expands scan target specifications.
// A specification can be a literal IPv4/IPv6 address, a resolvable
// hostname, or a CIDR block. Validation resolves the specification into a
// bounded set of concrete addresses before any job is created.
package target

import (
	"context"
	"net"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/miekg/dns"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
	"github.com/scanweave/scanweave/internal/logging"
)

const (
	// reverseLookupTimeout bounds the optional PTR enrichment so a slow
	// resolver cannot stall validation.
	reverseLookupTimeout = 2 * time.Second

	defaultResolvConf = "/etc/resolv.conf"
)

// hostnameRe matches RFC 952/1123 style names; it is a cheap pre-filter
// before the resolver is consulted.
var hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]{0,252}[a-zA-Z0-9])?$`)

// Target is a validated host specification expanded to concrete addresses.
type Target struct {
	// Spec is the original specification string
	Spec string
	// Hosts are the concrete addresses the spec expands to; never empty
	Hosts []string
	// Hostname is the name associated with the target, when known
	Hostname string
}

// Options controls validation behavior.
type Options struct {
	// MaxCIDRHosts caps CIDR expansion; expansions beyond the cap are
	// rejected as invalid targets
	MaxCIDRHosts int
	// ReverseDNS enables PTR enrichment of literal IP targets
	ReverseDNS bool
	// Resolver used for hostname lookups; nil uses the system resolver
	Resolver *net.Resolver
	// ResolvConf is the resolver configuration consulted for PTR queries
	ResolvConf string
}

// DefaultOptions returns validation options with a 1024-host CIDR cap and
// reverse DNS disabled.
func DefaultOptions() Options {
	return Options{
		MaxCIDRHosts: 1024,
		ReverseDNS:   false,
		ResolvConf:   defaultResolvConf,
	}
}

// Validate resolves and sanitizes a target specification. It fails with a
// TARGET_INVALID error when the spec is malformed, resolution fails, or
// CIDR expansion exceeds the configured cap.
func Validate(ctx context.Context, spec string, opts Options) (Target, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Target{}, scanerrors.ErrInvalidTarget(spec)
	}
	if opts.MaxCIDRHosts <= 0 {
		opts.MaxCIDRHosts = DefaultOptions().MaxCIDRHosts
	}
	if opts.ResolvConf == "" {
		opts.ResolvConf = defaultResolvConf
	}

	if addr, err := netip.ParseAddr(spec); err == nil {
		return validateLiteral(ctx, spec, addr, opts), nil
	}

	if strings.Contains(spec, "/") {
		return validateCIDR(spec, opts)
	}

	return validateHostname(ctx, spec, opts)
}

// validateLiteral handles literal IPv4/IPv6 addresses.
func validateLiteral(ctx context.Context, spec string, addr netip.Addr, opts Options) Target {
	t := Target{
		Spec:  spec,
		Hosts: []string{addr.Unmap().String()},
	}

	if opts.ReverseDNS {
		name, err := reverseLookup(ctx, t.Hosts[0], opts.ResolvConf)
		if err != nil {
			// Enrichment only; the target stays valid without a name.
			logging.Debug("Reverse DNS lookup failed", "target", spec, "error", err)
		} else {
			t.Hostname = name
		}
	}

	return t
}

// validateCIDR expands a CIDR block into concrete addresses, rejecting
// expansions beyond the configured cap.
func validateCIDR(spec string, opts Options) (Target, error) {
	prefix, err := netip.ParsePrefix(spec)
	if err != nil {
		return Target{}, scanerrors.WrapScanErrorWithTarget(scanerrors.CodeTargetInvalid,
			"invalid CIDR notation", spec, err)
	}

	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	// Anything past 30 host bits dwarfs any sane cap; checking the shift
	// first avoids overflow on IPv6 prefixes.
	if hostBits > 30 || 1<<hostBits > opts.MaxCIDRHosts {
		return Target{}, scanerrors.NewScanErrorWithTarget(scanerrors.CodeTargetInvalid,
			"CIDR expansion exceeds configured host cap", spec)
	}

	prefix = prefix.Masked()
	hosts := make([]string, 0, 1<<hostBits)
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		hosts = append(hosts, addr.Unmap().String())
	}

	// Drop network and broadcast addresses for IPv4 subnets.
	if prefix.Addr().Is4() && prefix.Bits() < 31 && len(hosts) > 2 {
		hosts = hosts[1 : len(hosts)-1]
	}

	if len(hosts) == 0 {
		return Target{}, scanerrors.NewScanErrorWithTarget(scanerrors.CodeTargetInvalid,
			"CIDR block contains no scannable hosts", spec)
	}

	return Target{Spec: spec, Hosts: hosts}, nil
}

// validateHostname resolves a hostname into its addresses.
func validateHostname(ctx context.Context, spec string, opts Options) (Target, error) {
	if !hostnameRe.MatchString(spec) {
		return Target{}, scanerrors.ErrInvalidTarget(spec)
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupHost(ctx, spec)
	if err != nil {
		return Target{}, scanerrors.WrapScanErrorWithTarget(scanerrors.CodeTargetInvalid,
			"hostname resolution failed", spec, err)
	}
	if len(addrs) == 0 {
		return Target{}, scanerrors.ErrInvalidTarget(spec)
	}

	return Target{Spec: spec, Hosts: addrs, Hostname: spec}, nil
}

// reverseLookup performs a PTR query for addr against the system's
// configured nameservers.
func reverseLookup(ctx context.Context, addr, resolvConf string) (string, error) {
	rev, err := dns.ReverseAddr(addr)
	if err != nil {
		return "", err
	}

	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, reverseLookupTimeout)
	defer cancel()

	client := new(dns.Client)
	msg := new(dns.Msg)
	msg.SetQuestion(rev, dns.TypePTR)

	var lastErr error
	for _, server := range conf.Servers {
		reply, _, err := client.ExchangeContext(ctx, msg, net.JoinHostPort(server, conf.Port))
		if err != nil {
			lastErr = err
			continue
		}
		for _, rr := range reply.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
	}

	if lastErr != nil {
		return "", lastErr
	}
	return "", scanerrors.NewScanErrorWithTarget(scanerrors.CodeUnknown, "no PTR record", addr)
}
