package webhook

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/saturnino-fabrica-de-software/clientpulse/internal/domain"
)

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLPolicy checks that a destination is an https URL whose host resolves
// only to public addresses.
type URLPolicy struct {
	AllowPrivate bool
	Resolver     Resolver
}

func NewURLPolicy(allowPrivate bool) URLPolicy {
	return URLPolicy{
		AllowPrivate: allowPrivate,
		Resolver:     net.DefaultResolver,
	}
}

func (p URLPolicy) Validate(ctx context.Context, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return domain.ErrValidationFailed.WithMessage("url: must be an absolute URL")
	}
	if u.User != nil {
		return domain.ErrValidationFailed.WithMessage("url: must not embed credentials")
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return domain.ErrInsecureURL
	}

	if p.AllowPrivate {
		return nil
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return domain.ErrPrivateURL
	}

	if ip := net.ParseIP(host); ip != nil {
		if !isPublicIP(ip) {
			return domain.ErrPrivateURL
		}
		return nil
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return domain.ErrPrivateURL.WithMessage("Webhook URL host could not be resolved")
	}
	for _, addr := range addrs {
		if !isPublicIP(addr.IP) {
			return domain.ErrPrivateURL
		}
	}

	return nil
}

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func isPublicIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil && sharedAddressSpace.Contains(ip4) {
		return false
	}
	return true
}
