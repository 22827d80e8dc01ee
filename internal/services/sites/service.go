package sites

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"termslens/internal/domain"
)

// Identify derives the site identity from a page URL or a bare hostname.
func Identify(raw string) (domain.SiteIdentity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.SiteIdentity{}, domain.NewError(domain.KindInvalidDomain, "empty site address")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return domain.SiteIdentity{}, domain.Wrap(domain.KindInvalidDomain, "invalid site address", err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if !validHost(host) {
		return domain.SiteIdentity{}, domain.NewError(domain.KindInvalidDomain, fmt.Sprintf("invalid host %q", host))
	}
	return domain.SiteIdentity{Domain: host, DisplayName: DisplayName(host)}, nil
}

// DisplayName turns a hostname into the short name shown to users, e.g.
// "www.shop.example.co.uk" -> "EXAMPLE".
func DisplayName(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if net.ParseIP(host) != nil {
		return host
	}
	label := host
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		label = registrable
	}
	if i := strings.IndexByte(label, '.'); i > 0 {
		label = label[:i]
	}
	return strings.ToUpper(label)
}

func validHost(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}
