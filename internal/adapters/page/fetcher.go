// Package page loads live pages over HTTP and turns their HTML into a
// domain.Page for the scanner.
package page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"termslens/internal/domain"
)

const (
	maxBodyBytes      = 4 << 20
	perRequestTimeout = 10 * time.Second
	userAgent         = "termslens/1.0 (+terms scanner)"
)

// ErrBlockedAddress is returned when a fetch would connect to a loopback,
// link-local or private address.
var ErrBlockedAddress = errors.New("destination address is not public")

// Fetcher implements ports.PageSource.
type Fetcher struct {
	client       *http.Client
	limiter      *rate.Limiter
	log          logrus.FieldLogger
	allowPrivate bool
}

type Option func(*Fetcher)

// WithClient replaces the default HTTP client, address guard included.
func WithClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithRate caps outbound fetches per second. Zero or less disables the cap.
func WithRate(perSecond float64) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithLogger(l logrus.FieldLogger) Option { return func(f *Fetcher) { f.log = l } }

// WithPrivateNetworks lets the default client reach non-public addresses and
// honour proxy settings from the environment.
func WithPrivateNetworks(allow bool) Option { return func(f *Fetcher) { f.allowPrivate = allow } }

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{log: logrus.StandardLogger()}
	for _, o := range opts {
		o(f)
	}
	if f.client == nil {
		f.client = newClient(f.allowPrivate)
	}
	return f
}

func newClient(allowPrivate bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if allowPrivate {
		transport.Proxy = http.ProxyFromEnvironment
	} else {
		// Control sees the resolved address, redirects included.
		dialer.Control = publicOnly
	}
	return &http.Client{Transport: transport, Timeout: perRequestTimeout}
}

func publicOnly(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !IsPublic(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// IsPublic reports whether ip may be fetched without WithPrivateNetworks.
func IsPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// Fetch downloads raw and parses it. Every failure is ScanUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (domain.Page, error) {
	u, err := NormalizeURL(raw)
	if err != nil {
		return domain.Page{}, domain.Wrap(domain.KindScanUnavailable, "cannot scan "+raw, err)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return domain.Page{}, domain.Wrap(domain.KindScanUnavailable, "fetch of "+u.Host+" not started", err)
		}
	}

	body, final, err := f.get(ctx, u)
	if err != nil {
		f.log.WithError(err).WithField("url", u.String()).Debug("fetch failed")
		return domain.Page{}, domain.Wrap(domain.KindScanUnavailable, "page "+u.String()+" unavailable", err)
	}
	p, err := Parse(final, body)
	if err != nil {
		return domain.Page{}, domain.Wrap(domain.KindScanUnavailable, "page "+u.String()+" unreadable", err)
	}
	return p, nil
}

func (f *Fetcher) get(ctx context.Context, u *url.URL) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, nil, fmt.Errorf("non-OK status: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading response body: %w", err)
	}
	// redirects change the base links resolve against
	return body, resp.Request.URL, nil
}

// Parse extracts title, visible body text and every anchor from an HTML
// document. Relative hrefs are resolved against base.
func Parse(base *url.URL, body []byte) (domain.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.Page{}, fmt.Errorf("parse error: %w", err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	p := domain.Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Links: []domain.Link{},
	}
	if base != nil {
		p.URL = base.String()
	}

	doc.Find("script, style, noscript, template").Remove()
	p.Text = collapseSpace(doc.Find("body").Text())

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		l := domain.Link{Text: collapseSpace(s.Text()), Href: href}
		if base != nil {
			if abs, err := base.Parse(href); err == nil {
				l.URL = abs.String()
			}
		}
		p.Links = append(p.Links, l)
	})
	return p, nil
}

// NormalizeURL defaults the scheme to https and accepts only http(s) URLs
// with a host.
func NormalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
