package customHttpClient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"

	"github.com/akolanti/mirage/internal/config"
)

// ErrBlockedAddress is returned when a public-only client is asked to
// connect to a loopback, private, link-local or otherwise internal address.
var ErrBlockedAddress = errors.New("address is not publicly routable")

// one transport for every outbound client so connections to the remote
// service and crawled hosts are reused
var customTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        config.MaxIdleConns,
	MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
	IdleConnTimeout:     config.IdleConnTimeout,
}

// publicTransport checks the resolved address at dial time, so redirects
// and DNS answers pointing inside the network are refused too. It skips
// proxies, which would hide the real destination.
var publicTransport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout: 10 * time.Second,
		Control: rejectInternal,
	}).DialContext,
	MaxIdleConns:        config.MaxIdleConns,
	MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
	IdleConnTimeout:     config.IdleConnTimeout,
}

// New returns a client on the shared transport. A zero timeout means none,
// which streaming callers rely on.
func New(timeout time.Duration) *http.Client {
	return &http.Client{Transport: customTransport, Timeout: timeout}
}

// NewPublicOnly is New for fetching URLs chosen by API callers.
func NewPublicOnly(timeout time.Duration) *http.Client {
	return &http.Client{Transport: publicTransport, Timeout: timeout}
}

func rejectInternal(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%s: %w", address, ErrBlockedAddress)
	}
	if !IsPublicAddr(ap.Addr()) {
		return fmt.Errorf("%s: %w", ap.Addr(), ErrBlockedAddress)
	}
	return nil
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"), // carrier grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("64:ff9b::/96"), // NAT64 can reach v4 internals
}

// IsPublicAddr reports whether addr is a globally routable unicast address.
func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() ||
		addr.IsInterfaceLocalMulticast() || !addr.IsGlobalUnicast() {
		return false
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}
