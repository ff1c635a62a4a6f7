package worker

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

const maxRedirects = 5

// newFetchClient returns a client whose every connection is checked by allow
// against the resolved address right before connecting. Redirect targets and
// names that re-resolve to a different address go through the same check.
func newFetchClient(timeout time.Duration, allow func(netip.Addr) error) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			ap, err := netip.ParseAddrPort(address)
			if err != nil {
				return fmt.Errorf("dial address %q: %w", address, err)
			}
			return allow(ap.Addr())
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would be the only address dialled, hiding the real destination.
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
			}
			return nil
		},
	}
}
