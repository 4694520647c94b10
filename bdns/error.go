package bdns

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// Error wraps a DNS resolution failure with enough context to render
// a useful message and to let callers distinguish "no such name",
// "server failure", and plain network trouble. Modeled directly on
// Boulder's bdns.Error.
type Error struct {
	RecordType uint16
	Hostname   string
	Underlying error
	// Rcode is the DNS response code, or -1 if the failure happened
	// before a response was received at all (timeout, network error).
	Rcode int
}

func (e *Error) Error() string {
	var detail string
	switch {
	case e.Underlying == context.DeadlineExceeded:
		detail = "query timed out"
	case e.Underlying == context.Canceled:
		detail = "query timed out (and was canceled)"
	case isTimeout(e.Underlying):
		detail = "query timed out"
	case isNetError(e.Underlying):
		detail = "networking error"
	case e.Rcode == dns.RcodeNameError:
		return fmt.Sprintf("DNS problem: NXDOMAIN looking up %s for %s - check that a DNS record exists for this domain",
			dns.TypeToString[e.RecordType], e.Hostname)
	case e.Rcode == dns.RcodeServerFailure:
		return fmt.Sprintf("DNS problem: SERVFAIL looking up %s for %s - the domain's nameservers may be malfunctioning",
			dns.TypeToString[e.RecordType], e.Hostname)
	case e.Rcode != 0:
		detail = dns.RcodeToString[e.Rcode]
	default:
		detail = "server error"
	}
	return fmt.Sprintf("DNS problem: %s looking up %s for %s", detail, dns.TypeToString[e.RecordType], e.Hostname)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func makeTimeoutError() error {
	return context.DeadlineExceeded
}

// IsNXDOMAIN reports whether err represents an authoritative "no such
// domain" answer, as opposed to a transient resolver failure. The CAA
// tree walk (spec.md section 4.2) treats NXDOMAIN the same as
// NoAnswer: climb to the parent and retry, rather than aborting.
func IsNXDOMAIN(err error) bool {
	var dnsErr *Error
	if errors.As(err, &dnsErr) {
		return dnsErr.Rcode == dns.RcodeNameError
	}
	return false
}
