// Package bdns is the shared DNS resolution layer used by both the
// CAA checker and the DCV checker. It wraps miekg/dns with retry,
// clock injection, and metrics, the same shape as Boulder's own bdns
// package and the resolver abstraction daramousk-boulder's VA depends
// on as bdns.DNSResolver.
package bdns

import (
	"context"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"

	"github.com/open-mpic/mpic-core-go/metrics"
)

// Answer bundles a resolved record set with the response metadata the
// DCV checker's details payload needs to report (response_code,
// ad_flag, found_at).
type Answer struct {
	Records  []dns.RR
	Rcode    int
	AD       bool
	Qname    string
}

// Resolver is the DNS contract every checker depends on. A nil/empty
// result with a nil error means "resolved successfully, nothing
// found" (NOERROR/NXDOMAIN with an empty or absent answer section);
// a non-nil error means the resolver itself failed to get a usable
// answer (timeout, SERVFAIL, REFUSED, transport error). LookupHost is
// the exception: an answer with no A records is reported as an
// NXDOMAIN-coded *Error.
type Resolver interface {
	LookupCAA(ctx context.Context, hostname string) (Answer, error)
	LookupTXT(ctx context.Context, hostname string) (Answer, error)
	LookupGeneric(ctx context.Context, hostname string, recordType uint16) (Answer, error)
	LookupHost(ctx context.Context, hostname string) ([]net.IP, error)
}

type impl struct {
	client     *dns.Client
	servers    []string
	clk        clock.Clock
	maxTries   int
	stats      metrics.Scope
	timeout    time.Duration
}

// NewResolver constructs a Resolver that sends queries to servers
// (one picked at random per try, retried up to maxTries times on
// transport failure) and
// abandons a query after timeout.
func NewResolver(timeout time.Duration, servers []string, stats metrics.Scope, clk clock.Clock, maxTries int) Resolver {
	return &impl{
		client:   &dns.Client{Timeout: timeout},
		servers:  servers,
		clk:      clk,
		maxTries: maxTries,
		stats:    stats,
		timeout:  timeout,
	}
}

func (r *impl) pickServer() string {
	if len(r.servers) == 1 {
		return r.servers[0]
	}
	return r.servers[rand.Intn(len(r.servers))]
}

func (r *impl) exchangeOne(ctx context.Context, m *dns.Msg) (*dns.Msg, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxTries; attempt++ {
		server := r.pickServer()
		start := r.clk.Now()
		resp, _, err := r.client.ExchangeContext(ctx, m, server)
		r.stats.Observe("dns_lookup_seconds", labelsFor(m), r.clk.Since(start).Seconds())
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func labelsFor(m *dns.Msg) map[string]string {
	if len(m.Question) == 0 {
		return map[string]string{"type": "unknown"}
	}
	return map[string]string{"type": dns.TypeToString[m.Question[0].Qtype]}
}

func (r *impl) query(ctx context.Context, hostname string, recordType uint16) (Answer, error) {
	qname := dns.Fqdn(hostname)
	m := new(dns.Msg)
	m.SetQuestion(qname, recordType)
	m.SetEdns0(4096, true)

	resp, err := r.exchangeOne(ctx, m)
	if err != nil {
		r.stats.Inc("dns_lookup_errors_total", map[string]string{"type": dns.TypeToString[recordType]})
		return Answer{}, &Error{RecordType: recordType, Hostname: hostname, Underlying: err, Rcode: -1}
	}

	switch resp.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
		// Both are "successfully learned the name has/has no such
		// record"; NXDOMAIN is not itself a resolver failure.
		return Answer{
			Records: resp.Answer,
			Rcode:   resp.Rcode,
			AD:      resp.AuthenticatedData,
			Qname:   qname,
		}, nil
	default:
		return Answer{}, &Error{RecordType: recordType, Hostname: hostname, Rcode: resp.Rcode}
	}
}

func (r *impl) LookupCAA(ctx context.Context, hostname string) (Answer, error) {
	return r.query(ctx, hostname, dns.TypeCAA)
}

func (r *impl) LookupTXT(ctx context.Context, hostname string) (Answer, error) {
	return r.query(ctx, hostname, dns.TypeTXT)
}

func (r *impl) LookupGeneric(ctx context.Context, hostname string, recordType uint16) (Answer, error) {
	return r.query(ctx, hostname, recordType)
}

func (r *impl) LookupHost(ctx context.Context, hostname string) ([]net.IP, error) {
	ans, err := r.query(ctx, hostname, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var addrs []net.IP
	for _, rr := range ans.Records {
		if a, ok := rr.(*dns.A); ok {
			addrs = append(addrs, a.A)
		}
	}
	if len(addrs) == 0 {
		return nil, &Error{RecordType: dns.TypeA, Hostname: hostname, Rcode: dns.RcodeNameError}
	}
	return addrs, nil
}

// RenderRR renders rr in its textual presentation form, stripping a
// single enclosing pair of ASCII double quotes if present — the
// generic DNS-record-type extraction rule from spec.md section 4.3.2.
func RenderRR(rr dns.RR) string {
	s := rr.String()
	fields := strings.SplitN(s, "\t", 5)
	text := s
	if len(fields) == 5 {
		text = fields[4]
	}
	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		return text[1 : len(text)-1]
	}
	return text
}

// StripTrailingDot removes one trailing "." from an FQDN, for
// found_at fields which must be reported without it.
func StripTrailingDot(fqdn string) string {
	return strings.TrimSuffix(fqdn, ".")
}
