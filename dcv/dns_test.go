package dcv

import (
	"context"
	"net"
	"testing"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"

	"github.com/open-mpic/mpic-core-go/bdns"
	"github.com/open-mpic/mpic-core-go/blog"
	"github.com/open-mpic/mpic-core-go/core"
	"github.com/open-mpic/mpic-core-go/internal/test"
)

type stubResolver struct {
	byHostname map[string]bdns.Answer
	failFor    map[string]error
}

func (s *stubResolver) LookupCAA(ctx context.Context, hostname string) (bdns.Answer, error) {
	return s.lookup(hostname)
}
func (s *stubResolver) LookupTXT(ctx context.Context, hostname string) (bdns.Answer, error) {
	return s.lookup(hostname)
}
func (s *stubResolver) LookupGeneric(ctx context.Context, hostname string, recordType uint16) (bdns.Answer, error) {
	return s.lookup(hostname)
}
func (s *stubResolver) LookupHost(ctx context.Context, hostname string) ([]net.IP, error) {
	return nil, nil
}
func (s *stubResolver) lookup(hostname string) (bdns.Answer, error) {
	if err, ok := s.failFor[hostname]; ok {
		return bdns.Answer{}, err
	}
	return s.byHostname[hostname], nil
}

func txtRR(t *testing.T, name, value string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(name + `. 30 IN TXT "` + value + `"`)
	if err != nil {
		t.Fatalf("dns.NewRR: %s", err)
	}
	return rr
}

func TestCheckDNSChangeSubstringMatch(t *testing.T) {
	resolver := &stubResolver{byHostname: map[string]bdns.Answer{
		"_acme-challenge.example.com": {
			Records: []dns.RR{txtRR(t, "_acme-challenge.example.com", "prefix-challenge-token-suffix")},
			Rcode:   dns.RcodeSuccess,
			Qname:   "_acme-challenge.example.com.",
		},
	}}
	c := New(resolver, nil, clock.NewFake(), blog.Get())

	resp := c.checkDNS(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod: core.MethodDNSChange,
		DNSNamePrefix:    "_acme-challenge",
		DNSRecordType:    core.DNSRecordTXT,
		ChallengeValue:   "challenge-token",
	})

	test.AssertBoolEquals(t, resp.CheckPassed, true, "check_passed")
	test.AssertEquals(t, resp.DNSDetails.FoundAt, "_acme-challenge.example.com")
}

func TestCheckDNSAcmeDNS01RequiresExactMatch(t *testing.T) {
	resolver := &stubResolver{byHostname: map[string]bdns.Answer{
		"_acme-challenge.example.com": {
			Records: []dns.RR{txtRR(t, "_acme-challenge.example.com", "prefix-exact-token-suffix")},
			Qname:   "_acme-challenge.example.com.",
		},
	}}
	c := New(resolver, nil, clock.NewFake(), blog.Get())

	resp := c.checkDNS(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod: core.MethodAcmeDNS01,
		DNSNamePrefix:    "_acme-challenge",
		DNSRecordType:    core.DNSRecordTXT,
		ChallengeValue:   "exact-token",
	})

	test.AssertBoolEquals(t, resp.CheckPassed, false, "substring should not satisfy exact match requirement")
}

func TestCheckDNSContactEmailExtractsCAATag(t *testing.T) {
	caa := &dns.CAA{
		Hdr:   dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeCAA},
		Tag:   "contactemail",
		Value: "admin@example.com",
	}
	resolver := &stubResolver{byHostname: map[string]bdns.Answer{
		"example.com": {Records: []dns.RR{caa}, Qname: "example.com."},
	}}
	c := New(resolver, nil, clock.NewFake(), blog.Get())

	resp := c.checkDNS(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod:  core.MethodContactEmail,
		DNSRecordType:     core.DNSRecordCAA,
		ChallengeValue:    "admin@example.com",
		RequireExactMatch: true,
	})

	test.AssertBoolEquals(t, resp.CheckPassed, true, "check_passed")
	test.AssertDeepEquals(t, resp.DNSDetails.RecordsSeen, []string{"admin@example.com"})
}

func TestCheckDNSCNAMEMatchIsCaseInsensitive(t *testing.T) {
	cname := &dns.CNAME{
		Hdr:    dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeCNAME},
		Target: "Target.Example.NET.",
	}
	resolver := &stubResolver{byHostname: map[string]bdns.Answer{
		"example.com": {Records: []dns.RR{cname}, Qname: "example.com."},
	}}
	c := New(resolver, nil, clock.NewFake(), blog.Get())

	resp := c.checkDNS(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod:  core.MethodDNSChange,
		DNSRecordType:     core.DNSRecordCNAME,
		ChallengeValue:    "target.example.net.",
		RequireExactMatch: true,
	})

	test.AssertBoolEquals(t, resp.CheckPassed, true, "check_passed case-insensitively")
}

func TestCheckDNSExceptionYieldsFailure(t *testing.T) {
	resolver := &stubResolver{failFor: map[string]error{
		"example.com": &bdns.Error{Rcode: dns.RcodeServerFailure},
	}}
	c := New(resolver, nil, clock.NewFake(), blog.Get())

	resp := c.checkDNS(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod: core.MethodDNSChange,
		DNSRecordType:    core.DNSRecordTXT,
		ChallengeValue:   "whatever",
	})

	test.AssertBoolEquals(t, resp.CheckPassed, false, "check_passed")
	if len(resp.Errors) != 1 {
		t.Fatalf("expected one error, got %v", resp.Errors)
	}
}
