package dcv

import (
	"context"
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/open-mpic/mpic-core-go/bdns"
	"github.com/open-mpic/mpic-core-go/berrors"
	"github.com/open-mpic/mpic-core-go/core"
)

// checkDNS implements spec.md section 4.3.2: resolve the computed
// name, extract method-specific strings from the answer, and compare
// against the expected challenge content.
func (c *Checker) checkDNS(ctx context.Context, target string, params core.DcvCheckParameters) core.CheckResponse {
	name := dnsNameFor(target, params.DNSNamePrefix)

	var records []dns.RR
	var foundAt string
	var rcode int
	var ad bool

	if isContactMethod(params.ValidationMethod) && params.DNSRecordType == core.DNSRecordCAA {
		caas, walkFoundAt, err := c.walkCAA(ctx, name)
		if err != nil {
			return dnsErrorResponse(c.Clock.Now().UnixNano(), err)
		}
		for _, rr := range caas {
			records = append(records, rr)
		}
		foundAt = walkFoundAt
		rcode = dns.RcodeSuccess
	} else {
		recordType := dnsRecordTypeFor(params.DNSRecordType)
		ans, err := c.Resolver.LookupGeneric(ctx, name, recordType)
		if err != nil {
			return dnsErrorResponse(c.Clock.Now().UnixNano(), err)
		}
		records = ans.Records
		foundAt = bdns.StripTrailingDot(ans.Qname)
		rcode = ans.Rcode
		ad = ans.AD
	}

	seen := extractRecords(records, params)

	details := &core.DNSDetails{
		RecordsSeen:  seen,
		ResponseCode: rcode,
		ADFlag:       ad,
		FoundAt:      foundAt,
	}

	passed := matches(seen, params)

	return core.CheckResponse{
		CheckPassed: passed,
		DNSDetails:  details,
		TimestampNS: c.Clock.Now().UnixNano(),
	}
}

// dnsNameFor computes the name a DNS-based DCV method resolves,
// per spec.md section 4.3.2: N = {dns_name_prefix}.{target} if a
// prefix is given, else target.
func dnsNameFor(target, prefix string) string {
	if prefix == "" {
		return target
	}
	return prefix + "." + target
}

func isContactMethod(m core.ValidationMethod) bool {
	return m == core.MethodContactEmail || m == core.MethodContactPhone
}

// extractRecords applies spec.md section 4.3.2's record extraction
// rules for the requested method and record type.
func extractRecords(records []dns.RR, params core.DcvCheckParameters) []string {
	var out []string
	switch {
	case params.ValidationMethod == core.MethodContactEmail && params.DNSRecordType == core.DNSRecordCAA:
		out = extractCAATag(records, "contactemail")
	case params.ValidationMethod == core.MethodContactPhone && params.DNSRecordType == core.DNSRecordCAA:
		out = extractCAATag(records, "contactphone")
	default:
		for _, rr := range records {
			out = append(out, bdns.RenderRR(rr))
		}
	}
	return out
}

func extractCAATag(records []dns.RR, tag string) []string {
	var out []string
	for _, rr := range records {
		caa, ok := rr.(*dns.CAA)
		if !ok {
			continue
		}
		if strings.EqualFold(caa.Tag, tag) {
			out = append(out, caa.Value)
		}
	}
	return out
}

// matches applies spec.md section 4.3.2's matching rules: exact match
// for ACME_DNS_01 or require_exact_match, substring match otherwise,
// CNAME comparisons case-insensitive on both sides.
func matches(seen []string, params core.DcvCheckParameters) bool {
	expected := params.ChallengeValue
	exact := params.ValidationMethod == core.MethodAcmeDNS01 || params.RequireExactMatch
	caseInsensitive := params.DNSRecordType == core.DNSRecordCNAME

	for _, s := range seen {
		candidate, want := s, expected
		if caseInsensitive {
			candidate, want = strings.ToLower(candidate), strings.ToLower(want)
		}
		if exact {
			if candidate == want {
				return true
			}
			continue
		}
		if strings.Contains(candidate, want) {
			return true
		}
	}
	return false
}

// walkCAA climbs from name to the public suffix boundary, stopping at
// the first node with a non-empty CAA RRset, for CONTACT_EMAIL/
// CONTACT_PHONE checks that request dns_record_type=CAA. This mirrors
// the caa package's tree walk but returns raw records rather than an
// issuance verdict, since this caller only wants tagged values out of
// whichever RRset is found.
func (c *Checker) walkCAA(ctx context.Context, name string) ([]*dns.CAA, string, error) {
	n := strings.TrimSuffix(name, ".")
	for {
		ans, err := c.Resolver.LookupCAA(ctx, n)
		if err != nil {
			return nil, "", berrors.CAALookupError("CAA lookup for %q failed: %s", n, err)
		}

		var caas []*dns.CAA
		for _, rr := range ans.Records {
			if caa, ok := rr.(*dns.CAA); ok {
				caas = append(caas, caa)
			}
		}
		if len(caas) > 0 {
			return caas, bdns.StripTrailingDot(ans.Qname), nil
		}

		if suffix, _ := publicsuffix.PublicSuffix(n); suffix == n {
			return nil, "", nil
		}

		parent, ok := popLabelDNS(n)
		if !ok {
			return nil, "", nil
		}
		n = parent
	}
}

func popLabelDNS(name string) (string, bool) {
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return "", false
	}
	return name[idx+1:], true
}

func dnsErrorResponse(ts int64, err error) core.CheckResponse {
	me, ok := berrors.As(err)
	if !ok {
		me = berrors.DCVResolutionError("%s", err).WithWireType(fmt.Sprintf("%T", err))
	}
	return core.CheckResponse{
		CheckPassed: false,
		Errors:      []core.MpicValidationError{me.ToValidationError()},
		TimestampNS: ts,
	}
}
