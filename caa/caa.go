// Package caa implements the CaaChecker component: RFC 8659 CAA tree
// walking and the Baseline-Requirements issuance decision, grounded on
// the CAA walk and record-partitioning logic in
// daramousk-boulder/va/validation-authority.go and
// kevinburke-boulder/cmd/caa-checker/server.go, generalized to the
// full issue/issuewild/critical-flag rule set in spec.md section 4.2.
package caa

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/miekg/dns"
	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/open-mpic/mpic-core-go/bdns"
	"github.com/open-mpic/mpic-core-go/berrors"
	"github.com/open-mpic/mpic-core-go/blog"
	"github.com/open-mpic/mpic-core-go/identifier"
)

// criticalExempt lists the tags whose critical bit does not force
// denial even though this checker doesn't otherwise interpret them.
// Boulder's own CAA handling treats contactemail/contactphone/
// issuemail/iodef this way; preserved here as a constant allow-list
// per spec.md section 4.2 step 3 and section 9's design note.
var criticalExempt = map[string]bool{
	"contactemail": true,
	"contactphone": true,
	"issuemail":    true,
	"iodef":        true,
}

const criticalFlag = 0x80

// Request mirrors spec.md's CaaCheckRequest.
type Request struct {
	Target     string
	CAADomains []string
}

// Response mirrors spec.md's CaaCheckResponse fields.
type Response struct {
	CheckPassed      bool
	CAARecordPresent bool
	FoundAt          string
	RecordsSeen      []string
	Errors           []string
}

// recordSet is the partition of one node's CAA RRset used by the
// issuance rule, equivalent to Boulder's CAASet.
type recordSet struct {
	issue     []*dns.CAA
	issuewild []*dns.CAA
	other     []*dns.CAA
}

func partition(rrs []*dns.CAA) recordSet {
	var s recordSet
	for _, rr := range rrs {
		switch strings.ToLower(rr.Tag) {
		case "issue":
			s.issue = append(s.issue, rr)
		case "issuewild":
			s.issuewild = append(s.issuewild, rr)
		default:
			s.other = append(s.other, rr)
		}
	}
	return s
}

// hasDenyingCritical reports whether s contains an "other"-tag record
// with the critical bit set and a tag outside the exempt allow-list.
func (s recordSet) hasDenyingCritical() bool {
	for _, rr := range s.other {
		if rr.Flag&criticalFlag != 0 && !criticalExempt[strings.ToLower(rr.Tag)] {
			return true
		}
	}
	return false
}

// tagPattern matches the tag of a single ";"-delimited parameter of a
// CAA issue/issuewild value (the part before "="), per spec.md section
// 4.2's value grammar.
var tagPattern = regexp.MustCompile(`^[A-Za-z0-9]+(-*[A-Za-z0-9]+)*$`)

// parsedValue is the parsed form of one CAA record's value string.
type parsedValue struct {
	issuerDomain string
	params       map[string]string
}

// parseValue parses a CAA issue/issuewild value of the form
// "<issuer-domain> [ ; param ( ; param )* ]". An empty string is a
// legal value meaning "no permitted issuer". Malformed values return
// an error; the caller is responsible for treating that as "skip,
// don't deny" per spec.md section 4.2.
func parseValue(raw string) (parsedValue, error) {
	if raw == "" {
		return parsedValue{}, nil
	}
	parts := strings.Split(raw, ";")
	issuerDomain := strings.TrimSpace(parts[0])
	pv := parsedValue{issuerDomain: issuerDomain, params: map[string]string{}}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		eq := strings.IndexByte(p, '=')
		var tag, val string
		if eq < 0 {
			tag = p
		} else {
			tag, val = p[:eq], p[eq+1:]
		}
		tag = strings.TrimSpace(tag)
		if !tagPattern.MatchString(tag) {
			return parsedValue{}, fmt.Errorf("invalid CAA parameter tag %q", tag)
		}
		if !isPrintableASCIIExceptSemicolon(val) {
			return parsedValue{}, fmt.Errorf("invalid CAA parameter value %q", val)
		}
		pv.params[strings.ToLower(tag)] = val
	}
	return pv, nil
}

func isPrintableASCIIExceptSemicolon(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b < 0x21 || b > 0x7E || b == ';' {
			return false
		}
	}
	return true
}

// permits reports whether any value in rrs parses successfully and
// names an issuer domain present in allowed. Malformed values are
// skipped (and logged by the caller) rather than causing denial on
// their own.
func permits(rrs []*dns.CAA, allowed []string, log blog.Logger) bool {
	allowedSet := make(map[string]bool, len(allowed))
	for _, d := range allowed {
		allowedSet[strings.ToLower(d)] = true
	}
	for _, rr := range rrs {
		pv, err := parseValue(rr.Value)
		if err != nil {
			log.Info(fmt.Sprintf("caa: skipping malformed CAA value %q: %s", rr.Value, err))
			continue
		}
		if pv.issuerDomain != "" && allowedSet[strings.ToLower(pv.issuerDomain)] {
			return true
		}
	}
	return false
}

// Checker performs CAA tree-walk resolution and issuance decisions.
type Checker struct {
	Resolver bdns.Resolver
	Log      blog.Logger
}

// New constructs a Checker.
func New(resolver bdns.Resolver, log blog.Logger) *Checker {
	return &Checker{Resolver: resolver, Log: log}
}

// Check performs the full CAA tree walk and issuance decision for
// req.Target, per spec.md section 4.2.
func (c *Checker) Check(ctx context.Context, req Request) Response {
	encoded, err := identifier.Encode(strings.ToLower(req.Target))
	if err != nil {
		return Response{CheckPassed: false, Errors: []string{err.Error()}}
	}
	isWildcard := identifier.IsWildcard(encoded)
	bareTarget := identifier.TrimWildcard(encoded)

	rrs, foundAt, err := c.walk(ctx, bareTarget)
	if err != nil {
		if me, ok := berrors.As(err); ok {
			return Response{CheckPassed: false, Errors: []string{me.Error()}}
		}
		return Response{CheckPassed: false, Errors: []string{err.Error()}}
	}

	resp := Response{
		CAARecordPresent: len(rrs) > 0,
		FoundAt:          foundAt,
	}
	for _, rr := range rrs {
		resp.RecordsSeen = append(resp.RecordsSeen, rr.String())
	}

	set := partition(rrs)
	if set.hasDenyingCritical() {
		resp.CheckPassed = false
		return resp
	}

	var checkSet []*dns.CAA
	switch {
	case isWildcard && len(set.issuewild) > 0:
		checkSet = set.issuewild
	case len(set.issue) > 0:
		checkSet = set.issue
	default:
		resp.CheckPassed = true
		return resp
	}

	resp.CheckPassed = permits(checkSet, req.CAADomains, c.Log)
	return resp
}

// walk climbs from target toward the root, stopping at the first node
// with a non-empty CAA RRset, or at the public suffix boundary with
// none — one level short of the literal DNS root, since CAA records
// are never published above a public suffix and climbing further
// would only add lookups against registry-operated zones. NoAnswer
// and NXDOMAIN responses cause the walk to continue at the parent;
// any other resolver error aborts with a single CAALookup error.
func (c *Checker) walk(ctx context.Context, target string) ([]*dns.CAA, string, error) {
	name := strings.TrimSuffix(target, ".")
	for {
		// An empty answer (including NXDOMAIN, which the bdns layer
		// folds into a nil error with zero records) means "climb to
		// the parent and retry"; any other resolver error aborts the
		// whole walk per spec.md section 4.2.
		ans, err := c.Resolver.LookupCAA(ctx, name)
		if err != nil {
			return nil, "", berrors.CAALookupError("CAA lookup for %q failed: %s", name, err)
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

		if suffix, _ := publicsuffix.PublicSuffix(name); suffix == name {
			// Reached the public suffix boundary with nothing found;
			// no point climbing further toward the root.
			return nil, "", nil
		}

		parent, ok := popLabel(name)
		if !ok {
			return nil, "", nil
		}
		name = parent
	}
}

// popLabel removes the leftmost DNS label from name, returning the
// remainder and whether anything was left to query. Popping the last
// label yields ok=false, terminating the walk at the root.
func popLabel(name string) (string, bool) {
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return "", false
	}
	return name[idx+1:], true
}
