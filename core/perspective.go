// Package core holds the MPIC wire-level data model shared by the
// coordinator, the checkers, and the remote-perspective caller
// contract: Perspective, the CheckRequest/CheckResponse variants, and
// MpicRequest/MpicResponse. Field names and JSON tags follow spec.md
// section 3 so that round-tripping an MpicRequest or MpicResponse
// through JSON preserves its value, mirroring the tagged-variant
// wire shapes Boulder uses for core.Challenge and core.Authorization
// in core/objects.go.
package core

// Perspective identifies one network vantage point. code is globally
// unique; rir classifies it into one of a small set of Regional
// Internet Registries. Perspectives are immutable, process-lifetime
// configuration — never constructed per-request.
type Perspective struct {
	Code string `json:"code" yaml:"code"`
	RIR  string `json:"rir" yaml:"rir"`
}

// CheckType discriminates the two kinds of MPIC request.
type CheckType string

const (
	CheckTypeCAA CheckType = "caa"
	CheckTypeDCV CheckType = "dcv"
)

// ValidationMethod discriminates dcv_check_parameters.
type ValidationMethod string

const (
	MethodWebsiteChange ValidationMethod = "WEBSITE_CHANGE"
	MethodAcmeHTTP01    ValidationMethod = "ACME_HTTP_01"
	MethodDNSChange     ValidationMethod = "DNS_CHANGE"
	MethodAcmeDNS01     ValidationMethod = "ACME_DNS_01"
	MethodIPLookup      ValidationMethod = "IP_LOOKUP"
	MethodContactEmail  ValidationMethod = "CONTACT_EMAIL"
	MethodContactPhone  ValidationMethod = "CONTACT_PHONE"
)

// DNSRecordType discriminates the record type consulted by DNS-based
// DCV methods; for CONTACT_EMAIL/CONTACT_PHONE this may be TXT or
// CAA.
type DNSRecordType string

const (
	DNSRecordTXT DNSRecordType = "TXT"
	DNSRecordCAA DNSRecordType = "CAA"
	DNSRecordCNAME DNSRecordType = "CNAME"
)
