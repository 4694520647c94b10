package core

import (
	"encoding/json"
	"fmt"
	"math"
)

// CaaCheckParameters enumerates the recognized issuer domains for a
// CAA check, per spec.md section 3.
type CaaCheckParameters struct {
	CAADomains []string `json:"caa_domains,omitempty"`
}

// DcvCheckParameters is the tagged-variant payload for a DCV check.
// Exactly the fields each ValidationMethod needs are populated; the
// rest are left zero. This mirrors spec.md section 3's description of
// a single struct carrying the union of method-specific fields,
// discriminated by ValidationMethod, rather than a Go interface —
// the wire format is flat JSON, and a sum-of-structs encoding would
// require custom (Un)MarshalJSON for no behavioral gain here.
type DcvCheckParameters struct {
	ValidationMethod ValidationMethod `json:"validation_method"`

	ChallengeValue     string              `json:"challenge_value,omitempty"`
	KeyAuthorization   string              `json:"key_authorization,omitempty"`
	Token              string              `json:"token,omitempty"`
	HTTPTokenPath      string              `json:"http_token_path,omitempty"`
	URLScheme          string              `json:"url_scheme,omitempty"`
	MatchRegex         string              `json:"match_regex,omitempty"`
	RequireExactMatch  bool                `json:"require_exact_match,omitempty"`
	DNSNamePrefix      string              `json:"dns_name_prefix,omitempty"`
	DNSRecordType      DNSRecordType       `json:"dns_record_type,omitempty"`
	HTTPHeaders        map[string][]string `json:"http_headers,omitempty"`
}

// CheckRequest is the payload dispatched to one perspective for one
// attempt: exactly one of CaaParams or DcvParams is set, selected by
// CheckType.
type CheckRequest struct {
	Target    string    `json:"target"`
	CheckType CheckType `json:"check_type"`

	CaaParams *CaaCheckParameters `json:"caa_check_parameters,omitempty"`
	DcvParams *DcvCheckParameters `json:"dcv_check_parameters,omitempty"`
}

// Issue is one structural problem found with an MpicRequest, raised
// either while decoding orchestration_parameters off the wire (a
// present field of the wrong JSON type) or by RequestValidator's
// semantic range checks.
type Issue struct {
	IssueType string `json:"issue_type"`
	Message   string `json:"message"`
}

// OrchestrationParameters carries the caller's requested overrides
// for cohort size, quorum, and retry budget; any field left nil takes
// the coordinator's configured default.
type OrchestrationParameters struct {
	PerspectiveCount *int `json:"perspective_count,omitempty"`
	QuorumCount      *int `json:"quorum_count,omitempty"`
	MaxAttempts      *int `json:"max_attempts,omitempty"`

	// TypeIssues holds one Issue per field above that was present in
	// the decoded JSON but of the wrong type (a string, an object, or
	// a fractional number where an integer was expected). Populated
	// only by UnmarshalJSON; never set by Go construction.
	TypeIssues []Issue `json:"-"`
}

// UnmarshalJSON decodes perspective_count/quorum_count/max_attempts
// leniently: a present field of the wrong JSON type is recorded as a
// TypeIssue rather than failing the decode outright, so a malformed
// orchestration_parameters value reaches RequestValidator as a
// structured Issue instead of aborting at the transport boundary
// before validation ever runs.
func (o *OrchestrationParameters) UnmarshalJSON(data []byte) error {
	var raw struct {
		PerspectiveCount json.RawMessage `json:"perspective_count"`
		QuorumCount      json.RawMessage `json:"quorum_count"`
		MaxAttempts      json.RawMessage `json:"max_attempts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var issues []Issue
	o.PerspectiveCount, issues = decodeIntField(raw.PerspectiveCount, "perspective_count", issues)
	o.QuorumCount, issues = decodeIntField(raw.QuorumCount, "quorum_count", issues)
	o.MaxAttempts, issues = decodeIntField(raw.MaxAttempts, "max_attempts", issues)
	o.TypeIssues = issues
	return nil
}

// decodeIntField interprets raw as an integer-valued JSON field named
// name. A field absent from the JSON (raw is empty) yields (nil, nil
// issues). A field present but not an integral JSON number (a string,
// an object, a fractional float) appends an "invalid_<name>" Issue
// instead of failing.
func decodeIntField(raw json.RawMessage, name string, issues []Issue) (*int, []Issue) {
	if len(raw) == 0 {
		return nil, issues
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, append(issues, Issue{
			IssueType: "invalid_" + name,
			Message:   fmt.Sprintf("%s is not valid JSON: %s", name, err),
		})
	}

	n, ok := v.(float64)
	if !ok {
		return nil, append(issues, Issue{
			IssueType: "invalid_" + name,
			Message:   fmt.Sprintf("%s must be an integer, got %T", name, v),
		})
	}
	if n != math.Trunc(n) {
		return nil, append(issues, Issue{
			IssueType: "invalid_" + name,
			Message:   fmt.Sprintf("%s must be an integer, got fractional value %v", name, n),
		})
	}

	iv := int(n)
	return &iv, issues
}

// MpicRequest is the top-level request accepted by the coordinator.
type MpicRequest struct {
	Target                  string                   `json:"target"`
	CheckType               CheckType                `json:"check_type"`
	TraceIdentifier         string                   `json:"trace_identifier"`
	OrchestrationParameters *OrchestrationParameters `json:"orchestration_parameters,omitempty"`

	CaaCheckParameters *CaaCheckParameters `json:"caa_check_parameters,omitempty"`
	DcvCheckParameters *DcvCheckParameters `json:"dcv_check_parameters,omitempty"`
}
