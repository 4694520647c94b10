package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/open-mpic/mpic-core-go/core"
	"github.com/open-mpic/mpic-core-go/internal/test"
)

func intPtr(v int) *int { return &v }

func TestValidateAcceptsPlainRequest(t *testing.T) {
	req := core.MpicRequest{Target: "example.com", CheckType: core.CheckTypeCAA}
	ok, issues := Validate(req, 6)
	test.AssertBoolEquals(t, ok, true, "Validate(plain request)")
	test.AssertEquals(t, len(issues), 0)
}

func TestValidateRejectsPerspectiveCountOutOfRange(t *testing.T) {
	req := core.MpicRequest{
		Target:                  "example.com",
		CheckType:               core.CheckTypeCAA,
		OrchestrationParameters: &core.OrchestrationParameters{PerspectiveCount: intPtr(1)},
	}
	ok, issues := Validate(req, 6)
	test.AssertBoolEquals(t, ok, false, "Validate(perspective_count=1)")
	if len(issues) != 1 || issues[0].IssueType != "invalid_perspective_count" {
		t.Fatalf("unexpected issues: %v", issues)
	}
}

func TestValidateRejectsPerspectiveCountAboveAvailable(t *testing.T) {
	req := core.MpicRequest{
		Target:                  "example.com",
		CheckType:               core.CheckTypeCAA,
		OrchestrationParameters: &core.OrchestrationParameters{PerspectiveCount: intPtr(7)},
	}
	ok, _ := Validate(req, 6)
	test.AssertBoolEquals(t, ok, false, "Validate(perspective_count > available)")
}

func TestValidateBoundaryTwoOfTwo(t *testing.T) {
	req := core.MpicRequest{
		Target:    "example.com",
		CheckType: core.CheckTypeCAA,
		OrchestrationParameters: &core.OrchestrationParameters{
			PerspectiveCount: intPtr(2),
			QuorumCount:      intPtr(1),
		},
	}
	ok, issues := Validate(req, 6)
	test.AssertBoolEquals(t, ok, true, "Validate(perspective_count=2, quorum_count=1)")
	test.AssertEquals(t, len(issues), 0)
}

// TestValidateSurfacesWireLevelTypeIssues grounds the maintainer's
// fix for a present-but-wrong-type orchestration parameter: decoding
// the request off the wire must not fail outright, and Validate must
// surface the resulting core.Issue the same way it surfaces a
// semantic range violation.
func TestValidateSurfacesWireLevelTypeIssues(t *testing.T) {
	var req core.MpicRequest
	body := []byte(`{"target": "example.com", "check_type": "caa", "orchestration_parameters": {"perspective_count": "six"}}`)
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal: %s", err)
	}

	ok, issues := Validate(req, 6)
	test.AssertBoolEquals(t, ok, false, "Validate(wrong-typed perspective_count)")
	if len(issues) != 1 || issues[0].IssueType != "invalid_perspective_count" {
		t.Fatalf("unexpected issues: %v", issues)
	}
}

func TestValidateRejectsQuorumCountOutOfRange(t *testing.T) {
	req := core.MpicRequest{
		Target:    "example.com",
		CheckType: core.CheckTypeCAA,
		OrchestrationParameters: &core.OrchestrationParameters{
			PerspectiveCount: intPtr(6),
			QuorumCount:      intPtr(1),
		},
	}
	ok, issues := Validate(req, 6)
	test.AssertBoolEquals(t, ok, false, "Validate(quorum_count=1 for perspective_count=6)")
	if len(issues) != 1 || issues[0].IssueType != "invalid_quorum_count" {
		t.Fatalf("unexpected issues: %v", issues)
	}
}
