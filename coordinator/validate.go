// Package coordinator implements RequestValidator, Coordinator, and
// ResponseBuilder: the orchestration pipeline that turns one
// MpicRequest into one MpicResponse by validating it, building a
// cohort, fanning out concurrent remote-perspective calls, and
// evaluating quorum, retrying across cohorts as needed. Grounded on
// the concurrent-dispatch-then-join shape of
// daramousk-boulder/va/validation-authority.go's
// validateChallengeAndCAA (one goroutine per concurrent operation,
// joined before a verdict is produced) generalized from "one CAA
// goroutine plus the main path" to "N perspective goroutines joined
// at a barrier" via golang.org/x/sync/errgroup.
package coordinator

import (
	"fmt"

	"github.com/open-mpic/mpic-core-go/core"
)

// Issue is one structural problem found with an MpicRequest. It is
// an alias for core.Issue so that a type mismatch caught during JSON
// decoding (core.OrchestrationParameters.TypeIssues) and a semantic
// range violation caught here surface as the same shape to callers.
type Issue = core.Issue

// Validate performs the structural checks spec.md section 4.5
// describes. It returns (true, nil) for a valid request, or
// (false, issues) listing every problem found. A present-but-wrong-
// type perspective_count/quorum_count/max_attempts, caught while
// decoding the request off the wire, surfaces here as the same kind
// of Issue as an out-of-range value caught by the checks below.
func Validate(req core.MpicRequest, targetPerspectiveCount int) (bool, []Issue) {
	var issues []Issue

	op := req.OrchestrationParameters
	if op != nil {
		issues = append(issues, op.TypeIssues...)
	}

	perspectiveCountValid := true
	var perspectiveCount int

	if op != nil && op.PerspectiveCount != nil {
		perspectiveCount = *op.PerspectiveCount
		if perspectiveCount < 2 || perspectiveCount > targetPerspectiveCount {
			perspectiveCountValid = false
			issues = append(issues, Issue{
				IssueType: "invalid_perspective_count",
				Message: fmt.Sprintf(
					"perspective_count must satisfy 2 <= perspective_count <= %d, got %d",
					targetPerspectiveCount, perspectiveCount),
			})
		}
	}

	if op != nil && op.QuorumCount != nil && perspectiveCountValid {
		if op.PerspectiveCount == nil {
			// quorum_count without an explicit perspective_count is
			// not range-checked: Validate runs before the coordinator
			// resolves the default perspective_count, so there is no
			// count here to check it against.
		} else {
			quorumCount := *op.QuorumCount
			var lo, hi int
			if perspectiveCount <= 5 {
				lo, hi = perspectiveCount-1, perspectiveCount
			} else {
				lo, hi = perspectiveCount-2, perspectiveCount
			}
			if quorumCount < lo || quorumCount > hi {
				issues = append(issues, Issue{
					IssueType: "invalid_quorum_count",
					Message: fmt.Sprintf(
						"quorum_count must satisfy %d <= quorum_count <= %d for perspective_count %d, got %d",
						lo, hi, perspectiveCount, quorumCount),
				})
			}
		}
	}

	return len(issues) == 0, issues
}
