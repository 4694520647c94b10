package coordinator

import (
	"context"
	"fmt"

	"github.com/jmhodges/clock"
	"golang.org/x/sync/errgroup"

	"github.com/open-mpic/mpic-core-go/berrors"
	"github.com/open-mpic/mpic-core-go/blog"
	"github.com/open-mpic/mpic-core-go/cohort"
	"github.com/open-mpic/mpic-core-go/core"
)

// RemoteCaller is the abstract capability the coordinator uses to
// reach one perspective. It is free to fail; the coordinator
// normalizes any error into a synthetic failed CheckResponse rather
// than letting it abort the whole MpicRequest. This is the only seam
// between the core and the actual transport (spec.md section 6).
type RemoteCaller func(ctx context.Context, perspective core.Perspective, checkType core.CheckType, req core.CheckRequest) (core.CheckResponse, error)

// Config carries the knobs spec.md section 6 lists as consumed by
// the coordinator.
type Config struct {
	TargetPerspectives      []core.Perspective
	DefaultPerspectiveCount int
	GlobalMaxAttempts       int // 0 means unbounded
	HashSecret              string
}

// Coordinator implements spec.md section 4.6's coordinate_mpic
// operation.
type Coordinator struct {
	Config Config
	Caller RemoteCaller
	Clock  clock.Clock
	Log    blog.Logger
}

// New constructs a Coordinator.
func New(cfg Config, caller RemoteCaller, clk clock.Clock, log blog.Logger) *Coordinator {
	return &Coordinator{Config: cfg, Caller: caller, Clock: clk, Log: log}
}

// ValidationError wraps the structural issues found by Validate. It
// is the one error kind that short-circuits the pipeline before any
// network activity, per spec.md section 7.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mpic request failed validation with %d issue(s): %v", len(e.Issues), e.Issues)
}

// effectiveParams resolves the caller's requested orchestration
// overrides against configured defaults, per spec.md section 4.6
// step 2.
type effectiveParams struct {
	perspectiveCount int
	quorumCount      int
	maxAttempts      int
}

func (c *Coordinator) resolveParams(req core.MpicRequest) effectiveParams {
	perspectiveCount := c.Config.DefaultPerspectiveCount
	var quorumCount int
	maxAttempts := 1

	op := req.OrchestrationParameters
	if op != nil && op.PerspectiveCount != nil {
		perspectiveCount = *op.PerspectiveCount
	}
	if perspectiveCount <= 5 {
		quorumCount = perspectiveCount - 1
	} else {
		quorumCount = perspectiveCount - 2
	}
	if op != nil && op.QuorumCount != nil {
		quorumCount = *op.QuorumCount
	}
	if op != nil && op.MaxAttempts != nil {
		maxAttempts = *op.MaxAttempts
	}
	if c.Config.GlobalMaxAttempts > 0 && maxAttempts > c.Config.GlobalMaxAttempts {
		maxAttempts = c.Config.GlobalMaxAttempts
	}
	return effectiveParams{perspectiveCount: perspectiveCount, quorumCount: quorumCount, maxAttempts: maxAttempts}
}

// Coordinate runs one MpicRequest end to end: validate, build a
// cohort list, fan out concurrent remote calls attempt by attempt,
// evaluate quorum, retry across the cyclic cohort list up to
// maxAttempts, and build the final response.
func (c *Coordinator) Coordinate(ctx context.Context, req core.MpicRequest) (core.MpicResponse, error) {
	ok, issues := Validate(req, len(c.Config.TargetPerspectives))
	if !ok {
		return core.MpicResponse{}, &ValidationError{Issues: issues}
	}

	params := c.resolveParams(req)

	cohorts, err := cohort.BuildCohorts(c.Config.TargetPerspectives, params.perspectiveCount, c.Config.HashSecret, req.Target)
	if err != nil {
		return core.MpicResponse{}, berrors.InputValidationError("unable to build cohorts: %s", err)
	}
	if len(cohorts) == 0 {
		return core.MpicResponse{}, berrors.InputValidationError("no viable cohort of size %d for target perspectives provided", params.perspectiveCount)
	}

	checkReq := checkRequestFor(req)

	var previousAttempts [][]core.CheckResponse
	for attempt := 1; attempt <= params.maxAttempts; attempt++ {
		selected := cohorts[(attempt-1)%len(cohorts)]
		responses := c.dispatch(ctx, selected, req.CheckType, checkReq)

		valid := evaluateQuorum(selected, responses, params.quorumCount)
		if valid || attempt == params.maxAttempts {
			return Build(req, params.perspectiveCount, params.quorumCount, attempt, responses, valid, previousAttempts), nil
		}
		previousAttempts = append(previousAttempts, responses)
	}

	// Reached only when maxAttempts is below 1 (Validate does not
	// range-check max_attempts); otherwise the loop above always
	// returns on its last iteration.
	return core.MpicResponse{}, berrors.InputValidationError("coordinator: exhausted attempts without producing a response")
}

// dispatch issues one concurrent remote call per perspective in
// selected, returning responses in the same order as selected (the
// coordinator's ordering guarantee from spec.md section 5 — assembled
// by cohort order, not completion order).
func (c *Coordinator) dispatch(ctx context.Context, selected []core.Perspective, checkType core.CheckType, checkReq core.CheckRequest) []core.CheckResponse {
	// Each goroutine writes only to its own index, so no further
	// synchronization is needed beyond errgroup's own Wait barrier.
	responses := make([]core.CheckResponse, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range selected {
		i, p := i, p
		g.Go(func() error {
			resp, err := c.Caller(gctx, p, checkType, checkReq)
			if err != nil {
				c.Log.Warning(fmt.Sprintf("coordinator: remote call to perspective %s failed: %s", p.Code, err))
				wireErr := berrors.CoordinatorCommunicationError("remote call to perspective %s failed: %s", p.Code, err).
					WithWireType("COORDINATOR_COMMUNICATION_ERROR")
				resp = core.CheckResponse{
					PerspectiveCode: p.Code,
					CheckPassed:     false,
					Errors:          []core.MpicValidationError{wireErr.ToValidationError()},
					TimestampNS:     c.Clock.Now().UnixNano(),
				}
			}
			responses[i] = resp
			return nil
		})
	}
	// Errors from individual perspectives are absorbed into synthetic
	// failed responses above, never propagated as a group error: one
	// perspective's failure must never abort the others' in-flight
	// calls.
	_ = g.Wait()
	return responses
}

// evaluateQuorum applies spec.md section 4.6's quorum rule: enough
// passing perspectives, and — once the cohort has more than two
// members — those passing perspectives span at least two distinct
// RIRs.
func evaluateQuorum(cohortPerspectives []core.Perspective, responses []core.CheckResponse, quorumCount int) bool {
	rirByCode := make(map[string]string, len(cohortPerspectives))
	for _, p := range cohortPerspectives {
		rirByCode[p.Code] = p.RIR
	}

	validCount := 0
	rirs := map[string]bool{}
	for _, r := range responses {
		if r.CheckPassed {
			validCount++
			rirs[rirByCode[r.PerspectiveCode]] = true
		}
	}

	if validCount < quorumCount {
		return false
	}
	if len(cohortPerspectives) > 2 && len(rirs) < 2 {
		return false
	}
	return true
}

func checkRequestFor(req core.MpicRequest) core.CheckRequest {
	return core.CheckRequest{
		Target:    req.Target,
		CheckType: req.CheckType,
		CaaParams: req.CaaCheckParameters,
		DcvParams: req.DcvCheckParameters,
	}
}
