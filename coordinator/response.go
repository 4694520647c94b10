package coordinator

import "github.com/open-mpic/mpic-core-go/core"

// Build implements ResponseBuilder: a pure function from the request,
// the effective parameters, the attempts taken, the final attempt's
// responses, the quorum verdict, and prior attempts' responses to an
// MpicResponse, per spec.md section 4.7.
func Build(
	req core.MpicRequest,
	perspectiveCount, quorumCount, attemptCount int,
	finalResponses []core.CheckResponse,
	isValid bool,
	previousAttempts [][]core.CheckResponse,
) core.MpicResponse {
	return core.MpicResponse{
		Target:          req.Target,
		TraceIdentifier: req.TraceIdentifier,
		IsValid:         isValid,
		Perspectives:    finalResponses,
		RequestOrchestrationParameters: req.OrchestrationParameters,
		ActualOrchestrationParameters: core.ActualOrchestrationParameters{
			PerspectiveCount: perspectiveCount,
			QuorumCount:      quorumCount,
			AttemptCount:     attemptCount,
		},
		PreviousAttemptResults: previousAttempts,
		CaaCheckParameters:     req.CaaCheckParameters,
		DcvCheckParameters:     req.DcvCheckParameters,
	}
}
