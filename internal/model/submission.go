package model

// StopReason names why a submission cycle ended. Every exit from the cycle
// maps to exactly one value.
type StopReason string

const (
	StopReasonNoTarget          StopReason = "no_target"
	StopReasonDurationExceeded  StopReason = "duration_exceeded"
	StopReasonAttemptsExhausted StopReason = "attempts_exhausted"
	StopReasonPayloadTooLarge   StopReason = "payload_too_large"
	StopReasonTransportError    StopReason = "transport_error"
	StopReasonMalformedResponse StopReason = "malformed_response"
	StopReasonAccepted          StopReason = "accepted"
	StopReasonVerdictUnclear    StopReason = "verdict_unclear"
	StopReasonRefinementFailed  StopReason = "refinement_failed"
	StopReasonRefinementLimit   StopReason = "refinement_limit"
	StopReasonChainPlanFailed   StopReason = "chain_plan_failed"
)

// Submission is the body posted to a grading endpoint.
type Submission struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
	Answer any    `json:"answer"`
}
