package domain

import "time"

// ReceiptType identifies what kind of decision a DecisionReceipt documents.
type ReceiptType string

const (
	ReceiptPhasePromotion ReceiptType = "phase_promotion"
	ReceiptPhaseRegression ReceiptType = "phase_regression"
	ReceiptSafetyBreaker   ReceiptType = "safety_breaker_downgrade"
	ReceiptSkipReschedule  ReceiptType = "skip_predictor_reschedule"
	ReceiptWindowProposal  ReceiptType = "window_proposal"
)

// ReceiptOutcome records how a proposed action was ultimately resolved, if
// known at emission time.
type ReceiptOutcome string

const (
	OutcomePending  ReceiptOutcome = "pending"
	OutcomeAccepted ReceiptOutcome = "accepted"
	OutcomeRejected ReceiptOutcome = "rejected"
)

// TrustImpact holds an attribution delta for each possible user response
// to the receipt's act. It is stored and persisted with the receipt; no
// component in this module fills it in, and the State Machine computes a
// response's delta from the incoming event rather than reading it here.
type TrustImpact struct {
	IfAccepted float64
	IfRejected float64
}

// Alternative is one option the decision process considered and rejected,
// kept for audit transparency.
type Alternative struct {
	Option   string
	Rejected string // why it was rejected
}

// DecisionReceipt is the audit artifact emitted for every non-trivial act
// the Engine takes or proposes: a phase transition, a safety-breaker
// downgrade, a proactive reschedule, or a window proposal.
type DecisionReceipt struct {
	ID        string
	Timestamp time.Time
	Type      ReceiptType
	Outcome   ReceiptOutcome

	Confidence  float64
	TrustImpact TrustImpact

	Inputs      map[string]any
	Decision    string
	Alternatives []Alternative

	// ContextSnapshot is a small, redacted summary of the state that led to
	// this decision (phase, score, trigger) for later audit without
	// depending on mutable state that may have since changed.
	ContextSnapshot map[string]any

	// ExpiresAt enforces the persisted receipt TTL described in spec.md §6.
	ExpiresAt time.Time
}
