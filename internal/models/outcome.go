package models

// OutcomeStatus distinguishes a clean result from degraded or failed ones.
type OutcomeStatus string

const (
	OutcomeOK       OutcomeStatus = "ok"
	OutcomeDegraded OutcomeStatus = "degraded"
	OutcomeFailed   OutcomeStatus = "failed"
)

// Outcome is a tagged result. Text is always safe to use; for degraded and failed outcomes
// it holds placeholder text and Reason says what went wrong.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Text   string        `json:"text"`
	Reason string        `json:"reason,omitempty"`
}

// OK returns a successful outcome.
func OK(text string) Outcome {
	return Outcome{Status: OutcomeOK, Text: text}
}

// Degraded returns an outcome carrying placeholder text.
func Degraded(placeholder, reason string) Outcome {
	return Outcome{Status: OutcomeDegraded, Text: placeholder, Reason: reason}
}

// Failed returns an outcome for an operation that produced nothing usable.
func Failed(placeholder, reason string) Outcome {
	return Outcome{Status: OutcomeFailed, Text: placeholder, Reason: reason}
}

// IsOK reports whether the outcome succeeded without degradation.
func (o Outcome) IsOK() bool {
	return o.Status == OutcomeOK
}
