package diagnose

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/medsage/internal/llm"
)

const escalationSystem = "You are a triage classifier. Decide whether the described symptoms may be a medical emergency. Answer with one short sentence."

var escalationKeywords = []string{"emergency", "urgent", "critical", "danger"}

// EscalationDetector flags symptoms that may need emergency care.
type EscalationDetector struct {
	model llm.Client
}

// NewEscalationDetector creates a detector backed by model.
func NewEscalationDetector(model llm.Client) *EscalationDetector {
	return &EscalationDetector{model: model}
}

// Check asks the classifier about symptoms and scans its reply for escalation keywords.
// An error means the classifier could not be reached and the result is meaningless.
func (d *EscalationDetector) Check(ctx context.Context, symptoms string) (bool, error) {
	text, err := d.model.Generate(ctx, llm.Prompt(escalationSystem, "Symptoms: "+symptoms))
	if err != nil {
		return false, fmt.Errorf("escalation check: %w", err)
	}
	return ContainsEscalation(text), nil
}

// ContainsEscalation reports whether text mentions any escalation keyword, case-insensitively.
func ContainsEscalation(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range escalationKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
