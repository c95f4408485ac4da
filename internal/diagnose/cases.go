// Package diagnose produces structured diagnostic reasoning from symptoms and similar cases.
package diagnose

import (
	"strings"

	"github.com/hyperjump/medsage/internal/models"
)

// NoCasesText is the case block used when retrieval found nothing.
const NoCasesText = "No similar medical cases found."

// FormatCases renders hits as a patient-visible case list followed, when any hit carries one,
// by a block of internal reasoning snippets.
func FormatCases(hits []models.RetrievalHit) string {
	if len(hits) == 0 {
		return NoCasesText
	}
	visible := make([]string, 0, len(hits))
	var internal []string
	for _, h := range hits {
		visible = append(visible, "Case: "+h.Payload.Text)
		if h.Payload.ComplexCoT != "" {
			internal = append(internal, h.Payload.ComplexCoT)
		}
	}
	out := "Relevant medical cases:\n" + strings.Join(visible, "\n\n")
	if len(internal) > 0 {
		out += "\n\nInternal clinical reasoning snippets:\n" + strings.Join(internal, "\n\n")
	}
	return out
}
