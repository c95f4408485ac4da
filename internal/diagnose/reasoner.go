package diagnose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/medsage/internal/followup"
	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"go.uber.org/zap"
)

// FailedText is the diagnosis reported when the model call or its output is unusable.
const FailedText = "Diagnostic reasoning failed."

const reasonerSystem = "You are a clinical reasoning assistant. Reason step by step from the symptoms and the similar cases. Return structured JSON only."

// Schema is the structured output requested from the model.
var Schema = &llm.Schema{
	Type:        llm.TypeObject,
	Description: "Medical diagnostic reasoning with structured JSON output.",
	Properties: map[string]*llm.Schema{
		"reasoning":       {Type: llm.TypeString, Description: "Step-by-step clinical reasoning leading to diagnosis"},
		"diagnosis":       {Type: llm.TypeString, Description: "Most likely medical condition"},
		"recommendations": {Type: llm.TypeString, Description: "Suggested care and what to do next"},
		"danger_signs":    {Type: llm.TypeString, Description: "Red-flag symptoms requiring emergency care"},
		"next_questions": {
			Type:        llm.TypeArray,
			Description: "Follow-up questions to refine diagnosis",
			Items:       &llm.Schema{Type: llm.TypeString},
		},
		"is_emergency": {Type: llm.TypeBoolean, Description: "Whether this may be an emergency"},
	},
	Required: []string{"reasoning", "diagnosis", "recommendations", "danger_signs", "next_questions", "is_emergency"},
}

// Reasoner runs one structured-output call per consultation.
type Reasoner struct {
	model  llm.Client
	logger *zap.Logger
}

// NewReasoner creates a reasoner. logger may be nil.
func NewReasoner(model llm.Client, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reasoner{model: model, logger: logger}
}

// Diagnose reasons over symptoms and the retrieved cases. It never fails: a model error or
// undecodable output yields FailedText with a failed status. NextQuestions always has three items.
func (r *Reasoner) Diagnose(ctx context.Context, symptoms string, hits []models.RetrievalHit) models.Diagnosis {
	req := &llm.Request{
		System: reasonerSystem,
		Parts: []llm.Part{
			llm.Text("Symptoms:\n" + symptoms),
			llm.Text("Similar cases:\n" + FormatCases(hits)),
		},
		Schema: Schema,
	}
	text, err := r.model.Generate(ctx, req)
	if err != nil {
		r.logger.Warn("diagnostic reasoning failed", zap.Error(err))
		return failed()
	}
	d, err := decode(text)
	if err != nil {
		r.logger.Warn("diagnostic output undecodable", zap.Error(err))
		return failed()
	}
	return d
}

// structured mirrors Schema. Text fields also accept lists; the flag also accepts strings.
type structured struct {
	Reasoning       flexText `json:"reasoning"`
	Diagnosis       flexText `json:"diagnosis"`
	Recommendations flexText `json:"recommendations"`
	DangerSigns     flexText `json:"danger_signs"`
	NextQuestions   flexList `json:"next_questions"`
	IsEmergency     flexBool `json:"is_emergency"`
}

func decode(text string) (models.Diagnosis, error) {
	var s structured
	if err := json.Unmarshal([]byte(stripFences(text)), &s); err != nil {
		return models.Diagnosis{}, fmt.Errorf("decode diagnosis: %w", err)
	}
	qs := make([]string, 0, len(s.NextQuestions))
	for _, q := range s.NextQuestions {
		if c, ok := followup.CleanQuestion(q); ok {
			qs = append(qs, c)
		}
	}
	return models.Diagnosis{
		Reasoning:       string(s.Reasoning),
		Diagnosis:       string(s.Diagnosis),
		Recommendations: string(s.Recommendations),
		DangerSigns:     string(s.DangerSigns),
		NextQuestions:   followup.Pad(qs, followup.Count, followup.Generic),
		IsEmergency:     bool(s.IsEmergency),
		Status:          models.OutcomeOK,
	}, nil
}

func failed() models.Diagnosis {
	return models.Diagnosis{
		Diagnosis:     FailedText,
		NextQuestions: followup.Pad(nil, followup.Count, followup.Generic),
		Status:        models.OutcomeFailed,
	}
}

// stripFences removes a ```json fence some models wrap structured output in.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

type flexText string

func (f *flexText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexText(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = flexText(strings.Join(list, "\n"))
		return nil
	}
	if string(b) == "null" {
		return nil
	}
	*f = flexText(strings.TrimSpace(string(b)))
	return nil
}

type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("next_questions: %w", err)
	}
	for _, line := range strings.Split(s, "\n") {
		if q, ok := followup.NumberedItem(line); ok {
			*f = append(*f, q)
		} else if line = strings.TrimSpace(line); line != "" {
			*f = append(*f, line)
		}
	}
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("is_emergency: %w", err)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	*f = flexBool(s == "true" || s == "yes" || ContainsEscalation(s))
	return nil
}
