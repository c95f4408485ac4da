package models

// SourceType is the provenance tag on an Answer.
type SourceType string

const (
	// SourceDocument means the answer is grounded in retrieved documents.
	SourceDocument SourceType = "DOCUMENT"
	// SourceFallback means retrieval was weak and the model preferred general knowledge.
	SourceFallback SourceType = "LLM_FALLBACK"
	// SourceKnowledge means nothing was retrieved.
	SourceKnowledge SourceType = "LLM"
)

// RetrievalHit is a scored, read-only projection of an IndexRecord.
type RetrievalHit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// SourceSummary is a truncated preview of a hit returned with an answer.
type SourceSummary struct {
	Text  string  `json:"text"`
	File  string  `json:"file,omitempty"`
	Type  string  `json:"type,omitempty"`
	Score float64 `json:"score"`
}

// Answer is the output of the answer composer.
type Answer struct {
	Question           string          `json:"question"`
	Answer             string          `json:"answer"`
	Sources            []SourceSummary `json:"sources"`
	SourceType         SourceType      `json:"source_type"`
	SuggestedQuestions []string        `json:"suggested_questions"`
	Status             OutcomeStatus   `json:"status"`
}

// Diagnosis is the structured output of the diagnostic reasoner.
type Diagnosis struct {
	Reasoning       string        `json:"reasoning"`
	Diagnosis       string        `json:"diagnosis"`
	Recommendations string        `json:"recommendations"`
	DangerSigns     string        `json:"danger_signs"`
	NextQuestions   []string      `json:"next_questions"`
	IsEmergency     bool          `json:"is_emergency"`
	Status          OutcomeStatus `json:"status"`
}
