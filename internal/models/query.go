package models

import (
	"fmt"
	"strings"
)

// AskRequest is a free-text question with an optional result-count bound.
type AskRequest struct {
	Question string `json:"question"`
	NResults int    `json:"n_results,omitempty"`
}

// Validate trims the question and clamps NResults into [1, maxLimit], using defaultLimit when unset.
func (q *AskRequest) Validate(defaultLimit, maxLimit int) error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if q.NResults <= 0 {
		q.NResults = defaultLimit
	}
	if maxLimit > 0 && q.NResults > maxLimit {
		q.NResults = maxLimit
	}
	return nil
}

// ConsultRequest is a free-text symptom description.
type ConsultRequest struct {
	Symptoms string `json:"symptoms"`
}

// Validate trims the symptoms and rejects an empty description.
func (c *ConsultRequest) Validate() error {
	c.Symptoms = strings.TrimSpace(c.Symptoms)
	if c.Symptoms == "" {
		return fmt.Errorf("symptoms cannot be empty")
	}
	return nil
}
