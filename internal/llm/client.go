// Package llm provides language model clients: Gemini through the genai SDK, any
// OpenAI-compatible chat completions endpoint, and a scripted mock for tests.
package llm

import (
	"context"
	"errors"
)

// ErrUnsupportedPart is returned when a provider cannot accept a request part (e.g. audio on a
// text-only endpoint).
var ErrUnsupportedPart = errors.New("unsupported request part")

// Part is one element of a user turn: text, inline bytes, or a local file to upload.
type Part struct {
	Text     string
	Data     []byte
	FilePath string
	MIMEType string
}

// Text returns a text part.
func Text(s string) Part {
	return Part{Text: s}
}

// Bytes returns an inline binary part.
func Bytes(data []byte, mimeType string) Part {
	return Part{Data: data, MIMEType: mimeType}
}

// File returns a part that is uploaded from path before the call.
func File(path, mimeType string) Part {
	return Part{FilePath: path, MIMEType: mimeType}
}

// Schema describes structured JSON output.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// SchemaType is a JSON schema type name.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeString  SchemaType = "string"
	TypeBoolean SchemaType = "boolean"
	TypeArray   SchemaType = "array"
)

// Request is a single-turn generation request.
type Request struct {
	System string
	Parts  []Part
	// Schema, when set, asks the model for JSON matching it.
	Schema *Schema
	// Temperature overrides the client default when non-nil.
	Temperature *float32
}

// Prompt builds a text-only request.
func Prompt(system, prompt string) *Request {
	return &Request{System: system, Parts: []Part{Text(prompt)}}
}

// Client generates text from a request. Implementations return the raw model text; an empty
// string with a nil error means the model produced nothing.
type Client interface {
	Generate(ctx context.Context, req *Request) (string, error)
	Provider() string
	Model() string
}
