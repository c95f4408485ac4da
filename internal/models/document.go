// Package models defines core data structures for uploads, index records, answers, and diagnoses.
package models

import (
	"errors"
	"strconv"
	"time"
)

// ErrRejected marks a client-side rejection (unsupported extension, empty text, non-medical content).
var ErrRejected = errors.New("rejected")

// Document is an uploaded byte blob with its format tag. It is consumed by extraction and not persisted.
type Document struct {
	Filename string `json:"filename"`
	Ext      string `json:"ext"` // lower-case, no leading dot
	Content  []byte `json:"-"`
	// SourcePath is set for files picked up from a watched directory.
	SourcePath string `json:"source_path,omitempty"`
}

// Payload keys stored alongside every vector.
const (
	PayloadText       = "text"
	PayloadFile       = "file"
	PayloadSource     = "source"
	PayloadType       = "type"
	PayloadDomain     = "domain"
	PayloadQuestion   = "question"
	PayloadResponse   = "response"
	PayloadComplexCoT = "complex_cot"
	PayloadChunkIdx   = "chunk_idx"
)

// Payload is the metadata persisted with an IndexRecord. Empty optional fields are omitted
// from the store.
type Payload struct {
	Text       string `json:"text"`
	File       string `json:"file,omitempty"`
	Source     string `json:"source,omitempty"`
	Type       string `json:"type,omitempty"`
	Domain     string `json:"domain,omitempty"`
	Question   string `json:"question,omitempty"`
	Response   string `json:"response,omitempty"`
	ComplexCoT string `json:"complex_cot,omitempty"`
	ChunkIdx   *int   `json:"chunk_idx,omitempty"`
}

// Field returns the string form of the named payload field and whether it is set.
func (p *Payload) Field(name string) (string, bool) {
	var v string
	switch name {
	case PayloadText:
		v = p.Text
	case PayloadFile:
		v = p.File
	case PayloadSource:
		v = p.Source
	case PayloadType:
		v = p.Type
	case PayloadDomain:
		v = p.Domain
	case PayloadQuestion:
		v = p.Question
	case PayloadResponse:
		v = p.Response
	case PayloadComplexCoT:
		v = p.ComplexCoT
	case PayloadChunkIdx:
		if p.ChunkIdx == nil {
			return "", false
		}
		return strconv.Itoa(*p.ChunkIdx), true
	default:
		return "", false
	}
	return v, v != ""
}

// Origin returns the file name the record came from, preferring file over source.
func (p *Payload) Origin() string {
	if p.File != "" {
		return p.File
	}
	return p.Source
}

// IndexRecord is the persisted unit in the vector store. Created at upload time, never mutated.
type IndexRecord struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"-"`
	Payload Payload   `json:"payload"`
}

// UploadRecord is a ledger entry for an accepted upload.
type UploadRecord struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Format      string    `json:"format"`
	Chunks      int       `json:"chunks"`
	Status      string    `json:"status"`
	Warning     string    `json:"warning,omitempty"`
	SourcePath  string    `json:"source_path,omitempty"`
	SourceMtime int64     `json:"-"`
	SourceSize  int64     `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// UploadResult is returned to the caller after a successful upload.
type UploadResult struct {
	Status             string   `json:"status"`
	ID                 string   `json:"id"`
	File               string   `json:"file"`
	Chunks             int      `json:"chunks"`
	Summary            string   `json:"summary"`
	SuggestedQuestions []string `json:"suggested_questions"`
	Warning            string   `json:"warning,omitempty"`
}

// Case is one entry of a medical reasoning dataset.
type Case struct {
	Question   string `json:"Question"`
	ComplexCoT string `json:"Complex_CoT"`
	Response   string `json:"Response"`
}

// UploadList is one page of the upload ledger.
type UploadList struct {
	Documents []*UploadRecord `json:"documents"`
	Total     int64           `json:"total"`
	Offset    int             `json:"offset"`
	Limit     int             `json:"limit"`
}
