// Package cli provides output formatting and an HTTP client for the medsage command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const sourcePreviewChars = 200

var (
	heading   = color.New(color.FgCyan, color.Bold).SprintFunc()
	emergency = color.New(color.FgRed, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
)

// ParseOutputFormat maps a --output value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer with its sources and suggested follow-ups.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintf(w, "\n%s\n%s\n\n", heading("Answer"), ans.Answer)
	fmt.Fprintf(w, "%s %s", faint("source:"), ans.SourceType)
	if ans.Status != "" && ans.Status != models.OutcomeOK {
		fmt.Fprintf(w, " %s", faint("("+string(ans.Status)+")"))
	}
	fmt.Fprintln(w)
	if len(ans.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", heading("Sources"))
		for i, src := range ans.Sources {
			name := src.File
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(w, "%d. %s [%s] score %.4f\n", i+1, name, src.Type, src.Score)
			fmt.Fprintf(w, "   %s\n", utils.Truncate(oneLine(src.Text), sourcePreviewChars))
		}
	}
	writeQuestions(w, "You might also ask", ans.SuggestedQuestions)
	return nil
}

// WriteDiagnosis writes a consult result. An emergency is flagged before everything else.
func WriteDiagnosis(w io.Writer, d *models.Diagnosis, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, d)
	}
	fmt.Fprintln(w)
	if d.IsEmergency {
		fmt.Fprintln(w, emergency("EMERGENCY: seek immediate medical care."))
		fmt.Fprintln(w)
	}
	sections := []struct{ title, body string }{
		{"Diagnosis", d.Diagnosis},
		{"Reasoning", d.Reasoning},
		{"Recommendations", d.Recommendations},
		{"Danger signs", d.DangerSigns},
	}
	for _, s := range sections {
		if s.body == "" {
			continue
		}
		fmt.Fprintf(w, "%s\n%s\n\n", heading(s.title), s.body)
	}
	writeQuestions(w, "Next questions", d.NextQuestions)
	return nil
}

// WriteUpload writes the result of an upload.
func WriteUpload(w io.Writer, res *models.UploadResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Uploaded %s (%d chunk(s)), id %s\n", res.File, res.Chunks, res.ID)
	if res.Warning != "" {
		fmt.Fprintf(w, "warning: %s\n", res.Warning)
	}
	fmt.Fprintf(w, "\n%s\n%s\n", heading("Summary"), res.Summary)
	writeQuestions(w, "Suggested questions", res.SuggestedQuestions)
	return nil
}

// WriteStatus writes the instance status.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "vector_store:       %s\n", st.VectorStore)
	fmt.Fprintf(w, "collection:         %s\n", st.Collection)
	fmt.Fprintf(w, "records:            %d   # vectors in the collection\n", st.Records)
	fmt.Fprintf(w, "uploads:            %d   # files in the upload ledger\n", st.Uploads)
	fmt.Fprintf(w, "chunks:             %d   # chunks from uploaded files\n", st.Chunks)
	fmt.Fprintf(w, "disk_usage_bytes:   %d\n", st.DiskUsageBytes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# models")
	fmt.Fprintf(w, "embedding_model:    %s\n", st.EmbeddingModel)
	fmt.Fprintf(w, "embedding_dims:     %d\n", st.Dimensions)
	fmt.Fprintf(w, "llm_provider:       %s\n", st.LLMProvider)
	fmt.Fprintf(w, "llm_model:          %s\n", st.LLMModel)
	return nil
}

// WriteUploads writes one page of the upload ledger.
func WriteUploads(w io.Writer, list *models.UploadList, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, list)
	}
	if len(list.Documents) == 0 {
		fmt.Fprintln(w, "No uploads.")
		return nil
	}
	for _, d := range list.Documents {
		fmt.Fprintf(w, "%s  %-8s %-5s %3d  %s  %s\n",
			d.CreatedAt.Format("2006-01-02 15:04"), d.Status, d.Format, d.Chunks, d.ID, d.Filename)
	}
	fmt.Fprintf(w, "\n%d of %d upload(s)\n", len(list.Documents), list.Total)
	return nil
}

func writeQuestions(w io.Writer, title string, qs []string) {
	if len(qs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", heading(title))
	for i, q := range qs {
		fmt.Fprintf(w, "%d. %s\n", i+1, q)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
