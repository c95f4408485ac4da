package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/medsage/internal/config"
	"github.com/hyperjump/medsage/internal/embedding"
	"github.com/hyperjump/medsage/internal/extract"
	"github.com/hyperjump/medsage/internal/fileid"
	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/internal/storage"
	"github.com/hyperjump/medsage/internal/vector"
	"github.com/xuri/excelize/v2"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{"txt", "md"}, true},
		{"TXT", []string{"txt"}, true},
		{"md", []string{".txt", ".md"}, true},
		{"exe", []string{"txt"}, false},
		{"", []string{"txt"}, false},
		{"pdf", config.DefaultAllowedExtensions, true},
		{"doc", config.DefaultAllowedExtensions, false},
	}
	for _, tt := range tests {
		got := ExtensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestIsMedical(t *testing.T) {
	kw := config.DefaultMedicalKeywords
	if !IsMedical("Patient reports fever", kw) {
		t.Error("expected patient to match")
	}
	if !IsMedical("BLOOD panel attached", kw) {
		t.Error("match should be case-insensitive")
	}
	if !IsMedical("the contest results", kw) {
		t.Error("keywords match as substrings")
	}
	if IsMedical("Quarterly revenue grew", kw) {
		t.Error("unexpected match")
	}
	if IsMedical("anything", nil) {
		t.Error("no keywords should never match")
	}
}

type fixture struct {
	ing    *Ingestor
	store  *vector.MemoryStore
	ledger *storage.SQLiteStorage
	emb    *embedding.HashEmbedder
	cfg    *config.Config
}

func newFixture(t *testing.T, cfg *config.Config, opts ...IngestorOption) *fixture {
	t.Helper()
	dir := t.TempDir()
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Storage.DatabasePath = filepath.Join(dir, "uploads.db")
	cfg.Storage.VectorIndexPath = filepath.Join(dir, "vectors.bin")
	cfg.VectorStore.Type = vector.TypeMemory

	emb := embedding.NewHashEmbedder(32)
	store := vector.NewMemoryStore()
	if err := store.EnsureCollection(context.Background(), cfg.VectorStore.Collection, emb.Dimensions(), vector.DistanceCosine); err != nil {
		t.Fatal(err)
	}
	ledger, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	ing := NewIngestor(extract.NewExtractor(extract.WithTempDir(dir)), emb, store, ledger, cfg, opts...)
	return &fixture{ing: ing, store: store, ledger: ledger, emb: emb, cfg: cfg}
}

func (f *fixture) count(t *testing.T) uint64 {
	t.Helper()
	n, err := f.store.Count(context.Background(), f.cfg.VectorStore.Collection)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func (f *fixture) all(t *testing.T) []models.RetrievalHit {
	t.Helper()
	q, _ := f.emb.Embed(context.Background(), "patient")
	hits, err := f.store.Search(context.Background(), f.cfg.VectorStore.Collection, q, vector.SearchOptions{Limit: 1000})
	if err != nil {
		t.Fatal(err)
	}
	return hits
}

func TestUpload_medicalText(t *testing.T) {
	model := llm.NewMockClient(llm.Reply(
		"SUMMARY: A patient has had fever and cough for three days.\n" +
			"QUESTION 1: How high has the fever been?\n" +
			"QUESTION 2: Is the cough producing sputum?\n" +
			"QUESTION 3: Has the patient travelled recently?"))
	f := newFixture(t, nil, WithLLM(model))
	ctx := context.Background()

	res, err := f.ing.Upload(ctx, &models.Document{
		Filename: "note.txt",
		Content:  []byte("Patient reports fever and cough for three days."),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Status != "success" || res.File != "note.txt" || res.Chunks != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Summary != "A patient has had fever and cough for three days." {
		t.Errorf("summary = %q", res.Summary)
	}
	if len(res.SuggestedQuestions) != 3 || res.SuggestedQuestions[2] != "Has the patient travelled recently?" {
		t.Errorf("questions = %q", res.SuggestedQuestions)
	}

	reqs := model.Requests()
	if len(reqs) != 1 || !strings.HasPrefix(llm.PromptText(reqs[0]), "Here is text extracted from a file:\n\nPatient reports fever") {
		t.Errorf("unexpected summary request %+v", reqs)
	}

	hits := f.all(t)
	if len(hits) != 1 {
		t.Fatalf("expected 1 record, got %d", len(hits))
	}
	p := hits[0].Payload
	if p.File != "note.txt" || p.Type != "TXT" || p.ChunkIdx == nil || *p.ChunkIdx != 0 {
		t.Errorf("unexpected payload %+v", p)
	}

	rec, err := f.ledger.GetUpload(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Chunks != 1 || rec.Status != "ok" || rec.Format != "TXT" {
		t.Errorf("unexpected ledger record %+v", rec)
	}
	if _, err := os.Stat(f.cfg.Storage.VectorIndexPath); err != nil {
		t.Errorf("vector snapshot not saved: %v", err)
	}
}

func TestUpload_rejections(t *testing.T) {
	tests := []struct {
		name    string
		doc     *models.Document
		wantMsg string
	}{
		{"unsupported extension", &models.Document{Filename: "run.exe", Content: []byte("patient")}, "unsupported file type"},
		{"no extension", &models.Document{Filename: "README", Content: []byte("patient")}, "unsupported file type"},
		{"empty text", &models.Document{Filename: "blank.txt", Content: []byte("  \n ")}, MsgUnreadable},
		{"not medical", &models.Document{Filename: "sales.txt", Content: []byte("Quarterly revenue grew by 4%.")}, MsgNotMedical},
		{"degraded image", &models.Document{Filename: "scan.png", Content: []byte{0x89, 'P', 'N', 'G'}}, MsgUnreadable},
		{"invalid json", &models.Document{Filename: "labs.json", Content: []byte(`{"patient":`)}, MsgUnreadable},
		{"binary ppt", &models.Document{Filename: "deck.ppt", Content: []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1\x00Patient blood test report\x00\xff")}, MsgUnreadable},
		{"binary doc", &models.Document{Filename: "notes.doc", Content: []byte("\x00\x01Patient diagnosis\x00\xfe")}, MsgUnreadable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.ing.Upload(context.Background(), tt.doc)
			if !errors.Is(err, models.ErrRejected) {
				t.Fatalf("expected rejection, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
			if n := f.count(t); n != 0 {
				t.Errorf("rejected upload stored %d records", n)
			}
		})
	}
}

func TestUpload_tooLarge(t *testing.T) {
	cfg := config.Default()
	cfg.Upload.MaxBytes = 10
	f := newFixture(t, cfg)
	_, err := f.ing.Upload(context.Background(), &models.Document{Filename: "a.txt", Content: []byte("patient with a long history")})
	if !errors.Is(err, models.ErrRejected) {
		t.Errorf("expected rejection, got %v", err)
	}
}

func TestUpload_degradedWhenFilterOff(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Upload.MedicalOnly = &off
	f := newFixture(t, cfg)
	ctx := context.Background()

	res, err := f.ing.Upload(ctx, &models.Document{Filename: "scan.png", Content: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Warning == "" {
		t.Error("expected a warning for degraded extraction")
	}
	if res.Summary != DefaultSummary {
		t.Errorf("summary without a model = %q", res.Summary)
	}
	rec, err := f.ledger.GetUpload(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != "degraded" {
		t.Errorf("ledger status = %q", rec.Status)
	}
	hits := f.all(t)
	if len(hits) != 1 || !strings.HasPrefix(hits[0].Payload.Text, "[Image error:") {
		t.Errorf("expected placeholder record, got %+v", hits)
	}

	res, err = f.ing.Upload(ctx, &models.Document{Filename: "sales.txt", Content: []byte("Quarterly revenue grew by 4%.")})
	if err != nil || res.Chunks != 1 {
		t.Errorf("non-medical text should pass with the filter off: %v", err)
	}

	res, err = f.ing.Upload(ctx, &models.Document{Filename: "deck.ppt", Content: []byte("\x00\x01Patient blood test report\xff\x81")})
	if err != nil {
		t.Fatalf("Upload ppt: %v", err)
	}
	for _, h := range f.all(t) {
		if h.Payload.File != "deck.ppt" {
			continue
		}
		if !utf8.ValidString(h.Payload.Text) || strings.ContainsRune(h.Payload.Text, 0) || strings.Contains(h.Payload.Text, "blood test") {
			t.Errorf("binary ppt content indexed: %q", h.Payload.Text)
		}
	}
	if res.Warning == "" {
		t.Error("expected a warning for undecodable ppt")
	}
}

func TestUpload_summaryFallbacks(t *testing.T) {
	model := llm.NewMockClient(llm.Fail(errors.New("quota")))
	f := newFixture(t, nil, WithLLM(model))
	ctx := context.Background()

	res, err := f.ing.Upload(ctx, &models.Document{Filename: "a.txt", Content: []byte("patient ok")})
	if err != nil {
		t.Fatal(err)
	}
	if model.Calls() != 0 {
		t.Error("short text should not be summarized")
	}
	if res.Summary != DefaultSummary || res.SuggestedQuestions[0] != DefaultUploadQuestions[0] {
		t.Errorf("unexpected defaults %+v", res)
	}

	res, err = f.ing.Upload(ctx, &models.Document{Filename: "b.txt", Content: []byte("The patient blood test came back normal today.")})
	if err != nil {
		t.Fatal(err)
	}
	if model.Calls() != 1 {
		t.Errorf("expected one summary call, got %d", model.Calls())
	}
	if res.Summary != DefaultSummary || len(res.SuggestedQuestions) != 3 {
		t.Errorf("failed summary should fall back, got %+v", res)
	}
}

func TestUpload_chunking(t *testing.T) {
	cfg := config.Default()
	cfg.Retrieval.ChunkSize = 4
	cfg.Retrieval.ChunkStride = 3
	f := newFixture(t, cfg)
	res, err := f.ing.Upload(context.Background(), &models.Document{
		Filename: "long.txt",
		Content:  []byte("patient one two three four five six seven eight nine"),
	})
	if err != nil {
		t.Fatal(err)
	}
	// 10 words, window 4, stride 3: starts at 0, 3, 6, 9
	if res.Chunks != 4 || f.count(t) != 4 {
		t.Errorf("chunks = %d, stored = %d", res.Chunks, f.count(t))
	}
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		summary   string
		questions []string
	}{
		{
			name:      "well formed",
			reply:     "SUMMARY: Lab report.\nQUESTION 1: What is the HbA1c value?\nQUESTION 2: Is glucose elevated?\nQUESTION 3: Which tests were ordered?",
			summary:   "Lab report.",
			questions: []string{"What is the HbA1c value?", "Is glucose elevated?", "Which tests were ordered?"},
		},
		{
			name:      "lower case and numbered",
			reply:     "summary: An MRI report.\n1. What did the MRI show?\n2) Is a follow-up needed?",
			summary:   "An MRI report.",
			questions: []string{"What did the MRI show?", "Is a follow-up needed?", "What is this about?"},
		},
		{
			name:      "nothing parseable",
			reply:     "I cannot help with that.",
			summary:   DefaultSummary,
			questions: DefaultUploadQuestions,
		},
		{
			name:      "short questions dropped",
			reply:     "SUMMARY: x\nQUESTION 1: Why?\nQUESTION 2 no colon here at all",
			summary:   "x",
			questions: DefaultUploadQuestions,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, questions := ParseSummary(tt.reply)
			if summary != tt.summary {
				t.Errorf("summary = %q, want %q", summary, tt.summary)
			}
			if strings.Join(questions, "|") != strings.Join(tt.questions, "|") {
				t.Errorf("questions = %q, want %q", questions, tt.questions)
			}
		})
	}
}

func TestIngestFile(t *testing.T) {
	cfg := config.Default()
	cfg.Retrieval.ChunkSize = 3
	cfg.Retrieval.ChunkStride = 3
	f := newFixture(t, cfg)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "visit.txt")
	if err := os.WriteFile(path, []byte("patient has fever cough and a sore throat today"), 0644); err != nil {
		t.Fatal(err)
	}
	ingested, err := f.ing.IngestFile(ctx, path)
	if err != nil || !ingested {
		t.Fatalf("IngestFile: %v, %v", ingested, err)
	}
	if n := f.count(t); n != 3 {
		t.Fatalf("expected 3 records, got %d", n)
	}

	ingested, err = f.ing.IngestFile(ctx, path)
	if err != nil || ingested {
		t.Errorf("unchanged file should be skipped: %v, %v", ingested, err)
	}

	if err := os.WriteFile(path, []byte("patient recovered"), 0644); err != nil {
		t.Fatal(err)
	}
	ingested, err = f.ing.IngestFile(ctx, path)
	if err != nil || !ingested {
		t.Fatalf("changed file should be re-ingested: %v, %v", ingested, err)
	}
	if n := f.count(t); n != 1 {
		t.Errorf("stale chunks should be removed, got %d records", n)
	}

	abs, _ := filepath.Abs(path)
	rec, err := f.ledger.GetUpload(ctx, fileid.SourceID(abs))
	if err != nil {
		t.Fatal(err)
	}
	if rec.SourcePath != abs || rec.Chunks != 1 || rec.SourceSize != int64(len("patient recovered")) {
		t.Errorf("unexpected ledger record %+v", rec)
	}
	if n, _ := f.ledger.CountUploads(ctx); n != 1 {
		t.Errorf("re-ingest should replace the ledger record, count = %d", n)
	}

	if err := f.ing.RemoveFile(ctx, path); err != nil {
		t.Fatal(err)
	}
	if n := f.count(t); n != 0 {
		t.Errorf("RemoveFile left %d records", n)
	}
	if _, err := f.ledger.GetUpload(ctx, rec.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ledger record removed, got %v", err)
	}
	if err := f.ing.RemoveFile(ctx, path); err != nil {
		t.Errorf("removing an unknown file should be a no-op: %v", err)
	}
}

func TestIngestFile_xlsx(t *testing.T) {
	f := newFixture(t, nil)
	dir := t.TempDir()
	fPath := filepath.Join(dir, "labs.xlsx")
	x := excelize.NewFile()
	x.SetCellValue("Sheet1", "A1", "patient")
	x.SetCellValue("Sheet1", "B1", "blood glucose 5.4")
	if err := x.SaveAs(fPath); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	x.Close()

	ingested, err := f.ing.IngestFile(context.Background(), fPath)
	if err != nil || !ingested {
		t.Fatalf("IngestFile: %v, %v", ingested, err)
	}
	hits := f.all(t)
	if len(hits) != 1 || !strings.Contains(hits[0].Payload.Text, "Sheet: Sheet1") || hits[0].Payload.Type != "XLSX" {
		t.Errorf("unexpected records %+v", hits)
	}
}

func TestIngestDirectory(t *testing.T) {
	f := newFixture(t, nil)
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "a.txt"):  "patient a",
		filepath.Join(sub, "b.md"):   "doctor b",
		filepath.Join(sub, "c.csv"):  "symptom,severity\ncough,mild",
		filepath.Join(dir, "d.txt"):  "shopping list",
		filepath.Join(dir, "e.exe"):  "patient",
		filepath.Join(dir, "f.json"): `{"diagnosis": "flu"}`,
	}
	for p, content := range files {
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	n, err := f.ing.IngestDirectory(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	// a.txt, c.csv, f.json; b.md is not allowed, d.txt is not medical, e.exe is skipped
	if n != 3 {
		t.Errorf("ingested %d files, want 3", n)
	}
	if _, err := f.ing.IngestDirectory(context.Background(), files[filepath.Join(dir, "a.txt")]); err == nil {
		t.Error("expected error for a file path")
	}
}

func TestLoadCases_jsonArray(t *testing.T) {
	cfg := config.Default()
	cfg.Cases.BatchSize = 2
	f := newFixture(t, cfg)
	long := strings.Repeat("r", 6000)
	data := `[
  {"Question": "A 45-year-old with chest pain?", "Complex_CoT": "Consider ACS.", "Response": "Get an ECG."},
  {"Question": "Long case", "Complex_Cot": "` + long + `", "Response": "Rest."},
  {"Question": "", "Complex_CoT": "", "Response": ""}
]`
	stats, err := f.ing.LoadCases(context.Background(), strings.NewReader(data), "cases.json")
	if err != nil {
		t.Fatal(err)
	}
	// long case text is 6000+ chars: 3 slices of at most 2500
	if stats.Entries != 2 || stats.Chunks != 4 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if n := f.count(t); n != 4 {
		t.Errorf("stored %d records", n)
	}
	for _, h := range f.all(t) {
		p := h.Payload
		if p.Domain != CaseDomain || p.Source != "cases.json" || p.ChunkIdx == nil {
			t.Errorf("unexpected payload %+v", p)
		}
		if len(p.ComplexCoT) > 3000 || len([]rune(p.Text)) > 2500 && p.Question == "Long case" {
			t.Errorf("payload not truncated: cot=%d text=%d", len(p.ComplexCoT), len(p.Text))
		}
	}
}

func TestLoadCases_lines(t *testing.T) {
	f := newFixture(t, nil)
	data := "[\n" +
		`{"Question": "Fever in a toddler?", "Complex_CoT": "Check hydration.", "Response": "Paracetamol."},` + "\n" +
		`{"Question": broken},` + "\n" +
		`{"Question": "Rash after antibiotics?", "Response": "Possible allergy."}` + "\n" +
		"]\n"
	stats, err := f.ing.LoadCases(context.Background(), strings.NewReader(data), "cases.ndjson")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 2 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	found := false
	for _, h := range f.all(t) {
		if h.Payload.Text == "Question: Fever in a toddler?\n\nReasoning: Check hydration.\n\nAnswer: Paracetamol." {
			found = true
		}
	}
	if !found {
		t.Error("combined case text not stored")
	}
}

func TestCaseText(t *testing.T) {
	got := CaseText(&models.Case{Question: " Q ", Response: "A"})
	if got != "Question: Q\n\nAnswer: A" {
		t.Errorf("CaseText = %q", got)
	}
	if CaseText(&models.Case{}) != "" {
		t.Error("empty case should give empty text")
	}
}
