package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/xuri/excelize/v2"
)

func extract(t *testing.T, e *Extractor, content []byte, ext string) models.Outcome {
	t.Helper()
	return e.Extract(context.Background(), content, "file."+ext, ext)
}

func TestExtract_plain(t *testing.T) {
	out := extract(t, NewExtractor(), []byte("Hello world\nLine 2"), "txt")
	if !out.IsOK() || out.Text != "Hello world\nLine 2" {
		t.Errorf("got %+v", out)
	}
}

func TestExtract_plainInvalidUTF8(t *testing.T) {
	out := extract(t, NewExtractor(), []byte("hello\x80world"), "txt")
	if out.Text != "hello�world" {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_json(t *testing.T) {
	out := extract(t, NewExtractor(), []byte(`{"b":1,"a":[true,null]}`), "json")
	want := "{\n  \"b\": 1,\n  \"a\": [\n    true,\n    null\n  ]\n}"
	if !out.IsOK() || out.Text != want {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_jsonInvalid(t *testing.T) {
	out := extract(t, NewExtractor(), []byte(`{"a":`), "json")
	if out.Status != models.OutcomeDegraded {
		t.Errorf("status = %s", out.Status)
	}
	if !strings.HasPrefix(out.Text, "[File processed with warning: ") || !strings.HasSuffix(out.Text, "]") {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_csv(t *testing.T) {
	out := extract(t, NewExtractor(), []byte("name,dose\n\"aspirin, low\",81mg\nibuprofen\n"), "csv")
	want := "name\tdose\naspirin, low\t81mg\nibuprofen"
	if !out.IsOK() || out.Text != want {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_xlsxSheets(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Test")
	f.SetCellValue("Sheet1", "B1", "Result")
	f.SetCellValue("Sheet1", "A2", "HbA1c")
	f.SetCellValue("Sheet1", "B2", "6.1%")
	if _, err := f.NewSheet("Notes"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Notes", "A1", "Fasting sample")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	out := extract(t, NewExtractor(), buf.Bytes(), "xlsx")
	want := "Sheet: Sheet1\nTest\tResult\nHbA1c\t6.1%\n\nSheet: Notes\nFasting sample"
	if !out.IsOK() || out.Text != want {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_xlsBadBytes(t *testing.T) {
	out := extract(t, NewExtractor(), []byte("not a workbook"), "xls")
	if out.Status != models.OutcomeDegraded || !strings.HasPrefix(out.Text, "[File processed with warning:") {
		t.Errorf("got %+v", out)
	}
}

func TestExtract_unknownAllowedExtension(t *testing.T) {
	out := extract(t, NewExtractor(), []byte("raw"), "xyz")
	if out.Text != PlaceholderUploaded || out.Status != models.OutcomeDegraded {
		t.Errorf("got %+v", out)
	}
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	out := NewExtractor().ExtractFile(context.Background(), path)
	if out.Text != "File content" {
		t.Errorf("got %q", out.Text)
	}
	out = NewExtractor().ExtractFile(context.Background(), "/nonexistent/file.txt")
	if out.Status != models.OutcomeFailed {
		t.Errorf("status = %s", out.Status)
	}
}

func TestExt(t *testing.T) {
	for in, want := range map[string]string{"Scan.PDF": "pdf", "a.b.jpeg": "jpeg", "README": ""} {
		if got := Ext(in); got != want {
			t.Errorf("Ext(%q) = %q, want %q", in, got, want)
		}
	}
}

func docxBody(paragraphs string) string {
	return `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + paragraphs + `</w:body></w:document>`
}

// minimalDocx returns a .docx zip whose word/document.xml holds the given body XML.
func minimalDocx(body string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(docxBody(body)))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtract_docxParagraphs(t *testing.T) {
	body := `<w:p w:rsidR="001"><w:pPr><w:jc w:val="left"/></w:pPr><w:r><w:t>Chief </w:t></w:r><w:r><w:t xml:space="preserve">complaint</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>   </w:t></w:r></w:p>` +
		`<w:p/>` +
		`<w:p><w:r><w:t>Fever &amp; cough</w:t></w:r></w:p>`
	out := extract(t, NewExtractor(), minimalDocx(body), "docx")
	if !out.IsOK() || out.Text != "Chief complaint\nFever & cough" {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_docxContentTypes(t *testing.T) {
	for name, override := range map[string]string{
		"partNameFirst":    `<Override PartName="/word/document2.xml" ContentType="` + docxMainContentType + `"/>`,
		"contentTypeFirst": `<Override ContentType="` + docxMainContentType + `" PartName="/word/document2.xml"/>`,
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			w := zip.NewWriter(&buf)
			ct, _ := w.Create(contentTypesPath)
			_, _ = ct.Write([]byte(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + override + `</Types>`))
			fw, _ := w.Create("word/document2.xml")
			_, _ = fw.Write([]byte(docxBody(`<w:p><w:r><w:t>Content from document2</w:t></w:r></w:p>`)))
			_ = w.Close()

			out := extract(t, NewExtractor(), buf.Bytes(), "docx")
			if out.Text != "Content from document2" {
				t.Errorf("got %q", out.Text)
			}
		})
	}
}

func TestExtract_docxNotZip(t *testing.T) {
	out := extract(t, NewExtractor(), []byte("not a zip"), "docx")
	if out.Status != models.OutcomeDegraded || !strings.Contains(out.Text, "not a zip") {
		t.Errorf("got %+v", out)
	}
}

func slideXML(shapes ...string) string {
	var b strings.Builder
	b.WriteString(`<p:sld><p:cSld><p:spTree>`)
	for _, s := range shapes {
		b.WriteString(`<p:sp><p:nvSpPr/><p:txBody>`)
		for _, line := range strings.Split(s, "\n") {
			b.WriteString(`<a:p><a:r><a:t>` + line + `</a:t></a:r></a:p>`)
		}
		b.WriteString(`</p:txBody></p:sp>`)
	}
	b.WriteString(`<p:sp><p:nvSpPr/><p:spPr/></p:sp>`)
	b.WriteString(`</p:spTree></p:cSld></p:sld>`)
	return b.String()
}

func minimalPptx(slides map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, xml := range slides {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(xml))
	}
	_ = w.Close()
	return buf.Bytes()
}

func TestExtract_pptxSlideOrder(t *testing.T) {
	content := minimalPptx(map[string]string{
		"ppt/slides/slide10.xml":           slideXML("Tenth"),
		"ppt/slides/slide2.xml":            slideXML("Second title", "Body\nmore"),
		"ppt/slides/slide1.xml":            slideXML("First"),
		"ppt/slides/_rels/slide1.xml.rels": `<Relationships/>`,
	})
	out := extract(t, NewExtractor(), content, "pptx")
	want := "First\nSecond title\nBody\nmore\nTenth\n"
	if !out.IsOK() || out.Text != want {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_pptxEmpty(t *testing.T) {
	content := minimalPptx(map[string]string{"docProps/core.xml": "<x/>"})
	out := extract(t, NewExtractor(), content, "pptx")
	if !out.IsOK() || out.Text != "" {
		t.Errorf("got %+v", out)
	}
}

func minimalODF(contentXML string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("content.xml")
	_, _ = fw.Write([]byte(contentXML))
	_ = w.Close()
	return buf.Bytes()
}

func TestExtract_odp(t *testing.T) {
	xml := `<office:document><office:body><draw:page><text:h text:outline-level="1">Slide title</text:h><draw:text-box><text:p>Body <text:span>text</text:span></text:p><text:p/></draw:text-box></draw:page></office:body></office:document>`
	out := extract(t, NewExtractor(), minimalODF(xml), "odp")
	if out.Text != "Slide title\nBody text" {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_ods(t *testing.T) {
	xml := `<office:document><office:body><table:table table:name="Labs"><table:table-row><table:table-cell><text:p>Glucose</text:p></table:table-cell><table:table-cell/><table:table-cell><text:p>5.4</text:p></table:table-cell></table:table-row></table:table></office:body></office:document>`
	out := extract(t, NewExtractor(), minimalODF(xml), "ods")
	if out.Text != "Sheet: Labs\nGlucose\t\t5.4" {
		t.Errorf("got %q", out.Text)
	}
}

func TestExtract_odfContentMissing(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, _ = w.Create("other.xml")
	_ = w.Close()
	for _, ext := range []string{"odp", "ods"} {
		out := extract(t, NewExtractor(), buf.Bytes(), ext)
		if out.Status != models.OutcomeDegraded {
			t.Errorf("%s: status = %s", ext, out.Status)
		}
	}
}

func TestExtract_pdfInvalid(t *testing.T) {
	out := extract(t, NewExtractor(), []byte("%PDF-garbage"), "pdf")
	if out.Status != models.OutcomeDegraded || !strings.HasPrefix(out.Text, "[File processed with warning:") {
		t.Errorf("got %+v", out)
	}
}

func TestExtract_image(t *testing.T) {
	mock := llm.NewMockClient(llm.Reply("Rx: amoxicillin 500mg"))
	out := extract(t, NewExtractor(WithLLM(mock)), []byte{0x89, 'P', 'N', 'G'}, "png")
	if !out.IsOK() || out.Text != "Rx: amoxicillin 500mg" {
		t.Errorf("got %+v", out)
	}
	req := mock.Requests()[0]
	if req.Parts[0].Text != imagePrompt {
		t.Errorf("prompt = %q", req.Parts[0].Text)
	}
	if req.Parts[1].MIMEType != "image/png" || len(req.Parts[1].Data) != 4 {
		t.Errorf("image part = %+v", req.Parts[1])
	}
}

func TestExtract_imageSentinels(t *testing.T) {
	mock := llm.NewMockClient(llm.Reply(""), llm.Fail(errors.New("quota")))
	e := NewExtractor(WithLLM(mock))

	out := extract(t, e, []byte("img"), "jpg")
	if out.Text != PlaceholderNoImageText || out.Status != models.OutcomeDegraded {
		t.Errorf("empty response: %+v", out)
	}
	out = extract(t, e, []byte("img"), "jpeg")
	if out.Text != "[Image error: quota]" {
		t.Errorf("failed call: %q", out.Text)
	}
	out = extract(t, NewExtractor(), []byte("img"), "webp")
	if !strings.HasPrefix(out.Text, "[Image error: ") {
		t.Errorf("no model: %q", out.Text)
	}
}

func TestExtract_audioRemovesTempFile(t *testing.T) {
	cases := []struct {
		name     string
		response llm.Response
		want     string
	}{
		{"success", llm.Reply("00:01 patient reports chest pain"), "00:01 patient reports chest pain"},
		{"empty", llm.Reply(""), PlaceholderNoTranscript},
		{"failure", llm.Fail(errors.New("upload rejected")), "[Audio error: upload rejected]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			var staged string
			mock := llm.NewMockClient()
			mock.Fallback = func(req *llm.Request) (string, error) {
				staged = req.Parts[1].FilePath
				if _, err := os.Stat(staged); err != nil {
					t.Errorf("staged file missing during call: %v", err)
				}
				return tc.response.Text, tc.response.Err
			}
			e := NewExtractor(WithLLM(mock), WithTempDir(dir))
			out := e.Extract(context.Background(), []byte("ID3audio"), "visit.mp3", "mp3")
			if out.Text != tc.want {
				t.Errorf("got %q, want %q", out.Text, tc.want)
			}
			if filepath.Ext(staged) != ".mp3" || filepath.Dir(staged) != dir {
				t.Errorf("staged path = %q", staged)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("temp files left behind: %d", len(entries))
			}
			if got := mock.Requests()[0].Parts[1].MIMEType; got != "audio/mpeg" {
				t.Errorf("mime = %q", got)
			}
		})
	}
}

func TestExtract_audioTempDirMissing(t *testing.T) {
	mock := llm.NewMockClient(llm.Reply("never"))
	e := NewExtractor(WithLLM(mock), WithTempDir(filepath.Join(t.TempDir(), "missing")))
	out := e.Extract(context.Background(), []byte("x"), "a.wav", "wav")
	if !strings.HasPrefix(out.Text, "[Audio error: ") || mock.Calls() != 0 {
		t.Errorf("got %+v after %d calls", out, mock.Calls())
	}
}
