package e2e

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"

	"github.com/xuri/excelize/v2"
)

// UploadExtensions are file types the default upload allow-list accepts and that can be
// generated here with extractable text.
var UploadExtensions = []string{"txt", "docx", "pptx", "xlsx", "csv", "json"}

// ExtractableExtensions adds formats the extractor reads but uploads do not accept by default.
var ExtractableExtensions = append([]string{"md", "odp", "ods"}, UploadExtensions...)

// MinimalFile returns the bytes of a minimal file of the given extension holding text.
// For plain types the content is the raw text.
func MinimalFile(ext, text string) []byte {
	switch ext {
	case "docx":
		return zipWith("word/document.xml", `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>`+text+`</w:t></w:r></w:p></w:body></w:document>`)
	case "pptx":
		return zipWith("ppt/slides/slide1.xml", `<p:sld xmlns:p="a" xmlns:a="b"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>`+text+`</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	case "odp":
		return zipWith("content.xml", `<office:document><office:body><draw:page><draw:text-box><text:p>`+text+`</text:p></draw:text-box></draw:page></office:body></office:document>`)
	case "ods":
		return zipWith("content.xml", `<office:document><office:body><table:table><table:table-row><table:table-cell><text:p>`+text+`</text:p></table:table-cell></table:table-row></table:table></office:body></office:document>`)
	case "xlsx":
		return minimalXlsx(text)
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{text})
		w.Flush()
		return buf.Bytes()
	case "json":
		b, _ := json.Marshal(map[string]string{"note": text})
		return b
	default:
		return []byte(text)
	}
}

func zipWith(name, body string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create(name)
	_, _ = fw.Write([]byte(body))
	_ = w.Close()
	return buf.Bytes()
}

func minimalXlsx(text string) []byte {
	f := excelize.NewFile()
	defer f.Close()
	_ = f.SetCellValue("Sheet1", "A1", text)
	var buf bytes.Buffer
	_, _ = f.WriteTo(&buf)
	return buf.Bytes()
}
