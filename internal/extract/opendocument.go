package extract

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// odfContentPath is the main content part of every OpenDocument package.
const odfContentPath = "content.xml"

var (
	// odfParagraph matches text:p and text:h elements, which never nest in each other.
	odfParagraph = regexp.MustCompile(`(?s)<text:(p|h)[ >].*?</text:(p|h)>`)
	odfTable     = regexp.MustCompile(`(?s)<table:table [^>]*?table:name="([^"]*)"[^>]*>(.*?)</table:table>`)
	odfRow       = regexp.MustCompile(`(?s)<table:table-row[ >].*?</table:table-row>`)
	odfCell      = regexp.MustCompile(`(?s)<table:table-cell[^>]*/>|<table:table-cell[ >].*?</table:table-cell>`)
	anyTag       = regexp.MustCompile(`<[^>]+>`)
)

func readODFContent(content []byte, format string) (string, error) {
	zr, err := openZip(content, format)
	if err != nil {
		return "", err
	}
	data, err := readZipEntry(zr, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	if data == nil {
		return "", fmt.Errorf("extract %s: %s not found", format, odfContentPath)
	}
	return string(data), nil
}

func odfText(fragment string) string {
	return strings.TrimSpace(html.UnescapeString(anyTag.ReplaceAllString(fragment, "")))
}

// extractODP returns the non-empty headings and paragraphs of an .odp in document order.
func extractODP(content []byte) (string, error) {
	xml, err := readODFContent(content, "ODP")
	if err != nil {
		return "", err
	}
	var lines []string
	for _, p := range odfParagraph.FindAllString(xml, -1) {
		if text := odfText(p); text != "" {
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// extractODS renders an .ods the same way as xlsx: a "Sheet: <name>" header followed by
// tab-separated rows.
func extractODS(content []byte) (string, error) {
	xml, err := readODFContent(content, "ODS")
	if err != nil {
		return "", err
	}
	var sheets []string
	for _, t := range odfTable.FindAllStringSubmatch(xml, -1) {
		var b strings.Builder
		b.WriteString("Sheet: ")
		b.WriteString(html.UnescapeString(t[1]))
		for _, row := range odfRow.FindAllString(t[2], -1) {
			cells := odfCell.FindAllString(row, -1)
			values := make([]string, len(cells))
			for i, c := range cells {
				values[i] = odfText(c)
			}
			b.WriteByte('\n')
			b.WriteString(strings.TrimRight(strings.Join(values, "\t"), "\t"))
		}
		sheets = append(sheets, b.String())
	}
	return strings.Join(sheets, "\n\n"), nil
}
