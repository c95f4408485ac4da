package extract

import (
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// slidePathRe matches ppt/slides/slideN.xml and captures N.
	slidePathRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	spTag       = regexp.MustCompile(`(?s)<p:sp[ >].*?</p:sp>`)
	apTag       = regexp.MustCompile(`(?s)<a:p[ >].*?</a:p>|<a:p/>`)
	atTag       = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
)

type slidePart struct {
	num  int
	name string
}

// extractPPTX returns the text of every text-bearing shape, slide by slide in numeric order.
// A shape's paragraphs are joined by newlines and each shape ends with a newline.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return "", err
	}
	var slides []slidePart
	for _, f := range zr.File {
		m := slidePathRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slidePart{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var b strings.Builder
	for _, s := range slides {
		data, err := readZipEntry(zr, s.name)
		if err != nil {
			return "", err
		}
		for _, shape := range spTag.FindAllString(string(data), -1) {
			if !strings.Contains(shape, "<p:txBody") {
				continue
			}
			paras := apTag.FindAllString(shape, -1)
			lines := make([]string, 0, len(paras))
			for _, p := range paras {
				var line strings.Builder
				for _, run := range atTag.FindAllStringSubmatch(p, -1) {
					line.WriteString(html.UnescapeString(run[1]))
				}
				lines = append(lines, line.String())
			}
			b.WriteString(strings.Join(lines, "\n"))
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
