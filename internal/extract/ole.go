package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/richardlehane/mscfb"
)

// oleSignature opens every OLE2 compound file (legacy doc, xls and ppt).
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

func isOLE(content []byte) bool {
	return bytes.HasPrefix(content, oleSignature)
}

// readOLEStreams returns the named top-level streams of an OLE2 compound file. Streams that
// are absent are missing from the map.
func readOLEStreams(content []byte, names ...string) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	streams := make(map[string][]byte, len(names))
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !want[entry.Name] || len(entry.Path) > 0 {
			continue
		}
		data, rerr := io.ReadAll(entry)
		if rerr != nil {
			return nil, fmt.Errorf("read stream %q: %w", entry.Name, rerr)
		}
		streams[entry.Name] = data
	}
	return streams, nil
}

// decodeUTF16 decodes little-endian UTF-16. A trailing odd byte is dropped.
func decodeUTF16(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(u))
}

// decodeLatin1 maps each byte to the code point of the same value.
func decodeLatin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// cleanOfficeText turns Office paragraph, cell and line marks into newlines and drops the
// remaining control characters. Field instructions between 0x13 and 0x14 are skipped.
func cleanOfficeText(s string) string {
	var b strings.Builder
	inField := false
	for _, r := range s {
		switch {
		case r == 0x13:
			inField = true
		case r == 0x14 || r == 0x15:
			inField = false
		case inField:
		case r == '\r' || r == 0x0B || r == 0x0C || r == 0x07:
			b.WriteByte('\n')
		case r == '\t' || r == '\n':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7F || r == utf8.RuneError:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PowerPoint 97-2003 record types.
const (
	pptTextCharsAtom = 0x0FA0
	pptTextBytesAtom = 0x0FA8
)

// extractPPT walks the record tree of the "PowerPoint Document" stream and returns the text
// of every TextCharsAtom and TextBytesAtom, one line per paragraph.
func extractPPT(content []byte) (string, error) {
	if !isOLE(content) {
		return "", errors.New("PPT: not a compound file")
	}
	streams, err := readOLEStreams(content, "PowerPoint Document")
	if err != nil {
		return "", fmt.Errorf("PPT: %w", err)
	}
	data, ok := streams["PowerPoint Document"]
	if !ok {
		return "", errors.New(`PPT: missing "PowerPoint Document" stream`)
	}

	var lines []string
	for off := 0; off+8 <= len(data); {
		verInst := binary.LittleEndian.Uint16(data[off:])
		typ := binary.LittleEndian.Uint16(data[off+2:])
		n := int(binary.LittleEndian.Uint32(data[off+4:]))
		off += 8
		// Containers hold child records directly after their header.
		if verInst&0x000F == 0x000F {
			continue
		}
		if n < 0 || off+n > len(data) {
			break
		}
		body := data[off : off+n]
		off += n
		var text string
		switch typ {
		case pptTextCharsAtom:
			text = decodeUTF16(body)
		case pptTextBytesAtom:
			text = decodeLatin1(body)
		default:
			continue
		}
		for _, line := range strings.Split(cleanOfficeText(text), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// Word 97-2003 File Information Block offsets.
const (
	fibFlagsOffset   = 0x000A
	fibCcpTextOffset = 0x004C
	fibFcClxOffset   = 0x01A2
	fibLcbClxOffset  = 0x01A6
	fibWhichTable    = 0x0200
	pcdCompressed    = 0x40000000
)

// extractDOC reads the main document text of a Word 97-2003 file through its piece table.
func extractDOC(content []byte) (string, error) {
	streams, err := readOLEStreams(content, "WordDocument", "0Table", "1Table")
	if err != nil {
		return "", fmt.Errorf("DOC: %w", err)
	}
	word, ok := streams["WordDocument"]
	if !ok {
		return "", errors.New(`DOC: missing "WordDocument" stream`)
	}
	if len(word) < fibLcbClxOffset+4 {
		return "", errors.New("DOC: file information block truncated")
	}
	tableName := "0Table"
	if binary.LittleEndian.Uint16(word[fibFlagsOffset:])&fibWhichTable != 0 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return "", fmt.Errorf("DOC: missing %q stream", tableName)
	}
	ccpText := int(binary.LittleEndian.Uint32(word[fibCcpTextOffset:]))
	fcClx := int(binary.LittleEndian.Uint32(word[fibFcClxOffset:]))
	lcbClx := int(binary.LittleEndian.Uint32(word[fibLcbClxOffset:]))
	if fcClx < 0 || lcbClx <= 0 || fcClx+lcbClx > len(table) {
		return "", errors.New("DOC: piece table out of range")
	}
	clx := table[fcClx : fcClx+lcbClx]

	// Skip Prc entries until the Pcdt that holds the piece table.
	for len(clx) > 0 && clx[0] == 0x01 {
		if len(clx) < 3 {
			return "", errors.New("DOC: truncated property modifier")
		}
		skip := 3 + int(binary.LittleEndian.Uint16(clx[1:]))
		if skip > len(clx) {
			return "", errors.New("DOC: truncated property modifier")
		}
		clx = clx[skip:]
	}
	if len(clx) < 5 || clx[0] != 0x02 {
		return "", errors.New("DOC: piece table not found")
	}
	plc := clx[5:]
	if lcb := int(binary.LittleEndian.Uint32(clx[1:])); lcb <= len(plc) {
		plc = plc[:lcb]
	}
	// PlcPcd holds n+1 character positions followed by n 8-byte piece descriptors.
	n := (len(plc) - 4) / 12
	if n <= 0 {
		return "", errors.New("DOC: empty piece table")
	}

	var b strings.Builder
	remaining := ccpText
	for i := 0; i < n && remaining > 0; i++ {
		cpStart := int(binary.LittleEndian.Uint32(plc[i*4:]))
		cpEnd := int(binary.LittleEndian.Uint32(plc[(i+1)*4:]))
		count := cpEnd - cpStart
		if count <= 0 {
			continue
		}
		if count > remaining {
			count = remaining
		}
		remaining -= count
		fc := binary.LittleEndian.Uint32(plc[(n+1)*4+i*8+2:])
		if fc&pcdCompressed != 0 {
			start := int(fc&^pcdCompressed) / 2
			if start+count > len(word) {
				return "", errors.New("DOC: piece outside document stream")
			}
			b.WriteString(decodeLatin1(word[start : start+count]))
		} else {
			start := int(fc)
			if start+count*2 > len(word) {
				return "", errors.New("DOC: piece outside document stream")
			}
			b.WriteString(decodeUTF16(word[start : start+count*2]))
		}
	}
	return strings.TrimSpace(cleanOfficeText(b.String())), nil
}
