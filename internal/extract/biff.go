package extract

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BIFF8 record types read by extractXLS.
const (
	biffFormula    = 0x0006
	biffEOF        = 0x000A
	biffContinue   = 0x003C
	biffBoundSheet = 0x0085
	biffMulRK      = 0x00BD
	biffSST        = 0x00FC
	biffLabelSST   = 0x00FD
	biffNumber     = 0x0203
	biffLabel      = 0x0204
	biffBoolErr    = 0x0205
	biffString     = 0x0207
	biffRK         = 0x027E
	biffBOF        = 0x0809
)

type biffRecord struct {
	typ  uint16
	data []byte
}

type biffSheet struct {
	name   string
	offset int
}

// readBIFFRecord returns the record at off and the offset of the next one.
func readBIFFRecord(stream []byte, off int) (biffRecord, int, error) {
	if off+4 > len(stream) {
		return biffRecord{}, 0, errors.New("record header past end of stream")
	}
	typ := binary.LittleEndian.Uint16(stream[off:])
	n := int(binary.LittleEndian.Uint16(stream[off+2:]))
	if off+4+n > len(stream) {
		return biffRecord{}, 0, fmt.Errorf("record 0x%04X truncated", typ)
	}
	return biffRecord{typ: typ, data: stream[off+4 : off+4+n]}, off + 4 + n, nil
}

// extractXLS renders a BIFF8 workbook the same way extractSpreadsheet renders xlsx: every
// worksheet as "Sheet: <name>" followed by tab-separated rows. Content that is not a
// compound file is handed to excelize, since .xls is often a renamed xlsx.
func extractXLS(content []byte) (string, error) {
	if !isOLE(content) {
		return extractSpreadsheet(content)
	}
	streams, err := readOLEStreams(content, "Workbook", "Book")
	if err != nil {
		return "", fmt.Errorf("XLS: %w", err)
	}
	wb, ok := streams["Workbook"]
	if !ok {
		if _, old := streams["Book"]; old {
			return "", errors.New("XLS: BIFF5 workbooks are not supported")
		}
		return "", errors.New(`XLS: missing "Workbook" stream`)
	}

	var (
		sheets []biffSheet
		sst    []string
	)
	for off := 0; off < len(wb); {
		rec, next, err := readBIFFRecord(wb, off)
		if err != nil {
			return "", fmt.Errorf("XLS: %w", err)
		}
		off = next
		switch rec.typ {
		case biffBoundSheet:
			if len(rec.data) < 8 {
				return "", errors.New("XLS: short sheet record")
			}
			// Only worksheets carry cells; skip charts and macro sheets.
			if rec.data[5] != 0 {
				continue
			}
			name, _ := biffShortString(rec.data[6:])
			sheets = append(sheets, biffSheet{name: name, offset: int(binary.LittleEndian.Uint32(rec.data))})
		case biffSST:
			segments := [][]byte{rec.data}
			for off < len(wb) {
				cont, after, err := readBIFFRecord(wb, off)
				if err != nil || cont.typ != biffContinue {
					break
				}
				segments = append(segments, cont.data)
				off = after
			}
			if sst, err = parseSST(segments); err != nil {
				return "", fmt.Errorf("XLS: %w", err)
			}
		case biffEOF:
			off = len(wb)
		}
	}

	out := make([]string, 0, len(sheets))
	for _, sh := range sheets {
		grid, err := readBIFFSheet(wb, sh.offset, sst)
		if err != nil {
			return "", fmt.Errorf("XLS: sheet %q: %w", sh.name, err)
		}
		out = append(out, "Sheet: "+sh.name+grid)
	}
	return strings.Join(out, "\n\n"), nil
}

// readBIFFSheet collects the cells of the worksheet substream starting at off and renders
// them row by row, each row prefixed by a newline.
func readBIFFSheet(wb []byte, off int, sst []string) (string, error) {
	if off <= 0 || off >= len(wb) {
		return "", errors.New("sheet offset out of range")
	}
	cells := make(map[int]map[int]string)
	set := func(row, col int, v string) {
		if cells[row] == nil {
			cells[row] = make(map[int]string)
		}
		cells[row][col] = v
	}
	// A string-valued formula keeps its result in the STRING record that follows it.
	pendingRow, pendingCol := -1, -1

	for off < len(wb) {
		rec, next, err := readBIFFRecord(wb, off)
		if err != nil {
			return "", err
		}
		off = next
		d := rec.data
		if rec.typ == biffEOF {
			break
		}
		switch rec.typ {
		case biffLabelSST:
			if len(d) < 10 {
				continue
			}
			if i := int(binary.LittleEndian.Uint32(d[6:])); i < len(sst) {
				row, col := cellPos(d)
				set(row, col, sst[i])
			}
		case biffLabel:
			if len(d) < 6 {
				continue
			}
			if s, _, err := biffUnicodeString(d[6:]); err == nil {
				row, col := cellPos(d)
				set(row, col, s)
			}
		case biffNumber:
			if len(d) < 14 {
				continue
			}
			row, col := cellPos(d)
			set(row, col, formatNumber(math.Float64frombits(binary.LittleEndian.Uint64(d[6:]))))
		case biffRK:
			if len(d) < 10 {
				continue
			}
			row, col := cellPos(d)
			set(row, col, formatNumber(decodeRK(binary.LittleEndian.Uint32(d[6:]))))
		case biffMulRK:
			if len(d) < 6 {
				continue
			}
			row := int(binary.LittleEndian.Uint16(d))
			col := int(binary.LittleEndian.Uint16(d[2:]))
			for p := 4; p+6 <= len(d)-2; p += 6 {
				set(row, col, formatNumber(decodeRK(binary.LittleEndian.Uint32(d[p+2:]))))
				col++
			}
		case biffBoolErr:
			if len(d) < 8 {
				continue
			}
			if d[7] == 0 {
				row, col := cellPos(d)
				set(row, col, boolText(d[6] != 0))
			}
		case biffFormula:
			if len(d) < 14 {
				continue
			}
			row, col := cellPos(d)
			res := d[6:14]
			if res[6] != 0xFF || res[7] != 0xFF {
				set(row, col, formatNumber(math.Float64frombits(binary.LittleEndian.Uint64(res))))
				continue
			}
			switch res[0] {
			case 0:
				pendingRow, pendingCol = row, col
			case 1:
				set(row, col, boolText(res[2] != 0))
			}
		case biffString:
			if pendingRow < 0 {
				continue
			}
			if s, _, err := biffUnicodeString(d); err == nil {
				set(pendingRow, pendingCol, s)
			}
			pendingRow, pendingCol = -1, -1
		}
	}
	return renderGrid(cells), nil
}

func cellPos(d []byte) (int, int) {
	return int(binary.LittleEndian.Uint16(d)), int(binary.LittleEndian.Uint16(d[2:]))
}

func boolText(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// decodeRK unpacks the compressed RK number encoding.
func decodeRK(rk uint32) float64 {
	var v float64
	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&0xFFFFFFFC) << 32)
	}
	if rk&0x01 != 0 {
		v /= 100
	}
	return v
}

// renderGrid writes rows in order up to the last non-empty one. Missing cells are empty
// fields and each row stops at its last populated column.
func renderGrid(cells map[int]map[int]string) string {
	if len(cells) == 0 {
		return ""
	}
	maxRow := 0
	for r := range cells {
		if r > maxRow {
			maxRow = r
		}
	}
	var b strings.Builder
	for r := 0; r <= maxRow; r++ {
		b.WriteByte('\n')
		row := cells[r]
		last := -1
		for c := range row {
			if c > last {
				last = c
			}
		}
		fields := make([]string, last+1)
		for c, v := range row {
			fields[c] = v
		}
		b.WriteString(strings.Join(fields, "\t"))
	}
	return b.String()
}

// biffShortString decodes a string with an 8-bit character count.
func biffShortString(d []byte) (string, error) {
	if len(d) < 2 {
		return "", errors.New("short string truncated")
	}
	s, _, err := biffChars(d[2:], int(d[0]), d[1]&0x01 != 0)
	return s, err
}

// biffUnicodeString decodes a string with a 16-bit character count and returns the bytes used.
func biffUnicodeString(d []byte) (string, int, error) {
	if len(d) < 3 {
		return "", 0, errors.New("string truncated")
	}
	s, n, err := biffChars(d[3:], int(binary.LittleEndian.Uint16(d)), d[2]&0x01 != 0)
	return s, 3 + n, err
}

func biffChars(d []byte, count int, wide bool) (string, int, error) {
	n := count
	if wide {
		n *= 2
	}
	if n > len(d) {
		return "", 0, errors.New("string characters truncated")
	}
	if wide {
		return decodeUTF16(d[:n]), n, nil
	}
	return decodeLatin1(d[:n]), n, nil
}

// sstReader reads the shared string table across its CONTINUE segments. A string whose
// characters cross a segment boundary resumes with a fresh option byte.
type sstReader struct {
	segs [][]byte
	seg  int
	pos  int
}

func (r *sstReader) ensure() error {
	for r.seg < len(r.segs) && r.pos >= len(r.segs[r.seg]) {
		r.seg++
		r.pos = 0
	}
	if r.seg >= len(r.segs) {
		return errors.New("shared strings truncated")
	}
	return nil
}

func (r *sstReader) readByte() (byte, error) {
	if err := r.ensure(); err != nil {
		return 0, err
	}
	b := r.segs[r.seg][r.pos]
	r.pos++
	return b, nil
}

func (r *sstReader) readUint16() (uint16, error) {
	lo, err := r.readByte()
	if err != nil {
		return 0, err
	}
	hi, err := r.readByte()
	return uint16(lo) | uint16(hi)<<8, err
}

func (r *sstReader) readUint32() (uint32, error) {
	lo, err := r.readUint16()
	if err != nil {
		return 0, err
	}
	hi, err := r.readUint16()
	return uint32(lo) | uint32(hi)<<16, err
}

func (r *sstReader) skip(n int) error {
	for n > 0 {
		if err := r.ensure(); err != nil {
			return err
		}
		step := len(r.segs[r.seg]) - r.pos
		if step > n {
			step = n
		}
		r.pos += step
		n -= step
	}
	return nil
}

func (r *sstReader) chars(count int, wide bool) (string, error) {
	var b strings.Builder
	for count > 0 {
		if err := r.ensure(); err != nil {
			return "", err
		}
		seg := r.segs[r.seg][r.pos:]
		width := 1
		if wide {
			width = 2
		}
		take := len(seg) / width
		if take > count {
			take = count
		}
		if wide {
			b.WriteString(decodeUTF16(seg[:take*2]))
		} else {
			b.WriteString(decodeLatin1(seg[:take]))
		}
		r.pos += take * width
		count -= take
		if count > 0 {
			r.seg++
			r.pos = 0
			opt, err := r.readByte()
			if err != nil {
				return "", err
			}
			wide = opt&0x01 != 0
		}
	}
	return b.String(), nil
}

// parseSST decodes the shared string table from the SST record and its CONTINUE records.
func parseSST(segments [][]byte) ([]string, error) {
	if len(segments[0]) < 8 {
		return nil, errors.New("short shared string table")
	}
	unique := int(binary.LittleEndian.Uint32(segments[0][4:]))
	segments[0] = segments[0][8:]
	r := &sstReader{segs: segments}
	out := make([]string, 0, unique)
	for i := 0; i < unique; i++ {
		count, err := r.readUint16()
		if err != nil {
			return out, nil
		}
		opt, err := r.readByte()
		if err != nil {
			return nil, err
		}
		var runs, ext int
		if opt&0x08 != 0 {
			n, err := r.readUint16()
			if err != nil {
				return nil, err
			}
			runs = int(n)
		}
		if opt&0x04 != 0 {
			n, err := r.readUint32()
			if err != nil {
				return nil, err
			}
			ext = int(n)
		}
		s, err := r.chars(int(count), opt&0x01 != 0)
		if err != nil {
			return nil, err
		}
		if err := r.skip(runs*4 + ext); err != nil && i < unique-1 {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
