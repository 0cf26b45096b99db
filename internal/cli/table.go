package cli

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const columnGap = "  "

// table collects rows for aligned, human-readable output. Widths ignore ANSI
// color codes and count wide runes as two cells.
type table struct {
	headers []string
	rows    [][]string
	right   map[int]bool
}

func newTable(headers ...string) *table {
	return &table{headers: headers, right: map[int]bool{}}
}

// alignRight right-aligns the given columns, typically ids and counts.
func (t *table) alignRight(columns ...int) *table {
	for _, col := range columns {
		t.right[col] = true
	}
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) widths() []int {
	cols := len(t.headers)
	for _, row := range t.rows {
		cols = max(cols, len(row))
	}
	widths := make([]int, cols)
	measure := func(row []string) {
		for idx, cell := range row {
			widths[idx] = max(widths[idx], cellWidth(cell))
		}
	}
	measure(t.headers)
	for _, row := range t.rows {
		measure(row)
	}
	return widths
}

func (t *table) write(out io.Writer) error {
	widths := t.widths()
	if len(widths) == 0 {
		return nil
	}

	w := bufio.NewWriter(out)
	line := func(row []string) {
		var b strings.Builder
		for idx, width := range widths {
			cell := ""
			if idx < len(row) {
				cell = row[idx]
			}
			pad := strings.Repeat(" ", width-cellWidth(cell))
			if t.right[idx] {
				b.WriteString(pad + cell)
			} else {
				b.WriteString(cell + pad)
			}
			if idx < len(widths)-1 {
				b.WriteString(columnGap)
			}
		}
		// bufio keeps the first error; Flush reports it.
		_, _ = w.WriteString(strings.TrimRight(b.String(), " ") + "\n")
	}

	if len(t.headers) > 0 {
		line(t.headers)
	}
	for _, row := range t.rows {
		line(row)
	}
	return w.Flush()
}

func cellWidth(cell string) int {
	return runewidth.StringWidth(stripANSI(cell))
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// fitWidth truncates value to at most width display cells.
func fitWidth(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	return runewidth.Truncate(value, width, "...")
}

// stripANSI removes CSI escape sequences such as color codes.
func stripANSI(value string) string {
	if !strings.Contains(value, "\x1b[") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != 0x1b || i+1 >= len(value) || value[i+1] != '[' {
			b.WriteByte(value[i])
			continue
		}
		// Skip parameters up to and including the final byte.
		for i += 2; i < len(value) && (value[i] < 0x40 || value[i] > 0x7e); i++ {
		}
	}
	return b.String()
}
