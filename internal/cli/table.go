package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// table renders left-aligned columns measured in terminal cells, so wide
// runes in file names do not skew the layout.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) Append(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) widths() []int {
	w := make([]int, len(t.header))
	for i, h := range t.header {
		w[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(w); i++ {
			if n := runewidth.StringWidth(row[i]); n > w[i] {
				w[i] = n
			}
		}
	}
	return w
}

func (t *table) Render(out io.Writer) error {
	w := t.widths()

	line := func(cells []string) string {
		parts := make([]string, len(w))
		for i := range w {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			if i == len(w)-1 {
				parts[i] = cell
			} else {
				parts[i] = runewidth.FillRight(cell, w[i])
			}
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	rules := make([]string, len(w))
	for i, n := range w {
		rules[i] = strings.Repeat("-", n)
	}

	if _, err := fmt.Fprintln(out, line(t.header)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, strings.Join(rules, "  ")); err != nil {
		return err
	}
	for _, row := range t.rows {
		if _, err := fmt.Fprintln(out, line(row)); err != nil {
			return err
		}
	}
	return nil
}
