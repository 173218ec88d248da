package cli

import (
	"bufio"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const tablePadding = 2

// writeTable renders rows as aligned columns. Column widths account for
// wide runes so names and titles in any script line up.
func writeTable(out io.Writer, headers []string, rows [][]string) error {
	columns := len(headers)
	for _, row := range rows {
		if len(row) > columns {
			columns = len(row)
		}
	}
	if columns == 0 {
		return nil
	}

	widths := make([]int, columns)
	measure := func(row []string) {
		for i, cell := range row {
			if i >= columns {
				break
			}
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}

	writer := bufio.NewWriter(out)
	writeRow := func(row []string) {
		for i := 0; i < columns; i++ {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			writer.WriteString(cell)
			if i < columns-1 {
				pad := widths[i] - runewidth.StringWidth(cell)
				if pad < 0 {
					pad = 0
				}
				writer.WriteString(strings.Repeat(" ", pad+tablePadding))
			}
		}
		writer.WriteString("\n")
	}

	writeRow(headers)
	for _, row := range rows {
		writeRow(row)
	}
	return writer.Flush()
}
