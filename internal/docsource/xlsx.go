package docsource

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SheetHeader is the delimiter line written before each worksheet. The
// context budgeter splits spreadsheet text on it.
func SheetHeader(name string) string {
	return "=== Sheet: " + name + " ==="
}

// RenderWorkbook flattens an .xlsx workbook to text: one delimiter line per
// sheet followed by its non-empty rows, cells separated by tabs.
func RenderWorkbook(path string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", eris.Wrap(err, "xlsx: open file")
	}

	var b strings.Builder
	for i, sheet := range f.Sheets {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(SheetHeader(sheet.Name))
		b.WriteString("\n")
		for _, row := range sheet.Rows {
			if line := rowText(row); line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	return b.String(), nil
}

// rowText joins cell values, dropping trailing empty cells. A row with no
// values renders as "".
func rowText(row *xlsx.Row) string {
	if row == nil {
		return ""
	}
	cells := make([]string, len(row.Cells))
	last := -1
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
		if cells[j] != "" {
			last = j
		}
	}
	return strings.Join(cells[:last+1], "\t")
}
