package firebolt

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Render writes the result set as a plain text table, one line per row.
// Cells are shown raw; no type decoding takes place.
func (rs *ResultSet) Render(w io.Writer) error {
	header := make(table.Row, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col.Name
	}

	rows := make([]table.Row, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		cells := make(table.Row, len(r.values))
		for i, v := range r.values {
			cells[i] = v.String()
		}
		rows = append(rows, cells)
	}

	t := table.NewWriter()
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	t.Style().Options.DrawBorder = false

	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}
