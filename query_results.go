package firebolt

import (
	"bytes"
	"encoding/json"
)

// Statistics is the execution summary the engine attaches to a result.
type Statistics struct {
	Elapsed   Duration `json:"elapsed"`
	RowsRead  int64    `json:"rows_read"`
	BytesRead int64    `json:"bytes_read"`
}

// ResultSet is the outcome of one query. Cells stay undecoded until they are
// read through Get, GetNullable and friends.
type ResultSet struct {
	// Columns describes the result columns in declaration order.
	Columns []Column

	// Rows holds the data rows in server order.
	Rows []*Row

	// Statistics is nil when the server sent none.
	Statistics *Statistics
}

// Row is one result row. Its cells line up with the columns of its result set.
type Row struct {
	columns []Column
	values  []Value
}

// NewRow builds a row from columns and raw cells. It is exported for tests
// and for callers assembling result sets by hand.
func NewRow(columns []Column, values []Value) (*Row, error) {
	if len(columns) != len(values) {
		return nil, newError(KindSerialization, nil,
			"row has %d values but the result has %d columns", len(values), len(columns))
	}
	return &Row{columns: columns, values: values}, nil
}

// Len returns the number of cells in the row.
func (r *Row) Len() int {
	return len(r.values)
}

// Columns returns the columns the row is aligned with.
func (r *Row) Columns() []Column {
	return r.columns
}

// Value returns the raw cell at position i.
func (r *Row) Value(i int) (Value, error) {
	if err := r.checkIndex(i); err != nil {
		return Value{}, err
	}
	return r.values[i], nil
}

// IsNull reports whether the first column called name holds null.
func (r *Row) IsNull(name string) (bool, error) {
	idx, err := r.indexOf(name)
	if err != nil {
		return false, err
	}
	return r.values[idx].IsNull(), nil
}

// indexOf returns the position of the first column called name.
func (r *Row) indexOf(name string) (int, error) {
	for i, col := range r.columns {
		if col.Name == name {
			return i, nil
		}
	}
	return -1, newError(KindQuery, nil, "column %q not found", name)
}

func (r *Row) checkIndex(i int) error {
	if i < 0 || i >= len(r.values) {
		return newError(KindQuery, nil, "column index %d out of range [0, %d)", i, len(r.values))
	}
	return nil
}

// ColumnIndex returns the position of the first column called name.
func (rs *ResultSet) ColumnIndex(name string) (int, bool) {
	for i, col := range rs.Columns {
		if col.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	return len(rs.Rows)
}

// queryResponse is the JSON_Compact output format of the engine.
type queryResponse struct {
	Meta       []Column          `json:"meta"`
	Data       []json.RawMessage `json:"data"`
	Statistics *Statistics       `json:"statistics,omitempty"`
	Errors     []struct {
		Description string `json:"description"`
	} `json:"errors,omitempty"`
}

// parseResultSet decodes a JSON_Compact body. Cells are split but not
// converted. An empty body, as returned for USE and SET, yields an empty set.
func parseResultSet(body []byte) (*ResultSet, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return &ResultSet{}, nil
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindSerialization, err, "failed to decode response body")
	}
	if len(resp.Errors) > 0 {
		return nil, newError(KindQuery, &ServerError{StatusCode: 200, Message: extractServerMessage(body)},
			"query failed")
	}
	if resp.Meta == nil {
		return nil, newError(KindSerialization, nil, "response body has no meta field")
	}
	if resp.Data == nil {
		return nil, newError(KindSerialization, nil, "response body has no data field")
	}

	columns := make([]Column, len(resp.Meta))
	for i, col := range resp.Meta {
		col.Position = i
		columns[i] = col
	}

	rows := make([]*Row, len(resp.Data))
	for i, rawRow := range resp.Data {
		var cells []json.RawMessage
		if err := json.Unmarshal(rawRow, &cells); err != nil {
			return nil, newError(KindSerialization, err, "row %d is not an array", i)
		}
		values := make([]Value, len(cells))
		for j, cell := range cells {
			values[j] = RawValue(cell)
		}
		row, err := NewRow(columns, values)
		if err != nil {
			return nil, newError(KindSerialization, err, "row %d is misaligned", i)
		}
		rows[i] = row
	}

	return &ResultSet{Columns: columns, Rows: rows, Statistics: resp.Statistics}, nil
}
