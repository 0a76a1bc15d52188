// Package report holds the derived report model and the sinks that publish
// reports to the dashboard.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// Report is an ordered sequence of rows with a fixed schema
type Report struct {
	Name    string
	Columns []string
	Rows    [][]any
	Note    string
}

// New creates an empty report with the given column order
func New(name string, columns ...string) *Report {
	return &Report{Name: name, Columns: columns}
}

// Append adds one row. Values must follow the column order; nil is a null cell.
func (r *Report) Append(values ...any) {
	if len(values) != len(r.Columns) {
		panic(fmt.Sprintf("report %s: got %d values for %d columns", r.Name, len(values), len(r.Columns)))
	}
	r.Rows = append(r.Rows, values)
}

// Len returns the number of rows
func (r *Report) Len() int {
	return len(r.Rows)
}

// Value returns the cell of row i in the named column
func (r *Report) Value(i int, column string) (any, bool) {
	for c, name := range r.Columns {
		if name == column {
			return r.Rows[i][c], true
		}
	}
	return nil, false
}

// Meta carries the provenance attached to every published artifact
type Meta struct {
	GeneratedAt  string
	SnapshotDate string
}

// Sink publishes a report
type Sink interface {
	Write(ctx context.Context, r *Report, meta Meta) error
}

// Payload is the structured artifact of a report
type Payload struct {
	GeneratedAt  string   `json:"generatedAt"`
	SnapshotDate string   `json:"snapshotDate"`
	Rows         int      `json:"rows"`
	Data         []Record `json:"data"`
	Note         string   `json:"note,omitempty"`
}

// Record is one report row that marshals as an object with keys in column order
type Record struct {
	columns []string
	values  []any
}

func (rec Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range rec.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(rec.values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NewPayload builds the structured artifact of r
func NewPayload(r *Report, meta Meta) Payload {
	data := make([]Record, len(r.Rows))
	for i, row := range r.Rows {
		data[i] = Record{columns: r.Columns, values: row}
	}
	return Payload{
		GeneratedAt:  meta.GeneratedAt,
		SnapshotDate: meta.SnapshotDate,
		Rows:         len(r.Rows),
		Data:         data,
		Note:         r.Note,
	}
}

// EncodeJSON renders the structured artifact
func EncodeJSON(r *Report, meta Meta) ([]byte, error) {
	data, err := json.MarshalIndent(NewPayload(r, meta), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report %s: %w", r.Name, err)
	}
	return append(data, '\n'), nil
}

// EncodeCSV renders the tabular artifact: a header row, then one line per row.
// Null cells are empty fields.
func EncodeCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(r.Columns); err != nil {
		return nil, fmt.Errorf("failed to encode report %s: %w", r.Name, err)
	}
	record := make([]string, len(r.Columns))
	for _, row := range r.Rows {
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to encode report %s: %w", r.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode report %s: %w", r.Name, err)
	}
	return buf.Bytes(), nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}
