package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind tags the contents of a Value.
type Kind uint8

const (
	Missing Kind = iota
	String
	Number
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Number:
		return "number"
	default:
		return "missing"
	}
}

// Value is a single dataset cell.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
}

func Str(s string) Value  { return Value{Kind: String, Str: s} }
func Num(f float64) Value { return Value{Kind: Number, Num: f} }
func Null() Value         { return Value{} }

func (v Value) IsMissing() bool { return v.Kind == Missing }

// Finite reports whether v is a number other than NaN or an infinity.
func (v Value) Finite() bool {
	return v.Kind == Number && !math.IsNaN(v.Num) && !math.IsInf(v.Num, 0)
}

// ParseValue types a raw CSV cell: blank is missing, a finite float is a
// number, anything else stays a string. "NaN" and "Inf" spellings are text.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Null()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Num(f)
	}
	return Str(raw)
}

// ParseText types a raw CSV cell as a label: blank is missing, anything else
// is kept verbatim as a string.
func ParseText(raw string) Value {
	if strings.TrimSpace(raw) == "" {
		return Null()
	}
	return Str(raw)
}

// Text renders the value the way it would appear in the CSV.
func (v Value) Text() string {
	switch v.Kind {
	case String:
		return v.Str
	case Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case String:
		return json.Marshal(v.Str)
	case Number:
		if !v.Finite() {
			return []byte("null"), nil
		}
		return json.Marshal(v.Num)
	default:
		return []byte("null"), nil
	}
}

// Record is one dataset row keyed by column name.
type Record map[string]Value

// Table holds a dataset in struct-of-arrays form: one value slice per column,
// all of equal length, columns kept in header order.
type Table struct {
	Columns []string

	index map[string]int
	cols  [][]Value
	rows  int
}

func NewTable(columns []string) (*Table, error) {
	t := &Table{
		Columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
		cols:    make([][]Value, len(columns)),
	}
	for i, name := range columns {
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		t.Columns[i] = name
		t.index[name] = i
	}
	return t, nil
}

// Append adds one row. The row must have one value per column.
func (t *Table) Append(row ...Value) error {
	if len(row) != len(t.cols) {
		return fmt.Errorf("row %d: got %d values, want %d", t.rows, len(row), len(t.cols))
	}
	for i, v := range row {
		t.cols[i] = append(t.cols[i], v)
	}
	t.rows++
	return nil
}

func (t *Table) Len() int { return t.rows }

func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Column returns the values of a column; the slice must not be modified.
func (t *Table) Column(column string) ([]Value, bool) {
	i, ok := t.index[column]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Missing lists the given columns that the table lacks, in argument order.
func (t *Table) Missing(columns ...string) []string {
	var out []string
	for _, c := range columns {
		if !t.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (t *Table) Row(i int) Record {
	rec := make(Record, len(t.cols))
	for c, name := range t.Columns {
		rec[name] = t.cols[c][i]
	}
	return rec
}

// Records materializes every row, in file order.
func (t *Table) Records() []Record {
	out := make([]Record, t.rows)
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}
