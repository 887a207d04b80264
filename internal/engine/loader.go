package engine

import (
	"bytes"
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/csv"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// RegionColumn labels every row of a country dataset.
const RegionColumn = "Region name"

// MaxDatasetBytes bounds a single dataset download.
const MaxDatasetBytes = 64 << 20

const chunkRows = 1024

var (
	ErrEmptyDataset  = errors.New("dataset has no header")
	ErrMissingColumn = errors.New("missing column")
	ErrTooLarge      = errors.New("resource too large")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadTable parses a CSV dataset. The header row names the columns; every
// cell is read as nullable text by the arrow CSV reader and then typed with
// ParseValue, except region labels which stay text.
func LoadTable(r io.Reader) (*Table, error) {
	content, err := io.ReadAll(io.LimitReader(r, MaxDatasetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(content) > MaxDatasetBytes {
		return nil, ErrTooLarge
	}
	content = bytes.TrimPrefix(content, utf8BOM)

	columns, err := readHeader(content)
	if err != nil {
		return nil, err
	}
	table, err := NewTable(columns)
	if err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	rdr := csv.NewReader(bytes.NewReader(content), schema,
		csv.WithHeader(true),
		csv.WithNullReader(true, ""),
		csv.WithChunk(chunkRows),
		csv.WithAllocator(memory.DefaultAllocator),
	)
	defer rdr.Release()

	parse := make([]func(string) Value, len(columns))
	for i, name := range columns {
		parse[i] = ParseValue
		if name == RegionColumn {
			parse[i] = ParseText
		}
	}

	row := make([]Value, len(columns))
	for rdr.Next() {
		rec := rdr.Record()
		n := int(rec.NumRows())
		strs := make([]*array.String, len(columns))
		for c := range columns {
			s, ok := rec.Column(c).(*array.String)
			if !ok {
				return nil, fmt.Errorf("column %q: unexpected arrow type %s", columns[c], rec.Column(c).DataType())
			}
			strs[c] = s
		}
		for i := 0; i < n; i++ {
			for c, s := range strs {
				if s.IsNull(i) {
					row[c] = Null()
					continue
				}
				v := parse[c](s.Value(i))
				if v.Kind == String {
					// arrow string values alias the record buffer
					v.Str = strings.Clone(v.Str)
				}
				row[c] = v
			}
			if err := table.Append(row...); err != nil {
				return nil, err
			}
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	if !table.Has(RegionColumn) {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, RegionColumn)
	}
	return table, nil
}

func readHeader(content []byte) ([]string, error) {
	hr := stdcsv.NewReader(bytes.NewReader(content))
	header, err := hr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}
	return columns, nil
}

// FetchTable downloads and parses the dataset for a country code.
func FetchTable(ctx context.Context, src Source, code string) (*Table, error) {
	rc, err := src.Dataset(ctx, code)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	t, err := LoadTable(rc)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", code, err)
	}
	return t, nil
}
