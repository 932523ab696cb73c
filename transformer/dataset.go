package transformer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// ValueKind tags the type a cell holds. The transform only operates on string cells;
// numeric PII is not supported by this pipeline.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// Value is one typed cell of an audience record.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Null() Value            { return Value{Kind: KindNull} }

// Row maps column name to cell value. Columns absent from a given input line are
// simply missing from the row.
type Row map[string]Value

// Table holds the parsed export with a stable, first-seen column order.
type Table struct {
	Columns []string
	Rows    []Row

	columnSet map[string]struct{}
}

// maxLineSize bounds the scanner buffer when streaming the export.
const maxLineSize = 10 * 1024 * 1024

// ParseNDJSON reads a newline-delimited JSON export. Each line is one record; keys are
// discovered in document order so the output column order is reproducible.
func ParseNDJSON(r io.Reader) (*Table, error) {
	table := &Table{columnSet: map[string]struct{}{}}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parsed := gjson.Parse(line)
		if !parsed.IsObject() {
			return nil, fmt.Errorf("line %d is not a JSON object", lineNo)
		}
		row := Row{}
		parsed.ForEach(func(key, value gjson.Result) bool {
			table.addColumn(key.String())
			switch value.Type {
			case gjson.String:
				row[key.String()] = String(value.Str)
			case gjson.Number:
				row[key.String()] = Number(value.Num)
			case gjson.True:
				row[key.String()] = Bool(true)
			case gjson.False:
				row[key.String()] = Bool(false)
			default:
				row[key.String()] = Null()
			}
			return true
		})
		table.Rows = append(table.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return table, nil
}

func (t *Table) addColumn(name string) {
	if t.columnSet == nil {
		t.columnSet = map[string]struct{}{}
	}
	if _, ok := t.columnSet[name]; ok {
		return
	}
	t.columnSet[name] = struct{}{}
	t.Columns = append(t.Columns, name)
}

// HasColumn reports whether the column was seen on any input line.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.columnSet[name]
	return ok
}

// IsStringColumn reports whether every present, non-null cell of the column is a
// string. Columns failing this are excluded from normalization, mirroring the split
// between string and non-string dtypes.
func (t *Table) IsStringColumn(name string) bool {
	if !t.HasColumn(name) {
		return false
	}
	for _, row := range t.Rows {
		value, ok := row[name]
		if !ok || value.Kind == KindNull {
			continue
		}
		if value.Kind != KindString {
			return false
		}
	}
	return true
}

// StringColumns returns the columns participating in normalization, in column order.
func (t *Table) StringColumns() []string {
	columns := make([]string, 0, len(t.Columns))
	for _, name := range t.Columns {
		if t.IsStringColumn(name) {
			columns = append(columns, name)
		}
	}
	return columns
}

// RenameColumn renames a column in place, preserving its position.
func (t *Table) RenameColumn(from, to string) {
	for i, name := range t.Columns {
		if name == from {
			t.Columns[i] = to
		}
	}
	delete(t.columnSet, from)
	t.columnSet[to] = struct{}{}
	for _, row := range t.Rows {
		if value, ok := row[from]; ok {
			delete(row, from)
			row[to] = value
		}
	}
}
