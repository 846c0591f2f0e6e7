package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// Kind is the inferred type of a feature column.
type Kind int

const (
	// Numeric columns hold float64 values with NaN for missing.
	Numeric Kind = iota
	// Categorical columns hold strings with "" for missing.
	Categorical
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

var missingTokens = map[string]struct{}{
	"":     {},
	"NA":   {},
	"NaN":  {},
	"nan":  {},
	"null": {},
}

// IsMissing reports whether a raw cell denotes a missing value.
func IsMissing(cell string) bool {
	_, ok := missingTokens[strings.TrimSpace(cell)]
	return ok
}

type column struct {
	kind    Kind
	numbers []float64
	strings []string
}

// inferColumn types column j of records. A column whose cells start out
// numeric but later hold text is read as categorical and raises a
// DataConversionWarning.
func inferColumn(records [][]string, j int, name string) column {
	numbers := make([]float64, len(records))
	numeric := true
	parsed := 0
	for i, rec := range records {
		cell := strings.TrimSpace(rec[j])
		if IsMissing(cell) {
			numbers[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			numeric = false
			if parsed > 0 {
				errors.Warn(errors.NewDataConversionWarning("float64", "string",
					fmt.Sprintf("column %q row %d holds %q", name, i+1, cell)))
			}
			break
		}
		numbers[i] = v
		parsed++
	}
	if numeric {
		return column{kind: Numeric, numbers: numbers}
	}

	values := make([]string, len(records))
	for i, rec := range records {
		cell := strings.TrimSpace(rec[j])
		if IsMissing(cell) {
			cell = ""
		}
		values[i] = cell
	}
	return column{kind: Categorical, strings: values}
}

// Frame is a set of typed feature columns sharing one row order.
type Frame struct {
	names   []string
	columns []column
	rows    int
}

// NewFrame builds a Frame from named columns. Each value in cols must be a
// []float64 (numeric) or a []string (categorical) of the same length.
func NewFrame(names []string, cols []interface{}) (*Frame, error) {
	if len(names) != len(cols) {
		return nil, errors.NewValueError("dataset.NewFrame", "names and columns differ in length")
	}
	f := &Frame{names: append([]string(nil), names...), rows: -1}
	for j, c := range cols {
		var col column
		switch v := c.(type) {
		case []float64:
			col = column{kind: Numeric, numbers: v}
		case []string:
			col = column{kind: Categorical, strings: v}
		default:
			return nil, errors.NewValueError("dataset.NewFrame", "column "+names[j]+" has unsupported type")
		}
		n := col.len()
		if f.rows >= 0 && n != f.rows {
			return nil, errors.NewValueError("dataset.NewFrame", "column "+names[j]+" has a different length")
		}
		f.rows = n
		f.columns = append(f.columns, col)
	}
	if f.rows < 0 {
		f.rows = 0
	}
	return f, nil
}

func (c column) len() int {
	if c.kind == Numeric {
		return len(c.numbers)
	}
	return len(c.strings)
}

// Dims returns the number of rows and columns.
func (f *Frame) Dims() (rows, cols int) {
	return f.rows, len(f.columns)
}

// Names returns the column names.
func (f *Frame) Names() []string {
	return append([]string(nil), f.names...)
}

// Kind returns the kind of column j.
func (f *Frame) Kind(j int) Kind {
	return f.columns[j].kind
}

// Numeric returns column j as floats. It returns nil for a categorical
// column. The slice is shared with the Frame and must not be modified.
func (f *Frame) Numeric(j int) []float64 {
	return f.columns[j].numbers
}

// Categorical returns column j as strings. It returns nil for a numeric
// column. The slice is shared with the Frame and must not be modified.
func (f *Frame) Categorical(j int) []string {
	return f.columns[j].strings
}

// Subset returns a new Frame holding rows idx in that order.
func (f *Frame) Subset(idx []int) *Frame {
	out := &Frame{names: f.names, columns: make([]column, len(f.columns)), rows: len(idx)}
	for j, c := range f.columns {
		nc := column{kind: c.kind}
		if c.kind == Numeric {
			nc.numbers = make([]float64, len(idx))
			for i, r := range idx {
				nc.numbers[i] = c.numbers[r]
			}
		} else {
			nc.strings = make([]string, len(idx))
			for i, r := range idx {
				nc.strings[i] = c.strings[r]
			}
		}
		out.columns[j] = nc
	}
	return out
}

// Row returns row i rendered as strings, for logging and debugging.
func (f *Frame) Row(i int) []string {
	row := make([]string, len(f.columns))
	for j, c := range f.columns {
		if c.kind == Numeric {
			row[j] = strconv.FormatFloat(c.numbers[i], 'g', -1, 64)
		} else {
			row[j] = c.strings[i]
		}
	}
	return row
}
