package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

// Table is a header plus raw string records.
type Table struct {
	header  []string
	records [][]string
}

// NewTable builds a Table from a header and records. Records are not
// copied.
func NewTable(header []string, records [][]string) (*Table, error) {
	if len(header) == 0 {
		return nil, errors.NewValueError("dataset.NewTable", "header is empty")
	}
	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, errors.NewValueError("dataset.NewTable",
				fmt.Sprintf("record %d has %d fields, header has %d", i+1, len(rec), len(header)))
		}
	}
	return &Table{header: header, records: records}, nil
}

// ReadCSV reads a CSV file whose first line is the header.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %s", path)
	}
	defer f.Close()

	t, err := ReadCSVFrom(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dataset %s", path)
	}
	return t, nil
}

// ReadCSVFrom reads CSV from r. An empty input, a header without rows or a
// row with the wrong number of fields is a ValueError.
func ReadCSVFrom(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewValueError("dataset.ReadCSV", "input is empty")
	}
	if err != nil {
		return nil, parseError(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var records [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseError(err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, errors.NewValueError("dataset.ReadCSV", "input has a header but no rows")
	}

	return &Table{header: header, records: records}, nil
}

func parseError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return errors.NewValueError("dataset.ReadCSV",
			fmt.Sprintf("malformed row at line %d: %v", perr.Line, perr.Err))
	}
	return errors.Wrap(err, "failed to read CSV")
}

// Header returns the column names.
func (t *Table) Header() []string {
	out := make([]string, len(t.header))
	copy(out, t.header)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.records)
}

// Column returns the index of the named column, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.header {
		if h == name {
			return i
		}
	}
	return -1
}

// Record returns row i.
func (t *Table) Record(i int) []string {
	return t.records[i]
}

// Shuffle permutes the rows in place. A nil rng draws a fresh unseeded
// source, so the order changes from run to run.
func (t *Table) Shuffle(rng *rand.Rand) {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	rng.Shuffle(len(t.records), func(i, j int) {
		t.records[i], t.records[j] = t.records[j], t.records[i]
	})
}

// Features splits the table into a feature Frame (every column except label)
// and the label vector. A missing label column or an empty label cell is a
// ValueError.
func (t *Table) Features(label string) (*Frame, []string, error) {
	labelIdx := t.Column(label)
	if labelIdx < 0 {
		return nil, nil, errors.NewValueError("dataset.Features",
			fmt.Sprintf("label column %q not found in header %v", label, t.header))
	}

	y := make([]string, len(t.records))
	for i, rec := range t.records {
		v := strings.TrimSpace(rec[labelIdx])
		if IsMissing(v) {
			return nil, nil, errors.NewValueError("dataset.Features",
				fmt.Sprintf("row %d has no value in label column %q", i+1, label))
		}
		y[i] = v
	}

	names := make([]string, 0, len(t.header)-1)
	columns := make([]column, 0, len(t.header)-1)
	for j, name := range t.header {
		if j == labelIdx {
			continue
		}
		names = append(names, name)
		columns = append(columns, inferColumn(t.records, j, name))
	}

	return &Frame{names: names, columns: columns, rows: len(t.records)}, y, nil
}
