// Package table reads the tab-separated source tables into memory.
package table

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	utf8BOM  = "\uFEFF"
	idMarker = "#"
	idColumn = "id"

	maxLineLength = 4 * 1024 * 1024
)

// ErrMissingColumn is returned by Require when a header lacks a column.
var ErrMissingColumn = errors.New("missing column")

// LoadError reports a source table that could not be opened or whose header
// could not be parsed. It is fatal for a run.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Table is a header plus raw string rows.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
	// Skipped counts blank data lines.
	Skipped int

	index map[string]int
}

// Load reads the file at path.
func Load(path string) (*Table, error) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{File: name, Err: err}
	}
	defer f.Close()
	return Read(name, f)
}

// Read parses a tab-separated stream whose first line is the header. Quotes
// carry no meaning: every line is one row, split on tabs.
func Read(name string, r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLength)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, &LoadError{File: name, Err: fmt.Errorf("reading header: %w", err)}
		}
		return nil, &LoadError{File: name, Err: errors.New("empty file, header expected")}
	}
	header := strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t")

	t := &Table{Name: name, index: make(map[string]int, len(header))}
	for i, cell := range header {
		col := normalizeHeader(cell)
		t.Columns = append(t.Columns, col)
		if _, dup := t.index[col]; !dup {
			t.index[col] = i
		}
	}

	idIdx := -1
	if i, ok := t.index[idColumn]; ok {
		idIdx = i
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			t.Skipped++
			continue
		}
		rec := strings.Split(line, "\t")
		if idIdx >= 0 && idIdx < len(rec) {
			rec[idIdx] = strings.TrimSpace(rec[idIdx])
		}
		t.Rows = append(t.Rows, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, &LoadError{File: name, Err: fmt.Errorf("line %d: %w", len(t.Rows)+t.Skipped+2, err)}
	}
	return t, nil
}

// normalizeHeader drops a leading BOM and id marker and surrounding space.
func normalizeHeader(cell string) string {
	cell = strings.TrimPrefix(cell, utf8BOM)
	cell = norm.NFC.String(cell)
	cell = strings.TrimSpace(cell)
	cell = strings.TrimPrefix(cell, idMarker)
	return strings.TrimSpace(cell)
}

// Has reports whether the header contains col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Require returns an error naming the first column absent from the header.
func (t *Table) Require(cols ...string) error {
	for _, c := range cols {
		if !t.Has(c) {
			return fmt.Errorf("%s: %w %q (have %v)", t.Name, ErrMissingColumn, c, t.Columns)
		}
	}
	return nil
}

// Get returns the cell of row in column col, or "" when the column is
// unknown or the row is short.
func (t *Table) Get(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// Len is the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }
