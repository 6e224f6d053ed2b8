// Package feed reads tabular performance exports into an in-memory Table.
//
// Sources differ only in transport (CSV, XLSX workbook, PostgreSQL query); every
// reader yields the same header-plus-string-cells shape so that column resolution
// and typing happen in one place downstream.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyTable is returned when a source has no header row.
	ErrEmptyTable = errors.New("feed: no header row found")
	// ErrUnsupportedFormat is returned for file extensions with no reader.
	ErrUnsupportedFormat = errors.New("feed: unsupported file format")
)

const (
	// DefaultMaxRows bounds a single batch when no explicit limit is configured.
	DefaultMaxRows = 1_000_000
	// DefaultMaxBytes bounds how much of a stream is buffered before parsing.
	DefaultMaxBytes int64 = 256 << 20
)

// zipMagic opens every XLSX workbook.
var zipMagic = []byte("PK\x03\x04")

// Table is a raw, untyped snapshot of one upload. Readers never share the
// underlying slices, and downstream code treats a Table as read-only.
type Table struct {
	Source  string
	Headers []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Cell returns the trimmed cell at (row, col), or "" for ragged rows.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// ResourceLimitError reports an input that exceeds the configured row or
// byte budget. Exactly one of MaxRows and MaxBytes is set.
type ResourceLimitError struct {
	Source   string
	MaxRows  int
	MaxBytes int64
}

func (e *ResourceLimitError) Error() string {
	if e.MaxBytes > 0 {
		return fmt.Sprintf("feed %s exceeds the size limit of %d bytes; narrow the export or raise dataset.max_bytes", e.Source, e.MaxBytes)
	}
	return fmt.Sprintf("feed %s exceeds the row limit of %d; narrow the export or raise dataset.max_rows", e.Source, e.MaxRows)
}

// Options tune file readers.
type Options struct {
	// Sheet selects an XLSX worksheet; empty means the first sheet.
	Sheet    string
	MaxRows  int
	MaxBytes int64
}

func (o Options) maxRows() int {
	if o.MaxRows <= 0 {
		return DefaultMaxRows
	}
	return o.MaxRows
}

func (o Options) maxBytes() int64 {
	if o.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return o.MaxBytes
}

// readLimited buffers r, failing once it holds more than the byte budget.
func readLimited(r io.Reader, source string, opts Options) ([]byte, error) {
	limit := opts.maxBytes()
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	if int64(len(raw)) > limit {
		return nil, &ResourceLimitError{Source: source, MaxBytes: limit}
	}
	return raw, nil
}

// Open reads a CSV or XLSX file. The path "-" reads stdin, which may carry
// either format.
func Open(ctx context.Context, path string, opts Options) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "-" {
		return ReadStream(os.Stdin, "stdin", opts)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSXFile(path, opts)
	case ".csv", ".tsv", ".txt":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open feed: %w", err)
		}
		defer file.Close()
		return ReadCSV(file, path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ReadStream reads a feed of unknown format, telling a workbook apart from
// delimited text by its zip signature.
func ReadStream(r io.Reader, source string, opts Options) (*Table, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(len(zipMagic))
	if bytes.Equal(magic, zipMagic) {
		return ReadXLSX(br, source, opts)
	}
	return ReadCSV(br, source, opts)
}

// fromRows turns reader output into a Table, dropping leading blank lines and
// trailing fully blank rows that spreadsheet exports tend to carry.
func fromRows(source string, rows [][]string, opts Options) (*Table, error) {
	start := 0
	for start < len(rows) && blankRow(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, fmt.Errorf("%w in %s", ErrEmptyTable, source)
	}

	headers := make([]string, len(rows[start]))
	for i, h := range rows[start] {
		headers[i] = strings.TrimSpace(h)
	}

	data := make([][]string, 0, len(rows)-start-1)
	for _, row := range rows[start+1:] {
		if blankRow(row) {
			continue
		}
		if len(data) >= opts.maxRows() {
			return nil, &ResourceLimitError{Source: source, MaxRows: opts.maxRows()}
		}
		cp := make([]string, len(row))
		copy(cp, row)
		data = append(data, cp)
	}

	return &Table{Source: source, Headers: headers, Rows: data}, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}
