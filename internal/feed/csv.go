package feed

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

var candidateDelimiters = []rune{',', ';', '\t', '|'}

// ReadCSV reads a delimited export. The delimiter is sniffed from the header line
// because spreadsheet tools emit ',', ';' or tab depending on locale.
func ReadCSV(r io.Reader, source string, opts Options) (*Table, error) {
	raw, err := readLimited(r, source, opts)
	if err != nil {
		return nil, err
	}
	raw = stripBOM(raw)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = sniffDelimiter(raw)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	return fromRows(source, rows, opts)
}

func sniffDelimiter(raw []byte) rune {
	line := raw
	if idx := bytes.IndexByte(raw, '\n'); idx >= 0 {
		line = raw[:idx]
	}

	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := countOutsideQuotes(line, byte(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func countOutsideQuotes(line []byte, delim byte) int {
	inQuotes := false
	n := 0
	for _, b := range line {
		switch {
		case b == '"':
			inQuotes = !inQuotes
		case b == delim && !inQuotes:
			n++
		}
	}
	return n
}
