package feed

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ReadXLSXFile reads one worksheet of a workbook on disk.
func ReadXLSXFile(path string, opts Options) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return readWorkbook(f, path, opts)
}

// ReadXLSX reads one worksheet of a workbook stream such as stdin.
func ReadXLSX(r io.Reader, source string, opts Options) (*Table, error) {
	raw, err := readLimited(r, source, opts)
	if err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", source, err)
	}
	defer f.Close()
	return readWorkbook(f, source, opts)
}

func readWorkbook(f *excelize.File, source string, opts Options) (*Table, error) {
	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrEmptyTable, source)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, source, err)
	}
	return fromRows(fmt.Sprintf("%s[%s]", source, sheet), rows, opts)
}
