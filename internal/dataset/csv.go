package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// DecodeCSV reads a frame from CSV. The first record is the header. Empty
// cells are null and cells that parse as numbers become float64. Rows are
// labelled by position.
func DecodeCSV(data []byte) (*Frame, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: csv: %v", ErrMalformed, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: csv: empty document (no header row)", ErrMalformed)
	}

	headers := records[0]
	f := New(headers...)

	for i, record := range records[1:] {
		if len(record) != len(headers) {
			return nil, fmt.Errorf("%w: csv: row %d has %d columns, expected %d", ErrMalformed, i+2, len(record), len(headers))
		}
		row := make(map[string]any, len(headers))
		for j, h := range headers {
			row[h] = csvCell(record[j])
		}
		if err := f.AppendRow(strconv.Itoa(i), row); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func csvCell(s string) any {
	if s == "" {
		return nil
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		return x
	}
	return s
}
