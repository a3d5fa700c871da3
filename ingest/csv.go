/*
csv.go - CSV parsing for uploaded sales reports

Reads an uploaded CSV into a header row plus loose string rows keyed by
header. Tolerates the mess real exports carry: UTF-8 BOM, padded headers,
ragged short rows, and fully empty trailing lines.
*/
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Row is one spreadsheet row keyed by its (trimmed) column header.
type Row map[string]string

// ParseCSV reads headers and rows from an uploaded report.
func ParseCSV(r io.Reader) ([]string, []Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // exports are frequently ragged
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty file")
	}

	headers := make([]string, 0, len(records[0]))
	for i, h := range records[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		headers = append(headers, strings.TrimSpace(h))
	}

	var rows []Row
	for _, record := range records[1:] {
		if isEmptyRecord(record) {
			continue
		}
		row := make(Row, len(headers))
		for i, header := range headers {
			if header == "" {
				continue
			}
			if i < len(record) {
				row[header] = strings.TrimSpace(record[i])
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}

	return headers, rows, nil
}

func isEmptyRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
