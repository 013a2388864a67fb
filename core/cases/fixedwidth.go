package cases

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// RawRecord maps column names to trimmed values of one line.
type RawRecord map[string]string

// splitLines splits on \n and \r\n, dropping empty lines.
func splitLines(text string) []string {
	parts := strings.Split(text, "\n")
	lines := make([]string, 0, len(parts))
	for _, line := range parts {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseFixedWidth reads one RawRecord per non-empty line of text.
// Column windows are clipped to the line: a window past the end of a line yields "".
func ParseFixedWidth(text string, columns []Column) []RawRecord {
	lines := splitLines(text)
	records := make([]RawRecord, 0, len(lines))
	for _, line := range lines {
		chars := []rune(line)
		rec := make(RawRecord, len(columns))
		for _, col := range columns {
			rec[col.Name] = window(chars, col.Start, col.Width)
		}
		records = append(records, rec)
	}
	return records
}

func window(chars []rune, start, width int) string {
	if start < 0 {
		start = 0
	}
	if width <= 0 || start >= len(chars) {
		return ""
	}
	end := start + width
	if end > len(chars) {
		end = len(chars)
	}
	return strings.TrimSpace(string(chars[start:end]))
}

// ParseCSV reads comma separated text. Without headers, the first row holds them.
// Missing trailing values default to "".
func ParseCSV(text string, headers ...string) ([]RawRecord, error) {
	reader := csv.NewReader(strings.NewReader(strings.Join(splitLines(text), "\n")))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	if len(headers) == 0 {
		row, err := reader.Read()
		if err == io.EOF {
			return []RawRecord{}, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading header row")
		}
		for _, h := range row {
			headers = append(headers, strings.TrimSpace(h))
		}
	}

	records := make([]RawRecord, 0)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading row")
		}
		rec := make(RawRecord, len(headers))
		for i, h := range headers {
			if i < len(row) {
				rec[h] = strings.TrimSpace(row[i])
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
