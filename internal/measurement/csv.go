package measurement

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ParseCSV reads an uploaded CSV batch: first row header, required
// columns date/time, remaining columns are numeric fields of the scope's
// canonical payload. Unknown columns are ignored; blank cells parse as 0.
func ParseCSV(r io.Reader) ([]Input, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("measurement: read CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		name := strings.TrimSpace(col)
		if lower := strings.ToLower(name); lower == "date" || lower == "time" {
			name = lower
		}
		colIndex[name] = i
	}
	if _, ok := colIndex["date"]; !ok {
		return nil, nil, fmt.Errorf("measurement: CSV missing required column %q", "date")
	}
	if _, ok := colIndex["time"]; !ok {
		return nil, nil, fmt.Errorf("measurement: CSV missing required column %q", "time")
	}

	var (
		inputs []Input
		errs   []RowError
		row    = 1
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			errs = append(errs, RowError{Row: row, Message: err.Error()})
			continue
		}

		get := func(col string) string {
			idx, ok := colIndex[col]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		values := make(map[string]float64)
		for col, idx := range colIndex {
			if col == "date" || col == "time" || idx >= len(record) {
				continue
			}
			cell := strings.TrimSpace(record[idx])
			if cell == "" {
				values[col] = 0
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				errs = append(errs, RowError{Row: row, Field: col, Message: fmt.Sprintf("not numeric: %q", cell)})
				continue
			}
			values[col] = v
		}

		inputs = append(inputs, Input{
			Variant:    VariantCSV,
			Date:       get("date"),
			Time:       get("time"),
			DataValues: values,
		})
	}

	return inputs, errs, nil
}

// EmitCSV writes entries back out in the upload format: a date,time header
// followed by the union of every entry's numeric fields in sorted column
// order, timestamps normalised to YYYY-MM-DD / HH:mm:ss. ParseCSV over the
// output reproduces the entries' dataValues and timestamps.
func EmitCSV(w io.Writer, entries []Entry) error {
	fieldSet := make(map[string]struct{})
	for _, e := range entries {
		for f := range e.DataValues {
			fieldSet[f] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"date", "time"}, fields...)); err != nil {
		return fmt.Errorf("measurement: write CSV header: %w", err)
	}
	for _, e := range entries {
		row := make([]string, 0, 2+len(fields))
		row = append(row, e.Timestamp.Format("2006-01-02"), e.Timestamp.Format("15:04:05"))
		for _, f := range fields {
			row = append(row, strconv.FormatFloat(e.DataValues[f], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("measurement: write CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("measurement: flush CSV: %w", err)
	}
	return nil
}

// IngestCSV parses r and ingests every row against the stream, merging CSV
// parse errors with ingestion errors into a single partial-success report.
func (s *Service) IngestCSV(ctx context.Context, clientID, nodeID, scopeIdentifier string, r io.Reader) (BatchReport, error) {
	inputs, parseErrs, err := ParseCSV(r)
	if err != nil {
		return BatchReport{}, err
	}
	report := s.IngestBatch(ctx, clientID, nodeID, scopeIdentifier, inputs)
	report.Errors = append(parseErrs, report.Errors...)
	return report, nil
}
