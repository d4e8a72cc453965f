// Package importer parses structured uploads (CSV, XLSX) into
// per-row documents, reporting progress and per-row errors as it goes
// rather than failing the whole file on one bad row.
//
// Grounded on the teacher's parser.Parser/registry pattern
// (bbiangul-go-reason/parser/{parser,registry,xlsx}.go): kept the
// format-registry idiom but replaced its document-section model (a
// PDF/DOCX parser emits a Section tree) with a row model, since
// structured import here means one row -> one candidate document, not
// one file -> one hierarchical document (spec §4.9).
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Row is one parsed record awaiting validation and ingestion.
type Row struct {
	Index       int // 0-based row number within the sheet/file, excluding header
	Title       string
	Content     string
	Tags        []string
	SourceURL   string
	PublishedAt *time.Time
}

// RowResult reports the outcome of importing a single row.
type RowResult struct {
	Index int
	Row   Row
	Err   error
}

// Format identifies a structured import format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Header column names. title and content are the columns spec §4.9
// requires; the others are optional and located by header name.
const (
	colTitle         = "title"
	colContent       = "content"
	colTags          = "tags"
	colURL           = "source_url"
	colPublishedDate = "published_date"
)

// publishedDateLayouts are tried in order; the first that parses wins.
// An unparsable or empty value leaves PublishedAt nil rather than
// failing the row (spec §4.9).
var publishedDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
}

func parsePublishedDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range publishedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// ParseCSV streams rows out of a CSV file, requiring "title" and
// "content" header columns (case-insensitive). Rows missing a
// required column are reported as per-row errors rather than aborting
// the import (spec §4.9 "partial success").
func ParseCSV(ctx context.Context, r io.Reader, onRow func(RowResult) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}
	cols := columnIndex(header)
	if err := requireColumns(cols); err != nil {
		return err
	}

	idx := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if cbErr := onRow(RowResult{Index: idx, Err: fmt.Errorf("reading row %d: %w", idx, err)}); cbErr != nil {
				return cbErr
			}
			idx++
			continue
		}

		row, rowErr := rowFromRecord(idx, cols, record)
		if cbErr := onRow(RowResult{Index: idx, Row: row, Err: rowErr}); cbErr != nil {
			return cbErr
		}
		idx++
	}
}

// ParseXLSX reads the first non-empty sheet of an XLSX workbook as a
// row source, using the same header-column contract as ParseCSV.
func ParseXLSX(ctx context.Context, r io.Reader, onRow func(RowResult) error) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sheetRows [][]string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		sheetRows = rows
		break
	}
	if sheetRows == nil {
		return fmt.Errorf("no data found in workbook")
	}

	cols := columnIndex(sheetRows[0])
	if err := requireColumns(cols); err != nil {
		return err
	}

	for idx, record := range sheetRows[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, rowErr := rowFromRecord(idx, cols, record)
		if cbErr := onRow(RowResult{Index: idx, Row: row, Err: rowErr}); cbErr != nil {
			return cbErr
		}
	}
	return nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func requireColumns(cols map[string]int) error {
	for _, required := range []string{colTitle, colContent} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("missing required column %q", required)
		}
	}
	return nil
}

func rowFromRecord(idx int, cols map[string]int, record []string) (Row, error) {
	title := field(record, cols, colTitle)
	content := field(record, cols, colContent)
	if strings.TrimSpace(title) == "" {
		return Row{Index: idx}, fmt.Errorf("row %d: empty title", idx)
	}
	if strings.TrimSpace(content) == "" {
		return Row{Index: idx}, fmt.Errorf("row %d: empty content", idx)
	}

	var tags []string
	if raw := field(record, cols, colTags); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	return Row{
		Index:       idx,
		Title:       strings.TrimSpace(title),
		Content:     strings.TrimSpace(content),
		Tags:        tags,
		SourceURL:   strings.TrimSpace(field(record, cols, colURL)),
		PublishedAt: parsePublishedDate(field(record, cols, colPublishedDate)),
	}, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

// DetectFormat maps an uploaded filename's extension to a Format.
func DetectFormat(filename string) (Format, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV, nil
	case strings.HasSuffix(lower, ".xlsx"):
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", filename)
	}
}
