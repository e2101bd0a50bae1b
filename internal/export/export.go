// Package export writes analysis results as CSV, XLSX or an HTML report.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"ecoopen-extract/internal/models"
)

// Columns is the header shared by the CSV and XLSX exports.
var Columns = []string{
	"source_file",
	"filename",
	"title",
	"doi",
	"data_availability_statement",
	"code_availability_statement",
	"data_sharing_license",
	"code_license",
	"data_links_count",
	"code_links_count",
	"data_links",
	"code_links",
	"confidence_scores",
	"error",
}

const linkSeparator = "; "

// Row flattens res in Columns order.
func Row(res *models.AnalysisResult) []string {
	return []string{
		res.SourceFile,
		path.Base(strings.ReplaceAll(res.SourceFile, "\\", "/")),
		deref(res.Title),
		deref(res.DOI),
		deref(res.DataAvailabilityStatement),
		deref(res.CodeAvailabilityStatement),
		deref(res.DataSharingLicense),
		deref(res.CodeLicense),
		strconv.Itoa(len(res.DataLinks)),
		strconv.Itoa(len(res.CodeLinks)),
		strings.Join(res.DataLinks, linkSeparator),
		strings.Join(res.CodeLinks, linkSeparator),
		Confidences(res.ConfidenceScores),
		deref(res.Error),
	}
}

// Confidences renders scores as "doi:0.90; title:0.60" sorted by field.
func Confidences(scores map[string]float64) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%.2f", k, scores[k])
	}
	return strings.Join(parts, linkSeparator)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func CSV(w io.Writer, results []models.AnalysisResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i := range results {
		if err := cw.Write(Row(&results[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSX returns a workbook with one "Results" sheet.
func XLSX(results []models.AnalysisResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	for r := range results {
		for c, v := range Row(&results[r]) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var val any = v
			// link counts stay numeric
			if c == 8 || c == 9 {
				n, _ := strconv.Atoi(v)
				val = n
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return nil, err
			}
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 28)
	_ = f.SetColWidth(sheet, "C", "C", 48)
	_ = f.SetColWidth(sheet, "D", "D", 26)
	_ = f.SetColWidth(sheet, "E", "F", 60)
	_ = f.SetColWidth(sheet, "K", "M", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// Markdown renders a summary table plus one section per document.
func Markdown(results []models.AnalysisResult) string {
	var b strings.Builder
	found := func(pick func(*models.AnalysisResult) bool) int {
		n := 0
		for i := range results {
			if pick(&results[i]) {
				n++
			}
		}
		return n
	}

	b.WriteString("# Extraction report\n\n")
	b.WriteString("| Documents | With DOI | Data statement | Code statement | Failed |\n")
	b.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		len(results),
		found(func(r *models.AnalysisResult) bool { return r.DOI != nil }),
		found(func(r *models.AnalysisResult) bool { return r.DataAvailabilityStatement != nil }),
		found(func(r *models.AnalysisResult) bool { return r.CodeAvailabilityStatement != nil }),
		found(func(r *models.AnalysisResult) bool { return r.Error != nil }),
	)

	for i := range results {
		res := &results[i]
		fmt.Fprintf(&b, "## %s\n\n", cell(res.SourceFile))
		if res.Error != nil {
			fmt.Fprintf(&b, "**Error:** %s\n\n", cell(*res.Error))
			continue
		}
		b.WriteString("| Field | Value | Confidence |\n|---|---|---|\n")
		for _, f := range models.Fields {
			v := res.Get(f)
			if v == "" {
				continue
			}
			fmt.Fprintf(&b, "| %s | %s | %.2f |\n", f, cell(v), res.ConfidenceScores[string(f)])
		}
		for _, l := range []struct {
			field models.Field
			links []string
		}{{models.FieldDataLinks, res.DataLinks}, {models.FieldCodeLinks, res.CodeLinks}} {
			if len(l.links) > 0 {
				fmt.Fprintf(&b, "| %s | %s | %.2f |\n", l.field, cell(strings.Join(l.links, " ")), res.ConfidenceScores[string(l.field)])
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// HTMLReport converts the Markdown report to HTML.
func HTMLReport(w io.Writer, results []models.AnalysisResult) error {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(results)), &buf); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if _, err := io.WriteString(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Extraction report</title></head><body>\n"); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</body></html>\n")
	return err
}

// ReadResults decodes a JSON results file: a single result, an array of
// results or a job object.
func ReadResults(r io.Reader) ([]models.AnalysisResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty results file")
	}

	if data[0] == '[' {
		var results []models.AnalysisResult
		if err := json.Unmarshal(data, &results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
		return results, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if _, ok := fields["job_id"]; ok {
		var job models.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		return job.Results, nil
	}
	var res models.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return []models.AnalysisResult{res}, nil
}
