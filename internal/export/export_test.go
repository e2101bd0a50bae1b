package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ecoopen-extract/internal/models"
)

func sample() []models.AnalysisResult {
	ok := models.NewAnalysisResult("papers/smith2021.pdf")
	ok.Set(models.FieldTitle, "Drought reshapes soil | microbial networks", 0.6)
	ok.Set(models.FieldDOI, "10.1111/ele.13735", 0.9)
	ok.Set(models.FieldDataStatement, "Data are available at https://zenodo.org/record/1.", 0.85)
	ok.DataLinks = []string{"https://zenodo.org/record/1", "https://doi.org/10.5061/dryad.x1"}
	ok.ConfidenceScores["data_links"] = 0.85

	bad := models.NewAnalysisResult("broken.pdf")
	bad.SetError(models.MsgInvalidDocument)
	return []models.AnalysisResult{*ok, *bad}
}

func TestRow(t *testing.T) {
	res := sample()[0]
	row := Row(&res)

	require.Len(t, row, len(Columns))
	assert.Equal(t, "papers/smith2021.pdf", row[0])
	assert.Equal(t, "smith2021.pdf", row[1])
	assert.Equal(t, "10.1111/ele.13735", row[3])
	assert.Equal(t, "", row[5])
	assert.Equal(t, "2", row[8])
	assert.Equal(t, "0", row[9])
	assert.Equal(t, "https://zenodo.org/record/1; https://doi.org/10.5061/dryad.x1", row[10])
	assert.Equal(t, "data_links:0.85; data_statement:0.85; doi:0.90; title:0.60", row[12])
	assert.Equal(t, "", row[13])
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, sample()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns, records[0])
	assert.Equal(t, "Drought reshapes soil | microbial networks", records[1][2])
	assert.Equal(t, "broken.pdf", records[2][0])
	assert.Equal(t, models.MsgInvalidDocument, records[2][13])
}

func TestXLSX(t *testing.T) {
	data, err := XLSX(sample())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "source_file", rows[0][0])
	assert.Equal(t, "10.1111/ele.13735", rows[1][3])
	assert.Equal(t, "2", rows[1][8])
}

func TestHTMLReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTMLReport(&buf, sample()))
	html := buf.String()

	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<h2>papers/smith2021.pdf</h2>")
	assert.Contains(t, html, "Drought reshapes soil | microbial networks")
	assert.Contains(t, html, "corrupt or unreadable PDF")
}

func TestReadResults(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"array", `[{"source_file":"a.pdf"},{"source_file":"b.pdf"}]`, []string{"a.pdf", "b.pdf"}},
		{"single result", `{"source_file":"a.pdf","doi":"10.1/x"}`, []string{"a.pdf"}},
		{"job", `{"job_id":"j1","status":"done","results":[{"source_file":"c.pdf"}]}`, []string{"c.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := ReadResults(strings.NewReader(tt.input))
			require.NoError(t, err)
			var got []string
			for _, r := range results {
				got = append(got, r.SourceFile)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ReadResults(strings.NewReader("  "))
	assert.Error(t, err)
	_, err = ReadResults(strings.NewReader("{not json"))
	assert.Error(t, err)
}
