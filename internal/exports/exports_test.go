package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/keyword-discovery/internal/discovery"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createTestXLSX(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	require.NoError(t, f.Save(path))
}

func TestCompetitorFiles_CSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rival.com.csv", "\ufeffKeyword,Position,Search Volume\nfurnace repair,3,2400\n,5,10\nac install,12,880\n")

	c := &CompetitorFiles{Dir: dir}
	got, err := c.Rankings(context.Background(), "rival.com")
	require.NoError(t, err)
	assert.Equal(t, []discovery.RankedKeyword{
		{Keyword: "furnace repair", Position: 3},
		{Keyword: "ac install", Position: 12},
	}, got)
}

func TestCompetitorFiles_XLSX(t *testing.T) {
	dir := t.TempDir()
	createTestXLSX(t, filepath.Join(dir, "rival.com.xlsx"), [][]string{
		{"Query", "Rank"},
		{"heat pump rebate", "7"},
	})

	got, err := (&CompetitorFiles{Dir: dir}).Rankings(context.Background(), "rival.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "heat pump rebate", got[0].Keyword)
	assert.InDelta(t, 7, got[0].Position, 0.001)
}

func TestCompetitorFiles_Missing(t *testing.T) {
	_, err := (&CompetitorFiles{Dir: t.TempDir()}).Rankings(context.Background(), "nobody.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ranking export for nobody.com")
}

func TestPerformanceFile_SearchConsoleExport(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Queries.csv", "Top queries,Clicks,Impressions,CTR,Position\n"+
		"furnace repair,12,\"1,020\",1.18%,14.3\n"+
		"ac install,4,300,1.33%,8\n"+
		"boiler,0,50,0%,31\n")

	p := &PerformanceFile{Path: path}
	got, err := p.Queries(context.Background(), discovery.PerformanceQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "furnace repair", got[0].Keyword)
	assert.InDelta(t, 12, got[0].Clicks, 0.001)
	assert.InDelta(t, 1020, got[0].Impressions, 0.001)
	assert.InDelta(t, 0.0118, got[0].CTR, 0.00001)
	assert.InDelta(t, 14.3, got[0].Position, 0.001)
	assert.Empty(t, got[0].Intent)
}

func TestPerformanceFile_Intent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "perf.csv", "keys,clicks,impressions,ctr,position,intent\nbuy furnace,1,10,0.1,5,Transactional\n")

	got, err := (&PerformanceFile{Path: path}).Queries(context.Background(), discovery.PerformanceQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, discovery.IntentTransactional, got[0].Intent)
	assert.InDelta(t, 0.1, got[0].CTR, 0.0001)
}

func TestReadTable_Errors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := readTable(ctx, writeFile(t, dir, "data.json", "{}"))
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = readTable(ctx, writeFile(t, dir, "empty.csv", ""))
	assert.ErrorContains(t, err, "is empty")

	_, err = readTable(ctx, writeFile(t, dir, "nokw.csv", "a,b\n1,2\n"))
	assert.ErrorContains(t, err, "no keyword column")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = readTable(cancelled, writeFile(t, dir, "ok.csv", "keyword\na\n"))
	assert.Error(t, err)
}

func sampleResult() *discovery.Result {
	cands := discovery.Rank([]discovery.Candidate{
		{CanonicalKey: "furnace repair", Keyword: "Furnace Repair", Source: discovery.SourceManual, Position: 15, SearchVolume: 500, Competition: discovery.CompetitionLow, Intent: discovery.IntentCommercial, HasClientRanking: true},
		{CanonicalKey: "ductless", Keyword: "ductless", Source: discovery.SourceCompetitor, Competition: discovery.CompetitionUnknown, Intent: discovery.IntentInformational},
	})
	return &discovery.Result{
		RunID:      "run-1",
		ClientID:   "acme-hvac",
		Candidates: cands,
		Stats:      discovery.Summarize(cands, 1),
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResult().Candidates))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, resultHeader, records[0])
	assert.Equal(t, "Furnace Repair", records[1][0])
	assert.Equal(t, "2.75", records[1][2])
	assert.Equal(t, "quick-win", records[1][3])
	assert.Equal(t, "true", records[1][13])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(path, sampleResult()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	kw := f.Sheet["Keywords"]
	require.NotNil(t, kw)
	require.Len(t, kw.Rows, 3)
	assert.Equal(t, "Furnace Repair", kw.Rows[1].Cells[0].String())
	assert.Equal(t, "ductless", kw.Rows[2].Cells[0].String())

	summary := f.Sheet["Summary"]
	require.NotNil(t, summary)
	assert.Equal(t, "run_id", summary.Rows[0].Cells[0].String())
	assert.Equal(t, "run-1", summary.Rows[0].Cells[1].String())
	assert.Equal(t, "1", summary.Rows[3].Cells[1].String())

	// The keyword sheet reads back through the competitor loader.
	t.Run("round trip", func(t *testing.T) {
		tbl, err := readTable(context.Background(), path)
		require.NoError(t, err)
		assert.Len(t, tbl.rows, 2)
		assert.True(t, tbl.has("position"))
	})
}
