package exports

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/keyword-discovery/internal/discovery"
)

var resultHeader = []string{
	"keyword", "source", "priority_score", "priority_category", "opportunity_type",
	"search_volume", "competition_level", "cpc", "intent",
	"clicks", "impressions", "ctr", "position", "has_client_ranking",
}

func resultRow(c discovery.Candidate) []string {
	return []string{
		c.Keyword,
		string(c.Source),
		strconv.FormatFloat(c.PriorityScore, 'f', 2, 64),
		string(c.Category),
		c.OpportunityType,
		strconv.FormatInt(c.SearchVolume, 10),
		string(c.Competition),
		strconv.FormatFloat(c.CPC, 'f', 2, 64),
		string(c.Intent),
		strconv.FormatFloat(c.Clicks, 'f', -1, 64),
		strconv.FormatFloat(c.Impressions, 'f', -1, 64),
		strconv.FormatFloat(c.CTR, 'f', 4, 64),
		strconv.FormatFloat(c.Position, 'f', 1, 64),
		strconv.FormatBool(c.HasClientRanking),
	}
}

// WriteCSV writes ranked candidates as CSV with a header row.
func WriteCSV(w io.Writer, cands []discovery.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultHeader); err != nil {
		return eris.Wrap(err, "exports: write csv header")
	}
	for _, c := range cands {
		if err := cw.Write(resultRow(c)); err != nil {
			return eris.Wrapf(err, "exports: write csv row %q", c.Keyword)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "exports: flush csv")
}

// WriteXLSX writes a workbook with a "Keywords" sheet of ranked candidates
// and a "Summary" sheet of run stats.
func WriteXLSX(path string, res *discovery.Result) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Keywords")
	if err != nil {
		return eris.Wrap(err, "exports: add keywords sheet")
	}
	addStrings(sheet, resultHeader)
	for _, c := range res.Candidates {
		row := sheet.AddRow()
		row.AddCell().SetString(c.Keyword)
		row.AddCell().SetString(string(c.Source))
		row.AddCell().SetFloat(c.PriorityScore)
		row.AddCell().SetString(string(c.Category))
		row.AddCell().SetString(c.OpportunityType)
		row.AddCell().SetInt64(c.SearchVolume)
		row.AddCell().SetString(string(c.Competition))
		row.AddCell().SetFloat(c.CPC)
		row.AddCell().SetString(string(c.Intent))
		row.AddCell().SetFloat(c.Clicks)
		row.AddCell().SetFloat(c.Impressions)
		row.AddCell().SetFloat(c.CTR)
		row.AddCell().SetFloat(c.Position)
		row.AddCell().SetBool(c.HasClientRanking)
	}

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "exports: add summary sheet")
	}
	addPair(summary, "run_id", res.RunID)
	addPair(summary, "client_id", res.ClientID)
	addCount(summary, "total", res.Stats.Total)
	addCount(summary, "branded_removed", res.Stats.BrandedRemoved)
	addCount(summary, "commercial_intent", res.Stats.CommercialIntent)
	addCount(summary, "informational_intent", res.Stats.InformationalIntent)
	addCount(summary, "quick_wins", res.Stats.QuickWins)
	for _, cat := range discovery.Categories {
		addCount(summary, "category_"+strings.ReplaceAll(string(cat), "-", "_"), res.Stats.ByCategory[cat])
	}
	addCount(summary, "failures", len(res.Failures))

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "exports: save %s", filepath.Base(path))
	}
	return nil
}

func addStrings(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addPair(sheet *xlsx.Sheet, key, value string) {
	addStrings(sheet, []string{key, value})
}

func addCount(sheet *xlsx.Sheet, key string, n int) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetInt(n)
}
