// Package report renders a completed run as an XLSX workbook for the
// real-estate team.
package report

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/forkline/expansion-cli/internal/model"
)

var candidateHeader = []string{
	"Name", "Address", "City", "State", "Lat", "Lon", "Site Type",
	"Quality", "Density", "Income", "Foot Traffic", "Competitors",
	"Market Fit", "Accessibility", "Competition", "Cost Profile", "Composite",
	"Verdict", "Confidence", "Nearest Store (km)", "Filtered", "Filter Reason",
}

// WriteWorkbook writes a two-sheet workbook: a run summary and the full
// candidate table, filtered rows included.
func WriteWorkbook(path string, run *model.Run, candidates []model.Candidate) error {
	f := xlsx.NewFile()

	if err := writeSummary(f, run); err != nil {
		return err
	}
	if err := writeCandidates(f, candidates); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func writeSummary(f *xlsx.File, run *model.Run) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	addPair := func(label, value string) {
		row := sheet.AddRow()
		row.AddCell().Value = label
		row.AddCell().Value = value
	}

	addPair("Run ID", run.ID)
	addPair("Region", run.Region.Name)
	addPair("City", fmt.Sprintf("%s, %s", run.Region.City, run.Region.State))
	addPair("Status", string(run.Status))
	addPair("Created", run.CreatedAt.Format("2006-01-02 15:04:05"))

	if run.Result == nil {
		return nil
	}
	addPair("Candidates Found", fmt.Sprintf("%d", run.Result.CandidatesFound))
	addPair("Candidates Scored", fmt.Sprintf("%d", run.Result.CandidatesScored))
	addPair("Candidates Viable", fmt.Sprintf("%d", run.Result.CandidatesViable))
	addPair("Cost (USD)", fmt.Sprintf("%.4f", run.Result.CostUSD))
	addPair("Cache Hits", fmt.Sprintf("%d", run.Result.CacheHits))

	if len(run.Result.Phases) > 0 {
		sheet.AddRow()
		hdr := sheet.AddRow()
		for _, h := range []string{"Phase", "Status", "Duration (ms)", "Items", "Cost (USD)", "Error"} {
			hdr.AddCell().Value = h
		}
		for _, p := range run.Result.Phases {
			row := sheet.AddRow()
			row.AddCell().Value = p.Name
			row.AddCell().Value = string(p.Status)
			row.AddCell().SetInt64(p.Duration)
			row.AddCell().SetInt(p.Items)
			row.AddCell().SetFloat(p.CostUSD)
			row.AddCell().Value = p.Error
		}
	}
	return nil
}

func writeCandidates(f *xlsx.File, candidates []model.Candidate) error {
	sheet, err := f.AddSheet("Candidates")
	if err != nil {
		return eris.Wrap(err, "report: add candidates sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range candidateHeader {
		hdr.AddCell().Value = h
	}

	for _, c := range candidates {
		row := sheet.AddRow()
		row.AddCell().Value = c.Name
		row.AddCell().Value = c.Address
		row.AddCell().Value = c.City
		row.AddCell().Value = c.State
		row.AddCell().SetFloat(c.Lat)
		row.AddCell().SetFloat(c.Lon)
		row.AddCell().Value = string(c.SiteType)
		row.AddCell().SetFloat(c.Quality)

		if c.Market != nil {
			row.AddCell().Value = c.Market.PopulationDensity
			row.AddCell().Value = c.Market.MedianIncomeBand
			row.AddCell().Value = c.Market.FootTraffic
			row.AddCell().SetInt(c.Market.CompetitorCount)
		} else {
			for range 4 {
				row.AddCell()
			}
		}

		if c.Score != nil {
			row.AddCell().SetFloat(c.Score.MarketFit)
			row.AddCell().SetFloat(c.Score.Accessibility)
			row.AddCell().SetFloat(c.Score.Competition)
			row.AddCell().SetFloat(c.Score.CostProfile)
			row.AddCell().SetFloat(c.Score.Composite)
		} else {
			for range 5 {
				row.AddCell()
			}
		}

		if c.Verdict != nil {
			row.AddCell().Value = string(c.Verdict.Verdict)
			row.AddCell().SetFloat(c.Verdict.Confidence)
			row.AddCell().SetFloat(c.Verdict.CannibalizationKM)
		} else {
			for range 3 {
				row.AddCell()
			}
		}

		row.AddCell().SetBool(c.Filtered)
		row.AddCell().Value = c.FilterReason
	}
	return nil
}
