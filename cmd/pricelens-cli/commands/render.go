package commands

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pricelens/backend/internal/domain"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderRecords(w io.Writer, records []domain.ProductRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Title", "Volume", "Old price", "Price", "Reference"})
	for _, record := range records {
		t.AppendRow(table.Row{record.Title, record.Volume, record.RawOldPrice, record.RawNewPrice, record.Reference})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(records)})
	t.Render()
}

func renderRuns(w io.Writer, runs []domain.IngestionRun) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Stores", "State", "Scraped", "Inserted", "Updated", "Failed", "Duration", "Error"})
	for _, run := range runs {
		duration := ""
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{run.ID, run.Stores, run.State, run.Scraped, run.Inserted, run.Updated, run.Failed, duration, run.Error})
	}
	t.Render()
}

func renderComparisons(w io.Writer, comparisons []domain.ComparisonEntry) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Product", domain.StoreLavka.DisplayName(), domain.StoreSamokat.DisplayName(), "Cheaper", "Difference"})
	for _, c := range comparisons {
		name := c.ProductName
		if c.Fuzzy {
			name += " (~)"
		}
		t.AppendRow(table.Row{name, c.LavkaPrice.StringFixed(2), c.SamokatPrice.StringFixed(2), c.CheaperStore.DisplayName(), c.PriceDifference.StringFixed(2)})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(comparisons)})
	t.Render()
}

func renderStats(w io.Writer, stats domain.IngestionStats) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Store", "Products"})
	for _, store := range domain.Stores {
		t.AppendRow(table.Row{store.DisplayName(), stats.PerStoreCounts[store]})
	}
	lastUpdate := "never"
	if stats.LastUpdate != nil {
		lastUpdate = stats.LastUpdate.Local().Format(time.DateTime)
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Total", stats.TotalProducts})
	t.AppendRow(table.Row{"Last update", lastUpdate})
	t.Render()
}
