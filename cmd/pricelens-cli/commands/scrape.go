package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pricelens/backend/config"
	"github.com/pricelens/backend/internal/app"
	"github.com/pricelens/backend/internal/domain"
)

var scrapeDryRun bool

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "Print scraped records without writing to the catalog.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [store...] [--dry-run]",
	Short: "Scrapes the given stores (all configured stores by default) and reconciles them into the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		stores, err := storesFromArgs(cfg, args)
		if err != nil {
			return err
		}

		if scrapeDryRun {
			return dryRun(cmd.Context(), cfg, stores)
		}
		return ingest(cmd.Context(), cfg, stores, len(args) == 0)
	},
}

// dryRun runs the adapters directly and prints what they found
func dryRun(ctx context.Context, cfg *config.Config, stores []domain.Store) error {
	adapters := make(map[domain.Store]domain.ScrapeAdapter)
	for _, adapter := range app.NewAdapters(cfg) {
		adapters[adapter.Store()] = adapter
	}

	var errs []error
	for _, store := range stores {
		scrapeCtx, cancel := context.WithTimeout(ctx, cfg.Scrape.Timeout)
		started := time.Now()
		records, err := adapters[store].Scrape(scrapeCtx)
		cancel()
		if err != nil {
			errs = append(errs, err)
			continue
		}

		fmt.Fprintf(os.Stdout, "%s: %d records in %s\n", store.DisplayName(), len(records), time.Since(started).Round(time.Millisecond))
		renderRecords(os.Stdout, records)
	}
	return errors.Join(errs...)
}

// ingest runs real ingestion through the service so reconciliation and
// cache invalidation behave exactly as in the server
func ingest(ctx context.Context, cfg *config.Config, stores []domain.Store, full bool) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Ingestion.Shutdown(shutdownCtx); err != nil {
			log.Printf("[CLI] Ingestion shutdown: %v", err)
		}
	}()

	if full {
		run, err := a.Ingestion.RunFullIngestion(ctx)
		if run.ID != "" {
			renderRuns(os.Stdout, []domain.IngestionRun{run})
		}
		return err
	}

	var runs []domain.IngestionRun
	var errs []error
	for _, store := range stores {
		run, err := a.Ingestion.RunStoreIngestion(store)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		run, err = a.Ingestion.Await(ctx, run.ID)
		if err != nil {
			cancelRun(a.Ingestion, run.ID)
			errs = append(errs, err)
			break
		}
		runs = append(runs, run)
		if run.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", store, run.Error))
		}
	}

	renderRuns(os.Stdout, runs)
	return errors.Join(errs...)
}

type runCanceller interface {
	Cancel(id string) error
}

// cancelRun stops a run the CLI stopped waiting for
func cancelRun(ingestion runCanceller, id string) {
	if err := ingestion.Cancel(id); err != nil {
		log.Printf("[CLI] Cancel run %s: %v", id, err)
	}
}
