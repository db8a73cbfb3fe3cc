package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pricelens/backend/config"
	"github.com/pricelens/backend/internal/domain"
)

var rootCmd = &cobra.Command{
	Use:   "pricelens-cli",
	Short: "pricelens-cli scrapes grocery catalogs and inspects the price comparison catalog.",
	Long: `pricelens-cli scrapes grocery catalogs and inspects the price comparison catalog.

Configuration is read the same way as the server (config.yaml, .env and
PRICELENS_* variables). With the default in-memory catalog every command
starts from an empty catalog; point database.driver at postgres to share
state with the server.`,
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// storesFromArgs parses store names, falling back to the configured stores
func storesFromArgs(cfg *config.Config, args []string) ([]domain.Store, error) {
	if len(args) == 0 {
		return cfg.Scrape.EnabledStores()
	}
	stores := make([]domain.Store, 0, len(args))
	for _, arg := range args {
		store, err := domain.ParseStore(arg)
		if err != nil {
			return nil, err
		}
		stores = append(stores, store)
	}
	return stores, nil
}
