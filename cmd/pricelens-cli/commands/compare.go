package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pricelens/backend/config"
	"github.com/pricelens/backend/internal/app"
)

func init() {
	rootCmd.AddCommand(compareCmd)
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Prints every product sold by both stores with the cheaper store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		comparisons, err := a.Comparisons.GetComparisons(cmd.Context())
		if err != nil {
			return err
		}
		renderComparisons(os.Stdout, comparisons)
		return nil
	},
}
