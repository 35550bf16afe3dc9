package commands

import (
	"fmt"

	"booking-scraper-service/internal/domain/model"

	"github.com/spf13/cobra"
)

var aliases = map[model.Provider]string{
	model.ProviderLatam: "A",
	model.ProviderGol:   "B",
	model.ProviderAzul:  "C",
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Lists the supported providers and their aliases.",
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range model.Providers {
			fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s\n", p, aliases[p])
		}
	},
}
