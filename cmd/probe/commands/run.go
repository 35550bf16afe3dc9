package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"booking-scraper-service/internal/config"
	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/adapter"
	"booking-scraper-service/internal/infra/browser"
	"booking-scraper-service/internal/infra/logging"
	"booking-scraper-service/internal/infra/provider"
	"booking-scraper-service/internal/infra/proxy"

	"github.com/spf13/cobra"
)

var runFlags struct {
	provider string
	locator  string
	lastName string
	origin   string
	useProxy bool
	timeout  time.Duration
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.provider, "provider", "", "LATAM, GOL or AZUL (or A, B, C)")
	f.StringVar(&runFlags.locator, "locator", "", "booking locator")
	f.StringVar(&runFlags.lastName, "last-name", "", "passenger last name")
	f.StringVar(&runFlags.origin, "origin", "", "three-letter origin airport code")
	f.BoolVar(&runFlags.useProxy, "proxy", false, "egress through the configured proxy gateway")
	f.DurationVar(&runFlags.timeout, "timeout", 3*time.Minute, "overall deadline")
	_ = runCmd.MarkFlagRequired("provider")
	_ = runCmd.MarkFlagRequired("locator")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run --provider <p> --locator <code> [--last-name <name>] [--origin <IATA>]",
	Short: "Runs one provider strategy in a local browser and prints the booking as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadLocal(cfgPath, devMode)
		if err != nil {
			return err
		}
		log := logging.NewWriter(cfg.Log, cfg.Runtime.Dev, os.Stderr)

		p, ok := model.ParseProvider(runFlags.provider)
		if !ok {
			return fmt.Errorf("%w: %q", domain.ErrProviderUnsupported, runFlags.provider)
		}
		req := model.LookupRequest{
			Provider: p,
			Locator:  runFlags.locator,
			LastName: runFlags.lastName,
			Origin:   runFlags.origin,
		}.Normalize()

		registry, err := provider.NewDefaultRegistry(cfg.Providers, log)
		if err != nil {
			return err
		}
		strategy, err := registry.Lookup(p)
		if err != nil {
			return err
		}
		if err := strategy.Validate(req); err != nil {
			return err
		}

		var egress model.ProxyDescriptor
		if runFlags.useProxy {
			egress = proxy.NewAllocator(cfg.Proxy, nil).Pick()
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), runFlags.timeout)
		defer cancel()
		ctx = logging.WithProvider(ctx, string(p))

		var rec *model.BookingRecord
		start := time.Now()
		err = browser.NewPool(cfg.Browser, 1, log).WithPage(ctx, egress, func(ctx context.Context, page adapter.Page) error {
			var runErr error
			rec, runErr = strategy.Run(ctx, page, req)
			return runErr
		})
		if err != nil {
			return fmt.Errorf("%s lookup failed (%s): %w", p, domain.Kind(err), err)
		}
		log.Info().Dur("duration", time.Since(start)).Msg("lookup finished")

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}
