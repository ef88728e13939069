package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shiva/freightroute/config"
	"github.com/shiva/freightroute/internal/fixture"
	"github.com/shiva/freightroute/internal/service"
	"github.com/shiva/freightroute/pkg/logger"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load vans, loads and route plans from a YAML fixture",
	RunE:  seed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "internal/fixture/testdata/demo.yaml", "fixture file")
	rootCmd.AddCommand(seedCmd)
}

func seed(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.App.Store != "postgres" {
		return fmt.Errorf("seed needs STORE_DRIVER=postgres, got %q", cfg.App.Store)
	}
	log := logger.New("seed")

	f, err := fixture.Load(seedFile)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.Close()

	opts := service.Options{
		Store:        be.store,
		Directory:    be.dir,
		Calculator:   service.NewMetricCalculator(be.dir, costModel(cfg)),
		Logger:       log,
		WriteTimeout: cfg.App.WriteTimeout,
	}
	res, err := fixture.Seed(ctx, f, fixture.Services{
		Directory: be.writer,
		Routes:    service.NewRouteService(opts),
		Layout:    service.NewPlacementService(opts),
	})
	if err != nil {
		return err
	}
	log.Infof("seeded %d vans, %d loads, %d routes from %s", res.Vans, res.Loads, len(res.Routes), seedFile)
	for _, id := range res.Routes {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
