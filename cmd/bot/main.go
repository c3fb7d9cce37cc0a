package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robalyx/modcase/internal/setup"
	"github.com/robalyx/modcase/internal/status"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	app := &cli.Command{
		Name:   "bot",
		Usage:  "Moderation lifecycle engine",
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, _ *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := setup.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	// Rebuild scheduler state and repair external drift before taking events;
	// kinds recover independently so one kind's failure aborts the start
	// rather than leaving a half-recovered engine running
	reporter := status.NewReporter(app.StatusClient, "bot", app.Logger)
	reporter.Start(ctx)
	defer reporter.Stop()

	reporter.UpdateTask("recovering")

	p := pool.New().WithContext(ctx)
	for _, controller := range app.Controllers {
		p.Go(controller.Recover)
	}

	if err := p.Wait(); err != nil {
		reporter.SetHealthy(false)
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	reporter.UpdateTask("running")

	if err := app.Discord.OpenGateway(ctx); err != nil {
		reporter.SetHealthy(false)
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	app.Logger.Info("Bot started, waiting for interrupt signal",
		zap.String("service_id", reporter.ServiceID()))

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	app.Logger.Info("Shutting down")

	return nil
}
