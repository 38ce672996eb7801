package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/procurio/ted-harvester/internal/api"
	"github.com/procurio/ted-harvester/internal/config"
	"github.com/procurio/ted-harvester/internal/export"
	"github.com/procurio/ted-harvester/internal/extract"
	"github.com/procurio/ted-harvester/internal/fetch"
	"github.com/procurio/ted-harvester/internal/logging"
	"github.com/procurio/ted-harvester/internal/metrics"
	"github.com/procurio/ted-harvester/internal/pipeline"
	"github.com/procurio/ted-harvester/internal/search"
	"github.com/procurio/ted-harvester/internal/snapshot"
	"github.com/procurio/ted-harvester/internal/store"
	"github.com/procurio/ted-harvester/internal/ted"
)

type harvestFlags struct {
	cpvCodes  []string
	keywords  string
	countries []string
	from      string
	to        string
	out       string
}

func newHarvestCmd() *cobra.Command {
	flags := &harvestFlags{}
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs one search-and-extract batch",
		Long: `Searches the notice API for the given period and filters, downloads each
matching notice's XML document, and writes the extracted fields to an xlsx
workbook. Notices whose documents cannot be retrieved or parsed are reported
and skipped; they never abort the batch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd.Context(), flags)
		},
	}

	today := time.Now().Format("20060102")
	cmd.Flags().StringSliceVar(&flags.cpvCodes, "cpv", nil, "CPV classification codes to match")
	cmd.Flags().StringVar(&flags.keywords, "keywords", "", "free-text search expression")
	cmd.Flags().StringSliceVar(&flags.countries, "country", []string{"DEU"}, "buyer country codes (ISO alpha-3)")
	cmd.Flags().StringVar(&flags.from, "from", today, "publication date range start (YYYYMMDD)")
	cmd.Flags().StringVar(&flags.to, "to", today, "publication date range end (YYYYMMDD)")
	cmd.Flags().StringVar(&flags.out, "out", "", "output workbook path (default ted_<timestamp>.xlsx)")

	return cmd
}

func runHarvest(ctx context.Context, flags *harvestFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := ted.SearchQuery{
		DateStart:      flags.from,
		DateEnd:        flags.to,
		BuyerCountries: flags.countries,
		CPVCodes:       flags.cpvCodes,
		Keywords:       flags.keywords,
	}
	if err := query.Validate(); err != nil {
		return err
	}

	outPath := flags.out
	if outPath == "" {
		outPath = fmt.Sprintf("ted_%s.xlsx", time.Now().Format("20060102_150405"))
	}

	deps, cleanup, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var apiServer *api.Server
	if cfg.Server.Enabled {
		apiServer = api.NewServer(logger)
		go func() {
			if serveErr := apiServer.Serve(ctx, cfg.Server.Port); serveErr != nil {
				logger.Error("observability server failed", zap.Error(serveErr))
			}
		}()
	}

	runner := pipeline.NewRunner(pipeline.Config{
		DetailHost:  cfg.Harvest.DetailHost,
		NoticeDelay: cfg.NoticeDelay(),
		Concurrency: cfg.Harvest.Concurrency,
	}, deps, logger)

	summary, err := runner.Run(ctx, query, outPath)
	switch {
	case errors.Is(err, pipeline.ErrNoResults):
		fmt.Println("No notices matched the query for the given period.")
		return nil
	case err != nil:
		var searchErr *search.Error
		if errors.As(err, &searchErr) {
			return fmt.Errorf("search request failed with HTTP %d for query %q",
				searchErr.StatusCode, searchErr.Query)
		}
		return err
	}

	if apiServer != nil {
		apiServer.SetLastRun(summary)
	}
	fmt.Printf("Wrote %d rows to %s (%d of %d notices skipped).\n",
		summary.Rows, summary.OutputPath, len(summary.Skips), summary.Matched)
	return nil
}

// buildDeps wires the pipeline collaborators from configuration. The
// returned cleanup releases the database pool when one was opened.
func buildDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (pipeline.Deps, func(), error) {
	deps := pipeline.Deps{
		Search: search.New(search.Config{
			Endpoint:  cfg.Search.Endpoint,
			PageSize:  cfg.Search.PageSize,
			PageDelay: cfg.PageDelay(),
			Timeout:   cfg.HTTPTimeout(),
			UserAgent: cfg.HTTP.UserAgent,
		}, logger),
		Fetch: fetch.New(fetch.Config{
			DetailHost: cfg.Harvest.DetailHost,
			Languages:  cfg.Harvest.Languages,
			UserAgent:  cfg.HTTP.UserAgent,
			Timeout:    cfg.HTTPTimeout(),
		}, logger),
		Extract: extract.New(cfg.Harvest.DetailHost),
		Write:   export.NewWriter(),
	}

	if cfg.Harvest.SnapshotDir != "" {
		snaps, err := snapshot.New(cfg.Harvest.SnapshotDir)
		if err != nil {
			return pipeline.Deps{}, nil, fmt.Errorf("init snapshot store: %w", err)
		}
		deps.Snapshots = snaps
	}

	cleanup := func() {}
	if cfg.DB.DSN != "" {
		runs, err := store.NewRunStore(ctx, store.RunStoreConfig{
			DSN:   cfg.DB.DSN,
			Table: cfg.DB.Table,
		})
		if err != nil {
			return pipeline.Deps{}, nil, fmt.Errorf("init run store: %w", err)
		}
		deps.Runs = runs
		cleanup = runs.Close
	} else {
		deps.Runs = store.NoopRunStore{}
	}

	return deps, cleanup, nil
}
