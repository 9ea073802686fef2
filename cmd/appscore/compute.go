package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bau-research/appscore/internal/cache"
	"github.com/bau-research/appscore/internal/config"
	"github.com/bau-research/appscore/internal/export"
	"github.com/bau-research/appscore/internal/logging"
	"github.com/bau-research/appscore/internal/pipeline"
	"github.com/bau-research/appscore/internal/scopus"
	"github.com/bau-research/appscore/internal/scoring"
)

var (
	computeTable       string
	computeYears       []int
	computeAffiliation string
	computeWorkers     int
	computeOut         string
	computeCSV         string
	computeNoCache     bool
)

func init() {
	// .env may carry SCOPUS_API_KEY
	_ = godotenv.Load()

	computeCmd.Flags().StringVar(&computeTable, "table", "", "Path to the CiteScore reference table (csv/tsv/txt/xlsx)")
	computeCmd.Flags().IntSliceVar(&computeYears, "years", nil, "Publication years to score (default: current year and two preceding)")
	computeCmd.Flags().StringVar(&computeAffiliation, "affiliation", "", "Affiliation ID authors must hold (empty string from config disables the check)")
	computeCmd.Flags().IntVar(&computeWorkers, "workers", 0, "Concurrent record fetches")
	computeCmd.Flags().StringVar(&computeOut, "out", "", "Write an XLSX workbook to this path")
	computeCmd.Flags().StringVar(&computeCSV, "csv", "", "Write the enriched article list as CSV to this path")
	computeCmd.Flags().BoolVar(&computeNoCache, "no-cache", false, "Bypass the on-disk record cache")
	rootCmd.AddCommand(computeCmd)
}

var computeCmd = &cobra.Command{
	Use:   "compute <author-id>...",
	Short: "Compute APP scores for one or more authors",
	Long: `Compute runs the full pipeline: load the reference table, fetch each
author's publications, match them against the table, and derive the APP
total with its eligibility tier.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCompute,
}

func runCompute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}

	tablePath := computeTable
	if tablePath == "" {
		tablePath = cfg.TablePath
	}
	if tablePath == "" {
		exitWithError(ExitConfigError, "no reference table: pass --table or set table_path in %s", config.Path())
	}

	affiliation := cfg.AffiliationID
	if cmd.Flags().Changed("affiliation") {
		affiliation = computeAffiliation
	}
	workers := cfg.Workers
	if computeWorkers > 0 {
		workers = computeWorkers
	}

	window := scoring.DefaultWindow(time.Now())
	if len(computeYears) > 0 {
		window = scoring.FixedWindow(computeYears)
	} else if len(cfg.Years) > 0 {
		window = scoring.FixedWindow(cfg.Years)
	}

	// computePipeline owns the cache handle; exitWithError never runs with
	// it open, so its deferred Close always fires.
	result, code, err := computePipeline(cmd.Context(), newClient(cfg), cfg.CachePath, tablePath, args, pipeline.Options{
		AffiliationID: affiliation,
		Workers:       workers,
		Window:        window,
		Logger:        logging.New(logLevel),
	})
	if err != nil {
		exitWithError(code, "%v", err)
	}

	if computeOut != "" {
		if err := export.Workbook(computeOut, authorLabel(result.Authors), result.Publications, result.Table, result.Summary); err != nil {
			exitWithError(ExitError, "writing workbook: %v", err)
		}
	}
	if computeCSV != "" {
		if err := export.WriteCSV(computeCSV, result.Publications); err != nil {
			exitWithError(ExitError, "writing CSV: %v", err)
		}
	}

	if humanOutput {
		printResult(result)
		return nil
	}
	return outputJSON(result)
}

// computePipeline opens the record cache when enabled, runs the pipeline,
// and returns the exit code to use on failure. The cache is closed before
// returning.
func computePipeline(ctx context.Context, src pipeline.Source, cachePath, tablePath string, authorIDs []string, opts pipeline.Options) (*pipeline.Result, int, error) {
	var store pipeline.Store
	if !computeNoCache && cachePath != "" {
		c, err := cache.Open(cachePath)
		if err != nil {
			return nil, ExitConfigError, fmt.Errorf("opening cache: %w", err)
		}
		defer c.Close()
		store = c
	}

	result, err := pipeline.Run(ctx, src, store, tablePath, authorIDs, opts)
	if err != nil {
		return nil, ExitDataError, err
	}
	return result, ExitSuccess, nil
}

func newClient(cfg *config.Config) *scopus.Client {
	var opts []scopus.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, scopus.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, scopus.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, scopus.WithRateLimit(cfg.RateLimit))
	}
	return scopus.NewClient(opts...)
}

func authorLabel(authors []pipeline.Author) string {
	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = a.Name
	}
	return strings.Join(names, "; ")
}

func printResult(r *pipeline.Result) {
	outputHuman("Authors: %s\n", authorLabel(r.Authors))
	outputHuman("Years:   %v\n", r.Summary.Years)
	outputHuman("Fetched %d records (%d cached), skipped %d\n",
		r.Report.Fetched, r.Report.Cached, len(r.Report.Items)-r.Report.Fetched-r.Report.Cached)
	outputHuman("\n")
	for _, s := range r.Table {
		title := s.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		outputHuman("  %d  %-4s p%-5.1f AC %.2f QC %.2f -> %.2f  %s\n",
			s.Year, s.Quartile, s.Percentile, s.AuthorCredit, s.QualityClass, s.Contribution, title)
	}
	outputHuman("\nAPP total:   %.2f\n", r.Summary.Total)
	outputHuman("Eligibility: %s\n", r.Summary.EligibilityTier)
}
