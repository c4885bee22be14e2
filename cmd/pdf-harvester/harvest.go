// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pdf-harvester/internal/browser"
	"github.com/pdiddy/pdf-harvester/internal/harvest"
	"github.com/pdiddy/pdf-harvester/internal/history"
	"github.com/pdiddy/pdf-harvester/internal/input"
	"github.com/pdiddy/pdf-harvester/internal/logger"
	"github.com/pdiddy/pdf-harvester/internal/report"
	"github.com/pdiddy/pdf-harvester/pkg/types"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest <input.csv>",
	Short: "Crawl institution pages and download their PDFs",
	Long: `Harvest reads institution names and start URLs from a CSV file (columns
Institution and URL by default) and processes them one at a time in a shared
headless Chrome session. Each task ends as downloaded, manual_required,
not_found or error.

When the run ends, harvest_report.csv, harvest_report.json and, if anything
failed, failed_downloads.txt are written to the report directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvest,
}

func init() {
	d := types.DefaultHarvestConfig()
	f := harvestCmd.Flags()
	f.String("profile", string(d.Profile), "investor profile for compliance gates: unknown, retail, professional, institutional")
	f.Bool("headless", d.Browser.Headless, "run Chrome without a window")
	f.String("chrome-path", "", "Chrome binary to launch (default: search PATH)")
	f.Duration("timeout", d.Timeout, "page navigation timeout")
	f.String("download-dir", d.DownloadDir, "directory for downloaded PDFs")
	f.String("screenshot-dir", d.ScreenshotDir, "directory for diagnostic screenshots")
	f.String("report-dir", d.ReportDir, "directory for the run reports")
	f.Int("max-candidates", d.MaxCandidates, "maximum fallback links explored per task")
	f.String("link-strategy", string(d.LinkStrategy), "fallback link selection: scored or pdf-first")
	f.Bool("direct-fetch", d.DirectFetch, "fetch PDF URLs over HTTP when no download event fires")
	f.Duration("delay", d.TaskDelay, "minimum delay between tasks")
	f.String("institution-column", "Institution", "CSV header holding the institution name")
	f.String("url-column", "URL", "CSV header holding the start URL")
	f.Bool("skip-downloaded", false, "skip tasks that already have a downloaded PDF in the history")
	f.Bool("no-history", false, "do not record this run in the history database")

	bindFlags(f, map[string]string{
		"profile":            "profile",
		"headless":           "browser.headless",
		"chrome-path":        "browser.exec_path",
		"timeout":            "timeout",
		"download-dir":       "download_dir",
		"screenshot-dir":     "screenshot_dir",
		"report-dir":         "report_dir",
		"max-candidates":     "max_candidates",
		"link-strategy":      "link_strategy",
		"direct-fetch":       "direct_fetch",
		"delay":              "task_delay",
		"institution-column": "input.institution",
		"url-column":         "input.url",
		"skip-downloaded":    "history.skip_downloaded",
		"no-history":         "history.disabled",
	})

	rootCmd.AddCommand(harvestCmd)
}

func runHarvest(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	cfg, err := loadHarvestConfig(v)
	if err != nil {
		return err
	}
	log := appLogger

	tasks, skipped, err := input.Load(args[0], loadColumns(v))
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Info("skipped rows without a URL", logger.Int("rows", skipped))
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no rows with a URL in %s", args[0])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []harvest.Option{
		harvest.WithLogger(log),
		harvest.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}

	var (
		store *history.Store
		runID string
	)
	if !v.GetBool("history.disabled") {
		store, err = history.Open(historyPath(v))
		if err != nil {
			return err
		}
		defer store.Close()

		runID, err = store.BeginRun(ctx, cfg.Profile, args[0])
		if err != nil {
			return err
		}
		// Results are recorded even while shutting down after an interrupt.
		recordCtx := context.WithoutCancel(ctx)
		opts = append(opts, harvest.WithResultHook(func(r *types.HarvestResult) {
			if err := store.RecordResult(recordCtx, runID, r); err != nil {
				log.Warn("recording result failed", logger.String("institution", r.Institution), logger.Error(err))
			}
		}))
		if v.GetBool("history.skip_downloaded") {
			opts = append(opts, harvest.WithSkip(store.AlreadyDownloaded(recordCtx)))
		}
	}

	b, err := browser.NewChrome(ctx, cfg.Browser, cfg.Timeout, log)
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer b.Close()

	log.Info("harvest started",
		logger.Int("tasks", len(tasks)),
		logger.String("profile", string(cfg.Profile)),
		logger.Bool("headless", cfg.Browser.Headless))

	out := cmd.OutOrStdout()
	result := harvest.New(b, cfg, opts...).Run(ctx, tasks, out)

	paths, err := report.WriteAll(cfg.ReportDir, result.Results)
	if err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}
	if store != nil {
		if err := store.FinishRun(context.WithoutCancel(ctx), runID); err != nil {
			log.Warn("finishing run failed", logger.Error(err))
		}
	}

	fmt.Fprintln(out)
	report.RenderSummary(out, "Harvest results", result.Results)
	fmt.Fprintf(out, "Reports: %s, %s\n", paths.CSV, paths.JSON)
	if paths.Failed != "" {
		fmt.Fprintf(out, "Manual follow-up: %s\n", paths.Failed)
	}
	if runID != "" {
		fmt.Fprintf(out, "Run ID: %s\n", runID)
	}

	if result.Interrupted {
		return fmt.Errorf("harvest interrupted after %d of %d task(s)", result.Total()+result.Skipped, len(tasks))
	}
	return nil
}
