// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pdf-harvester/internal/history"
	"github.com/pdiddy/pdf-harvester/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past harvest runs or the results of one run",
	Long: `History lists recent harvest runs with their per-status counts. Given a run
ID, or --latest, it prints that run's results instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyCmd.Flags().Bool("latest", false, "show results of the most recent run")

	rootCmd.PersistentFlags().String("history-db", history.DefaultPath, "history database path")
	_ = viper.BindPFlag("history.path", rootCmd.PersistentFlags().Lookup("history-db"))

	rootCmd.AddCommand(historyCmd)
}

func historyPath(v *viper.Viper) string {
	if p := v.GetString("history.path"); p != "" {
		return p
	}
	return history.DefaultPath
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(historyPath(viper.GetViper()))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	runID := ""
	if len(args) == 1 {
		runID = args[0]
	} else if latest, _ := cmd.Flags().GetBool("latest"); latest {
		if runID, err = store.LatestRunID(ctx); err != nil {
			return err
		}
		if runID == "" {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
	}

	if runID != "" {
		results, err := store.Results(ctx, runID)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no results for run %s", runID)
		}
		report.RenderSummary(out, "Run "+runID, results)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run ID", "Started", "Profile", "Input", "Downloaded", "Manual", "Not Found", "Errors"})
	for _, r := range runs {
		started := r.StartedAt.Local().Format("2006-01-02 15:04")
		if !r.FinishedAt.Valid {
			started += " (unfinished)"
		}
		t.AppendRow(table.Row{r.ID, started, r.Profile, r.Input, r.Downloaded, r.ManualRequired, r.NotFound, r.Errors})
	}
	t.Render()
	return nil
}
