package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slowmo/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the render journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()

			path := cfg.HistoryPath()
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(out, "No history recorded yet")
				return nil
			}
			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history recorded yet")
				return nil
			}
			summary, err := store.Summary(cmd.Context())
			if err != nil {
				return err
			}
			view := historyTable(entries)
			view.Footer = summaryLine(summary)
			fmt.Fprintln(out, view.render())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 for all)")
	return cmd
}

func historyTable(entries []history.Entry) tableView {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			fmt.Sprintf("%d", entry.ID),
			entry.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			entry.Kind,
			filepath.Base(entry.SourcePath),
			entry.Outcome,
			entry.Terminal,
			formatElapsed(entry.Elapsed()),
			strings.Join(entry.Anomalies, ","),
		})
	}
	return tableView{
		Headers:  []string{"ID", "Finished", "Kind", "File", "Outcome", "State", "Elapsed", "Anomalies"},
		Aligns:   []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		Rows:     rows,
		MaxWidth: 48,
	}
}

func summaryLine(summary history.Summary) string {
	outcomes := make([]string, 0, len(summary.ByOutcome))
	for outcome := range summary.ByOutcome {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)
	parts := []string{fmt.Sprintf("total %d", summary.Total)}
	for _, outcome := range outcomes {
		parts = append(parts, fmt.Sprintf("%s %d", outcome, summary.ByOutcome[outcome]))
	}
	if summary.WithAnomalies > 0 {
		parts = append(parts, fmt.Sprintf("with anomalies %d", summary.WithAnomalies))
	}
	return strings.Join(parts, " | ")
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
