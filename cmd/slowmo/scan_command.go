package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"slowmo/internal/ledger"
	"slowmo/internal/media"
	"slowmo/internal/pathutil"
	"slowmo/internal/scanner"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List what the daemon would pick up, without touching anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			result, err := scanner.Scan(cfg.Paths.InputDir, cfg.Processing.Marker, ledger.New())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Input directory: %s\n", cfg.Paths.InputDir)
			if len(result.Candidates) == 0 && len(result.MarkedButUnrelocated) == 0 {
				fmt.Fprintln(out, "Nothing to do")
				return nil
			}
			if len(result.Candidates) > 0 {
				fmt.Fprintln(out, candidateTable(result.Candidates, cfg.Processing.Marker).render())
			}
			if len(result.MarkedButUnrelocated) > 0 {
				fmt.Fprintln(out, markedTable(result.MarkedButUnrelocated).render())
			}
			if result.Skipped > 0 {
				fmt.Fprintf(out, "%d entries could not be inspected\n", result.Skipped)
			}
			return nil
		},
	}
}

func candidateTable(files []media.SourceFile, marker string) tableView {
	rows := make([][]string, 0, len(files))
	for i, file := range files {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			file.Name,
			humanize.Bytes(uint64(max(file.Size, 0))),
			humanize.Time(file.ModTime),
			pathutil.WithMarker(file.Name, marker),
		})
	}
	return tableView{
		Title:   "Render candidates (in dispatch order)",
		Headers: []string{"#", "File", "Size", "Modified", "Output"},
		Aligns:  []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
		Rows:    rows,
	}
}

func markedTable(files []media.SourceFile) tableView {
	rows := make([][]string, 0, len(files))
	for _, file := range files {
		rows = append(rows, []string{file.Name, humanize.Bytes(uint64(max(file.Size, 0))), humanize.Time(file.ModTime)})
	}
	return tableView{
		Title:   "Marked, awaiting relocation",
		Headers: []string{"File", "Size", "Modified"},
		Aligns:  []columnAlignment{alignLeft, alignRight, alignLeft},
		Rows:    rows,
	}
}
