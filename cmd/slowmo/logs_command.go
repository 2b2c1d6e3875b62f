package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"slowmo/internal/logging"
	"slowmo/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var grep string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the current daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.PointerName)
			out := cmd.OutOrStdout()

			var match func(string) bool
			if needle := strings.TrimSpace(grep); needle != "" {
				match = func(line string) bool { return strings.Contains(line, needle) }
			}

			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				if match == nil || match(line) {
					fmt.Fprintln(out, line)
				}
			}
			if !follow {
				return nil
			}

			err = logs.Follow(cmd.Context(), path, logs.FollowOptions{Offset: offset, Match: match}, func(line string) {
				fmt.Fprintln(out, line)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines, across daemon restarts")
	cmd.Flags().StringVar(&grep, "grep", "", "Only print lines containing this text")
	return cmd
}
