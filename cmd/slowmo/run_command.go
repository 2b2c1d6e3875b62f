package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"slowmo/internal/config"
	"slowmo/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var createDirs bool
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the watch daemon in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := prepareDirectories(cfg, createDirs, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
				ConfigPath:  ctx.configPath,
			})
		},
	}

	cmd.Flags().BoolVar(&createDirs, "create-dirs", false, "Create missing directories without asking")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&development, "dev", false, "Use development logging (source locations)")
	return cmd
}

// prepareDirectories creates missing working directories. Without
// --create-dirs the operator is asked, but only on an interactive stdin.
func prepareDirectories(cfg *config.Config, createDirs bool, in io.Reader, out io.Writer) error {
	missing := cfg.MissingDirectories()
	if len(missing) == 0 {
		return nil
	}
	if !createDirs {
		if !isTerminal(in) {
			return fmt.Errorf("missing directories: %s (rerun with --create-dirs to create them)", strings.Join(missing, ", "))
		}
		ok, err := confirmDirectories(in, out, missing)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("missing directories were not created")
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	return nil
}

func confirmDirectories(in io.Reader, out io.Writer, missing []string) (bool, error) {
	fmt.Fprintln(out, "The following directories do not exist:")
	for _, dir := range missing {
		fmt.Fprintf(out, "  %s\n", dir)
	}
	fmt.Fprint(out, "Create them now? [y/N]: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
