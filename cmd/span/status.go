package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bamsammich/span/internal/checkpoint"
	"github.com/bamsammich/span/internal/config"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <source> <target>...",
		Short: "Show the saved checkpoint for a sync job",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			stateFile, _ := cmd.Flags().GetString("state-file") //nolint:errcheck // flag name is hardcoded
			return printStatus(cmd.OutOrStdout(), args, stateFile, cfg.Defaults)
		},
	}
	cmd.Flags().String("state-file", "", "checkpoint file (default: from config, else derived from source and targets)")
	return cmd
}

func printStatus(w io.Writer, args []string, stateFile string, defaults config.DefaultsConfig) error {
	source, targets, err := absPaths(args)
	if err != nil {
		return err
	}
	path := resolveStatePath(stateFile, defaults, source, targets)

	st, err := checkpoint.NewStore(path).Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "checkpoint  %s\n", path)
	fmt.Fprintf(w, "job         %s\n", checkpoint.JobID(source, targets))
	if !st.Resuming() {
		fmt.Fprintln(w, "state       fresh (nothing synced yet)")
		return nil
	}
	target := "(out of range)"
	if st.TargetIndex >= 0 && st.TargetIndex < len(targets) {
		target = targets[st.TargetIndex]
	}
	fmt.Fprintf(w, "target      #%d %s\n", st.TargetIndex+1, target)
	fmt.Fprintf(w, "last item   %s\n", st.Last())
	return nil
}
