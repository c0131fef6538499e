package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// docsEpoch pins the man page date so regenerated pages only change when
// the commands do.
var docsEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "gen-docs",
		Short:  "Generate span man pages or markdown reference",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("dir")       //nolint:errcheck // flag name is hardcoded
			format, _ := cmd.Flags().GetString("format") //nolint:errcheck // flag name is hardcoded
			return genDocs(cmd.Root(), dir, format)
		},
	}
	cmd.Flags().String("dir", "docs", "output directory")
	cmd.Flags().String("format", "man", "output format (man or markdown)")
	return cmd
}

// genDocs renders the user-facing commands under root into dir.
func genDocs(root *cobra.Command, dir, format string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	root.DisableAutoGenTag = true

	switch format {
	case "man":
		header := &doc.GenManHeader{
			Title:   "SPAN",
			Section: "1",
			Date:    &docsEpoch,
			Source:  "span " + version,
			Manual:  "span manual",
		}
		return doc.GenManTree(root, header, dir)
	case "markdown":
		return doc.GenMarkdownTree(root, dir)
	default:
		return fmt.Errorf("unknown format %q (use man or markdown)", format)
	}
}
