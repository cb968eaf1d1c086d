package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ctagard/cdp-mcp/internal/inspector"
)

var targetsTable bool

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the debuggable targets of an inspector endpoint",
	RunE:  runTargets,
}

func init() {
	targetsCmd.Flags().BoolVar(&targetsTable, "table", false, "Print a table instead of JSON")
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Command)
	defer cancel()
	targets, err := (&inspector.HTTPDialer{}).ListTargets(ctx, cfg.Inspector.Host, cfg.Inspector.Port)
	if err != nil {
		return err
	}

	if !targetsTable {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(targets)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTITLE\tURL")
	for _, t := range targets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Type, t.Title, t.URL)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\n%d target(s) at %s:%d\n", len(targets), cfg.Inspector.Host, cfg.Inspector.Port)
	return nil
}
