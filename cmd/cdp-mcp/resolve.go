package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ctagard/cdp-mcp/internal/sourcemap"
)

var (
	resolveReverse     bool
	resolveSearchPaths []string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file> <line> [column]",
	Short: "Translate a position through source maps",
	Long: `Translate an original source position (e.g. src/app.ts:12) to the generated
JavaScript position the runtime sees. With --reverse, translate a generated
position back to original source.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveReverse, "reverse", false, "Map a generated position to original source")
	resolveCmd.Flags().StringSliceVar(&resolveSearchPaths, "search-path", nil, "Extra directory to search for source maps (repeatable)")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	line, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid line %q", args[1])
	}
	column := 1
	if len(args) == 3 {
		if column, err = strconv.Atoi(args[2]); err != nil {
			return fmt.Errorf("invalid column %q", args[2])
		}
	}

	r := sourcemap.NewResolver(sourcemap.Options{
		SearchPaths:    cfg.SourceMaps.SearchPaths,
		BuildDirs:      cfg.SourceMaps.BuildDirs,
		ProjectMarkers: cfg.SourceMaps.ProjectMarkers,
		MaxFiles:       cfg.SourceMaps.MaxFiles,
		Logger:         logger,
	})

	var res *sourcemap.Result
	if resolveReverse {
		res, err = r.ResolveOriginal(args[0], line, column, resolveSearchPaths)
	} else {
		res, err = r.ResolveGenerated(args[0], line, column, resolveSearchPaths)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.Found {
		return res.Diagnostic.Err()
	}
	return nil
}
