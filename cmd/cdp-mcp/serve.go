package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/mcp"
	"github.com/ctagard/cdp-mcp/internal/version"
)

var (
	dapLogPath    string
	noUpdateCheck bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio (default)",
	Long: `Serve the debug tools over the MCP stdio transport. Logs go to stderr.

Add to your MCP client configuration:

    {
        "mcpServers": {
            "cdp-mcp": {
                "command": "cdp-mcp",
                "args": ["serve", "--mode", "full"]
            }
        }
    }`,
	RunE: runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&dapLogPath, "dap-log", "", "Append every debugger event to this file as DAP messages")
		cmd.Flags().BoolVar(&noUpdateCheck, "no-update-check", false, "Skip the release check")
	}
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dapLogPath != "" {
		cfg.DAPLog = dapLogPath
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	var checker *version.Checker
	if !noUpdateCheck {
		checker = version.NewChecker()
		checker.CheckForUpdatesAsync()
	}

	server, err := mcp.NewServer(cfg, mcp.Options{Logger: logger, Checker: checker})
	if err != nil {
		return err
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := server.Close(); err != nil {
			logger.Warn("shutdown failed", zap.Error(err))
		}
		os.Exit(0)
	}()

	logger.Info("cdp-mcp server starting",
		zap.String("version", version.Version),
		zap.String("mode", string(cfg.Mode)),
		zap.String("inspector", cfg.Inspector.Host),
		zap.Int("port", cfg.Inspector.Port))

	serveErr := server.ServeStdio()
	if err := server.Close(); err != nil {
		logger.Warn("shutdown failed", zap.Error(err))
	}
	return serveErr
}
