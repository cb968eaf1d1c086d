package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ctagard/cdp-mcp/internal/config"
	"github.com/ctagard/cdp-mcp/internal/logging"
	"github.com/ctagard/cdp-mcp/internal/version"
)

var (
	configPath string
	modeFlag   string
	logLevel   string
	hostFlag   string
	portFlag   int
)

var rootCmd = &cobra.Command{
	Use:   "cdp-mcp",
	Short: "CDP-MCP - breakpoints and logpoints for Node.js over MCP",
	Long: `CDP-MCP is a Model Context Protocol server that attaches to the V8 inspector of a
Node.js program and lets an AI agent place breakpoints and logpoints in original
(TypeScript) sources, inspect paused frames and read logpoint output.

Without a subcommand it serves MCP over stdio.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.SetVersionTemplate("cdp-mcp version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "Capability mode: 'readonly' or 'full'")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&hostFlag, "host", "", "Inspector host")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "Inspector port")
}

// loadConfig reads the configuration and applies command line overrides.
// Precedence: flags > CDP_MCP_* environment > config file > defaults
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	switch config.CapabilityMode(modeFlag) {
	case "":
	case config.ModeReadOnly, config.ModeFull:
		cfg.Mode = config.CapabilityMode(modeFlag)
	default:
		return nil, fmt.Errorf("unknown mode %q, expected 'readonly' or 'full'", modeFlag)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if hostFlag != "" {
		cfg.Inspector.Host = hostFlag
	}
	if portFlag != 0 {
		cfg.Inspector.Port = portFlag
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}
