// Package config provides configuration management for the CDP-MCP server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: control evaluation and process launching
//   - Inspector endpoint: host, port, target selection, enabled domains
//   - Timeouts and the reconnect budget
//   - Source map discovery: search paths, build directories, project markers
//   - Buffer limits and logging
//
// Values come from defaults, an optional YAML/JSON config file, and
// CDP_MCP_* environment variables, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Inspection tools only
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// EnvPrefix is the prefix for environment overrides, e.g. CDP_MCP_INSPECTOR_PORT.
const EnvPrefix = "CDP_MCP"

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode          CapabilityMode `mapstructure:"mode"`
	AllowEvaluate bool           `mapstructure:"allow_evaluate"`
	AllowLaunch   bool           `mapstructure:"allow_launch"`

	Inspector  InspectorConfig `mapstructure:"inspector"`
	Timeouts   TimeoutConfig   `mapstructure:"timeouts"`
	Reconnect  ReconnectConfig `mapstructure:"reconnect"`
	Logpoint   LogpointConfig  `mapstructure:"logpoint"`
	SourceMaps SourceMapConfig `mapstructure:"sourcemaps"`
	Buffers    BufferConfig    `mapstructure:"buffers"`
	Log        LogConfig       `mapstructure:"log"`
	Node       NodeConfig      `mapstructure:"node"`

	// DAPLog, when set, receives every classified event as a DAP message
	DAPLog string `mapstructure:"dap_log"`
}

// InspectorConfig selects the inspector endpoint and target
type InspectorConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	TargetID string   `mapstructure:"target_id"`
	WSURL    string   `mapstructure:"ws_url"`
	Domains  []string `mapstructure:"domains"`
}

// TimeoutConfig bounds remote round trips
type TimeoutConfig struct {
	Command       time.Duration `mapstructure:"command"`
	ScriptResolve time.Duration `mapstructure:"script_resolve"`
	Launch        time.Duration `mapstructure:"launch"`
}

// ReconnectConfig bounds automatic reconnection
type ReconnectConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

// LogpointConfig holds logpoint reporting settings
type LogpointConfig struct {
	Binding string `mapstructure:"binding"`
}

// SourceMapConfig holds source map discovery settings
type SourceMapConfig struct {
	SearchPaths    []string `mapstructure:"search_paths"`
	BuildDirs      []string `mapstructure:"build_dirs"`
	ProjectMarkers []string `mapstructure:"project_markers"`
	MaxFiles       int      `mapstructure:"max_files"`
}

// BufferConfig caps the in-memory hit and event buffers
type BufferConfig struct {
	MaxHits    int `mapstructure:"max_hits"`
	MaxEvents  int `mapstructure:"max_events"`
	MaxConsole int `mapstructure:"max_console"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NodeConfig holds Node.js launcher settings
type NodeConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:          ModeFull,
		AllowEvaluate: true,
		AllowLaunch:   false,
		Inspector: InspectorConfig{
			Host:    "127.0.0.1",
			Port:    9229,
			Domains: []string{"Runtime", "Debugger"},
		},
		Timeouts: TimeoutConfig{
			Command:       10 * time.Second,
			ScriptResolve: 1500 * time.Millisecond,
			Launch:        10 * time.Second,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
		},
		Logpoint: LogpointConfig{
			Binding: "__cdpMcpLogpoint",
		},
		SourceMaps: SourceMapConfig{
			BuildDirs:      []string{"dist", "build", "out", "lib"},
			ProjectMarkers: []string{"package.json"},
			MaxFiles:       500,
		},
		Buffers: BufferConfig{
			MaxHits:    1000,
			MaxEvents:  1000,
			MaxConsole: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Node: NodeConfig{
			Path: "node",
		},
	}
}

// LoadConfig loads configuration from the given file, or from the default
// search locations when path is empty. A missing default file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("cdp-mcp")
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "cdp-mcp"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only sees keys viper already knows about, so every key
	// gets a default here.
	cfg := DefaultConfig()
	v.SetDefault("mode", string(cfg.Mode))
	v.SetDefault("allow_evaluate", cfg.AllowEvaluate)
	v.SetDefault("allow_launch", cfg.AllowLaunch)
	v.SetDefault("inspector.host", cfg.Inspector.Host)
	v.SetDefault("inspector.port", cfg.Inspector.Port)
	v.SetDefault("inspector.target_id", cfg.Inspector.TargetID)
	v.SetDefault("inspector.ws_url", cfg.Inspector.WSURL)
	v.SetDefault("inspector.domains", cfg.Inspector.Domains)
	v.SetDefault("timeouts.command", cfg.Timeouts.Command)
	v.SetDefault("timeouts.script_resolve", cfg.Timeouts.ScriptResolve)
	v.SetDefault("timeouts.launch", cfg.Timeouts.Launch)
	v.SetDefault("reconnect.max_attempts", cfg.Reconnect.MaxAttempts)
	v.SetDefault("reconnect.base_delay", cfg.Reconnect.BaseDelay)
	v.SetDefault("logpoint.binding", cfg.Logpoint.Binding)
	v.SetDefault("sourcemaps.search_paths", cfg.SourceMaps.SearchPaths)
	v.SetDefault("sourcemaps.build_dirs", cfg.SourceMaps.BuildDirs)
	v.SetDefault("sourcemaps.project_markers", cfg.SourceMaps.ProjectMarkers)
	v.SetDefault("sourcemaps.max_files", cfg.SourceMaps.MaxFiles)
	v.SetDefault("buffers.max_hits", cfg.Buffers.MaxHits)
	v.SetDefault("buffers.max_events", cfg.Buffers.MaxEvents)
	v.SetDefault("buffers.max_console", cfg.Buffers.MaxConsole)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("node.path", cfg.Node.Path)
	v.SetDefault("dap_log", cfg.DAPLog)

	return v
}

// normalize repairs values that would make the engine misbehave.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Mode != ModeReadOnly && c.Mode != ModeFull {
		c.Mode = def.Mode
	}
	if c.Timeouts.Command <= 0 {
		c.Timeouts.Command = def.Timeouts.Command
	}
	if c.Timeouts.Launch <= 0 {
		c.Timeouts.Launch = def.Timeouts.Launch
	}
	if c.Timeouts.ScriptResolve < 0 {
		c.Timeouts.ScriptResolve = 0
	}
	if c.Reconnect.MaxAttempts < 0 {
		c.Reconnect.MaxAttempts = 0
	}
	if c.Reconnect.BaseDelay <= 0 {
		c.Reconnect.BaseDelay = def.Reconnect.BaseDelay
	}
	if c.Logpoint.Binding == "" {
		c.Logpoint.Binding = def.Logpoint.Binding
	}
	if len(c.SourceMaps.BuildDirs) == 0 {
		c.SourceMaps.BuildDirs = def.SourceMaps.BuildDirs
	}
	if len(c.SourceMaps.ProjectMarkers) == 0 {
		c.SourceMaps.ProjectMarkers = def.SourceMaps.ProjectMarkers
	}
}

// CanUseControlTools returns true if breakpoint and execution control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanEvaluate returns true if expression evaluation is allowed
func (c *Config) CanEvaluate() bool {
	return c.AllowEvaluate
}

// CanLaunch returns true if spawning target processes is allowed
func (c *Config) CanLaunch() bool {
	return c.Mode == ModeFull && c.AllowLaunch
}
