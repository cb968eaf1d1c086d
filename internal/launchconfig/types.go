// Package launchconfig reads Node attach configurations from a VS Code
// launch.json so a session can be opened by configuration name.
//
// Only configurations of type node or pwa-node with request attach are
// usable; others are listed but rejected when selected.
package launchconfig

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string          `json:"version"`
	Configurations []Configuration `json:"configurations"`
}

// Configuration is one entry of launch.json, reduced to the fields an
// inspector attach uses.
type Configuration struct {
	Type    string `json:"type"`    // "node", "pwa-node", ...
	Request string `json:"request"` // "launch" or "attach"
	Name    string `json:"name"`

	Address          string   `json:"address,omitempty"`
	Port             int      `json:"port,omitempty"`
	WebSocketAddress string   `json:"websocketAddress,omitempty"`
	Cwd              string   `json:"cwd,omitempty"`
	OutFiles         []string `json:"outFiles,omitempty"`
	SourceMaps       *bool    `json:"sourceMaps,omitempty"`
	RemoteRoot       string   `json:"remoteRoot,omitempty"`
	LocalRoot        string   `json:"localRoot,omitempty"`
}

// ConfigurationInfo provides summary information about a configuration.
type ConfigurationInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Request  string `json:"request"`
	Attach   bool   `json:"attach"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ResolutionContext provides values for ${...} variables.
type ResolutionContext struct {
	// WorkspaceFolder is the folder containing .vscode
	WorkspaceFolder string

	// EnvOverrides take precedence over the process environment for ${env:}
	EnvOverrides map[string]string
}

// AttachTarget is a resolved attach configuration.
type AttachTarget struct {
	Name  string `json:"name"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
	WSURL string `json:"wsUrl,omitempty"`

	// SearchPaths are the outFiles globs reduced to directories, used as
	// source map search paths.
	SearchPaths []string `json:"searchPaths,omitempty"`

	// SourceMaps is false when the configuration disables source maps.
	SourceMaps bool `json:"sourceMaps"`
}
