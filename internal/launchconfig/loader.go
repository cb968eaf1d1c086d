package launchconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// LoadFromPath loads a launch.json file from an explicit path. Comments and
// trailing commas, which VS Code accepts, are tolerated.
func LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}
	return Parse(data)
}

// Parse parses launch.json content.
func Parse(data []byte) (*LaunchJSON, error) {
	clean := StripComments(data)
	if !gjson.ValidBytes(clean) {
		return nil, fmt.Errorf("failed to parse launch.json: invalid JSON")
	}
	doc := gjson.ParseBytes(clean)

	lj := &LaunchJSON{Version: doc.Get("version").String()}
	doc.Get("configurations").ForEach(func(_, c gjson.Result) bool {
		lj.Configurations = append(lj.Configurations, parseConfiguration(c))
		return true
	})
	return lj, nil
}

func parseConfiguration(c gjson.Result) Configuration {
	cfg := Configuration{
		Type:             c.Get("type").String(),
		Request:          c.Get("request").String(),
		Name:             c.Get("name").String(),
		Address:          c.Get("address").String(),
		Port:             int(c.Get("port").Int()),
		WebSocketAddress: c.Get("websocketAddress").String(),
		Cwd:              c.Get("cwd").String(),
		RemoteRoot:       c.Get("remoteRoot").String(),
		LocalRoot:        c.Get("localRoot").String(),
	}
	for _, g := range c.Get("outFiles").Array() {
		cfg.OutFiles = append(cfg.OutFiles, g.String())
	}
	if sm := c.Get("sourceMaps"); sm.Exists() {
		v := sm.Bool()
		cfg.SourceMaps = &v
	}
	return cfg
}

// StripComments removes // and /* */ comments and trailing commas outside
// string literals.
func StripComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString, escaped := false, false

	for i := 0; i < len(data); i++ {
		ch := data[i]
		if inString {
			out = append(out, ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
			out = append(out, ch)
		case ch == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case ch == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i++
		case ch == ',':
			if next := nextSignificant(data, i+1); next == '}' || next == ']' {
				continue
			}
			out = append(out, ch)
		default:
			out = append(out, ch)
		}
	}
	return out
}

// nextSignificant returns the next byte after i that is neither whitespace
// nor part of a comment, or 0.
func nextSignificant(data []byte, i int) byte {
	for i < len(data) {
		switch ch := data[i]; {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
		case ch == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i += 2
		default:
			return ch
		}
	}
	return 0
}

// Discover searches for a .vscode/launch.json file starting from the given path
// and walking up the directory tree until found or reaching the root.
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// If startPath is a file, start from its directory
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	current := absPath
	for {
		launchPath := filepath.Join(current, VSCodeDirName, LaunchJSONFileName)
		if _, err := os.Stat(launchPath); err == nil {
			return launchPath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
}

// LoadAndDiscover combines discovery and loading: finds a launch.json from the start path
// and loads it.
func LoadAndDiscover(startPath string) (*LaunchJSON, string, error) {
	path, err := Discover(startPath)
	if err != nil {
		return nil, "", err
	}

	lj, err := LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}

	return lj, path, nil
}

// FindConfiguration finds a configuration by name in the LaunchJSON.
func FindConfiguration(lj *LaunchJSON, name string) (*Configuration, error) {
	for i := range lj.Configurations {
		if lj.Configurations[i].Name == name {
			return &lj.Configurations[i], nil
		}
	}
	return nil, fmt.Errorf("configuration %q not found", name)
}

// ListConfigurationNames returns a list of all configuration names.
func ListConfigurationNames(lj *LaunchJSON) []string {
	names := make([]string, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		names[i] = cfg.Name
	}
	return names
}

// ListConfigurations returns summary information about all configurations.
func ListConfigurations(lj *LaunchJSON) []ConfigurationInfo {
	infos := make([]ConfigurationInfo, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		info := ConfigurationInfo{
			Name:    cfg.Name,
			Type:    cfg.Type,
			Request: cfg.Request,
			Attach:  IsNodeAttach(&cfg),
		}
		if info.Attach {
			info.Endpoint = fmt.Sprintf("%s:%d", hostOrDefault(cfg.Address), portOrDefault(cfg.Port))
		}
		infos[i] = info
	}
	return infos
}

// GetWorkspaceFolder derives the workspace folder from the launch.json path.
// The workspace folder is the parent of the .vscode directory.
func GetWorkspaceFolder(launchJSONPath string) string {
	return filepath.Dir(filepath.Dir(launchJSONPath))
}
