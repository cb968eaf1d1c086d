// Package version provides version information and update checking.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// Version is the current version of cdp-mcp
	Version = "0.1.0"

	// Name identifies the server to MCP clients and inspector endpoints.
	Name = "cdp-mcp"

	// GitHubRepo is the repository path
	GitHubRepo = "ctagard/cdp-mcp"

	// GitHubAPIURL is the GitHub API endpoint for latest release
	GitHubAPIURL = "https://api.github.com/repos/%s/releases/latest"
)

// UserAgent is sent with every HTTP request the server makes.
func UserAgent() string {
	return Name + "/" + Version
}

// UpdateInfo contains information about available updates
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
	Error           string    `json:"error,omitempty"`
}

// UpdateMessage returns a human-readable message about the update
func (u *UpdateInfo) UpdateMessage() string {
	if u == nil || u.Error != "" || !u.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("A new version of %s is available: v%s (current: v%s), see %s",
		Name, u.LatestVersion, u.CurrentVersion, u.ReleaseURL)
}

// Checker handles version checking
type Checker struct {
	url    string
	client *http.Client

	mu   sync.RWMutex
	info *UpdateInfo
}

// NewChecker creates a checker against the GitHub releases API.
func NewChecker() *Checker {
	return NewCheckerURL(fmt.Sprintf(GitHubAPIURL, GitHubRepo))
}

// NewCheckerURL creates a checker against an explicit latest-release url.
func NewCheckerURL(url string) *Checker {
	return &Checker{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

// githubRelease represents the GitHub API response for a release
type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckForUpdates asks the release endpoint for the latest version. Failures
// are reported in UpdateInfo.Error.
func (c *Checker) CheckForUpdates(ctx context.Context) *UpdateInfo {
	info := &UpdateInfo{CurrentVersion: Version, CheckedAt: time.Now()}
	if err := c.fetch(ctx, info); err != nil {
		info.Error = err.Error()
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	return info
}

func (c *Checker) fetch(ctx context.Context, info *UpdateInfo) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release endpoint returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	info.LatestVersion = strings.TrimPrefix(release.TagName, "v")
	info.ReleaseURL = release.HTMLURL
	info.UpdateAvailable = CompareVersions(Version, info.LatestVersion) < 0
	return nil
}

// CheckForUpdatesAsync checks for updates in the background
func (c *Checker) CheckForUpdatesAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.CheckForUpdates(ctx)
	}()
}

// UpdateInfo returns the result of the last check, or nil.
func (c *Checker) UpdateInfo() *UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// CompareVersions compares two semver strings.
// Returns -1 if v1 < v2, 0 if equal, 1 if v1 > v2
func CompareVersions(v1, v2 string) int {
	a, b := parse(v1), parse(v2)
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// parse reads major.minor.patch, ignoring pre-release suffixes like "1.0.0-beta".
func parse(v string) [3]int {
	var out [3]int
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	for i, p := range parts {
		p = strings.SplitN(p, "-", 2)[0]
		_, _ = fmt.Sscanf(p, "%d", &out[i])
	}
	return out
}
