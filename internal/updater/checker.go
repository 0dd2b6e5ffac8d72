// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

const (
	// GitHubAPIURL is the endpoint for fetching the latest release
	GitHubAPIURL = "https://api.github.com/repos/dotandev/stache/releases/latest"
	// CheckInterval is how often we check for updates (24 hours)
	CheckInterval = 24 * time.Hour
	// RequestTimeout is the maximum time to wait for GitHub API
	RequestTimeout = 5 * time.Second
)

// Checker handles update checking logic
type Checker struct {
	currentVersion string
	cacheDir       string
}

// GitHubRelease represents the GitHub API response for a release
type GitHubRelease struct {
	TagName string `json:"tag_name"`
}

// CacheData stores the last check timestamp and latest version
type CacheData struct {
	LastCheck     time.Time `json:"last_check"`
	LatestVersion string    `json:"latest_version"`
}

// NewChecker creates a new update checker
func NewChecker(currentVersion string) *Checker {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Checker{
		currentVersion: currentVersion,
		cacheDir:       filepath.Join(home, ".stache"),
	}
}

// CheckForUpdates performs a rate-limited, silent update check and prints a
// single notice when a newer release exists. All failures are swallowed.
func (c *Checker) CheckForUpdates() {
	if os.Getenv("STACHE_NO_UPDATE_CHECK") != "" {
		return
	}
	if !c.shouldCheck() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
	defer cancel()

	latest, err := c.fetchLatestVersion(ctx)
	if err != nil {
		// Silent failure - don't bother the user
		return
	}
	_ = c.updateCache(latest)

	if c.isNewer(latest) {
		fmt.Fprintf(os.Stderr, "A new version of stache is available: %s (current %s)\n", latest, c.currentVersion)
	}
}

func (c *Checker) cachePath() string {
	return filepath.Join(c.cacheDir, "update-check.json")
}

// shouldCheck consults the cached timestamp to stay within CheckInterval.
func (c *Checker) shouldCheck() bool {
	data, err := os.ReadFile(c.cachePath())
	if err != nil {
		return true
	}
	var cached CacheData
	if err := json.Unmarshal(data, &cached); err != nil {
		return true
	}
	return time.Since(cached.LastCheck) > CheckInterval
}

func (c *Checker) updateCache(latest string) error {
	if err := os.MkdirAll(c.cacheDir, 0755); err != nil {
		return err
	}
	data, err := json.Marshal(CacheData{LastCheck: time.Now(), LatestVersion: latest})
	if err != nil {
		return err
	}
	return os.WriteFile(c.cachePath(), data, 0644)
}

func (c *Checker) fetchLatestVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GitHubAPIURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var release GitHubRelease
	if err := json.Unmarshal(body, &release); err != nil {
		return "", err
	}
	if release.TagName == "" {
		return "", fmt.Errorf("release has no tag")
	}
	return release.TagName, nil
}

// isNewer compares the release tag against the running version.
func (c *Checker) isNewer(latest string) bool {
	cur, err := version.NewVersion(strings.TrimPrefix(c.currentVersion, "v"))
	if err != nil {
		// Dev builds ("dev", commit hashes) never nag.
		return false
	}
	rel, err := version.NewVersion(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return false
	}
	return rel.GreaterThan(cur)
}
