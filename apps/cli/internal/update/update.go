// Package update checks for newer buildlens releases.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/handleui/buildlens/apps/cli/internal/config"
	"github.com/handleui/buildlens/retry"
)

const (
	defaultManifestURL = "https://buildlens.dev/releases/manifest.json"
	cacheFile          = "update-cache.json"
	cacheDuration      = 24 * time.Hour
	httpTimeout        = 5 * time.Second
	checkTimeout       = 15 * time.Second

	// 64KB is plenty for a version manifest.
	maxResponseSize = 64 * 1024
)

// InstallHint is printed next to an update notice.
const InstallHint = "go install github.com/handleui/buildlens/apps/cli@latest"

// Checker looks up the latest release. The zero value is not usable; use
// NewChecker.
type Checker struct {
	ManifestURL string
	Client      *http.Client
	// CacheDir holds the check cache. Empty disables caching.
	CacheDir string
	now      func() time.Time
}

// NewChecker returns a checker using the public manifest and the buildlens
// home directory as cache.
func NewChecker() *Checker {
	dir, err := config.Dir()
	if err != nil {
		dir = ""
	}
	return &Checker{
		ManifestURL: defaultManifestURL,
		Client:      &http.Client{Timeout: httpTimeout},
		CacheDir:    dir,
		now:         time.Now,
	}
}

type manifest struct {
	Latest   string   `json:"latest"`
	Versions []string `json:"versions"`
}

type cache struct {
	LastCheck     time.Time `json:"lastCheck"`
	LatestVersion string    `json:"latestVersion"`
}

// Check returns the latest version and whether it is newer than current.
// Results are cached for a day. Errors are silent: an unreachable manifest
// means no update.
func (c *Checker) Check(ctx context.Context, current string) (latest string, hasUpdate bool) {
	if current == "" || current == "dev" {
		return "", false
	}

	cached := c.loadCache()
	if cached != nil && c.now().Sub(cached.LastCheck) < cacheDuration {
		return compareVersions(current, cached.LatestVersion)
	}

	fetched, err := c.fetchWithRetry(ctx)
	if err != nil {
		if cached != nil {
			return compareVersions(current, cached.LatestVersion)
		}
		return "", false
	}

	c.saveCache(&cache{LastCheck: c.now(), LatestVersion: fetched})
	return compareVersions(current, fetched)
}

func (c *Checker) fetchWithRetry(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var result string
	err := retry.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		result, fetchErr = c.fetch(ctx)
		return fetchErr
	},
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(500*time.Millisecond),
		retry.WithMaxDelay(5*time.Second),
		retry.WithJitterFactor(0.2),
	)
	return result, err
}

func (c *Checker) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ManifestURL, http.NoBody)
	if err != nil {
		return "", retry.Permanent(err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
		if resp.StatusCode < http.StatusInternalServerError {
			return "", retry.Permanent(err)
		}
		return "", err
	}

	var m manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&m); err != nil {
		return "", retry.Permanent(err)
	}
	if m.Latest == "" {
		return "", retry.Permanent(errors.New("manifest contains empty latest version"))
	}
	if _, err := semver.NewVersion(strings.TrimPrefix(m.Latest, "v")); err != nil {
		return "", retry.Permanent(fmt.Errorf("invalid version in manifest: %w", err))
	}
	return m.Latest, nil
}

func (c *Checker) cachePath() string {
	if c.CacheDir == "" {
		return ""
	}
	return filepath.Join(c.CacheDir, cacheFile)
}

func (c *Checker) loadCache() *cache {
	path := c.cachePath()
	if path == "" {
		return nil
	}
	// #nosec G304 - path is derived from the buildlens home directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cached cache
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil
	}
	return &cached
}

func (c *Checker) saveCache(cached *cache) {
	path := c.cachePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o600)
}

// ClearCache removes the check cache. A missing file is not an error.
func (c *Checker) ClearCache() error {
	path := c.cachePath()
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func compareVersions(current, latest string) (string, bool) {
	if latest == "" {
		return "", false
	}

	currentSemver, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return "", false
	}
	latestSemver, err := semver.NewVersion(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return "", false
	}

	if latestSemver.GreaterThan(currentSemver) {
		return "v" + latestSemver.String(), true
	}
	return "", false
}
