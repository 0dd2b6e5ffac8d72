// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache persists compiled template programs as .mustb artifacts and
// keeps the cache directory under a size cap with LRU cleanup.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/dotandev/stache/internal/logger"
	"github.com/dotandev/stache/internal/mustache"
)

// DefaultMaxBytes caps the cache when no configuration is supplied.
const DefaultMaxBytes int64 = 256 * 1024 * 1024 // 256MB

const artifactExt = ".mustb"

// Manager handles cache operations including artifact storage and cleanup
type Manager struct {
	cacheDir string
	maxBytes int64
}

// NewManager creates a new cache manager
func NewManager(cacheDir string, maxBytes int64) *Manager {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Manager{cacheDir: cacheDir, maxBytes: maxBytes}
}

// Dir returns the cache directory path (creates if not exists)
func (m *Manager) Dir() (string, error) {
	if err := os.MkdirAll(m.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return m.cacheDir, nil
}

// Key derives the artifact key for a template source.
func Key(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}

func (m *Manager) artifactPath(key string) string {
	return filepath.Join(m.cacheDir, key+artifactExt)
}

// Load returns the cached program for key, if present and produced by a
// compatible engine. Incompatible or corrupt artifacts are removed so the
// caller recompiles into a fresh slot.
func (m *Manager) Load(key string) (*mustache.Program, bool) {
	path := m.artifactPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	prog, ver, err := mustache.UnmarshalProgram(data)
	if err != nil || !compatible(ver) {
		logger.Logger.Debug("Evicting unusable cache artifact", "path", path, "version", ver, "error", err)
		_ = os.Remove(path)
		return nil, false
	}
	// Refresh mtime so LRU cleanup sees the hit.
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return prog, true
}

// Store writes a compiled program under key.
func (m *Manager) Store(key string, p *mustache.Program) error {
	if _, err := m.Dir(); err != nil {
		return err
	}
	data, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode program: %w", err)
	}
	if err := os.WriteFile(m.artifactPath(key), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache artifact: %w", err)
	}
	return nil
}

// compatible accepts artifacts written by the same major engine version at
// or below the current one.
func compatible(ver string) bool {
	stored, err := version.NewVersion(ver)
	if err != nil {
		return false
	}
	current := version.Must(version.NewVersion(mustache.EngineVersion))
	if stored.Segments()[0] != current.Segments()[0] {
		return false
	}
	return stored.LessThanOrEqual(current)
}

// FileInfo contains information about a cached artifact
type FileInfo struct {
	Path       string
	Size       int64
	LastAccess time.Time
}

// Size returns the current size of the cache in bytes
func (m *Manager) Size() (int64, error) {
	var totalSize int64
	err := filepath.Walk(m.cacheDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to calculate cache size: %w", err)
	}
	return totalSize, nil
}

// Files returns a list of all cached artifacts
func (m *Manager) Files() ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.Walk(m.cacheDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, FileInfo{
				Path:       path,
				Size:       info.Size(),
				LastAccess: info.ModTime(),
			})
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list cache files: %w", err)
	}
	return files, nil
}

// CleanupStatus contains information about a cleanup operation
type CleanupStatus struct {
	FilesDeleted int
	SpaceFreed   int64
	OriginalSize int64
	FinalSize    int64
}

// CleanLRU removes least-recently-used artifacts until the cache is at half
// of its size cap. A cache already within the cap is left untouched.
func (m *Manager) CleanLRU() (*CleanupStatus, error) {
	if _, err := os.Stat(m.cacheDir); os.IsNotExist(err) {
		return &CleanupStatus{}, nil
	}

	originalSize, err := m.Size()
	if err != nil {
		return nil, err
	}
	status := &CleanupStatus{OriginalSize: originalSize, FinalSize: originalSize}
	if originalSize <= m.maxBytes {
		logger.Logger.Debug("Cache size within limit", "current", originalSize, "limit", m.maxBytes)
		return status, nil
	}

	files, err := m.Files()
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].LastAccess.Before(files[j].LastAccess)
	})

	targetSize := m.maxBytes / 2
	currentSize := originalSize
	for _, file := range files {
		if currentSize <= targetSize {
			break
		}
		if err := os.Remove(file.Path); err != nil {
			logger.Logger.Warn("Failed to delete cache artifact", "path", file.Path, "error", err)
			continue
		}
		status.FilesDeleted++
		status.SpaceFreed += file.Size
		currentSize -= file.Size
	}
	status.FinalSize = currentSize

	logger.Logger.Info("Cache cleanup completed",
		"files_deleted", status.FilesDeleted,
		"space_freed", status.SpaceFreed,
		"final_size", status.FinalSize)
	return status, nil
}

// Clear deletes the whole cache directory.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.cacheDir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
