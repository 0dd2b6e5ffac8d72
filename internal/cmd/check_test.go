// Copyright 2025 Stache Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOne(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.mustache")
	bad := filepath.Join(dir, "bad.mustache")
	require.NoError(t, os.WriteFile(good, []byte("Hello {{name}}!"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("{{#a}}unclosed"), 0644))

	report := checkOne(good)
	assert.True(t, report.OK)
	assert.Equal(t, 5, report.Instructions)
	assert.Empty(t, report.Partials)

	report = checkOne(bad)
	assert.False(t, report.OK)
	assert.Contains(t, report.Error, "closure mismatch")
}

func TestCheckOneReportsPartials(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inc.mustache"), []byte("{{v}}"), 0644))
	page := filepath.Join(dir, "page.mustache")
	require.NoError(t, os.WriteFile(page, []byte("A{{>inc}}B"), 0644))

	report := checkOne(page)
	require.True(t, report.OK)
	require.Len(t, report.Partials, 1)
	assert.Contains(t, report.Partials[0], "inc.mustache")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "1.5 MiB", formatBytes(3*1024*1024/2))
}
