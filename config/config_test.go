/*
 * SPDX-License-Identifier: Apache-2.0
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCarriesDocumentedTuningConstants(t *testing.T) {
	A := assert.New(t)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg := Default(now)

	A.Equal(uint32(150*1024*1024), cfg.OptWeirdFileSize)
	A.Equal(uint32(512*1024*1024), cfg.OptWeirdFileSize2)
	A.Equal(uint32(32*(1<<21)), cfg.OptWeirdClusterCount)
	A.Equal(uint32(128*(1<<21)), cfg.OptWeirdClusterCount2)
	A.Equal(uint32(3), cfg.OptMaxBitsInAttrib)
	A.Equal(uint32(2), cfg.OptMaxWeirdCount)
	A.Equal(uint32(2029), cfg.OptLastYear, "opt_last_year defaults to current year + 5")
	A.Equal(4, cfg.Workers)
}

func TestLoadFileOverridesOnlyPresentKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bulkscan.toml")
	body := `
log_level = "debug"
workers = 8
opt_max_weird_count = 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFile(path, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, uint32(5), cfg.OptMaxWeirdCount)
	// Untouched keys keep their defaults.
	assert.Equal(t, uint32(150*1024*1024), cfg.OptWeirdFileSize)
	assert.Equal(t, uint32(2029), cfg.OptLastYear)
}

func TestLoadFileMissingFileFails(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"), time.Now())
	assert.Error(t, err)
}

func TestReaderResolvesScannerKeys(t *testing.T) {
	cfg := Default(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	cfg.OptMaxWeirdCount = 7
	r := NewReader(cfg)

	assert.Equal(t, uint32(7), r.GetUint32("opt_max_weird_count", 2, ""))
	assert.Equal(t, uint32(99), r.GetUint32("no_such_key", 99, ""))
}
