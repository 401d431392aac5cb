/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package config holds the toml-tagged Config struct, loaded with
// github.com/pelletier/go-toml, with defaults applied for any field absent
// from the file. It holds both the ambient knobs every bulkscan run needs
// (logging, workers) and the seven scanner tuning constants windirs reads
// through a ConfigReader.
package config

import (
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const (
	// DefaultWeirdFileSize is opt_weird_file_size's default (150 MiB).
	DefaultWeirdFileSize uint32 = 150 * 1024 * 1024
	// DefaultWeirdFileSize2 is opt_weird_file_size2's default (512 MiB).
	DefaultWeirdFileSize2 uint32 = 512 * 1024 * 1024
	// DefaultWeirdClusterCount is opt_weird_cluster_count's default (32 * 2^21).
	DefaultWeirdClusterCount uint32 = 32 * (1 << 21)
	// DefaultWeirdClusterCount2 is opt_weird_cluster_count2's default (128 * 2^21).
	DefaultWeirdClusterCount2 uint32 = 128 * (1 << 21)
	// DefaultMaxBitsInAttrib is opt_max_bits_in_attrib's default.
	DefaultMaxBitsInAttrib uint32 = 3
	// DefaultMaxWeirdCount is opt_max_weird_count's default.
	DefaultMaxWeirdCount uint32 = 2
)

// Config is the on-disk, toml-tagged configuration surface.
type Config struct {
	LogLevel            string `toml:"log_level"`
	LogDir              string `toml:"log_dir"`
	LogToStdout         bool   `toml:"log_to_stdout"`
	RotateLogMaxSize    int    `toml:"log_rotate_max_size"`
	RotateLogMaxBackups int    `toml:"log_rotate_max_backups"`
	RotateLogMaxAge     int    `toml:"log_rotate_max_age"`
	RotateLogLocalTime  bool   `toml:"log_rotate_local_time"`
	RotateLogCompress   bool   `toml:"log_rotate_compress"`
	Workers             int    `toml:"workers"`
	EnableMetrics       bool   `toml:"enable_metrics"`
	MetricsAddr         string `toml:"metrics_addr"`

	// Scanner tuning constants, all resolved through a ConfigReader at INIT.
	OptWeirdFileSize      uint32 `toml:"opt_weird_file_size"`
	OptWeirdFileSize2     uint32 `toml:"opt_weird_file_size2"`
	OptWeirdClusterCount  uint32 `toml:"opt_weird_cluster_count"`
	OptWeirdClusterCount2 uint32 `toml:"opt_weird_cluster_count2"`
	OptMaxBitsInAttrib    uint32 `toml:"opt_max_bits_in_attrib"`
	OptMaxWeirdCount      uint32 `toml:"opt_max_weird_count"`
	OptLastYear           uint32 `toml:"opt_last_year"`
}

// Default returns a Config with every field at its documented default.
// opt_last_year defaults to the current year plus five, computed from now.
func Default(now time.Time) *Config {
	return &Config{
		LogLevel:      "info",
		LogDir:        "logs",
		Workers:       4,
		EnableMetrics: true,
		MetricsAddr:   "localhost:9110",

		OptWeirdFileSize:      DefaultWeirdFileSize,
		OptWeirdFileSize2:     DefaultWeirdFileSize2,
		OptWeirdClusterCount:  DefaultWeirdClusterCount,
		OptWeirdClusterCount2: DefaultWeirdClusterCount2,
		OptMaxBitsInAttrib:    DefaultMaxBitsInAttrib,
		OptMaxWeirdCount:      DefaultMaxWeirdCount,
		OptLastYear:           uint32(now.Year()) + 5,
	}
}

// LoadFile loads a toml config file at path, applying Default(now) for any
// field the file does not set.
func LoadFile(path string, now time.Time) (*Config, error) {
	cfg := Default(now)
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load config file %q", path)
	}
	if err := tree.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config file %q", path)
	}
	return cfg, nil
}
