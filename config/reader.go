/*
 * SPDX-License-Identifier: Apache-2.0
 */

package config

// Reader adapts a *Config to dispatch.ConfigReader's stringly-keyed
// get_scanner_config(key, out, help) surface, so scanners never
// depend on the concrete Config struct shape directly.
type Reader struct {
	values map[string]interface{}
}

// NewReader snapshots cfg's scanner-tuning fields into a keyed reader.
func NewReader(cfg *Config) *Reader {
	return &Reader{values: map[string]interface{}{
		"opt_weird_file_size":      cfg.OptWeirdFileSize,
		"opt_weird_file_size2":     cfg.OptWeirdFileSize2,
		"opt_weird_cluster_count":  cfg.OptWeirdClusterCount,
		"opt_weird_cluster_count2": cfg.OptWeirdClusterCount2,
		"opt_max_bits_in_attrib":   cfg.OptMaxBitsInAttrib,
		"opt_max_weird_count":      cfg.OptMaxWeirdCount,
		"opt_last_year":            cfg.OptLastYear,
	}}
}

// GetUint32 returns the stored value for key, or def if key is unset or of
// the wrong type.
func (r *Reader) GetUint32(key string, def uint32, _ string) uint32 {
	if v, ok := r.values[key]; ok {
		if u, ok := v.(uint32); ok {
			return u
		}
	}
	return def
}

// GetString returns the stored value for key, or def.
func (r *Reader) GetString(key string, def string, _ string) string {
	if v, ok := r.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// GetBool returns the stored value for key, or def.
func (r *Reader) GetBool(key string, def bool, _ string) bool {
	if v, ok := r.values[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
