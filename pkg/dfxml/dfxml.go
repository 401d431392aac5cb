/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package dfxml gives windirs a minimal DFXML-shaped record to write to: a
// simple ordered key-value serializer, not a full DFXML schema
// implementation. Schema fidelity to the full DFXML standard is out of
// scope; only the ordered key-value fileobject shape is implemented.
package dfxml

import (
	"fmt"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// FileObject is one DFXML <fileobject> record: an ordered list of key-value
// pairs plus the src tag ("fat" or "mft").
type FileObject struct {
	Src    string
	Fields []KV
}

// KV is one ordered key-value pair within a FileObject.
type KV struct {
	Key   string
	Value string
}

// NewFileObject starts a FileObject tagged with src ("fat" or "mft").
func NewFileObject(src string) *FileObject {
	return &FileObject{Src: src}
}

// Set appends a key-value pair, preserving insertion order (DFXML readers
// are tolerant of key order, but deterministic order keeps output
// byte-identical across repeated runs over the same input).
func (fo *FileObject) Set(key string, value string) *FileObject {
	fo.Fields = append(fo.Fields, KV{Key: key, Value: value})
	return fo
}

// Setf is Set with fmt.Sprintf-style formatting of value.
func (fo *FileObject) Setf(key, format string, args ...interface{}) *FileObject {
	return fo.Set(key, fmt.Sprintf(format, args...))
}

// Serialize renders the fileobject as a single line of "key=value" pairs
// separated by tabs, with src as the first field — a simple key-value
// serializer external to the scanning core.
func (fo *FileObject) Serialize() string {
	var b strings.Builder
	fmt.Fprintf(&b, "src=%s", fo.Src)
	for _, kv := range fo.Fields {
		fmt.Fprintf(&b, "\t%s=%s", kv.Key, kv.Value)
	}
	return b.String()
}

// Digest returns a content digest of the serialized form, used to check
// that FAT/NTFS emissions stay idempotent across repeated runs over the
// same input.
func (fo *FileObject) Digest() digest.Digest {
	return digest.FromString(fo.Serialize())
}
