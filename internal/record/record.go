// Package record implements the projection of raw EXIF tag data in to
// the structured records Exifstream persists: the field filter, the
// value serializer, the change detector and the record model itself.
package record

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// FileSizeTag is the name of the synthetic tag whose value is always
// sourced from the filesystem stat result, never from the EXIF parser.
const FileSizeTag = "FileSize"

type (
	// TagRecord is the raw tag-to-value mapping produced by the EXIF
	// parser for a single file. Values are heterogeneous; the
	// serializer normalises them during projection.
	TagRecord map[string]any

	// Record is the structured per-file data persisted to the
	// collection. FileName and ModTime are always present; Tags holds
	// the curated fields surviving selection/exclusion, and Raw (when
	// opted in) holds the full unfiltered tag record.
	Record struct {
		FileName   string
		ModTime    string
		SourcePath string
		Tags       map[string]any
		Raw        map[string]any
	}
)

// builtinExclusions are filesystem-identifying tags which are removed
// from the curated output regardless of caller-supplied exclusions.
var builtinExclusions = []string{
	"SourceFile",
	"Directory",
	"FilePermissions",
	"FileModifyDate",
	"FileAccessDate",
	"FileInodeChangeDate",
	"FileCreateDate",
}

type Exclusion struct {
	names map[string]struct{}
}

// NewExclusion builds the effective exclusion set from the
// caller-supplied tag names unioned with the built-in
// filesystem-identifying blocklist.
func NewExclusion(names ...string) Exclusion {
	excl := Exclusion{names: make(map[string]struct{}, len(names)+len(builtinExclusions))}
	for _, name := range builtinExclusions {
		excl.names[name] = struct{}{}
	}
	for _, name := range names {
		excl.names[name] = struct{}{}
	}

	return excl
}

func (excl Exclusion) Contains(name string) bool {
	_, ok := excl.names[name]
	return ok
}

// ShouldSkip reports whether re-extraction for a file can be skipped:
// true iff a stored record exists and its stored modification time
// exactly equals the current one. The comparison is deliberately exact
// string equality; a file that changed by a single millisecond is
// re-extracted.
func ShouldSkip(stored *Record, currentMtime string) bool {
	return stored != nil && stored.ModTime == currentMtime
}

// IDForPath derives the stable record identifier from the files path
// relative to the library root. Separators are normalised to forward
// slashes; the extension is optionally stripped depending on the
// deployment mode.
func IDForPath(relPath string, stripExtension bool) string {
	id := filepath.ToSlash(relPath)
	if stripExtension {
		if ext := filepath.Ext(id); ext != "" {
			id = strings.TrimSuffix(id, ext)
		}
	}

	return id
}

// recordJSON is the wire/storage shape of a Record. The curated tags are
// flattened alongside the seeded base fields by MarshalJSON below.
const (
	fileNameKey   = "fileName"
	modTimeKey    = "modTime"
	sourcePathKey = "sourcePath"
	rawKey        = "raw"
)

// MarshalJSON flattens the curated tags in to the top-level object,
// alongside the seeded fileName/modTime fields. The reserved keys above
// always reflect the seeded fields, never an identically named tag, so
// that UnmarshalJSON can safely lift them back out. Map key ordering is
// handled by encoding/json (sorted), so the output bytes are
// deterministic for a given record - a property the digest-based store
// dedup relies on.
func (record Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(record.Tags)+4)
	for name, value := range record.Tags {
		flat[name] = value
	}

	delete(flat, sourcePathKey)
	delete(flat, rawKey)
	flat[fileNameKey] = record.FileName
	flat[modTimeKey] = record.ModTime
	if record.SourcePath != "" {
		flat[sourcePathKey] = record.SourcePath
	}
	if record.Raw != nil {
		flat[rawKey] = record.Raw
	}

	return json.Marshal(flat)
}

func (record *Record) UnmarshalJSON(data []byte) error {
	flat := make(map[string]any)
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	if v, ok := flat[fileNameKey].(string); ok {
		record.FileName = v
	}
	if v, ok := flat[modTimeKey].(string); ok {
		record.ModTime = v
	}
	if v, ok := flat[sourcePathKey].(string); ok {
		record.SourcePath = v
	}
	if v, ok := flat[rawKey].(map[string]any); ok {
		record.Raw = v
	}

	delete(flat, fileNameKey)
	delete(flat, modTimeKey)
	delete(flat, sourcePathKey)
	delete(flat, rawKey)
	record.Tags = flat

	return nil
}
