package ingest

import "time"

// defaultPatterns matches the common image container formats when the
// user supplies no glob patterns of their own.
var defaultPatterns = []string{"**/*.{jpg,jpeg,png,tif,tiff,webp,heic,heif,dng,gif}"}

type (
	// Config contains configuration options that allow customization of
	// how Exifstream detects and ingests files from the image library.
	Config struct {
		// The path to the directory the service should monitor for
		// image files.
		LibraryPath string `yaml:"library_path" env:"LIBRARY_PATH" validate:"required"`

		// Glob patterns (doublestar syntax, matched against the
		// library-relative path) which RESTRICT the files processed by
		// this service. Defaults to the common image extensions.
		Patterns []string `yaml:"patterns" env:"LIBRARY_PATTERNS"`

		// When enabled, record identifiers derived from the file path
		// have their extension stripped.
		StripExtensions bool `yaml:"strip_extensions" env:"LIBRARY_STRIP_EXTENSIONS"`

		// Directory the image importer copies original binaries in to.
		AssetsDirPath string `yaml:"assets_dir" env:"LIBRARY_ASSETS_DIR" env-default:"assets"`

		// The service uses a directory watcher, but a 'force' sync is
		// performed on a regular interval to protect against the
		// watcher failing.
		ForceSyncSeconds int `yaml:"force_sync_seconds" env:"INGEST_FORCE_SYNC_SECONDS" env-default:"300"`

		// When a new file is detected it may still be being written by
		// an external tool. As we cannot KNOW when the writing is
		// complete, we instead wait for the 'modtime' of the file to be
		// at least this long in the past before processing.
		RequiredModTimeAgeSeconds int `yaml:"required_modtime_age_seconds" env:"INGEST_MODTIME_AGE_SECONDS" env-default:"2"`

		// Controls the number of workers that can perform ingestions.
		// The default of 1 means one ingestion at a time, which keeps
		// store writes in file-discovery order.
		IngestionParallelism int `yaml:"parallelism" env:"INGEST_PARALLELISM" env-default:"1"`

		Extraction ExtractionConfig `yaml:"extraction"`
	}

	// ExtractionConfig controls which EXIF tags survive in to the
	// stored records.
	ExtractionConfig struct {
		// Named presets to expand in to tag selections (basic, camera,
		// exposure, datetime, location, technical, metadata).
		Presets []string `yaml:"presets" env:"EXTRACT_PRESETS"`

		// Individual tag names to select, unioned with the presets.
		Tags []string `yaml:"tags" env:"EXTRACT_TAGS"`

		// Tag names always removed after selection. The built-in
		// filesystem-identifying blocklist applies regardless.
		Exclude []string `yaml:"exclude" env:"EXTRACT_EXCLUDE"`

		// Extract every tag the parser produces, ignoring presets/tags.
		ExtractAll bool `yaml:"extract_all" env:"EXTRACT_ALL"`

		// Additionally embed the full unfiltered tag record in the
		// stored record under a nested raw field.
		IncludeRaw bool `yaml:"include_raw" env:"EXTRACT_INCLUDE_RAW"`
	}
)

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}

func (config *Config) EffectivePatterns() []string {
	if len(config.Patterns) == 0 {
		return defaultPatterns
	}

	return config.Patterns
}
