// Package exif wraps the external exiftool-based metadata reader
// behind the narrow scraping interface the ingest service consumes.
package exif

import (
	"fmt"
	"sync"

	exiftool "github.com/barasher/go-exiftool"
	"github.com/mickaelmarchal/exifstream/internal/record"
)

// Scraper owns a long-lived exiftool process (stay_open mode) which is
// re-used across extractions. The underlying process handles one
// extraction at a time, so access is serialised with a mutex to allow
// multiple ingest workers to share the scraper.
type Scraper struct {
	mu sync.Mutex
	et *exiftool.Exiftool
}

// NewScraper spawns the underlying exiftool process. The returned
// scraper must be closed when no longer needed to reap the process.
func NewScraper() (*Scraper, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise exiftool: %w", err)
	}

	return &Scraper{et: et}, nil
}

// ScrapeFileForTags reads every metadata tag exiftool can produce for
// the file at the given path, as a raw tag-to-value record. Values are
// heterogeneous (strings, numbers, booleans, arrays) exactly as decoded
// from the parsers JSON output.
func (scraper *Scraper) ScrapeFileForTags(path string) (record.TagRecord, error) {
	scraper.mu.Lock()
	metas := scraper.et.ExtractMetadata(path)
	scraper.mu.Unlock()
	if len(metas) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", path)
	}

	meta := metas[0]
	if meta.Err != nil {
		return nil, fmt.Errorf("exiftool failed to read %s: %w", path, meta.Err)
	}

	tags := make(record.TagRecord, len(meta.Fields))
	for name, value := range meta.Fields {
		tags[name] = value
	}

	return tags, nil
}

func (scraper *Scraper) Close() {
	scraper.et.Close()
}
