package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mickaelmarchal/exifstream/internal/event"
	"github.com/mickaelmarchal/exifstream/internal/record"
	"github.com/mickaelmarchal/exifstream/internal/selection"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
)

type (
	IngestItemState int

	IngestItem struct {
		ID uuid.UUID
		// Path is the absolute path of the source file; RelPath is the
		// same path relative to the library root (slash-separated).
		Path    string
		RelPath string
		State   IngestItemState
		Trouble *Trouble

		// RecordID is populated once ingestion has derived the stored
		// record identifier for this items path.
		RecordID string

		// Skipped marks items whose stored record was already
		// up-to-date (modtime unchanged), so no extraction occurred.
		Skipped bool
	}

	// projection bundles the pre-resolved settings each ingestion
	// applies when turning raw tags in to a stored record.
	projection struct {
		Selection       selection.Selection
		Exclusion       record.Exclusion
		IncludeRaw      bool
		StripExtensions bool
	}
)

const (
	Idle IngestItemState = iota
	ImportHold
	Ingesting
	Troubled
	Complete
)

var (
	ErrIngestNotFound         = errors.New("no ingest task could be found")
	ErrResolutionIncompatible = errors.New("provided resolution method is not valid for ingestion trouble")
)

// ingest is the main task for an ingest item which:
//   - Stats the source file for its modification time and size
//   - Consults the stored record to decide whether re-extraction is needed
//   - Scrapes the EXIF tags from the file (degrading to an empty tag
//     record on parser failure)
//   - Projects the tags through the selection/exclusion engine
//   - Upserts the resulting record to the collection store
//
// Failures which should park the item (rather than crash the worker)
// are returned as a Trouble.
func (item *IngestItem) ingest(eventBus event.EventDispatcher, scraper scraper, data dataStore, proj projection) error {
	log.Emit(logger.NEW, "Beginning ingestion of item %s\n", item)

	info, err := os.Stat(item.Path)
	if err != nil {
		return newTrouble(fmt.Errorf("failed to stat %s: %w", item.Path, err), FileFailure)
	}

	mtime := info.ModTime().UTC().Format(time.RFC3339Nano)
	recordID := record.IDForPath(item.RelPath, proj.StripExtensions)
	item.RecordID = recordID

	stored, err := data.GetRecordByID(recordID)
	if err != nil && !errors.Is(err, record.ErrRecordNotFound) {
		return newTrouble(fmt.Errorf("failed to look up record %s: %w", recordID, err), StoreFailure)
	}

	if stored != nil && record.ShouldSkip(&stored.Record, mtime) {
		log.Emit(logger.DEBUG, "Skipping %s: stored record modtime %s is unchanged\n", item.RelPath, mtime)
		item.Skipped = true
		return nil
	}

	tags, err := scraper.ScrapeFileForTags(item.Path)
	if err != nil {
		// A parser failure degrades to an empty tag record for this
		// file rather than aborting; the base fields are still stored.
		log.Emit(logger.WARNING, "Metadata extraction for %s failed (%s); storing record with no tags\n", item.RelPath, err.Error())
		tags = record.TagRecord{}
	}

	rec := record.Project(tags, proj.Selection, proj.Exclusion, proj.IncludeRaw, filepath.Base(item.Path), mtime, info.Size())
	rec.SourcePath = item.RelPath

	dgst, err := data.SaveRecord(recordID, rec)
	if err != nil {
		return newTrouble(fmt.Errorf("failed to save record %s: %w", recordID, err), StoreFailure)
	}

	log.Emit(logger.SUCCESS, "Saved record %s (digest %s)\n", recordID, dgst)
	eventBus.Dispatch(event.RecordCompleteEvent, recordID)

	return nil
}

func (item *IngestItem) modtimeDiff() (*time.Duration, error) {
	itemInfo, err := os.Stat(item.Path)
	if err != nil {
		return nil, err
	}

	diff := time.Since(itemInfo.ModTime())
	return &diff, nil
}

func (item *IngestItem) String() string {
	return fmt.Sprintf("IngestItem{ID=%s path=%s state=%s}", item.ID, item.RelPath, item.State)
}

func (s IngestItemState) String() string {
	switch s {
	case Idle:
		return fmt.Sprintf("IDLE[%d]", s)
	case ImportHold:
		return fmt.Sprintf("IMPORT_HOLD[%d]", s)
	case Ingesting:
		return fmt.Sprintf("INGESTING[%d]", s)
	case Troubled:
		return fmt.Sprintf("TROUBLED[%d]", s)
	case Complete:
		return fmt.Sprintf("COMPLETE[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}
