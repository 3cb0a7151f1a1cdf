package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mickaelmarchal/exifstream/internal/event"
	"github.com/mickaelmarchal/exifstream/internal/record"
	"github.com/mickaelmarchal/exifstream/internal/selection"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
	"github.com/mickaelmarchal/exifstream/pkg/worker"
	"github.com/opencontainers/go-digest"
	"github.com/rjeczalik/notify"
)

var log = logger.Get("IngestServ")

type (
	scraper interface {
		ScrapeFileForTags(path string) (record.TagRecord, error)
	}

	dataStore interface {
		GetRecordByID(id string) (*record.Stored, error)
		GetRecordsWithIDs(ids []string) ([]*record.Stored, error)
		GetAllRecordSourcePaths() ([]string, error)
		SaveRecord(id string, rec record.Record) (digest.Digest, error)
		DeleteRecordWithSourcePath(sourcePath string) error
	}

	discoveredFile struct {
		path string
		info fs.FileInfo
	}

	// ingestService is responsible for the automatic detection and
	// ingestion of image files from the configured library. Detected
	// files are:
	//   - Matched against the configured glob patterns
	//   - Checked against their stored record's modtime to avoid
	//     redundant re-extraction
	//   - Run through the EXIF scraper and the selection/projection
	//     engine
	//   - Saved to the collection store
	ingestService struct {
		*sync.Mutex
		scraper   scraper
		dataStore dataStore
		eventBus  event.EventCoordinator

		config           Config
		proj             projection
		items            []*IngestItem
		importHoldTimers map[uuid.UUID]*time.Timer
		workerPool       *worker.WorkerPool
	}
)

// New creates a new ingest service, using the provided config for
// subsequent calls to 'Run'.
//
// The configs 'LibraryPath' is validated to be an existing directory.
// If the directory is missing it will be created; if the path provided
// points to an existing FILE, an error is returned. The extraction
// config is resolved once, here, in to the selection and exclusion
// sets applied to every file.
func New(config Config, scraper scraper, store dataStore, eventBus event.EventCoordinator) (*ingestService, error) {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(config); err != nil {
		return nil, fmt.Errorf("ingestion config is invalid: %s", err.Error())
	}

	if info, err := os.Stat(config.LibraryPath); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("library path '%s' is not a directory", config.LibraryPath)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(config.LibraryPath, os.ModeDir|os.ModePerm); err != nil {
			return nil, fmt.Errorf("library path '%s' could not be created: %s", config.LibraryPath, err.Error())
		}
	} else {
		return nil, fmt.Errorf("library path '%s' could not be accessed: %s", config.LibraryPath, err.Error())
	}

	sel := selection.Resolve(config.Extraction.Presets, config.Extraction.Tags)
	if config.Extraction.ExtractAll {
		sel = selection.All()
	}

	service := &ingestService{
		Mutex:     &sync.Mutex{},
		scraper:   scraper,
		dataStore: store,
		eventBus:  eventBus,
		config:    config,
		proj: projection{
			Selection:       sel,
			Exclusion:       record.NewExclusion(config.Extraction.Exclude...),
			IncludeRaw:      config.Extraction.IncludeRaw,
			StripExtensions: config.StripExtensions,
		},
		items:            make([]*IngestItem, 0),
		importHoldTimers: make(map[uuid.UUID]*time.Timer),
		workerPool:       worker.NewWorkerPool(),
	}

	for i := 0; i < config.IngestionParallelism; i++ {
		label := fmt.Sprintf("ingest-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.PerformItemIngest))
	}

	return service, nil
}

// Run is the main entry point of this service. It's responsible for
// listening to the OS file system and responding to change events, as
// well as regularly polling the file system irrespective of the watcher.
// To kill the service, the calling code should cancel the context
// provided.
func (service *ingestService) Run(ctx context.Context) error {
	fsNotifyChannel := make(chan notify.EventInfo, 128)
	if err := notify.Watch(filepath.Join(service.config.LibraryPath, "..."), fsNotifyChannel, notify.Create, notify.Write, notify.Rename, notify.Remove); err != nil {
		return fmt.Errorf("failed to watch library path '%s': %s", service.config.LibraryPath, err.Error())
	}
	defer notify.Stop(fsNotifyChannel)

	forceIngestTicker := time.NewTicker(time.Second * time.Duration(service.config.ForceSyncSeconds))
	defer forceIngestTicker.Stop()

	if err := service.workerPool.Start(); err != nil {
		return err
	}
	defer service.workerPool.Close()
	defer service.clearAllImportHoldTimers()

	service.cleanupOrphanedRecords()
	service.DiscoverNewFiles()

	for {
		select {
		case ev := <-fsNotifyChannel:
			service.handleFsEvent(ev)
		case <-forceIngestTicker.C:
			service.cleanupOrphanedRecords()
			service.DiscoverNewFiles()
		case <-ctx.Done():
			return nil
		}
	}
}

// PerformItemIngest is the worker function for the ingest service,
// called by the services worker pool. This function will claim the
// first IDLE item it finds and attempt to ingest it. If the ingestion
// fails with a Trouble, the trouble is set on the item and its state
// set to TROUBLED.
func (service *ingestService) PerformItemIngest(w worker.Worker) (bool, error) {
	item := service.claimIdleItem()
	if item == nil {
		return false, nil
	}

	service.eventBus.Dispatch(event.IngestUpdateEvent, item.ID)
	if err := item.ingest(service.eventBus, service.scraper, service.dataStore, service.proj); err != nil {
		var trbl Trouble
		if errors.As(err, &trbl) {
			log.Emit(logger.WARNING, "Ingestion of item %s raised trouble: %s\n", item, trbl.Error())
			item.Trouble = &trbl
			item.State = Troubled
			service.eventBus.Dispatch(event.IngestUpdateEvent, item.ID)
			return true, nil
		}

		return false, err
	}

	item.State = Complete
	service.eventBus.Dispatch(event.IngestCompleteEvent, item.ID)

	return true, nil
}

// DiscoverNewFiles scans the library path for files matching the
// configured glob patterns and enqueues those that are not already
// being worked on. The stored records modtime check happens during
// ingestion of each item, so re-enqueueing an unchanged file is cheap.
//
// Note: This function will take ownership of the mutex, and releases it when returning
func (service *ingestService) DiscoverNewFiles() {
	service.Lock()
	defer service.Unlock()

	activePaths := make(map[string]bool, len(service.items))
	for _, item := range service.items {
		if item.State != Complete {
			activePaths[item.Path] = true
		}
	}

	found, matched, err := discoverLibraryFiles(service.config.LibraryPath, service.config.EffectivePatterns(), activePaths)
	if err != nil {
		log.Emit(logger.ERROR, "file system polling failed: %s\n", err.Error())
		return
	}

	if matched == 0 {
		log.Emit(logger.WARNING, "No files in '%s' matched the configured patterns %v\n", service.config.LibraryPath, service.config.EffectivePatterns())
		return
	}

	minModtimeAge := service.config.RequiredModTimeAgeDuration()
	dirty := false
	for _, file := range found {
		relPath, err := libraryRelativePath(service.config.LibraryPath, file.path)
		if err != nil {
			log.Emit(logger.ERROR, "Cannot determine library-relative path of %s: %s\n", file.path, err.Error())
			continue
		}

		itemID := uuid.New()
		timeDiff := time.Since(file.info.ModTime())

		itemState := ImportHold
		if timeDiff > minModtimeAge {
			dirty = true
			itemState = Idle
		}

		service.purgeCompleteItemsForPath(file.path)
		ingestItem := &IngestItem{
			ID:      itemID,
			Path:    file.path,
			RelPath: relPath,
			State:   itemState,
		}

		service.items = append(service.items, ingestItem)
		if itemState == ImportHold {
			service.scheduleImportHoldTimer(itemID, minModtimeAge-timeDiff)
		}
	}

	// Items queued by an earlier pass may still be Idle if their wakeup
	// raced a worker falling asleep; count them towards the wakeup too.
	if !dirty {
		for _, item := range service.items {
			if item.State == Idle {
				dirty = true
				break
			}
		}
	}

	if dirty {
		service.wakeupWorkerPool()
	}
}

// RemoveIngest looks for an item with the ID provided in the services
// state, and removes it if it's found.
// This method *fails* if the item is currently 'INGESTING' as
// interrupting the ingestion is not possible.
// This method does not error if the itemID does not exist.
//
// Note: This function takes ownership of the mutex and releases it on return
func (service *ingestService) RemoveIngest(itemID uuid.UUID) error {
	service.Lock()
	defer service.Unlock()

	return service.removeIngestLocked(itemID)
}

func (service *ingestService) removeIngestLocked(itemID uuid.UUID) error {
	for k, v := range service.items {
		if v.ID == itemID {
			if v.State == Ingesting {
				return fmt.Errorf("cannot remove item %v as a worker is currently ingesting it", itemID)
			}

			service.clearImportHoldTimer(itemID)
			service.items = append(service.items[:k], service.items[k+1:]...)
			return nil
		}
	}

	return nil
}

// GetIngest accepts the ID of an ingest item and attempts to find it
// in the services queue. If it cannot be found, nil is returned.
func (service *ingestService) GetIngest(itemID uuid.UUID) *IngestItem {
	service.Lock()
	defer service.Unlock()

	return service.getIngestLocked(itemID)
}

func (service *ingestService) getIngestLocked(itemID uuid.UUID) *IngestItem {
	for _, item := range service.items {
		if item.ID == itemID {
			return item
		}
	}

	return nil
}

// GetAllIngests returns a copy of the list of all the ingest items
// known to this service.
func (service *ingestService) GetAllIngests() []*IngestItem {
	service.Lock()
	defer service.Unlock()

	items := make([]*IngestItem, len(service.items))
	copy(items, service.items)
	return items
}

// ResolveTroubledIngest attempts to resolve the trouble on the item
// specified using the method provided: Retry re-queues the item for
// ingestion, Abort removes it from the service.
func (service *ingestService) ResolveTroubledIngest(itemID uuid.UUID, method ResolutionType) error {
	service.Lock()
	defer service.Unlock()

	item := service.getIngestLocked(itemID)
	if item == nil {
		return ErrIngestNotFound
	}

	if item.State != Troubled || item.Trouble == nil {
		return fmt.Errorf("ingestion %s has no trouble to resolve", itemID)
	}

	if !item.Trouble.isResolutionTypeAllowed(method) {
		return ErrResolutionIncompatible
	}

	switch method {
	case Retry:
		item.Trouble = nil
		item.State = Idle
		service.wakeupWorkerPool()
	case Abort:
		if err := service.removeIngestLocked(itemID); err != nil {
			return err
		}
	default:
		return ErrResolutionIncompatible
	}

	service.eventBus.Dispatch(event.IngestUpdateEvent, itemID)
	return nil
}

// handleFsEvent reacts to a single filesystem notification: removals
// and renames drop the stored records for the path, anything else
// triggers re-discovery of the library.
func (service *ingestService) handleFsEvent(ev notify.EventInfo) {
	switch ev.Event() {
	case notify.Remove, notify.Rename:
		service.handleRemovedPath(ev.Path())

		// A rename delivers the new path as a separate Create event,
		// but re-discover anyway in case that event was dropped.
		if ev.Event() == notify.Rename {
			service.DiscoverNewFiles()
		}
	default:
		service.DiscoverNewFiles()
	}
}

// handleRemovedPath drops the queued items and stored records for a
// path which no longer exists on disk. The path may be a single file or
// a whole directory; since it is already gone by the time the event
// arrives, stored records are reconciled by sweeping every known source
// path rather than by deleting the event path directly.
func (service *ingestService) handleRemovedPath(path string) {
	service.Lock()
	doomed := make([]uuid.UUID, 0, 1)
	for _, item := range service.items {
		if item.State == Ingesting {
			continue
		}

		if item.Path == path || strings.HasPrefix(item.Path, path+string(os.PathSeparator)) {
			doomed = append(doomed, item.ID)
		}
	}
	for _, id := range doomed {
		service.removeIngestLocked(id)
	}
	service.Unlock()

	service.cleanupOrphanedRecords()
}

// cleanupOrphanedRecords drops stored records whose source file no
// longer exists in the library. Runs at service start to catch
// deletions that happened while the watcher was down, after removal
// events, and on the force-sync tick.
func (service *ingestService) cleanupOrphanedRecords() {
	paths, err := service.dataStore.GetAllRecordSourcePaths()
	if err != nil {
		log.Emit(logger.ERROR, "Failed to list stored record source paths: %s\n", err.Error())
		return
	}

	for _, relPath := range paths {
		fullPath := filepath.Join(service.config.LibraryPath, filepath.FromSlash(relPath))
		if _, err := os.Stat(fullPath); !errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err := service.dataStore.DeleteRecordWithSourcePath(relPath); err != nil {
			log.Emit(logger.ERROR, "Failed to delete orphaned record for %s: %s\n", relPath, err.Error())
			continue
		}

		recordID := record.IDForPath(relPath, service.proj.StripExtensions)
		log.Emit(logger.REMOVE, "Removed orphaned record %s (source file missing)\n", recordID)
		service.eventBus.Dispatch(event.RecordRemoveEvent, recordID)
	}
}

// evaluateItemHold accepts the ID of an item that is on IMPORT_HOLD,
// and checks its modtime to see if the item can be moved on to the
// 'IDLE' state.
// If the item with the ID provided no longer exists, the method is a NO-OP.
// If the item exists, but its source file no longer exists, the item is
// removed from the services state.
// If the item exists and its source still does not meet modtime
// requirements, then a new timer will be scheduled to re-evaluate the hold.
//
// Note: this function takes ownership of the mutex, and releases it when returning
func (service *ingestService) evaluateItemHold(id uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	item := service.getIngestLocked(id)
	if item == nil || item.State != ImportHold {
		return
	}

	timeDiff, err := item.modtimeDiff()
	if err != nil {
		// Item's source file has gone away!
		service.removeIngestLocked(id)
		return
	}

	thresholdModTime := service.config.RequiredModTimeAgeDuration()
	if *timeDiff < thresholdModTime {
		service.scheduleImportHoldTimer(id, thresholdModTime-*timeDiff)
		return
	}

	item.State = Idle
	service.wakeupWorkerPool()
}

// scheduleImportHoldTimer will call evaluateItemHold for the item provided
// after the delay duration specified has elapsed. Any existing import hold
// timer for the item specified will be *cancelled* before the new timer is
// created.
func (service *ingestService) scheduleImportHoldTimer(id uuid.UUID, delay time.Duration) {
	service.clearImportHoldTimer(id)
	service.importHoldTimers[id] = time.AfterFunc(delay, func() {
		service.evaluateItemHold(id)
	})
}

func (service *ingestService) clearImportHoldTimer(id uuid.UUID) {
	if timer, ok := service.importHoldTimers[id]; ok {
		timer.Stop()
		delete(service.importHoldTimers, id)
	}
}

func (service *ingestService) clearAllImportHoldTimers() {
	service.Lock()
	defer service.Unlock()

	for key, timer := range service.importHoldTimers {
		timer.Stop()
		delete(service.importHoldTimers, key)
	}
}

// purgeCompleteItemsForPath drops terminal items for the given path so
// a re-discovered file is represented by a single fresh item.
func (service *ingestService) purgeCompleteItemsForPath(path string) {
	filtered := service.items[:0]
	for _, item := range service.items {
		if item.Path == path && item.State == Complete {
			continue
		}
		filtered = append(filtered, item)
	}

	service.items = filtered
}

// claimIdleItem will try and find an IDLE item in the ingest service,
// and set its state to 'INGESTING' to prevent another worker from
// claiming it once the mutex lock is released.
//
// Note: This function takes ownership of the mutex, and releases it when returning
func (service *ingestService) claimIdleItem() *IngestItem {
	service.Lock()
	defer service.Unlock()

	for _, item := range service.items {
		if item.State == Idle {
			item.State = Ingesting
			return item
		}
	}

	return nil
}

func (service *ingestService) wakeupWorkerPool() {
	service.workerPool.WakeupWorkers()
}

// discoverLibraryFiles walks the file system, starting at the library
// root, and collects (in walk order) every file matching any of the
// glob patterns whose path is not in the 'known' map. The second return
// value is the total number of pattern matches regardless of 'known',
// which lets the caller distinguish "nothing new" from "nothing matches
// at all".
//
// Errors encountered for individual entries are logged and that entry
// skipped; the walk itself continues.
func discoverLibraryFiles(rootDirPath string, patterns []string, known map[string]bool) ([]discoveredFile, int, error) {
	found := make([]discoveredFile, 0)
	matched := 0
	err := filepath.WalkDir(rootDirPath, func(path string, dir fs.DirEntry, err error) error {
		if err != nil {
			log.Emit(logger.WARNING, "Skipping %s during library scan: %s\n", path, err.Error())
			if dir != nil && dir.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if dir.IsDir() {
			return nil
		}

		relPath, err := libraryRelativePath(rootDirPath, path)
		if err != nil || !matchesAnyPattern(patterns, relPath) {
			return nil
		}
		matched++

		if known[path] {
			return nil
		}

		fileInfo, err := dir.Info()
		if err != nil {
			log.Emit(logger.WARNING, "Skipping %s during library scan: %s\n", path, err.Error())
			return nil
		}

		found = append(found, discoveredFile{path: path, info: fileInfo})
		return nil
	})

	if err != nil {
		return nil, 0, fmt.Errorf("failed to walk file system: %s", err.Error())
	}

	return found, matched, nil
}

func matchesAnyPattern(patterns []string, relPath string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, relPath)
		if err != nil {
			log.Emit(logger.WARNING, "Ignoring malformed glob pattern '%s': %s\n", pattern, err.Error())
			continue
		}

		if ok {
			return true
		}
	}

	return false
}

func libraryRelativePath(rootDirPath string, path string) (string, error) {
	relPath, err := filepath.Rel(rootDirPath, path)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(relPath), nil
}
