package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mickaelmarchal/exifstream/internal/event"
	"github.com/mickaelmarchal/exifstream/internal/ingest"
	"github.com/mickaelmarchal/exifstream/internal/record"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
	"github.com/mickaelmarchal/exifstream/tests/helpers"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// A default event bus which should be used as a NOOP event bus. DO NOT subscribe to this
// inside of a test as the subscribers are not removed between tests.
var (
	defaultEventBus = event.New()
	errExpected     = errors.New("test: expected error")
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) ScrapeFileForTags(path string) (record.TagRecord, error) {
	args := m.Called(path)
	if v, ok := args.Get(0).(record.TagRecord); ok {
		return v, args.Error(1)
	}

	return nil, args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetRecordByID(id string) (*record.Stored, error) {
	args := m.Called(id)
	if v, ok := args.Get(0).(*record.Stored); ok {
		return v, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *mockStore) GetRecordsWithIDs(ids []string) ([]*record.Stored, error) {
	args := m.Called(ids)
	if v, ok := args.Get(0).([]*record.Stored); ok {
		return v, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *mockStore) GetAllRecordSourcePaths() ([]string, error) {
	args := m.Called()
	if v, ok := args.Get(0).([]string); ok {
		return v, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *mockStore) SaveRecord(id string, rec record.Record) (digest.Digest, error) {
	args := m.Called(id, rec)
	if v, ok := args.Get(0).(digest.Digest); ok {
		return v, args.Error(1)
	}

	return "", args.Error(1)
}

func (m *mockStore) DeleteRecordWithSourcePath(sourcePath string) error {
	args := m.Called(sourcePath)
	return args.Error(0)
}

type Service interface {
	DiscoverNewFiles()
	GetAllIngests() []*ingest.IngestItem
	GetIngest(uuid.UUID) *ingest.IngestItem
	ResolveTroubledIngest(uuid.UUID, ingest.ResolutionType) error
	ImportImages([]string) ([]ingest.ImportResult, error)
}

func startServiceWithBus(t *testing.T, config ingest.Config, scraperMock *mockScraper, storeMock *mockStore, eventBus event.EventCoordinator) Service {
	// The startup orphan-record sweep runs for every service instance.
	storeMock.On("GetAllRecordSourcePaths").Return([]string{}, nil).Maybe()

	srv, err := ingest.New(config, scraperMock, storeMock, eventBus)
	assert.Nil(t, err)

	wg := sync.WaitGroup{}
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer wg.Done()
		assert.Nil(t, srv.Run(ctx))
	}()

	t.Cleanup(func() {
		fmt.Println("Waiting for service to close...")
		cancel()
		wg.Wait()
	})

	return srv
}

func startService(t *testing.T, config ingest.Config, scraperMock *mockScraper, storeMock *mockStore) Service {
	return startServiceWithBus(t, config, scraperMock, storeMock, defaultEventBus)
}

func Test_DiscoveredImage_CorrectlySaved(t *testing.T) {
	t.Parallel()
	tempDir, files := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	cfg := ingest.Config{
		LibraryPath:          tempDir,
		ForceSyncSeconds:     100,
		IngestionParallelism: 1,
		Extraction:           ingest.ExtractionConfig{Tags: []string{"Make"}},
	}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	scraperMock.On("ScrapeFileForTags", files[0]).Return(record.TagRecord{"Make": "Canon", "Model": "R5"}, nil).Once()
	storeMock.On("GetRecordByID", "photo.jpg").Return(nil, record.ErrRecordNotFound).Once()

	info, err := os.Stat(files[0])
	assert.Nil(t, err)
	expectedMtime := info.ModTime().UTC().Format(time.RFC3339Nano)

	storeMock.On("SaveRecord", "photo.jpg", mock.MatchedBy(func(rec record.Record) bool {
		return rec.FileName == "photo.jpg" &&
			rec.ModTime == expectedMtime &&
			rec.Tags["Make"] == "Canon" &&
			rec.Tags["Model"] == nil
	})).Return(digest.FromString("test"), nil).Once()

	bus := event.New()
	receivedIngestComplete := false
	receivedRecordComplete := false
	bus.RegisterHandlerFunction(event.RecordCompleteEvent, func(ev event.Event, payload event.Payload) {
		receivedRecordComplete = true
		assert.Equal(t, "photo.jpg", payload, "expected record ID emitted on event bus to match save call")
	})
	bus.RegisterHandlerFunction(event.IngestCompleteEvent, func(_ event.Event, _ event.Payload) {
		receivedIngestComplete = true
	})

	srv := startServiceWithBus(t, cfg, scraperMock, storeMock, bus)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.True(c, receivedIngestComplete, "never received ingestion completion message on event bus")
		assert.True(c, receivedRecordComplete, "never received record completion message on event bus")

		allIngests := srv.GetAllIngests()
		if assert.Len(c, allIngests, 1) {
			item := allIngests[0]
			assert.Equal(c, ingest.Complete, item.State)
			assert.Equal(c, "photo.jpg", item.RecordID)
			assert.False(c, item.Skipped)
		}
	}, time.Second*2, time.Millisecond*100)

	scraperMock.AssertExpectations(t)
	storeMock.AssertExpectations(t)
}

func Test_UnchangedFile_SkipsExtraction(t *testing.T) {
	t.Parallel()
	tempDir, files := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	info, err := os.Stat(files[0])
	assert.Nil(t, err)
	storedMtime := info.ModTime().UTC().Format(time.RFC3339Nano)

	cfg := ingest.Config{LibraryPath: tempDir, ForceSyncSeconds: 100, IngestionParallelism: 1}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	storeMock.On("GetRecordByID", "photo.jpg").
		Return(&record.Stored{ID: "photo.jpg", Record: record.Record{FileName: "photo.jpg", ModTime: storedMtime}}, nil)

	srv := startService(t, cfg, scraperMock, storeMock)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		allIngests := srv.GetAllIngests()
		if assert.Len(c, allIngests, 1) {
			item := allIngests[0]
			assert.Equal(c, ingest.Complete, item.State)
			assert.True(c, item.Skipped, "up-to-date record must cause the item to be skipped")
		}
	}, time.Second*2, time.Millisecond*100)

	scraperMock.AssertNotCalled(t, "ScrapeFileForTags", mock.Anything)
	storeMock.AssertNotCalled(t, "SaveRecord", mock.Anything, mock.Anything)
}

func Test_ScraperFailure_StillSavesBaseRecord(t *testing.T) {
	t.Parallel()
	tempDir, files := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	cfg := ingest.Config{
		LibraryPath:          tempDir,
		ForceSyncSeconds:     100,
		IngestionParallelism: 1,
		Extraction:           ingest.ExtractionConfig{ExtractAll: true},
	}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	scraperMock.On("ScrapeFileForTags", files[0]).Return(nil, errExpected).Once()
	storeMock.On("GetRecordByID", "photo.jpg").Return(nil, record.ErrRecordNotFound).Once()

	// Parser failure degrades to an empty tag record; the base fields
	// and the stat-sourced file size are still saved.
	storeMock.On("SaveRecord", "photo.jpg", mock.MatchedBy(func(rec record.Record) bool {
		return rec.FileName == "photo.jpg" && len(rec.Tags) == 1 && rec.Tags[record.FileSizeTag] == int64(0)
	})).Return(digest.FromString("test"), nil).Once()

	srv := startService(t, cfg, scraperMock, storeMock)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		allIngests := srv.GetAllIngests()
		if assert.Len(c, allIngests, 1) {
			assert.Equal(c, ingest.Complete, allIngests[0].State)
		}
	}, time.Second*2, time.Millisecond*100)

	scraperMock.AssertExpectations(t)
	storeMock.AssertExpectations(t)
}

func Test_StoreFailure_RaisesTroubleAndRetryResolves(t *testing.T) {
	t.Parallel()
	tempDir, files := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	cfg := ingest.Config{LibraryPath: tempDir, ForceSyncSeconds: 100, IngestionParallelism: 1}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	scraperMock.On("ScrapeFileForTags", files[0]).Return(record.TagRecord{}, nil).Twice()
	storeMock.On("GetRecordByID", "photo.jpg").Return(nil, record.ErrRecordNotFound).Twice()
	storeMock.On("SaveRecord", "photo.jpg", mock.Anything).Return(nil, errExpected).Once()
	storeMock.On("SaveRecord", "photo.jpg", mock.Anything).Return(digest.FromString("test"), nil).Once()

	srv := startService(t, cfg, scraperMock, storeMock)

	var troubledID uuid.UUID
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		allIngests := srv.GetAllIngests()
		if assert.Len(c, allIngests, 1) {
			item := allIngests[0]
			if assert.Equal(c, ingest.Troubled, item.State) && assert.NotNil(c, item.Trouble) {
				assert.Equal(c, ingest.StoreFailure, item.Trouble.Type())
				assert.Contains(c, item.Trouble.AllowedResolutionTypes(), ingest.Retry)
				troubledID = item.ID
			}
		}
	}, time.Second*2, time.Millisecond*100)

	assert.Nil(t, srv.ResolveTroubledIngest(troubledID, ingest.Retry))

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		item := srv.GetIngest(troubledID)
		if assert.NotNil(c, item) {
			assert.Equal(c, ingest.Complete, item.State)
			assert.Nil(c, item.Trouble)
		}
	}, time.Second*2, time.Millisecond*100)

	scraperMock.AssertExpectations(t)
	storeMock.AssertExpectations(t)
}

func Test_TroubledIngest_AbortRemovesItem(t *testing.T) {
	t.Parallel()
	tempDir, files := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	cfg := ingest.Config{LibraryPath: tempDir, ForceSyncSeconds: 100, IngestionParallelism: 1}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	scraperMock.On("ScrapeFileForTags", files[0]).Return(record.TagRecord{}, nil)
	storeMock.On("GetRecordByID", "photo.jpg").Return(nil, record.ErrRecordNotFound)
	storeMock.On("SaveRecord", "photo.jpg", mock.Anything).Return(nil, errExpected)

	srv := startService(t, cfg, scraperMock, storeMock)

	var troubledID uuid.UUID
	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		allIngests := srv.GetAllIngests()
		if assert.Len(c, allIngests, 1) && assert.Equal(c, ingest.Troubled, allIngests[0].State) {
			troubledID = allIngests[0].ID
		}
	}, time.Second*2, time.Millisecond*100)

	assert.Nil(t, srv.ResolveTroubledIngest(troubledID, ingest.Abort))
	assert.Nil(t, srv.GetIngest(troubledID))
}

func Test_OrphanedRecords_RemovedAtStartup(t *testing.T) {
	t.Parallel()
	tempDir, files := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	cfg := ingest.Config{LibraryPath: tempDir, ForceSyncSeconds: 100, IngestionParallelism: 1}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	// One stored record still backed by a library file, one whose
	// source has been deleted while the service was down.
	storeMock.On("GetAllRecordSourcePaths").Return([]string{"photo.jpg", "deleted.jpg"}, nil).Once()
	storeMock.On("DeleteRecordWithSourcePath", "deleted.jpg").Return(nil).Once()

	scraperMock.On("ScrapeFileForTags", files[0]).Return(record.TagRecord{}, nil)
	storeMock.On("GetRecordByID", "photo.jpg").Return(nil, record.ErrRecordNotFound)
	storeMock.On("SaveRecord", "photo.jpg", mock.Anything).Return(digest.FromString("test"), nil)

	bus := event.New()
	receivedRemove := false
	bus.RegisterHandlerFunction(event.RecordRemoveEvent, func(_ event.Event, payload event.Payload) {
		receivedRemove = true
		assert.Equal(t, "deleted.jpg", payload)
	})

	startServiceWithBus(t, cfg, scraperMock, storeMock, bus)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		assert.True(c, receivedRemove, "never received record removal message on event bus")
	}, time.Second*2, time.Millisecond*100)

	storeMock.AssertNotCalled(t, "DeleteRecordWithSourcePath", "photo.jpg")
}

func Test_RemovedFile_DropsStoredRecord(t *testing.T) {
	t.Parallel()
	tempDir, files := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	cfg := ingest.Config{LibraryPath: tempDir, ForceSyncSeconds: 100, IngestionParallelism: 1}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	scraperMock.On("ScrapeFileForTags", files[0]).Return(record.TagRecord{}, nil)
	storeMock.On("GetRecordByID", "photo.jpg").Return(nil, record.ErrRecordNotFound)
	storeMock.On("SaveRecord", "photo.jpg", mock.Anything).Return(digest.FromString("test"), nil)

	// The stored record survives the reconciliation sweeps while its
	// source file is on disk, and is dropped once the file is deleted.
	storeMock.On("GetAllRecordSourcePaths").Return([]string{"photo.jpg"}, nil)
	storeMock.On("DeleteRecordWithSourcePath", "photo.jpg").Return(nil)

	bus := event.New()
	removedMu := sync.Mutex{}
	removed := make([]string, 0)
	bus.RegisterHandlerFunction(event.RecordRemoveEvent, func(_ event.Event, payload event.Payload) {
		removedMu.Lock()
		defer removedMu.Unlock()
		if id, ok := payload.(string); ok {
			removed = append(removed, id)
		}
	})

	srv := startServiceWithBus(t, cfg, scraperMock, storeMock, bus)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		allIngests := srv.GetAllIngests()
		if assert.Len(c, allIngests, 1) {
			assert.Equal(c, ingest.Complete, allIngests[0].State)
		}
	}, time.Second*2, time.Millisecond*100)
	storeMock.AssertNotCalled(t, "DeleteRecordWithSourcePath", "photo.jpg")

	assert.Nil(t, os.Remove(files[0]))

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		removedMu.Lock()
		defer removedMu.Unlock()
		assert.Contains(c, removed, "photo.jpg", "never received record removal message on event bus")
	}, time.Second*2, time.Millisecond*100)

	storeMock.AssertCalled(t, "DeleteRecordWithSourcePath", "photo.jpg")
	assert.Empty(t, srv.GetAllIngests(), "the queued item for the removed file must be dropped")
}

func Test_RemovedDirectory_DropsStoredRecordsUnderIt(t *testing.T) {
	t.Parallel()
	tempDir, _ := helpers.TempDirWithFiles(t, []string{"album/one.jpg", "album/two.jpg"})

	cfg := ingest.Config{LibraryPath: tempDir, ForceSyncSeconds: 100, IngestionParallelism: 1}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	scraperMock.On("ScrapeFileForTags", mock.Anything).Return(record.TagRecord{}, nil)
	storeMock.On("GetRecordByID", mock.Anything).Return(nil, record.ErrRecordNotFound)
	storeMock.On("SaveRecord", mock.Anything, mock.Anything).Return(digest.FromString("test"), nil)

	storeMock.On("GetAllRecordSourcePaths").Return([]string{"album/one.jpg", "album/two.jpg"}, nil)
	storeMock.On("DeleteRecordWithSourcePath", mock.Anything).Return(nil)

	bus := event.New()
	removedMu := sync.Mutex{}
	removed := make(map[string]bool)
	bus.RegisterHandlerFunction(event.RecordRemoveEvent, func(_ event.Event, payload event.Payload) {
		removedMu.Lock()
		defer removedMu.Unlock()
		if id, ok := payload.(string); ok {
			removed[id] = true
		}
	})

	srv := startServiceWithBus(t, cfg, scraperMock, storeMock, bus)

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		allIngests := srv.GetAllIngests()
		if assert.Len(c, allIngests, 2) {
			for _, item := range allIngests {
				assert.Equal(c, ingest.Complete, item.State)
			}
		}
	}, time.Second*2, time.Millisecond*100)

	assert.Nil(t, os.RemoveAll(filepath.Join(tempDir, "album")))

	assert.EventuallyWithT(t, func(c *assert.CollectT) {
		removedMu.Lock()
		defer removedMu.Unlock()
		assert.True(c, removed["album/one.jpg"], "never received removal message for album/one.jpg")
		assert.True(c, removed["album/two.jpg"], "never received removal message for album/two.jpg")
	}, time.Second*2, time.Millisecond*100)

	storeMock.AssertCalled(t, "DeleteRecordWithSourcePath", "album/one.jpg")
	storeMock.AssertCalled(t, "DeleteRecordWithSourcePath", "album/two.jpg")
}

func Test_ResolveTroubledIngest_UnknownItem(t *testing.T) {
	t.Parallel()
	tempDir, _ := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	cfg := ingest.Config{LibraryPath: tempDir, ForceSyncSeconds: 100, IngestionParallelism: 1}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	scraperMock.On("ScrapeFileForTags", mock.Anything).Return(record.TagRecord{}, nil)
	storeMock.On("GetRecordByID", mock.Anything).Return(nil, record.ErrRecordNotFound)
	storeMock.On("SaveRecord", mock.Anything, mock.Anything).Return(digest.FromString("test"), nil)

	srv := startService(t, cfg, scraperMock, storeMock)

	assert.ErrorIs(t, srv.ResolveTroubledIngest(uuid.New(), ingest.Retry), ingest.ErrIngestNotFound)
}

func Test_ImportImages_PartialAndTotalFailure(t *testing.T) {
	t.Parallel()
	tempDir, _ := helpers.TempDirWithFiles(t, []string{"photo.jpg"})

	cfg := ingest.Config{
		LibraryPath:          tempDir,
		AssetsDirPath:        t.TempDir(),
		ForceSyncSeconds:     100,
		IngestionParallelism: 1,
	}
	scraperMock := &mockScraper{}
	storeMock := &mockStore{}

	scraperMock.On("ScrapeFileForTags", mock.Anything).Return(record.TagRecord{}, nil)
	storeMock.On("GetRecordByID", mock.Anything).Return(nil, record.ErrRecordNotFound)
	storeMock.On("SaveRecord", mock.Anything, mock.Anything).Return(digest.FromString("test"), nil)

	srv := startService(t, cfg, scraperMock, storeMock)

	// One record backed by a real library file, one that is unknown to
	// the store: the import succeeds with a nil asset for the latter.
	storeMock.On("GetRecordsWithIDs", []string{"photo.jpg", "missing.jpg"}).Return([]*record.Stored{
		{ID: "photo.jpg", Record: record.Record{FileName: "photo.jpg", SourcePath: "photo.jpg"}},
	}, nil).Once()

	results, err := srv.ImportImages([]string{"photo.jpg", "missing.jpg"})
	assert.Nil(t, err)
	if assert.Len(t, results, 2) {
		assert.Equal(t, "photo.jpg", results[0].RecordID)
		assert.NotNil(t, results[0].AssetPath)
		assert.Equal(t, "missing.jpg", results[1].RecordID)
		assert.Nil(t, results[1].AssetPath)
	}

	// When not a single record can be imported the call hard-fails.
	storeMock.On("GetRecordsWithIDs", []string{"missing.jpg"}).Return([]*record.Stored{}, nil).Once()
	_, err = srv.ImportImages([]string{"missing.jpg"})
	assert.NotNil(t, err)
}
