package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mickaelmarchal/exifstream/internal/api"
	"github.com/mickaelmarchal/exifstream/internal/database"
	"github.com/mickaelmarchal/exifstream/internal/event"
	"github.com/mickaelmarchal/exifstream/internal/exif"
	"github.com/mickaelmarchal/exifstream/internal/ingest"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		BroadcastIngestUpdate(uuid.UUID) error
		BroadcastRecordUpdate(string) error
		BroadcastRecordRemove(string) error
	}

	IngestService interface {
		RunnableService
		RemoveIngest(uuid.UUID) error
		GetIngest(uuid.UUID) *ingest.IngestItem
		GetAllIngests() []*ingest.IngestItem
		DiscoverNewFiles()
		ResolveTroubledIngest(uuid.UUID, ingest.ResolutionType) error
		ImportImages([]string) ([]ingest.ImportResult, error)
	}
)

// exifstreamImpl represents the top-level object for the server, and is
// responsible for initialising the stores, services, event handling,
// et cetera...
type exifstreamImpl struct {
	eventBus        event.EventCoordinator
	activityService *activityService
	config          ExifstreamConfig
	db              database.Manager
	store           *dataOrchestrator

	restGateway   RestGateway
	ingestService IngestService
	scraper       *exif.Scraper
}

// New bootstraps the Exifstream services using the config provided.
// Failures constructing any service are fatal to startup.
func New(config ExifstreamConfig) *exifstreamImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Exifstream services using config: %#v\n", config)

	stream := &exifstreamImpl{
		eventBus: event.New(),
		config:   config,
		db:       database.New(),
	}
	stream.store = newDataOrchestrator(stream.db)

	scraper, err := exif.NewScraper()
	if err != nil {
		panic(fmt.Sprintf("failed to construct metadata scraper due to error: %s", err.Error()))
	}
	stream.scraper = scraper

	if serv, err := ingest.New(config.IngestService, scraper, stream.store, stream.eventBus); err == nil {
		stream.ingestService = serv
	} else {
		panic(fmt.Sprintf("failed to construct ingestion service due to error: %s", err.Error()))
	}

	stream.restGateway = api.NewRestGateway(&config.RestConfig, stream.ingestService, stream.store, config.IngestService.LibraryPath)
	stream.activityService = newActivityService(stream.restGateway, stream.eventBus)

	return stream
}

// Run will start Exifstream by bringing up all required services and
// connections (database, ingestion, REST gateway, activity feed).
//
// This function will not return until Exifstream is stopped. To stop
// Exifstream, the provided context must be cancelled. Errors from which
// Exifstream cannot recover will also cause it to stop.
func (stream *exifstreamImpl) Run(parent context.Context) error {
	defer stream.scraper.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	if err := stream.db.Connect(stream.config.Database); err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	stream.spawnAsyncService(ctx, wg, stream.ingestService, "ingest-service", crashHandler)
	stream.spawnAsyncService(ctx, wg, stream.restGateway, "rest-gateway", crashHandler)
	stream.spawnAsyncService(ctx, wg, stream.activityService, "activity-service", crashHandler)
	log.Emit(logger.SUCCESS, "Exifstream services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as its own
// go-routine, ensuring that the service waitgroup is updated correctly
func (stream *exifstreamImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
