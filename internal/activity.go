package internal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mickaelmarchal/exifstream/internal/event"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
)

const (
	debounceDuration time.Duration = time.Second * 2
	maxTimerDuration time.Duration = time.Second * 5
)

type (
	broadcaster interface {
		BroadcastIngestUpdate(uuid.UUID) error
		BroadcastRecordUpdate(string) error
		BroadcastRecordRemove(string) error
	}

	eventKey struct {
		ev event.Event
		id string
	}

	// activityService connects the internal event bus to the websocket
	// broadcaster. Bursts of updates for the same resource are
	// debounced, with a max timer to guarantee an update is eventually
	// sent while a resource is being hammered.
	activityService struct {
		*sync.Mutex
		broadcaster
		eventBus       event.EventHandler
		debounceTimers map[eventKey]*time.Timer
		maxTimers      map[eventKey]*time.Timer
	}
)

func newActivityService(broadcaster broadcaster, eventBus event.EventHandler) *activityService {
	return &activityService{
		Mutex:          &sync.Mutex{},
		broadcaster:    broadcaster,
		eventBus:       eventBus,
		debounceTimers: make(map[eventKey]*time.Timer),
		maxTimers:      make(map[eventKey]*time.Timer),
	}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.IngestUpdateEvent, event.IngestCompleteEvent,
		event.RecordUpdateEvent, event.RecordCompleteEvent, event.RecordRemoveEvent)

	log.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	switch ev.Event {
	case event.IngestUpdateEvent, event.IngestCompleteEvent:
		ingestID, ok := ev.Payload.(uuid.UUID)
		if !ok {
			return errors.New("illegal payload (expected UUID)")
		}

		service.scheduleEventBroadcast(eventKey{ev: event.IngestUpdateEvent, id: ingestID.String()}, func() error {
			return service.BroadcastIngestUpdate(ingestID)
		})
	case event.RecordUpdateEvent, event.RecordCompleteEvent:
		recordID, ok := ev.Payload.(string)
		if !ok {
			return errors.New("illegal payload (expected record ID string)")
		}

		service.scheduleEventBroadcast(eventKey{ev: event.RecordUpdateEvent, id: recordID}, func() error {
			return service.BroadcastRecordUpdate(recordID)
		})
	case event.RecordRemoveEvent:
		recordID, ok := ev.Payload.(string)
		if !ok {
			return errors.New("illegal payload (expected record ID string)")
		}

		service.scheduleEventBroadcast(eventKey{ev: event.RecordRemoveEvent, id: recordID}, func() error {
			return service.BroadcastRecordRemove(recordID)
		})
	default:
		return errors.New("unknown event type")
	}

	return nil
}

func (service *activityService) scheduleEventBroadcast(resourceKey eventKey, handler func() error) {
	service.Lock()
	defer service.Unlock()

	broadcaster := func() { service.broadcast(resourceKey, handler) }

	// Cancel and re-set a debounce timer
	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
	}
	service.debounceTimers[resourceKey] = time.AfterFunc(debounceDuration, broadcaster)

	// Set a max timer if not already set
	if _, ok := service.maxTimers[resourceKey]; !ok {
		service.maxTimers[resourceKey] = time.AfterFunc(maxTimerDuration, broadcaster)
	}
}

func (service *activityService) broadcast(resourceKey eventKey, handler func() error) {
	service.Lock()
	defer service.Unlock()

	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
		delete(service.debounceTimers, resourceKey)
	}

	if t, ok := service.maxTimers[resourceKey]; ok {
		t.Stop()
		delete(service.maxTimers, resourceKey)
	}

	if err := handler(); err != nil {
		log.Emit(logger.ERROR, "Broadcast for %v failed: %v\n", resourceKey, err)
	}
}
