// Package event holds the names of the events emitted by the services
// of Exifstream, and the coordinator used to dispatch them to other,
// silo'd parts of the architecture.
package event

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
)

var log = logger.Get("Event")

type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		sync.Mutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

// Ingest events carry the uuid.UUID of the ingest item; record events
// carry the string ID of the stored record.
const (
	IngestUpdateEvent   Event = "ingest:update"
	IngestCompleteEvent Event = "ingest:complete"

	RecordUpdateEvent   Event = "record:update"
	RecordCompleteEvent Event = "record:complete"
	RecordRemoveEvent   Event = "record:remove"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event messages on
// the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// If the channel is BLOCKED when the event bus attempts to send the message on the handler channel,
// then the thread dispatching the event will also be BLOCKED. It is recommended to buffer the handler
// channels appropriately to avoid dispatcher-side blocking.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.Lock()
	defer handler.Unlock()

	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction takes an event type and a handler method which will be stored
// and called with the payload for the event whenever it is dispatched.
// The handle provided should be guaranteed to return quickly, else other threads calling
// Dispatch on this event bus will be blocked.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction accepts an Event and a HandlerMethod which will be stored and
// called inside of a goroutine when the event is handled.
// The speed at which this handle runs is not important to the event bus, unlike RegisterHandlerFunction.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.Lock()
	defer handler.Unlock()

	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch takes an event type and a payload and delivers the payload to every handler
// registered for the event type provided.
// Note that this method WILL block if a synchronous handler function is blocking, or if
// channel handlers are blocked.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := handler.validatePayload(event, payload); err != nil {
		log.Emit(logger.FATAL, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	handler.Lock()
	fnHandles := handler.fnHandlers[event]
	chanHandles := handler.chanHandlers[event]
	handler.Unlock()

	for _, handle := range fnHandles {
		if handle.async {
			go handle.handle(event, payload)
		} else {
			handle.handle(event, payload)
		}
	}

	if len(chanHandles) > 0 {
		payload := HandlerEvent{event, payload}
		for _, handle := range chanHandles {
			handle <- payload
		}
	}
}

// validatePayload ensures the payload type matches the contract for the
// event being dispatched: ingest events carry item UUIDs, record events
// carry the string record ID.
func (handler *eventHandler) validatePayload(event Event, payload Payload) error {
	switch event {
	case IngestUpdateEvent, IngestCompleteEvent:
		if _, ok := payload.(uuid.UUID); !ok {
			return fmt.Errorf("payload %#v for event %v must be a uuid.UUID", payload, event)
		}
	case RecordUpdateEvent, RecordCompleteEvent, RecordRemoveEvent:
		if _, ok := payload.(string); !ok {
			return fmt.Errorf("payload %#v for event %v must be a string record ID", payload, event)
		}
	}

	return nil
}
