package api

import (
	"github.com/google/uuid"
	"github.com/mickaelmarchal/exifstream/internal/api/ingests"
	"github.com/mickaelmarchal/exifstream/internal/api/records"
	"github.com/mickaelmarchal/exifstream/internal/http/websocket"
)

const (
	TitleIngestUpdate = "INGEST_UPDATE"
	TitleRecordUpdate = "RECORD_UPDATE"
	TitleRecordRemove = "RECORD_REMOVE"
)

type (
	IngestUpdate struct {
		IngestID uuid.UUID          `json:"ingest_id"`
		Ingest   *ingests.IngestDto `json:"ingest"`
	}

	RecordUpdate struct {
		RecordID string             `json:"record_id"`
		Record   *records.RecordDto `json:"record"`
	}

	RecordRemove struct {
		RecordID string `json:"record_id"`
	}

	// broadcaster pushes activity updates to connected websocket
	// clients. Updates carry the current DTO for the resource, or nil
	// when the resource no longer exists (completed ingests that were
	// purged, deleted records).
	broadcaster struct {
		socketHub     *websocket.SocketHub
		ingestService ingests.IngestService
		recordStore   records.Store
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, ingestService ingests.IngestService, recordStore records.Store) *broadcaster {
	return &broadcaster{socketHub, ingestService, recordStore}
}

func (hub *broadcaster) BroadcastIngestUpdate(id uuid.UUID) error {
	update := IngestUpdate{IngestID: id}
	if item := hub.ingestService.GetIngest(id); item != nil {
		update.Ingest = ingests.NewDto(item)
	}

	hub.broadcast(TitleIngestUpdate, update)
	return nil
}

func (hub *broadcaster) BroadcastRecordUpdate(id string) error {
	update := RecordUpdate{RecordID: id}
	if stored, err := hub.recordStore.GetRecordByID(id); err == nil {
		update.Record = records.NewDto(stored)
	}

	hub.broadcast(TitleRecordUpdate, update)
	return nil
}

func (hub *broadcaster) BroadcastRecordRemove(id string) error {
	hub.broadcast(TitleRecordRemove, RecordRemove{RecordID: id})
	return nil
}

func (hub *broadcaster) broadcast(title string, update any) {
	hub.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}
