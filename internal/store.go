package internal

import (
	"github.com/mickaelmarchal/exifstream/internal/database"
	"github.com/mickaelmarchal/exifstream/internal/record"
	"github.com/opencontainers/go-digest"
)

type (
	// dataOrchestrator is responsible for managing access to Exifstream's
	// persisted resources. You can think of the data stores below this
	// layer as being 'dumb', with this orchestrator linking them together
	// and providing the database connection.
	dataOrchestrator struct {
		db          database.Manager
		RecordStore *record.Store
	}
)

func newDataOrchestrator(db database.Manager) *dataOrchestrator {
	return &dataOrchestrator{
		db:          db,
		RecordStore: record.NewStore(),
	}
}

func (orchestrator *dataOrchestrator) GetRecordByID(id string) (*record.Stored, error) {
	return orchestrator.RecordStore.GetByID(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *dataOrchestrator) ListRecords() ([]*record.Stored, error) {
	return orchestrator.RecordStore.List(orchestrator.db.GetSqlxDb())
}

func (orchestrator *dataOrchestrator) GetRecordsWithIDs(ids []string) ([]*record.Stored, error) {
	return orchestrator.RecordStore.GetWithIDs(orchestrator.db.GetSqlxDb(), ids)
}

func (orchestrator *dataOrchestrator) GetAllRecordSourcePaths() ([]string, error) {
	return orchestrator.RecordStore.GetAllSourcePaths(orchestrator.db.GetSqlxDb())
}

func (orchestrator *dataOrchestrator) SaveRecord(id string, rec record.Record) (digest.Digest, error) {
	return orchestrator.RecordStore.Save(orchestrator.db.GetSqlxDb(), id, rec)
}

func (orchestrator *dataOrchestrator) DeleteRecord(id string) error {
	return orchestrator.RecordStore.Delete(orchestrator.db.GetSqlxDb(), id)
}

func (orchestrator *dataOrchestrator) DeleteRecordWithSourcePath(sourcePath string) error {
	return orchestrator.RecordStore.DeleteWithSourcePath(orchestrator.db.GetSqlxDb(), sourcePath)
}
