package record

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/mickaelmarchal/exifstream/internal/database"
	"github.com/opencontainers/go-digest"
)

var ErrRecordNotFound = errors.New("record does not exist")

type (
	storedModel struct {
		ID         string                      `db:"id"`
		FileName   string                      `db:"file_name"`
		SourcePath string                      `db:"source_path"`
		ModTime    string                      `db:"mtime"`
		Digest     string                      `db:"digest"`
		Data       database.JsonColumn[Record] `db:"data"`
		CreatedAt  time.Time                   `db:"created_at"`
		UpdatedAt  time.Time                   `db:"updated_at"`
	}

	// Stored is the public shape of a persisted record: the projected
	// Record plus its identity, content digest and bookkeeping times.
	Stored struct {
		ID        string
		Digest    digest.Digest
		Record    Record
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Store struct{}
)

func NewStore() *Store {
	return &Store{}
}

// GetByID fetches a single stored record; ErrRecordNotFound is
// returned when no row matches the provided identifier.
func (store *Store) GetByID(db database.Queryable, id string) (*Stored, error) {
	query, args, err := selectRecordBuilder().Where("records.id=?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct select record query: %w", err)
	}

	var model storedModel
	if err := db.Get(&model, db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return modelToStored(&model), nil
}

func (store *Store) List(db database.Queryable) ([]*Stored, error) {
	query, args, err := selectRecordBuilder().OrderBy("records.id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct list records query: %w", err)
	}

	var models []storedModel
	if err := db.Select(&models, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	output := make([]*Stored, len(models))
	for k, v := range models {
		output[k] = modelToStored(&v)
	}

	return output, nil
}

// GetWithIDs fetches the stored records matching any of the provided
// identifiers. Identifiers with no matching row are simply absent from
// the result; no error is raised for them.
func (store *Store) GetWithIDs(db database.Queryable, ids []string) ([]*Stored, error) {
	if len(ids) == 0 {
		return []*Stored{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM records WHERE id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}

	var models []storedModel
	if err := db.Select(&models, db.Rebind(query), args...); err != nil {
		return nil, err
	}

	output := make([]*Stored, len(models))
	for k, v := range models {
		output[k] = modelToStored(&v)
	}

	return output, nil
}

// GetAllSourcePaths returns the library-relative source path of every
// stored record.
func (store *Store) GetAllSourcePaths(db database.Queryable) ([]string, error) {
	var paths []string
	if err := db.Select(&paths, `SELECT source_path FROM records`); err != nil {
		return nil, err
	}

	return paths, nil
}

// Save upserts the record under the provided identifier. The rows
// content digest is computed over the records canonical JSON form; an
// existing row whose digest matches is left completely untouched so
// unchanged re-extractions are write-free. The computed digest is
// returned either way.
func (store *Store) Save(db database.Queryable, id string, rec Record) (digest.Digest, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record %s for digest: %w", id, err)
	}
	dgst := digest.FromBytes(raw)

	_, err = db.Exec(db.Rebind(`
		INSERT INTO records(id, file_name, source_path, mtime, digest, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, current_timestamp, current_timestamp)
		ON CONFLICT (id) DO UPDATE
			SET file_name=EXCLUDED.file_name, source_path=EXCLUDED.source_path,
			    mtime=EXCLUDED.mtime, digest=EXCLUDED.digest, data=EXCLUDED.data,
			    updated_at=current_timestamp
			WHERE records.digest != EXCLUDED.digest
	`), id, rec.FileName, rec.SourcePath, rec.ModTime, dgst.String(), string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to upsert record %s: %w", id, err)
	}

	return dgst, nil
}

func (store *Store) Delete(db database.Queryable, id string) error {
	_, err := db.Exec(db.Rebind(`DELETE FROM records WHERE id=?`), id)
	return err
}

// DeleteWithSourcePath removes the record (if any) whose source path
// matches; used when the watcher reports a file removal, as the record
// identifier may have had its extension stripped.
func (store *Store) DeleteWithSourcePath(db database.Queryable, sourcePath string) error {
	_, err := db.Exec(db.Rebind(`DELETE FROM records WHERE source_path=?`), sourcePath)
	return err
}

func selectRecordBuilder() squirrel.SelectBuilder {
	return squirrel.Select("records.*").From("records")
}

func modelToStored(model *storedModel) *Stored {
	stored := &Stored{
		ID:        model.ID,
		Digest:    digest.Digest(model.Digest),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}

	if rec := model.Data.Get(); rec != nil {
		stored.Record = *rec
	}
	stored.Record.FileName = model.FileName
	stored.Record.SourcePath = model.SourcePath
	stored.Record.ModTime = model.ModTime

	return stored
}
