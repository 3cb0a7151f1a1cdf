package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Queryable is the union of the sqlx methods the stores require,
// satisfied by both *sqlx.DB and *sqlx.Tx so store methods can run
// inside or outside of a transaction.
type Queryable interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	Exec(query string, args ...interface{}) (sql.Result, error)
	NamedExec(query string, arg interface{}) (sql.Result, error)
	Rebind(query string) string
}

// JsonColumn wraps a value of any type so it can be scanned from, and
// valued to, a JSONB database column.
type JsonColumn[T any] struct {
	val *T
}

func NewJsonColumn[T any](val *T) JsonColumn[T] {
	return JsonColumn[T]{val: val}
}

func (column *JsonColumn[T]) Get() *T {
	return column.val
}

func (column *JsonColumn[T]) Scan(src any) error {
	if src == nil {
		column.val = nil
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T in to JsonColumn", src)
	}

	val := new(T)
	if err := json.Unmarshal(raw, val); err != nil {
		return err
	}

	column.val = val
	return nil
}

func (column JsonColumn[T]) Value() (driver.Value, error) {
	if column.val == nil {
		return nil, nil
	}

	raw, err := json.Marshal(column.val)
	if err != nil {
		return nil, err
	}

	return string(raw), nil
}
