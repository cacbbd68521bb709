package pgutil

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leporo/sqlf"
	"github.com/r3labs/diff"
)

type BasePostgresStorage struct {
	storage.Tracker
	DB storage.DBContext
}

func NewBasePostgresStorage(db storage.DBContext) *BasePostgresStorage {
	return &BasePostgresStorage{
		DB: db,
	}
}

func (s *BasePostgresStorage) Close() {
	s.Clear()
}

func ViolatesConstraint(err error, constraintName string) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) &&
		pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) &&
		pgErr.ConstraintName == constraintName
}

// First returns the only row of a lookup by key, or notFoundErr when the lookup
// found nothing.
func First[V any](rows []V, err, notFoundErr error) (V, error) {
	if err != nil {
		return *new(V), err
	}
	if len(rows) == 0 {
		return *new(V), notFoundErr
	}
	return rows[0], nil
}

// MakeUpdateQuery turns a flat changelog into SET clauses.
func MakeUpdateQuery(stmt *sqlf.Stmt, updates diff.Changelog) (*sqlf.Stmt, error) {

	for _, upd := range updates {
		if upd.Type != diff.UPDATE {
			return nil, fmt.Errorf("invalid update type %q for %v", upd.Type, upd.Path)
		}
		if len(upd.Path) > 1 {
			return nil, fmt.Errorf("cannot process updates in nested structures: %v", upd.Path)
		}

		stmt = stmt.Set(upd.Path[0], upd.To)
	}
	return stmt, nil
}

func AssertUpdated(res sql.Result, err error, notUpdatedError error) error {
	if err != nil {
		return storage.InternalError(err)
	}

	affected, err := res.RowsAffected()

	if err != nil {
		return storage.InternalError(err)
	}

	if affected == 0 {
		return notUpdatedError
	}
	return nil
}

// EncodeList stores an id list as a JSON array in a text column.
func EncodeList(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

func DecodeList(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, storage.InternalError(err)
	}
	return ids, nil
}
