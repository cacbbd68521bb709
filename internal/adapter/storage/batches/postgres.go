package batchstorage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	"github.com/burenotti/go_course_backend/internal/adapter/storage/pgutil"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/leporo/sqlf"
	"github.com/r3labs/diff"
)

type PostgresStorage struct {
	base   *pgutil.BasePostgresStorage
	logger *slog.Logger
}

func NewPostgresStorage(db storage.DBContext, logger *slog.Logger) *PostgresStorage {
	return &PostgresStorage{
		base:   pgutil.NewBasePostgresStorage(db),
		logger: logger,
	}
}

// row is the column layout of the batches table. Diff tags name the columns
// that may change after creation.
type row struct {
	BatchID           string    `diff:"-"`
	CourseID          string    `diff:"-"`
	CourseName        string    `diff:"course_name"`
	Name              string    `diff:"name"`
	Description       string    `diff:"description"`
	EnrollmentType    string    `diff:"enrollment_type"`
	Status            int       `diff:"status"`
	StartDate         string    `diff:"start_date"`
	EndDate           string    `diff:"end_date"`
	EnrollmentEndDate string    `diff:"enrollment_end_date"`
	CreatedBy         string    `diff:"-"`
	CreatedFor        string    `diff:"created_for"`
	Mentors           string    `diff:"mentors"`
	CreatedAt         time.Time `diff:"-"`
	UpdatedAt         time.Time `diff:"-"`
}

func toRow(s batch.Snapshot) row {
	return row{
		BatchID:           s.BatchID,
		CourseID:          s.CourseID,
		CourseName:        s.CourseName,
		Name:              s.Name,
		Description:       s.Description,
		EnrollmentType:    string(s.EnrollmentType),
		Status:            int(s.Status),
		StartDate:         batch.FormatDate(s.StartDate),
		EndDate:           batch.FormatDate(s.EndDate),
		EnrollmentEndDate: batch.FormatDate(s.EnrollmentEndDate),
		CreatedBy:         s.CreatedBy,
		CreatedFor:        pgutil.EncodeList(s.CreatedFor),
		Mentors:           pgutil.EncodeList(s.Mentors),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func fromRow(r row) (batch.Snapshot, error) {
	var (
		s   batch.Snapshot
		err error
	)
	s.BatchID = r.BatchID
	s.CourseID = r.CourseID
	s.CourseName = r.CourseName
	s.Name = r.Name
	s.Description = r.Description
	s.EnrollmentType = batch.EnrollmentType(r.EnrollmentType)
	s.Status = batch.Status(r.Status)
	s.CreatedBy = r.CreatedBy
	s.CreatedAt = r.CreatedAt
	s.UpdatedAt = r.UpdatedAt

	if s.StartDate, err = batch.ParseDate(r.StartDate); err != nil {
		return s, storage.InternalError(err)
	}
	if s.EndDate, err = batch.ParseDate(r.EndDate); err != nil {
		return s, storage.InternalError(err)
	}
	if s.EnrollmentEndDate, err = batch.ParseDate(r.EnrollmentEndDate); err != nil {
		return s, storage.InternalError(err)
	}
	if s.CreatedFor, err = pgutil.DecodeList(r.CreatedFor); err != nil {
		return s, err
	}
	if s.Mentors, err = pgutil.DecodeList(r.Mentors); err != nil {
		return s, err
	}
	return s, nil
}

func (s *PostgresStorage) Add(ctx context.Context, b *batch.Batch) error {
	r := toRow(b.Snapshot)
	q := sqlf.InsertInto("batches").
		Set("batch_id", r.BatchID).
		Set("course_id", r.CourseID).
		Set("course_name", r.CourseName).
		Set("name", r.Name).
		Set("description", r.Description).
		Set("enrollment_type", r.EnrollmentType).
		Set("status", r.Status).
		Set("start_date", r.StartDate).
		Set("end_date", r.EndDate).
		Set("enrollment_end_date", r.EnrollmentEndDate).
		Set("created_by", r.CreatedBy).
		Set("created_for", r.CreatedFor).
		Set("mentors", r.Mentors).
		Set("created_at", r.CreatedAt).
		Set("updated_at", r.UpdatedAt)

	if _, err := q.ExecAndClose(ctx, s.base.DB); err != nil {
		if pgutil.ViolatesConstraint(err, "batches_pkey") {
			return batch.ErrBatchExists
		}
		return storage.InternalError(err)
	}

	s.base.MarkSeen(b.BatchID, b)
	return nil
}

func (s *PostgresStorage) get(
	ctx context.Context,
	modify func(stmt *sqlf.Stmt) *sqlf.Stmt,
) ([]row, error) {
	var tmp row

	q := sqlf.From("batches b").
		Select("b.batch_id").To(&tmp.BatchID).
		Select("b.course_id").To(&tmp.CourseID).
		Select("b.course_name").To(&tmp.CourseName).
		Select("b.name").To(&tmp.Name).
		Select("b.description").To(&tmp.Description).
		Select("b.enrollment_type").To(&tmp.EnrollmentType).
		Select("b.status").To(&tmp.Status).
		Select("b.start_date").To(&tmp.StartDate).
		Select("b.end_date").To(&tmp.EndDate).
		Select("b.enrollment_end_date").To(&tmp.EnrollmentEndDate).
		Select("b.created_by").To(&tmp.CreatedBy).
		Select("b.created_for").To(&tmp.CreatedFor).
		Select("b.mentors").To(&tmp.Mentors).
		Select("b.created_at").To(&tmp.CreatedAt).
		Select("b.updated_at").To(&tmp.UpdatedAt)

	q = modify(q)
	defer q.Close()

	var rows []row
	err := q.Query(ctx, s.base.DB, func(_ *sql.Rows) {
		rows = append(rows, tmp)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storage.InternalError(err)
	}

	return rows, nil
}

func (s *PostgresStorage) getOne(ctx context.Context, courseID, batchID string) (row, error) {
	rows, err := s.get(ctx, func(stmt *sqlf.Stmt) *sqlf.Stmt {
		return stmt.Where("b.batch_id = ?", batchID).Where("b.course_id = ?", courseID)
	})
	return pgutil.First(rows, err, batch.ErrBatchNotFound)
}

func (s *PostgresStorage) GetByID(ctx context.Context, courseID, batchID string) (*batch.Batch, error) {
	r, err := s.getOne(ctx, courseID, batchID)
	if err != nil {
		return nil, err
	}
	snap, err := fromRow(r)
	if err != nil {
		return nil, err
	}
	b := batch.FromSnapshot(snap)
	s.base.MarkSeen(b.BatchID, b)
	return b, nil
}

// ListDue returns batches whose status lags behind their dates on today.
// Dates are stored as YYYY-MM-DD so text comparison orders them.
func (s *PostgresStorage) ListDue(ctx context.Context, today civil.Date) ([]*batch.Batch, error) {
	day := batch.FormatDate(today)
	rows, err := s.get(ctx, func(stmt *sqlf.Stmt) *sqlf.Stmt {
		return stmt.Where(
			"(b.status = ? AND b.start_date <= ?) OR (b.status = ? AND b.end_date <> '' AND b.end_date < ?)",
			int(batch.StatusNotStarted), day, int(batch.StatusStarted), day,
		).OrderBy("b.start_date")
	})
	if err != nil {
		return nil, err
	}

	result := make([]*batch.Batch, 0, len(rows))
	for _, r := range rows {
		snap, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		b := batch.FromSnapshot(snap)
		s.base.MarkSeen(b.BatchID, b)
		result = append(result, b)
	}
	return result, nil
}

// Persist writes the columns that differ from the stored row.
func (s *PostgresStorage) Persist(ctx context.Context, b *batch.Batch) error {
	dbState, err := s.getOne(ctx, b.CourseID, b.BatchID)
	if err != nil {
		return err
	}

	dirty := toRow(b.Snapshot)
	log, err := diff.Diff(dbState, dirty)
	if err != nil {
		return storage.InternalError(err)
	}

	s.base.MarkSeen(b.BatchID, b)
	if len(log) == 0 {
		return nil
	}

	q := sqlf.Update("batches").
		Where("batch_id = ?", b.BatchID).
		Where("course_id = ?", b.CourseID)
	if q, err = pgutil.MakeUpdateQuery(q, log); err != nil {
		return storage.InternalError(err)
	}
	q = q.Set("updated_at", dirty.UpdatedAt)

	res, err := q.ExecAndClose(ctx, s.base.DB)
	return pgutil.AssertUpdated(res, err, batch.ErrBatchNotFound)
}

func (s *PostgresStorage) Close() error {
	s.base.Close()
	return nil
}

func (s *PostgresStorage) CollectEvents() []domain.Event {
	return s.base.CollectEvents()
}
