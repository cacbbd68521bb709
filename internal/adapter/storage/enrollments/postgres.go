package enrollmentstorage

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	"github.com/burenotti/go_course_backend/internal/adapter/storage/pgutil"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
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

type row struct {
	BatchID    string    `diff:"-"`
	UserID     string    `diff:"-"`
	CourseID   string    `diff:"-"`
	Active     bool      `diff:"active"`
	Progress   int       `diff:"progress"`
	AddedBy    string    `diff:"added_by"`
	EnrolledOn time.Time `diff:"-"`
	UpdatedAt  time.Time `diff:"-"`
}

func toRow(s enrollment.Snapshot) row {
	return row{
		BatchID:    s.BatchID,
		UserID:     s.UserID,
		CourseID:   s.CourseID,
		Active:     s.Active,
		Progress:   int(s.Progress),
		AddedBy:    s.AddedBy,
		EnrolledOn: s.EnrolledOn,
		UpdatedAt:  s.UpdatedAt,
	}
}

func fromRow(r row) enrollment.Snapshot {
	return enrollment.Snapshot{
		BatchID:    r.BatchID,
		UserID:     r.UserID,
		CourseID:   r.CourseID,
		Active:     r.Active,
		Progress:   enrollment.Progress(r.Progress),
		AddedBy:    r.AddedBy,
		EnrolledOn: r.EnrolledOn,
		UpdatedAt:  r.UpdatedAt,
	}
}

// insertQuery inserts the enrollment, or reactivates an inactive row with the
// same identity. A row that is already active is left alone and affects no
// rows, so concurrent first enrollments end with one active row.
func insertQuery(r row) *sqlf.Stmt {
	return sqlf.InsertInto("enrollments").
		Set("batch_id", r.BatchID).
		Set("user_id", r.UserID).
		Set("course_id", r.CourseID).
		Set("active", r.Active).
		Set("progress", r.Progress).
		Set("added_by", r.AddedBy).
		Set("enrolled_on", r.EnrolledOn).
		Set("updated_at", r.UpdatedAt).
		Clause("ON CONFLICT (batch_id, user_id) DO UPDATE SET " +
			"active = EXCLUDED.active, added_by = EXCLUDED.added_by, updated_at = EXCLUDED.updated_at " +
			"WHERE enrollments.active = false")
}

// Add reports an already active enrollment as a duplicate.
func (s *PostgresStorage) Add(ctx context.Context, e *enrollment.Enrollment) error {
	res, err := insertQuery(toRow(e.Snapshot)).ExecAndClose(ctx, s.base.DB)
	if err := pgutil.AssertUpdated(res, err, enrollment.ErrUserAlreadyEnrolledCourse); err != nil {
		return err
	}

	s.base.MarkSeen(e.ID(), e)
	return nil
}

func (s *PostgresStorage) get(
	ctx context.Context,
	modify func(stmt *sqlf.Stmt) *sqlf.Stmt,
) ([]enrollment.Snapshot, error) {
	var tmp row

	q := sqlf.From("enrollments e").
		Select("e.batch_id").To(&tmp.BatchID).
		Select("e.user_id").To(&tmp.UserID).
		Select("e.course_id").To(&tmp.CourseID).
		Select("e.active").To(&tmp.Active).
		Select("e.progress").To(&tmp.Progress).
		Select("e.added_by").To(&tmp.AddedBy).
		Select("e.enrolled_on").To(&tmp.EnrolledOn).
		Select("e.updated_at").To(&tmp.UpdatedAt)

	q = modify(q)
	defer q.Close()

	var result []enrollment.Snapshot
	if err := q.Query(ctx, s.base.DB, func(_ *sql.Rows) {
		result = append(result, fromRow(tmp))
	}); err != nil {
		return nil, storage.InternalError(err)
	}
	return result, nil
}

func (s *PostgresStorage) GetByID(ctx context.Context, batchID, userID string) (*enrollment.Enrollment, error) {
	rows, err := s.get(ctx, func(stmt *sqlf.Stmt) *sqlf.Stmt {
		return stmt.Where("e.batch_id = ?", batchID).Where("e.user_id = ?", userID)
	})
	found, err := pgutil.First(rows, err, enrollment.ErrEnrollmentNotFound)
	if err != nil {
		return nil, err
	}
	e := enrollment.FromSnapshot(found)
	s.base.MarkSeen(e.ID(), e)
	return e, nil
}

func (s *PostgresStorage) ListByBatch(ctx context.Context, batchID string, activeOnly bool) ([]*enrollment.Enrollment, error) {
	rows, err := s.get(ctx, func(stmt *sqlf.Stmt) *sqlf.Stmt {
		stmt = stmt.Where("e.batch_id = ?", batchID)
		if activeOnly {
			stmt = stmt.Where("e.active = ?", true)
		}
		return stmt.OrderBy("e.enrolled_on")
	})
	if err != nil {
		return nil, err
	}

	result := make([]*enrollment.Enrollment, 0, len(rows))
	for _, snap := range rows {
		e := enrollment.FromSnapshot(snap)
		s.base.MarkSeen(e.ID(), e)
		result = append(result, e)
	}
	return result, nil
}

func (s *PostgresStorage) Persist(ctx context.Context, e *enrollment.Enrollment) error {
	current, err := s.GetByID(ctx, e.BatchID, e.UserID)
	if err != nil {
		return err
	}

	dirty := toRow(e.Snapshot)
	log, err := diff.Diff(toRow(current.Snapshot), dirty)
	if err != nil {
		return storage.InternalError(err)
	}

	// GetByID tracked the fresh copy; track the caller's aggregate instead.
	s.base.MarkSeen(e.ID(), e)
	if len(log) == 0 {
		return nil
	}

	q := sqlf.Update("enrollments").
		Where("batch_id = ?", e.BatchID).
		Where("user_id = ?", e.UserID)
	if q, err = pgutil.MakeUpdateQuery(q, log); err != nil {
		return storage.InternalError(err)
	}
	q = q.Set("updated_at", dirty.UpdatedAt)

	res, err := q.ExecAndClose(ctx, s.base.DB)
	return pgutil.AssertUpdated(res, err, enrollment.ErrEnrollmentNotFound)
}

func (s *PostgresStorage) Close() error {
	s.base.Close()
	return nil
}

func (s *PostgresStorage) CollectEvents() []domain.Event {
	return s.base.CollectEvents()
}
