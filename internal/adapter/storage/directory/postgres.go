package directorystorage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	"github.com/burenotti/go_course_backend/internal/domain/directory"
	"github.com/leporo/sqlf"
)

// PostgresStorage reads the user, organisation and course tables. It is
// shared by all requests and never runs inside a unit of work.
type PostgresStorage struct {
	db storage.DBContext
}

func NewPostgresStorage(db storage.DBContext) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) users(ctx context.Context, where string, args ...any) ([]directory.User, error) {
	var tmp directory.User
	q := sqlf.From("users u").
		Select("u.user_id").To(&tmp.UserID).
		Select("u.root_org_id").To(&tmp.RootOrgID).
		Select("u.is_deleted").To(&tmp.IsDeleted).
		Where(where, args...)

	var users []directory.User
	if err := q.QueryAndClose(ctx, s.db, func(_ *sql.Rows) {
		users = append(users, tmp)
	}); err != nil {
		return nil, storage.InternalError(err)
	}
	return users, nil
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, userID string) (*directory.User, error) {
	users, err := s.users(ctx, "u.user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, directory.ErrUserNotFound
	}
	return &users[0], nil
}

// GetUsersByIDs returns the users that exist, keyed by id.
func (s *PostgresStorage) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]directory.User, error) {
	result := make(map[string]directory.User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	users, err := s.users(ctx, "u.user_id = ANY(?)", userIDs)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.UserID] = u
	}
	return result, nil
}

func (s *PostgresStorage) GetOrgByID(ctx context.Context, orgID string) (*directory.Organisation, error) {
	var org directory.Organisation
	q := sqlf.From("organisations o").
		Select("o.org_id").To(&org.OrgID).
		Select("o.root_org_id").To(&org.RootOrgID).
		Where("o.org_id = ?", orgID)

	if err := q.QueryRowAndClose(ctx, s.db); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, directory.ErrOrgNotFound
		}
		return nil, storage.InternalError(err)
	}
	return &org, nil
}

func (s *PostgresStorage) GetCourse(ctx context.Context, courseID string) (*directory.Course, error) {
	var c directory.Course
	q := sqlf.From("courses c").
		Select("c.course_id").To(&c.CourseID).
		Select("c.name").To(&c.Name).
		Select("c.status").To(&c.Status).
		Where("c.course_id = ?", courseID)

	if err := q.QueryRowAndClose(ctx, s.db); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, directory.ErrCourseNotFound
		}
		return nil, storage.InternalError(err)
	}
	return &c, nil
}
