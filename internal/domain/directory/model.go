// Package directory holds the user, organisation and course records the
// batch workflows validate references against.
package directory

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrOrgNotFound    = errors.New("organisation not found")
	ErrCourseNotFound = errors.New("course not found")
)

type User struct {
	UserID    string
	RootOrgID string
	IsDeleted bool
}

type Organisation struct {
	OrgID     string
	RootOrgID string
}

const CourseStatusLive = "Live"

type Course struct {
	CourseID string
	Name     string
	Status   string
}

func (c Course) IsLive() bool {
	return c.Status == CourseStatusLive
}
