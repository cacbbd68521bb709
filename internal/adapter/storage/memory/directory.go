package memory

import (
	"context"
	"sync"

	"github.com/burenotti/go_course_backend/internal/domain/directory"
)

type Directory struct {
	mu      sync.RWMutex
	users   map[string]directory.User
	orgs    map[string]directory.Organisation
	courses map[string]directory.Course
}

func NewDirectory() *Directory {
	return &Directory{
		users:   make(map[string]directory.User),
		orgs:    make(map[string]directory.Organisation),
		courses: make(map[string]directory.Course),
	}
}

func (d *Directory) PutUser(u directory.User) {
	d.mu.Lock()
	d.users[u.UserID] = u
	d.mu.Unlock()
}

func (d *Directory) PutOrg(o directory.Organisation) {
	d.mu.Lock()
	d.orgs[o.OrgID] = o
	d.mu.Unlock()
}

func (d *Directory) PutCourse(c directory.Course) {
	d.mu.Lock()
	d.courses[c.CourseID] = c
	d.mu.Unlock()
}

func (d *Directory) GetUserByID(_ context.Context, userID string) (*directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return &u, nil
}

func (d *Directory) GetUsersByIDs(_ context.Context, userIDs []string) (map[string]directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make(map[string]directory.User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := d.users[id]; ok {
			result[id] = u
		}
	}
	return result, nil
}

func (d *Directory) GetOrgByID(_ context.Context, orgID string) (*directory.Organisation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.orgs[orgID]
	if !ok {
		return nil, directory.ErrOrgNotFound
	}
	return &o, nil
}

func (d *Directory) GetCourse(_ context.Context, courseID string) (*directory.Course, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.courses[courseID]
	if !ok {
		return nil, directory.ErrCourseNotFound
	}
	return &c, nil
}
