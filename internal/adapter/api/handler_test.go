package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/adapter/searchindex"
	"github.com/burenotti/go_course_backend/internal/adapter/storage/memory"
	"github.com/burenotti/go_course_backend/internal/app/auth"
	batchservice "github.com/burenotti/go_course_backend/internal/app/batch"
	enrollmentservice "github.com/burenotti/go_course_backend/internal/app/enrollment"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopBus struct{}

func (nopBus) PublishEvents(...domain.Event) error { return nil }

type testServer struct {
	server     *Server
	index      *searchindex.Memory
	authorizer *auth.Authorizer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := memory.NewDirectory()
	dir.PutOrg(directory.Organisation{OrgID: "org-1", RootOrgID: "root-1"})
	dir.PutUser(directory.User{UserID: "creator", RootOrgID: "root-1"})
	dir.PutUser(directory.User{UserID: "alice", RootOrgID: "root-1"})
	dir.PutUser(directory.User{UserID: "bob", RootOrgID: "root-1"})
	dir.PutCourse(directory.Course{CourseID: "course-1", Name: "Go basics", Status: directory.CourseStatusLive})

	store := memory.NewStore()
	index := searchindex.NewMemory(logger)
	authorizer := &auth.Authorizer{Secret: "test", AccessTokenTTL: time.Hour}

	batches := batchservice.New(dir, dir, index, batchservice.Timeouts{
		Store: time.Second, Index: time.Second, Lookup: time.Second,
	}, time.UTC, logger)
	enrollments := enrollmentservice.New(dir, index, enrollmentservice.Timeouts{
		Store: time.Second, Index: time.Second, Lookup: time.Second,
	}, time.UTC, logger)

	server := NewServer(
		Logger(logger),
		DBContext(store),
		Authorizer(authorizer),
		BatchService(batches, batchservice.MemoryContext(store)),
		EnrollmentService(enrollments, enrollmentservice.MemoryContext(store)),
		MessageBus(nopBus{}),
	)
	return &testServer{server: server, index: index, authorizer: authorizer}
}

func (ts *testServer) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	if user != "" {
		token, err := ts.authorizer.GenerateAccessToken(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (ts *testServer) createBatch(t *testing.T, enrollmentType string) string {
	t.Helper()
	start := civil.DateOf(time.Now().UTC()).AddDays(1)
	body := `{"course_id":"course-1","name":"May","enrollment_type":"` + enrollmentType +
		`","start_date":"` + start.String() + `","end_date":"` + start.AddDays(30).String() +
		`","created_for":["org-1"]}`
	rec := ts.do(t, http.MethodPost, "/batches", "creator", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[CreateBatchResponse](t, rec).BatchID
}

func TestServer_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/batches/b-1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_CreateAndGetBatch(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, "open")

	rec := ts.do(t, http.MethodGet, "/batches/"+batchID, "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[BatchModel](t, rec)
	assert.Equal(t, batchID, got.BatchID)
	assert.Equal(t, "creator", got.CreatedBy)
	assert.Equal(t, "not-started", got.Status)
	assert.Equal(t, []string{"org-1"}, got.CreatedFor)
}

func TestServer_CreateBatchErrors(t *testing.T) {
	ts := newTestServer(t)
	start := civil.DateOf(time.Now().UTC()).AddDays(1).String()

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{
			name:   "missing name",
			body:   `{"course_id":"course-1","enrollment_type":"open","start_date":"` + start + `","created_for":["org-1"]}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "participants",
			body:   `{"course_id":"course-1","name":"x","enrollment_type":"open","start_date":"` + start + `","created_for":["org-1"],"participants":["alice"]}`,
			status: http.StatusBadRequest,
			code:   "INVALID_PARAMETER_VALUE",
		},
		{
			name:   "unknown course",
			body:   `{"course_id":"nope","name":"x","enrollment_type":"open","start_date":"` + start + `","created_for":["org-1"]}`,
			status: http.StatusBadRequest,
			code:   "INVALID_COURSE_ID",
		},
		{
			name:   "bad date",
			body:   `{"course_id":"course-1","name":"x","enrollment_type":"open","start_date":"10/05/2024","created_for":["org-1"]}`,
			status: http.StatusBadRequest,
			code:   "INVALID_DATE_FORMAT",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/batches", "creator", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.code != "" {
				assert.Equal(t, tc.code, decode[JsonErrorModel](t, rec).Code)
			}
		})
	}
}

func TestServer_UpdateBatch(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, "open")

	rec := ts.do(t, http.MethodPatch, "/batches/"+batchID, "creator", `{"course_id":"course-1","name":"June"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "June", decode[BatchModel](t, rec).Name)

	rec = ts.do(t, http.MethodPatch, "/batches/"+batchID, "alice", `{"course_id":"course-1","name":"July"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "UNAUTHORIZED_USER", decode[JsonErrorModel](t, rec).Code)
}

func TestServer_EnrollFlow(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, "open")
	base := "/batches/" + batchID

	rec := ts.do(t, http.MethodPost, base+"/enroll", "alice", `{"course_id":"course-1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, base+"/enroll", "bob", `{"course_id":"course-1","user_id":"alice"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts.index.Wait()
	rec = ts.do(t, http.MethodGet, base+"/participants", "creator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ParticipantsResponse](t, rec)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, []string{"alice"}, got.Participants)

	rec = ts.do(t, http.MethodPost, base+"/unenroll", "alice", `{"course_id":"course-1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, base+"/unenroll", "alice", `{"course_id":"course-1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "USER_NOT_ENROLLED_COURSE", decode[JsonErrorModel](t, rec).Code)
}

func TestServer_BulkParticipants(t *testing.T) {
	ts := newTestServer(t)
	batchID := ts.createBatch(t, "invite-only")
	base := "/batches/" + batchID

	rec := ts.do(t, http.MethodPost, base+"/enroll", "alice", `{"course_id":"course-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ENROLLMENT_TYPE_VALIDATION", decode[JsonErrorModel](t, rec).Code)

	rec = ts.do(t, http.MethodPost, base+"/participants", "creator", `{"course_id":"course-1","user_ids":["alice","bob"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode[ParticipantsResultResponse](t, rec).Results
	assert.Equal(t, enrollmentservice.ResultSuccess, results["alice"])
	assert.Equal(t, enrollmentservice.ResultSuccess, results["bob"])

	rec = ts.do(t, http.MethodPost, base+"/participants/remove", "creator", `{"course_id":"course-1","user_ids":["bob"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts.index.Wait()
	rec = ts.do(t, http.MethodGet, base+"/participants?active=true", "creator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice"}, decode[ParticipantsResponse](t, rec).Participants)

	rec = ts.do(t, http.MethodPost, base+"/participants", "creator", `{"course_id":"course-1","user_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
