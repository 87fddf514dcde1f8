package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"robot-console/converter"
	"robot-console/models"
	"robot-console/repositories/base"
	"robot-console/transport"

	"github.com/gorilla/mux"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUpstream is an in-memory robot API routed with mux.
type fakeUpstream struct {
	mu       sync.Mutex
	robots   map[int64]models.Robot
	nextID   int64
	lastForm map[string][]string
	lastFile map[string][]string
	failWith int
	hold      chan struct{}
	getCalls  atomic.Int32
	listCalls atomic.Int32
	posts    atomic.Int32
	server   *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{robots: map[int64]models.Robot{}, nextID: 100}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/robots", f.list).Methods(http.MethodGet)
	api.HandleFunc("/robots", f.save).Methods(http.MethodPost)
	api.HandleFunc("/robots/{id:[0-9]+}", f.get).Methods(http.MethodGet)
	api.HandleFunc("/robots/{id:[0-9]+}", f.save).Methods(http.MethodPost)
	api.HandleFunc("/robots/{id:[0-9]+}", f.delete).Methods(http.MethodDelete)
	api.HandleFunc("/robots/{id:[0-9]+}/files/{fileId:[0-9]+}/download", f.download).Methods(http.MethodGet)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) baseURL() string { return f.server.URL + "/api/" }

func (f *fakeUpstream) put(robot models.Robot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.robots[robot.ID] = robot
}

func (f *fakeUpstream) form() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm
}

func (f *fakeUpstream) files() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFile
}

func (f *fakeUpstream) setFailure(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeUpstream) robotID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (f *fakeUpstream) list(w http.ResponseWriter, r *http.Request) {
	f.listCalls.Add(1)
	f.waitHold()
	f.mu.Lock()
	defer f.mu.Unlock()
	data := []models.Robot{}
	for _, robot := range f.robots {
		if lang := r.URL.Query().Get("language"); lang != "" && string(robot.Language) != lang {
			continue
		}
		data = append(data, robot)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": models.ListMeta{CurrentPage: 1, LastPage: 1, PerPage: 15, Total: len(data)},
	})
}

// holdReads makes list and robot reads wait until the returned channel is
// closed.
func (f *fakeUpstream) holdReads() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = make(chan struct{})
	return f.hold
}

func (f *fakeUpstream) waitHold() {
	f.mu.Lock()
	hold := f.hold
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
}

func (f *fakeUpstream) get(w http.ResponseWriter, r *http.Request) {
	f.getCalls.Add(1)
	f.waitHold()
	f.mu.Lock()
	defer f.mu.Unlock()
	robot, ok := f.robots[f.robotID(r)]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Robot not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": robot})
}

// save applies the multipart form the way the robot API does: only the
// fields present are changed, version bumps when create_version=1.
func (f *fakeUpstream) save(w http.ResponseWriter, r *http.Request) {
	f.posts.Add(1)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastForm = r.MultipartForm.Value
	f.lastFile = map[string][]string{}
	for name, headers := range r.MultipartForm.File {
		for _, h := range headers {
			f.lastFile[name] = append(f.lastFile[name], h.Filename)
		}
	}
	if f.failWith != 0 {
		writeJSON(w, f.failWith, map[string]any{
			"message": "The given data was invalid.",
			"errors":  map[string][]string{"name": {"The name has already been taken."}},
		})
		return
	}

	var robot models.Robot
	status := http.StatusOK
	if id := f.robotID(r); id > 0 {
		existing, ok := f.robots[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Robot not found."})
			return
		}
		robot = existing
	} else {
		f.nextID++
		robot = models.Robot{ID: f.nextID, Version: 1, CreatedAt: time.Now().UTC()}
		status = http.StatusCreated
	}

	form := r.MultipartForm.Value
	if v, ok := form["name"]; ok {
		robot.Name = v[0]
	}
	if v, ok := form["description"]; ok {
		robot.Description = v[0]
	}
	if v, ok := form["language"]; ok {
		robot.Language = models.Language(v[0])
	}
	if v, ok := form["code"]; ok {
		robot.Code = v[0]
	}
	if v, ok := form["is_active"]; ok {
		robot.IsActive = v[0] == "1"
	}
	if v, ok := form["tags[]"]; ok {
		robot.Tags = v
	}
	if v, ok := form["create_version"]; ok && v[0] == "1" {
		robot.Version++
	}
	for i, h := range r.MultipartForm.File["images[]"] {
		robot.Images = append(robot.Images, models.Image{
			ID:   int64(len(robot.Images) + 1),
			URL:  "\\/storage\\/robots\\/" + h.Filename,
			Path: "robots/" + h.Filename,
		})
		if titles := form[fmt.Sprintf("image_titles[%d]", i)]; len(titles) > 0 {
			title := titles[0]
			robot.Images[len(robot.Images)-1].Title = &title
		}
	}
	for _, h := range r.MultipartForm.File["files[]"] {
		robot.Files = append(robot.Files, models.File{
			ID:           int64(len(robot.Files) + 1),
			OriginalName: h.Filename,
			URL:          "/storage/files/" + h.Filename,
		})
	}
	robot.UpdatedAt = time.Now().UTC()
	f.robots[robot.ID] = robot
	writeJSON(w, status, map[string]any{"data": robot})
}

func (f *fakeUpstream) delete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.robotID(r)
	if _, ok := f.robots[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Robot not found."})
		return
	}
	delete(f.robots, id)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeUpstream) download(w http.ResponseWriter, r *http.Request) {
	if mux.Vars(r)["fileId"] == "1" {
		w.Header().Set("Content-Disposition", `attachment; filename="strategy.psf"`)
		_, _ = w.Write([]byte("PSF"))
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Storage unavailable."})
}

// memoryCache implements RobotCache.
type memoryCache struct {
	mu     sync.Mutex
	robots map[int64]models.Robot
	lists  map[string]models.RobotList
}

func newMemoryCache() *memoryCache {
	return &memoryCache{robots: map[int64]models.Robot{}, lists: map[string]models.RobotList{}}
}

func (c *memoryCache) GetRobot(_ context.Context, id int64) (*models.Robot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	robot, ok := c.robots[id]
	if !ok {
		return nil, nil
	}
	return robot.Clone(), nil
}

func (c *memoryCache) SetRobot(_ context.Context, robot *models.Robot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.robots[robot.ID] = *robot.Clone()
	return nil
}

func (c *memoryCache) GetList(_ context.Context, key string) (*models.RobotList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.lists[key]
	if !ok {
		return nil, nil
	}
	return list.Clone(), nil
}

func (c *memoryCache) SetList(_ context.Context, key string, list *models.RobotList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = *list.Clone()
	return nil
}

func (c *memoryCache) InvalidateRobot(ctx context.Context, id int64) error {
	c.mu.Lock()
	delete(c.robots, id)
	c.mu.Unlock()
	return c.InvalidateLists(ctx)
}

func (c *memoryCache) InvalidateLists(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists = map[string]models.RobotList{}
	return nil
}

// recordingEvents implements EventPublisher.
type recordingEvents struct {
	mu     sync.Mutex
	events []models.RobotEvent
}

func (e *recordingEvents) PublishRobotEvent(_ context.Context, event models.RobotEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEvents) all() []models.RobotEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.RobotEvent(nil), e.events...)
}

// memoryAudit implements SubmissionAuditor.
type memoryAudit struct {
	mu      sync.Mutex
	records []models.SubmissionRecord
}

func (a *memoryAudit) Record(_ context.Context, record *models.SubmissionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *record)
	return nil
}

func (a *memoryAudit) ListByRobot(_ context.Context, robotID int64, _ int) ([]models.SubmissionRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.SubmissionRecord
	for i := len(a.records) - 1; i >= 0; i-- {
		if a.records[i].RobotID == robotID {
			out = append(out, a.records[i])
		}
	}
	return out, nil
}

func (a *memoryAudit) all() []models.SubmissionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.SubmissionRecord(nil), a.records...)
}

// memoryDrafts implements interfaces.DraftRepositoryInterface with the same
// conditional-update semantics as the gorm repository.
type memoryDrafts struct {
	mu     sync.Mutex
	drafts map[string]models.Draft
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{drafts: map[string]models.Draft{}}
}

func copyDraft(d models.Draft) models.Draft {
	d.State = append([]byte(nil), d.State...)
	d.Attachments = append([]models.DraftAttachment(nil), d.Attachments...)
	return d
}

func (m *memoryDrafts) Create(_ context.Context, draft *models.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[draft.ID]; ok {
		return base.NewDuplicateEntityError("drafts", "id", draft.ID)
	}
	now := time.Now().UTC()
	draft.CreatedAt, draft.UpdatedAt = now, now
	m.drafts[draft.ID] = copyDraft(*draft)
	return nil
}

func (m *memoryDrafts) GetByID(_ context.Context, id string) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, base.NewEntityNotFoundError("drafts", "ID "+id)
	}
	d = copyDraft(d)
	return &d, nil
}

func (m *memoryDrafts) Save(_ context.Context, draft *models.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draft.ID]
	if !ok {
		return base.NewEntityNotFoundError("drafts", "ID "+draft.ID)
	}
	if d.Status != models.DraftOpen || !d.UpdatedAt.Equal(draft.UpdatedAt) {
		return base.NewStateConflictError("drafts", "ID "+draft.ID, "open at the loaded revision")
	}
	draft.UpdatedAt = time.Now().UTC().Add(time.Microsecond)
	d.Kind, d.RobotID, d.State, d.UpdatedAt = draft.Kind, draft.RobotID, draft.State, draft.UpdatedAt
	d.Attachments = draft.Attachments
	m.drafts[draft.ID] = copyDraft(d)
	return nil
}

func (m *memoryDrafts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[id]; !ok {
		return base.NewEntityNotFoundError("drafts", "ID "+id)
	}
	delete(m.drafts, id)
	return nil
}

func (m *memoryDrafts) Transition(_ context.Context, id string, from, to models.DraftStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return base.NewEntityNotFoundError("drafts", "ID "+id)
	}
	if d.Status != from {
		return base.NewStateConflictError("drafts", "ID "+id, string(from))
	}
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	m.drafts[id] = d
	return nil
}

func (m *memoryDrafts) ReopenSubmitting(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.drafts {
		if d.Status == models.DraftSubmitting {
			d.Status = models.DraftOpen
			m.drafts[id] = d
			n++
		}
	}
	return n, nil
}

func (m *memoryDrafts) DeleteIdleSince(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.drafts {
		if d.Status == models.DraftOpen && d.UpdatedAt.Before(cutoff) {
			delete(m.drafts, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryDrafts) status(id string) models.DraftStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drafts[id].Status
}

// newTestRobotService wires a RobotService against a fake upstream.
func newTestRobotService(t *testing.T) (*RobotService, *fakeUpstream, *memoryCache, *recordingEvents, *memoryAudit) {
	t.Helper()
	upstream := newFakeUpstream(t)
	cache := newMemoryCache()
	events := &recordingEvents{}
	audit := &memoryAudit{}
	api := transport.NewHTTPTransport(upstream.baseURL(), 5*time.Second, testLogger())
	svc := NewRobotService(api, converter.NewNormalizer(upstream.baseURL()), cache, events, audit, nil, testLogger())
	return svc, upstream, cache, events, audit
}
