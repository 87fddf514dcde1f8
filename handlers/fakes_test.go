package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"robot-console/models"
	"robot-console/repositories/base"
	"robot-console/services"
	"robot-console/transport"
	"robot-console/utils"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRobots serves a fixed robot set; err, when set, fails every call.
type fakeRobots struct {
	robots   map[int64]models.Robot
	download *services.Download
	history  []models.SubmissionRecord
	err      error
	filter   models.ListFilter
}

func (f *fakeRobots) List(_ context.Context, filter models.ListFilter) (*models.RobotList, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.filter = filter
	list := &models.RobotList{}
	for _, r := range f.robots {
		list.Data = append(list.Data, r)
	}
	list.Meta.Total = len(list.Data)
	return list, nil
}

func (f *fakeRobots) Get(_ context.Context, robotID int64) (*models.Robot, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.robots[robotID]
	if !ok {
		return nil, &transport.Error{Op: "get robot", StatusCode: http.StatusNotFound, Message: "Robot not found"}
	}
	return &r, nil
}

func (f *fakeRobots) Delete(_ context.Context, robotID int64) error {
	if f.err != nil {
		return f.err
	}
	delete(f.robots, robotID)
	return nil
}

func (f *fakeRobots) Download(context.Context, int64, int64) (*services.Download, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.download, nil
}

func (f *fakeRobots) History(_ context.Context, _ int64, limit int) ([]models.SubmissionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

// fakeDrafts keeps edit buffers in memory.
type fakeDrafts struct {
	mu        sync.Mutex
	buffers   map[string]*services.EditBuffer
	next      int
	submitErr error
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{buffers: make(map[string]*services.EditBuffer)}
}

func (f *fakeDrafts) view(id string, b *services.EditBuffer) *services.DraftView {
	return &services.DraftView{ID: id, Status: models.DraftOpen, Dirty: b.Dirty(), State: b.State()}
}

func (f *fakeDrafts) Create(_ context.Context, kind models.IntentKind, robotID int64) (*services.DraftView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b *services.EditBuffer
	switch kind {
	case models.IntentCreate:
		b = services.NewCreateBuffer()
	case models.IntentUpdate:
		b = services.NewUpdateBuffer(&models.Robot{ID: robotID, Name: "Existing"})
	default:
		return nil, models.NewValidationError("kind", string(kind), "must be create or update")
	}
	f.next++
	id := fmt.Sprintf("draft-%d", f.next)
	f.buffers[id] = b
	return f.view(id, b), nil
}

func (f *fakeDrafts) buffer(id string) (*services.EditBuffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buffers[id]
	if !ok {
		return nil, base.NewEntityNotFoundError("drafts", "ID "+id)
	}
	return b, nil
}

func (f *fakeDrafts) Get(_ context.Context, id string) (*services.DraftView, error) {
	b, err := f.buffer(id)
	if err != nil {
		return nil, err
	}
	return f.view(id, b), nil
}

func (f *fakeDrafts) Apply(_ context.Context, id string, fn func(*services.EditBuffer) error) (*services.DraftView, error) {
	b, err := f.buffer(id)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	return f.view(id, b), nil
}

func (f *fakeDrafts) StagedImage(_ context.Context, id string, index int) (models.ImageUpload, error) {
	b, err := f.buffer(id)
	if err != nil {
		return models.ImageUpload{}, err
	}
	return b.StagedImage(index)
}

func (f *fakeDrafts) Delete(_ context.Context, id string) error {
	if _, err := f.buffer(id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.buffers, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeDrafts) Submit(_ context.Context, id string) (*models.Robot, error) {
	b, err := f.buffer(id)
	if err != nil {
		return nil, err
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	in := b.Intent()
	robot := &models.Robot{ID: 77, Version: 1}
	if in.Name != nil {
		robot.Name = *in.Name
	}
	return robot, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, robots *fakeRobots, drafts *fakeDrafts) *echo.Echo {
	t.Helper()
	return NewServer(Server{
		Robots:         NewRobotHandler(robots),
		Drafts:         NewDraftHandler(drafts),
		Health:         NewHealthHandler(map[string]Pinger{"database": fakePinger{}}, 0),
		Metrics:        http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		MaxUploadBytes: 1 << 20,
		Logger:         testLogger(),
	})
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body any) *http.Request {
	var r io.Reader = http.NoBody
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

type part struct {
	field, filename string
	data            []byte
}

func multipartRequest(t *testing.T, target string, parts []part, values map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

// decode unmarshals a StandardResponse whose data is decoded into data.
func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) utils.StandardResponse {
	t.Helper()
	var envelope struct {
		utils.StandardResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	if data != nil && len(envelope.Data) > 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, data))
	}
	return envelope.StandardResponse
}

var errBoom = errors.New("boom")
