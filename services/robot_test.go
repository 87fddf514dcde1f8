package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"robot-console/models"
	"robot-console/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emaCrossBuffer stages the complete "EMA Cross" robot.
func emaCrossBuffer(t *testing.T) *EditBuffer {
	t.Helper()
	b := NewCreateBuffer()
	require.NoError(t, b.SetName("EMA Cross"))
	require.NoError(t, b.SetDescription("Crossover of two EMAs"))
	require.NoError(t, b.SetLanguage(models.LanguageMetaTrader))
	require.NoError(t, b.SetCode("// ema"))
	require.NoError(t, b.SetActive(true))
	require.NoError(t, b.AddTag("trend"))

	i, err := b.AddParameter()
	require.NoError(t, err)
	require.NoError(t, b.UpdateParameter(i, UpdateLabel("Stop Loss")))
	require.NoError(t, b.UpdateParameter(i, UpdateValue(10)))

	require.NoError(t, b.AddImages(models.ImageUpload{Filename: "chart.png", Data: []byte{0x89, 'P'}, Title: "Daily"}))
	require.NoError(t, b.AddFiles(models.FileUpload{Filename: "ema.mq5", Data: []byte("//+")}))
	return b
}

func TestSubmitCreate(t *testing.T) {
	svc, upstream, cache, events, audit := newTestRobotService(t)
	b := emaCrossBuffer(t)

	robot, err := svc.Submit(context.Background(), b)
	require.NoError(t, err)

	form := upstream.form()
	assert.Equal(t, []string{"EMA Cross"}, form["name"])
	assert.Equal(t, []string{"1"}, form["is_active"])
	assert.Equal(t, []string{"stop-loss"}, form["parameters[0][key]"])
	assert.Equal(t, []string{"10"}, form["parameters[0][value]"])
	assert.Equal(t, []string{"0"}, form["parameters[0][sort_order]"])
	assert.Equal(t, []string{"Daily"}, form["image_titles[0]"])
	assert.Equal(t, []string{"chart.png"}, upstream.files()["images[]"])
	assert.Equal(t, []string{"ema.mq5"}, upstream.files()["files[]"])

	require.Len(t, robot.Images, 1)
	assert.Equal(t, upstream.server.URL+"/storage/robots/chart.png", robot.Images[0].URL)
	assert.Equal(t, upstream.server.URL+"/storage/files/ema.mq5", robot.Files[0].URL)

	// The buffer now edits the confirmed robot.
	assert.Equal(t, models.IntentUpdate, b.Kind())
	assert.Equal(t, robot.ID, b.RobotID())
	assert.False(t, b.Dirty())
	assert.False(t, b.Submitting())

	cached, _ := cache.GetRobot(context.Background(), robot.ID)
	require.NotNil(t, cached)
	assert.Equal(t, "EMA Cross", cached.Name)

	require.Len(t, events.all(), 1)
	assert.Equal(t, models.RobotCreated, events.all()[0].Event)
	assert.Equal(t, robot.ID, events.all()[0].RobotID)

	records := audit.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.SubmissionSucceeded, records[0].Outcome)
	assert.Equal(t, robot.ID, records[0].RobotID)
	assert.Positive(t, records[0].FieldCount)
}

func TestSubmitContractViolationNeverReachesNetwork(t *testing.T) {
	svc, upstream, _, events, audit := newTestRobotService(t)
	b := NewCreateBuffer()
	require.NoError(t, b.SetName("EMA Cross"))

	_, err := svc.Submit(context.Background(), b)
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
	assert.Zero(t, upstream.posts.Load())

	name, ok := b.Intent().Name, b.Dirty()
	require.NotNil(t, name)
	assert.Equal(t, "EMA Cross", *name)
	assert.True(t, ok)
	assert.False(t, b.Submitting())

	assert.Empty(t, events.all())
	require.Len(t, audit.all(), 1)
	assert.Equal(t, models.SubmissionRejected, audit.all()[0].Outcome)
}

func TestSubmitUpstreamRejectionKeepsBuffer(t *testing.T) {
	svc, upstream, _, events, audit := newTestRobotService(t)
	b := emaCrossBuffer(t)
	before := b.Intent()

	upstream.setFailure(422)
	_, err := svc.Submit(context.Background(), b)

	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 422, terr.StatusCode)
	assert.Contains(t, terr.Message, "The name has already been taken.")
	assert.Equal(t, before, b.Intent())
	assert.Equal(t, models.IntentCreate, b.Kind())
	assert.Empty(t, events.all())
	assert.Equal(t, models.SubmissionRejected, audit.all()[0].Outcome)

	upstream.setFailure(0)
	robot, err := svc.Submit(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "EMA Cross", robot.Name)
}

func TestSubmitUpdateIsPartial(t *testing.T) {
	svc, upstream, _, events, _ := newTestRobotService(t)
	upstream.put(models.Robot{ID: 5, Name: "Old", Description: "kept", Language: models.LanguageNelogica, Version: 2})

	current, err := svc.Get(context.Background(), 5)
	require.NoError(t, err)
	b := NewUpdateBuffer(current)
	require.NoError(t, b.SetName("New"))

	robot, err := svc.Submit(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{"name": {"New"}}, upstream.form())
	assert.Empty(t, upstream.files())
	assert.Equal(t, "New", robot.Name)
	assert.Equal(t, "kept", robot.Description)
	assert.Equal(t, 2, robot.Version)
	assert.Equal(t, models.RobotUpdated, events.all()[0].Event)
}

func TestSubmitVersionBump(t *testing.T) {
	svc, upstream, _, events, _ := newTestRobotService(t)
	upstream.put(models.Robot{ID: 5, Name: "EMA", Version: 2})

	current, err := svc.Get(context.Background(), 5)
	require.NoError(t, err)
	b := NewUpdateBuffer(current)
	require.NoError(t, b.RequestVersion("tighter stops"))

	robot, err := svc.Submit(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, upstream.form()["create_version"])
	assert.Equal(t, []string{"tighter stops"}, upstream.form()["changelog"])
	assert.Equal(t, 3, robot.Version)
	assert.Equal(t, 3, events.all()[0].Version)
}

func TestGetUsesCache(t *testing.T) {
	svc, upstream, _, _, _ := newTestRobotService(t)
	upstream.put(models.Robot{ID: 9, Name: "Grid", Version: 1})
	ctx := context.Background()

	for range 3 {
		robot, err := svc.Get(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, "Grid", robot.Name)
	}
	assert.Equal(t, int32(1), upstream.getCalls.Load())

	// An event for an older version keeps the entry.
	svc.HandleRobotEvent(ctx, models.NewRobotEvent(models.RobotUpdated, 9, 1))
	_, err := svc.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int32(1), upstream.getCalls.Load())

	upstream.put(models.Robot{ID: 9, Name: "Grid v2", Version: 2})
	svc.HandleRobotEvent(ctx, models.NewRobotEvent(models.RobotUpdated, 9, 2))
	robot, err := svc.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Grid v2", robot.Name)
	assert.Equal(t, int32(2), upstream.getCalls.Load())
}

func TestGetNotFound(t *testing.T) {
	svc, _, _, _, _ := newTestRobotService(t)
	_, err := svc.Get(context.Background(), 404)
	assert.True(t, transport.IsNotFound(err))
}

func TestListIsCachedUntilSubmit(t *testing.T) {
	svc, upstream, cache, _, _ := newTestRobotService(t)
	upstream.put(models.Robot{ID: 1, Name: "A", Language: models.LanguageMetaTrader})
	ctx := context.Background()
	filter := models.ListFilter{Language: models.LanguageMetaTrader}

	list, err := svc.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Meta.Total)

	cached, _ := cache.GetList(ctx, filter.CacheKey())
	require.NotNil(t, cached)

	_, err = svc.Submit(ctx, emaCrossBuffer(t))
	require.NoError(t, err)
	cached, _ = cache.GetList(ctx, filter.CacheKey())
	assert.Nil(t, cached)

	list, err = svc.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Meta.Total)
}

func TestDelete(t *testing.T) {
	svc, upstream, cache, events, _ := newTestRobotService(t)
	upstream.put(models.Robot{ID: 3, Name: "Gone"})
	ctx := context.Background()

	_, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, 3))

	cached, _ := cache.GetRobot(ctx, 3)
	assert.Nil(t, cached)
	assert.Equal(t, models.RobotDeleted, events.all()[0].Event)

	assert.True(t, transport.IsNotFound(svc.Delete(ctx, 3)))
}

func TestDownloadStreamsOrFallsBack(t *testing.T) {
	svc, upstream, _, _, _ := newTestRobotService(t)
	upstream.put(models.Robot{ID: 4, Files: []models.File{
		{ID: 1, OriginalName: "strategy.psf", URL: "/storage/files/strategy.psf"},
		{ID: 2, OriginalName: "backup.mq5", Name: "Backup", URL: "\\/storage\\/files\\/backup.mq5"},
	}})
	ctx := context.Background()

	dl, err := svc.Download(ctx, 4, 1)
	require.NoError(t, err)
	require.NotNil(t, dl.Stream)
	data, _ := io.ReadAll(dl.Stream.Body)
	_ = dl.Stream.Body.Close()
	assert.Equal(t, "PSF", string(data))
	assert.Equal(t, "strategy.psf", dl.Filename)

	dl, err = svc.Download(ctx, 4, 2)
	require.NoError(t, err)
	assert.Nil(t, dl.Stream)
	assert.Equal(t, upstream.server.URL+"/storage/files/backup.mq5", dl.FallbackURL)
	assert.Equal(t, "Backup", dl.Filename)

	_, err = svc.Download(ctx, 4, 3)
	assert.True(t, transport.IsNotFound(err))
}

func TestSubmitIntentWithoutBuffer(t *testing.T) {
	svc, upstream, _, _, _ := newTestRobotService(t)
	intent := emaCrossBuffer(t).Intent()

	robot, err := svc.SubmitIntent(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, "EMA Cross", robot.Name)
	assert.Equal(t, int32(1), upstream.posts.Load())
}

func TestSubmissionOutcome(t *testing.T) {
	assert.Equal(t, models.SubmissionSucceeded, submissionOutcome(nil))
	assert.Equal(t, models.SubmissionRejected, submissionOutcome(models.NewValidationError("name", "", "required")))
	assert.Equal(t, models.SubmissionRejected, submissionOutcome(&transport.Error{StatusCode: 422}))
	assert.Equal(t, models.SubmissionFailed, submissionOutcome(&transport.Error{StatusCode: 503}))
	assert.Equal(t, models.SubmissionFailed, submissionOutcome(errors.New("boom")))
}

func TestCancelledReaderDoesNotAbortSharedFetch(t *testing.T) {
	svc, upstream, cache, _, _ := newTestRobotService(t)
	upstream.put(models.Robot{ID: 9, Name: "Grid", Version: 1})
	release := upstream.holdReads()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx, 9)
		errs <- err
	}()
	require.Eventually(t, func() bool { return upstream.getCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		cached, _ := cache.GetRobot(context.Background(), 9)
		return cached != nil && cached.Name == "Grid"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConcurrentListCallersGetIndependentCopies(t *testing.T) {
	svc, upstream, _, _, _ := newTestRobotService(t)
	upstream.put(models.Robot{ID: 1, Name: "A", Language: models.LanguageMetaTrader})
	release := upstream.holdReads()
	ctx := context.Background()

	results := make(chan *models.RobotList, 2)
	for range 2 {
		go func() {
			list, err := svc.List(ctx, models.ListFilter{})
			assert.NoError(t, err)
			results <- list
		}()
	}
	require.Eventually(t, func() bool { return upstream.listCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)

	first, second := <-results, <-results
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.Len(t, first.Data, 1)
	first.Data[0].Name = "changed by caller"
	assert.Equal(t, "A", second.Data[0].Name)
	assert.NotSame(t, first, second)
}
