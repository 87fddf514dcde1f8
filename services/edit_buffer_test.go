package services

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"robot-console/message"
	"robot-console/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func persistedRobot() *models.Robot {
	id1, id2 := int64(100), int64(101)
	o0, o1 := 0, 1
	return &models.Robot{
		ID:       7,
		Name:     "EMA Cross",
		Language: models.LanguageMetaTrader,
		Tags:     []string{"trend", "forex"},
		Parameters: []models.Parameter{
			{ID: &id2, Key: "take-profit", Label: "Take Profit", Type: models.ParameterNumber, Value: "20", SortOrder: &o1},
			{ID: &id1, Key: "stop-loss", Label: "Stop Loss", Type: models.ParameterNumber, Value: "10", SortOrder: &o0},
		},
		Images: []models.Image{{ID: 11, URL: "http://x/a.png"}, {ID: 12, URL: "http://x/b.png"}},
		Files:  []models.File{{ID: 21, OriginalName: "ema.mq5"}},
	}
}

func TestAddFilesRejectsWholeBatch(t *testing.T) {
	b := NewCreateBuffer()
	require.NoError(t, b.AddFiles(models.FileUpload{Filename: "first.psf", Data: []byte("a")}))

	err := b.AddFiles(
		models.FileUpload{Filename: "ok.mq5", Data: []byte("b")},
		models.FileUpload{Filename: "strategy.mq4", Data: []byte("c")},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrContractViolation)

	in := b.Intent()
	require.Len(t, in.NewFiles, 1)
	assert.Equal(t, "first.psf", in.NewFiles[0].Filename)
}

func TestAddFilesAcceptsUppercaseExtension(t *testing.T) {
	b := NewCreateBuffer()
	require.NoError(t, b.AddFiles(models.FileUpload{Filename: "EMA.MQ5", Data: []byte("x")}))
	assert.Len(t, b.Intent().NewFiles, 1)
}

func TestStagedImagesAndRemoval(t *testing.T) {
	b := NewCreateBuffer()
	require.NoError(t, b.AddImages(
		models.ImageUpload{Filename: "a.png", Data: []byte("a"), Title: "A"},
		models.ImageUpload{Filename: "b.png", Data: []byte("b"), Caption: "B"},
	))

	require.NoError(t, b.RemoveStagedImage(0))
	assert.Error(t, b.RemoveStagedImage(5))

	img, err := b.StagedImage(0)
	require.NoError(t, err)
	assert.Equal(t, "b.png", img.Filename)

	img.Data[0] = 'z'
	again, _ := b.StagedImage(0)
	assert.Equal(t, []byte("b"), again.Data)
}

func TestAddParameterDefaults(t *testing.T) {
	b := NewCreateBuffer()

	i0, err := b.AddParameter()
	require.NoError(t, err)
	i1, err := b.AddParameter()
	require.NoError(t, err)
	assert.Equal(t, 0, i0)
	assert.Equal(t, 1, i1)

	params := b.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, models.ParameterNumber, params[1].Type)
	assert.Equal(t, 1, params[1].Order())
	assert.Equal(t, "", params[1].Value)
	require.NotNil(t, params[1].Required)
	assert.False(t, *params[1].Required)
}

func TestUpdateParameterLabelDerivesKey(t *testing.T) {
	b := NewCreateBuffer()
	i, _ := b.AddParameter()

	require.NoError(t, b.UpdateParameter(i, UpdateLabel("Stop Loss")))
	require.NoError(t, b.UpdateParameter(i, UpdateValue(10)))

	p := b.Parameters()[i]
	assert.Equal(t, "Stop Loss", p.Label)
	assert.Equal(t, "stop-loss", p.Key)
	assert.Equal(t, 10, p.Value)

	require.NoError(t, b.UpdateParameter(i, UpdateLabel("Max Drawdown")))
	assert.Equal(t, "max-drawdown", b.Parameters()[i].Key)
}

func TestUpdateParameterRejectsInvalid(t *testing.T) {
	b := NewCreateBuffer()
	i, _ := b.AddParameter()

	assert.Error(t, b.UpdateParameter(i, UpdateType("decimal")))
	assert.Error(t, b.UpdateParameter(3, UpdateLabel("x")))
	lo, hi := 5.0, 1.0
	assert.Error(t, b.UpdateParameter(i, UpdateValidationRules(&models.ValidationRules{Min: &lo, Max: &hi})))
	assert.Equal(t, models.ParameterNumber, b.Parameters()[i].Type)
}

func TestRemoveParameterRenumbers(t *testing.T) {
	b := NewCreateBuffer()
	for _, label := range []string{"A", "B", "C"} {
		i, _ := b.AddParameter()
		require.NoError(t, b.UpdateParameter(i, UpdateLabel(label)))
	}

	require.NoError(t, b.RemoveParameter(0))

	params := b.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "b", params[0].Key)
	assert.Equal(t, 0, params[0].Order())
	assert.Equal(t, "c", params[1].Key)
	assert.Equal(t, 1, params[1].Order())
}

func TestUpdateBufferLeavesBaselineUntouched(t *testing.T) {
	robot := persistedRobot()
	b := NewUpdateBuffer(robot)

	require.NoError(t, b.AddTag("scalping"))
	require.NoError(t, b.UpdateParameter(0, UpdateLabel("Hard Stop")))

	assert.Equal(t, []string{"trend", "forex"}, robot.Tags)
	assert.Equal(t, "take-profit", robot.Parameters[0].Key)

	in := b.Intent()
	assert.Equal(t, []string{"trend", "forex", "scalping"}, in.Tags)
	// parameters are staged in sort order
	assert.Equal(t, "hard-stop", in.Parameters[0].Key)
	assert.Equal(t, "take-profit", in.Parameters[1].Key)
}

func TestUpdateBufferIntentIsPartial(t *testing.T) {
	b := NewUpdateBuffer(persistedRobot())
	require.NoError(t, b.SetName("Renamed"))

	in := b.Intent()
	assert.Equal(t, models.IntentUpdate, in.Kind)
	assert.Equal(t, int64(7), in.RobotID)
	assert.Nil(t, in.Tags)
	assert.Nil(t, in.Parameters)
	assert.Nil(t, in.Description)

	p, err := message.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, p.Names())
}

func TestMarkForDeletion(t *testing.T) {
	b := NewUpdateBuffer(persistedRobot())

	require.NoError(t, b.MarkImageForDeletion(11))
	require.NoError(t, b.MarkImageForDeletion(11))
	require.NoError(t, b.MarkFileForDeletion(21))
	assert.Error(t, b.MarkImageForDeletion(99))
	assert.Error(t, b.MarkFileForDeletion(99))

	in := b.Intent()
	assert.Equal(t, []int64{11}, in.DeleteImageIDs)
	assert.Equal(t, []int64{21}, in.DeleteFileIDs)

	require.NoError(t, b.UnmarkImageForDeletion(11))
	assert.Empty(t, b.Intent().DeleteImageIDs)

	assert.Error(t, NewCreateBuffer().MarkImageForDeletion(11))
}

func TestRequestVersion(t *testing.T) {
	assert.Error(t, NewCreateBuffer().RequestVersion("x"))

	b := NewUpdateBuffer(persistedRobot())
	require.NoError(t, b.RequestVersion("tighter stops"))
	in := b.Intent()
	assert.True(t, in.CreateVersion)
	assert.Equal(t, "tighter stops", in.Changelog)

	require.NoError(t, b.CancelVersion())
	assert.False(t, b.Intent().CreateVersion)
}

func TestSubmissionGate(t *testing.T) {
	b := NewCreateBuffer()
	require.NoError(t, b.SetName("EMA"))
	require.NoError(t, b.AddImages(models.ImageUpload{Filename: "a.png", Data: []byte("a")}))

	in, err := b.BeginSubmit()
	require.NoError(t, err)
	assert.Equal(t, "EMA", *in.Name)
	assert.True(t, b.Submitting())

	_, err = b.BeginSubmit()
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.ErrorIs(t, b.SetName("other"), ErrSubmissionInFlight)

	// previews stay available while a submission is pending
	img, err := b.StagedImage(0)
	require.NoError(t, err)
	assert.Equal(t, "a.png", img.Filename)

	b.AbortSubmit()
	assert.False(t, b.Submitting())
	assert.Equal(t, "EMA", *b.Intent().Name)
}

func TestCompleteSubmitClearsAndRebases(t *testing.T) {
	b := NewCreateBuffer()
	require.NoError(t, b.SetName("EMA"))
	require.NoError(t, b.AddFiles(models.FileUpload{Filename: "a.psf", Data: []byte("x")}))

	_, err := b.BeginSubmit()
	require.NoError(t, err)
	b.CompleteSubmit(persistedRobot())

	assert.False(t, b.Submitting())
	assert.False(t, b.Dirty())
	assert.Equal(t, models.IntentUpdate, b.Kind())
	assert.Equal(t, int64(7), b.RobotID())
	assert.Empty(t, b.Intent().NewFiles)
}

func TestBeginSubmitIsExclusive(t *testing.T) {
	b := NewCreateBuffer()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.BeginSubmit(); err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, acquired)
}

func TestStateRoundTrip(t *testing.T) {
	b := NewUpdateBuffer(persistedRobot())
	require.NoError(t, b.SetDescription(""))
	require.NoError(t, b.UpdateParameter(1, UpdateValue(25)))
	require.NoError(t, b.AddImages(models.ImageUpload{Filename: "c.png", Data: []byte("png"), Title: "C"}))
	require.NoError(t, b.MarkFileForDeletion(21))
	require.NoError(t, b.RequestVersion("v2"))

	raw, err := json.Marshal(b.State())
	require.NoError(t, err)

	var state EditBufferState
	require.NoError(t, json.Unmarshal(raw, &state))
	// binary data travels outside the JSON document
	assert.Empty(t, state.NewImages[0].Data)
	state.NewImages[0].Data = []byte("png")

	restored, err := RestoreEditBuffer(state)
	require.NoError(t, err)

	want := b.Intent()
	got := restored.Intent()
	assert.Equal(t, *want.Description, *got.Description)
	assert.Equal(t, want.DeleteFileIDs, got.DeleteFileIDs)
	assert.Equal(t, want.Changelog, got.Changelog)
	assert.Equal(t, "25", models.FormatValue(got.Parameters[1].Value))
	assert.Equal(t, []byte("png"), got.NewImages[0].Data)
	assert.Nil(t, got.Tags)

	_, err = RestoreEditBuffer(EditBufferState{Kind: models.IntentUpdate, RobotID: 7})
	assert.Error(t, err)
}

func TestParseParameterUpdate(t *testing.T) {
	u, err := ParseParameterUpdate("label", json.RawMessage(`"Stop Loss"`))
	require.NoError(t, err)
	assert.Equal(t, FieldLabel, u.Field())

	u, err = ParseParameterUpdate("options", json.RawMessage(`["a","b"]`))
	require.NoError(t, err)
	assert.Equal(t, FieldOptions, u.Field())

	u, err = ParseParameterUpdate("validation_rules", json.RawMessage(`{"min":1,"max":2}`))
	require.NoError(t, err)
	assert.Equal(t, FieldValidationRules, u.Field())

	_, err = ParseParameterUpdate("key", json.RawMessage(`"x"`))
	assert.ErrorIs(t, err, models.ErrContractViolation)

	_, err = ParseParameterUpdate("required", json.RawMessage(`"yes"`))
	assert.ErrorIs(t, err, models.ErrContractViolation)
}

func TestServerNumberedParametersAreRenumbered(t *testing.T) {
	tests := []struct {
		name   string
		orders []int
	}{
		{"one based", []int{1, 2}},
		{"gaps", []int{3, 0, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			robot := &models.Robot{ID: 9, Name: "Grid"}
			for i, order := range tt.orders {
				o := order
				id := int64(200 + i)
				label := string(rune('A' + i))
				robot.Parameters = append(robot.Parameters, models.Parameter{
					ID: &id, Key: strings.ToLower(label), Label: label, Type: models.ParameterNumber, Value: "1", SortOrder: &o,
				})
			}

			b := NewUpdateBuffer(robot)
			require.NoError(t, b.UpdateParameter(0, UpdateValue(5.0)))

			in := b.Intent()
			for i, p := range in.Parameters {
				assert.Equal(t, i, p.Order())
			}
			_, err := message.Encode(in)
			require.NoError(t, err)

			// the baseline keeps the server's numbering
			assert.Equal(t, tt.orders[0], robot.Parameters[0].Order())
		})
	}
}

func TestStaleServerKeyIsRederived(t *testing.T) {
	robot := persistedRobot()
	robot.Parameters[1].Key = "sl"

	b := NewUpdateBuffer(robot)
	require.NoError(t, b.UpdateParameter(1, UpdateValue(15.0)))

	payload, err := message.Encode(b.Intent())
	require.NoError(t, err)
	key0, _ := payload.Get("parameters[0][key]")
	key1, _ := payload.Get("parameters[1][key]")
	assert.Equal(t, "stop-loss", key0)
	assert.Equal(t, "take-profit", key1)
}

func TestTagsCompareAsSet(t *testing.T) {
	b := NewUpdateBuffer(persistedRobot())
	require.NoError(t, b.AddTag("scalping"))
	assert.True(t, b.Dirty())

	require.NoError(t, b.RemoveTag("scalping"))
	require.NoError(t, b.AddTag("trend"))
	assert.False(t, b.Dirty())
	assert.Nil(t, b.Intent().Tags)

	require.NoError(t, b.RemoveTag("forex"))
	assert.True(t, b.Dirty())
	assert.Equal(t, []string{"trend"}, b.Intent().Tags)
}

func TestMoveParameter(t *testing.T) {
	b := NewUpdateBuffer(persistedRobot())
	i, err := b.AddParameter()
	require.NoError(t, err)
	require.NoError(t, b.UpdateParameter(i, UpdateLabel("Lots")))

	require.NoError(t, b.MoveParameter(2, 0))

	params := b.Parameters()
	assert.Equal(t, "lots", params[0].Key)
	assert.Equal(t, "stop-loss", params[1].Key)
	assert.Equal(t, "take-profit", params[2].Key)
	for i, p := range params {
		assert.Equal(t, i, p.Order())
	}

	assert.Error(t, b.MoveParameter(0, 3))
	assert.Error(t, b.MoveParameter(-1, 0))
}
