package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"robot-console/models"
	"robot-console/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	topic   string
	payload []byte
}

type fakeTransport struct {
	sent []sentMessage
	err  error
}

func (f *fakeTransport) Send(_ context.Context, destination string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{topic: destination, payload: payload})
	return nil
}

func (f *fakeTransport) GetTransportType() transport.TransportType { return transport.TransportTypeMQTT }
func (f *fakeTransport) Close() error                              { return nil }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventTopic(t *testing.T) {
	assert.Equal(t, "robot-console/robots/7/updated", EventTopic("robot-console", 7, models.RobotUpdated))
	assert.Equal(t, "robot-console/robots/7/created", EventTopic("robot-console/", 7, models.RobotCreated))
	assert.Equal(t, "robot-console/robots/+/+", EventWildcard("robot-console"))
}

func TestPublishRobotEvent(t *testing.T) {
	ft := &fakeTransport{}
	p := NewEventPublisher(ft, "robot-console", discardLogger())

	err := p.PublishRobotEvent(context.Background(), models.NewRobotEvent(models.RobotUpdated, 7, 4))
	require.NoError(t, err)

	require.Len(t, ft.sent, 1)
	assert.Equal(t, "robot-console/robots/7/updated", ft.sent[0].topic)

	event, err := models.ParseRobotEvent(ft.sent[0].payload)
	require.NoError(t, err)
	assert.Equal(t, models.RobotUpdated, event.Event)
	assert.Equal(t, int64(7), event.RobotID)
	assert.Equal(t, 4, event.Version)
}

func TestPublishRobotEventTransportError(t *testing.T) {
	ft := &fakeTransport{err: errors.New("broker down")}
	p := NewEventPublisher(ft, "robot-console", discardLogger())

	err := p.PublishRobotEvent(context.Background(), models.NewRobotEvent(models.RobotDeleted, 7, 0))
	assert.EqualError(t, err, "broker down")
}

func TestRobotEventHandler(t *testing.T) {
	var got []models.RobotEvent
	handler := RobotEventHandler(discardLogger(), func(e models.RobotEvent) {
		got = append(got, e)
	})

	handler(nil, fakeMessage{topic: "robot-console/robots/3/created", payload: []byte(`{"event":"created","robot_id":3,"version":1,"timestamp":"2025-01-01T00:00:00Z"}`)})
	handler(nil, fakeMessage{topic: "robot-console/robots/3/created", payload: []byte(`not json`)})
	handler(nil, fakeMessage{topic: "robot-console/robots/0/created", payload: []byte(`{"event":"created"}`)})

	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].RobotID)
}
