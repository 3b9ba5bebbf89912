package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"church-roster/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	args := m.Called(topic, qos, retained, payload)
	return args.Error(0)
}

func TestMQTTNotifier_PublishesJSON(t *testing.T) {
	pub := &mockPublisher{}
	var payload []byte
	pub.On("Publish", "church/roster/events", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) { payload = args.Get(3).([]byte) }).
		Return(nil).Once()
	n := NewMQTTNotifier(pub, "church/roster/events", 1, zap.NewNop())

	evt := NewEvent(EventPipelineRun)
	evt.Ran = true
	evt.Reason = "content hash changed"
	evt.AddedAliases = 2
	require.NoError(t, n.Notify(context.Background(), evt))
	pub.AssertExpectations(t)

	var got Event
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, evt.EventID, got.EventID)
	assert.Equal(t, 2, got.AddedAliases)
}

func TestMQTTNotifier_ErrorIsExternal(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", "t", byte(0), false, mock.Anything).Return(errors.New("not connected"))
	n := NewMQTTNotifier(pub, "t", 0, zap.NewNop())
	err := n.Notify(context.Background(), NewEvent(EventPipelineRun))
	assert.True(t, domain.IsKind(err, domain.KindExternalService))
}

func TestStreamNotifier_WritesStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	n := NewStreamNotifier(client, "roster:events", 100, zap.NewNop())

	evt := NewEvent(EventPipelineRun)
	evt.RunID = "run-7"
	evt.Ran = true
	evt.ConflictCount = 3
	require.NoError(t, n.Notify(context.Background(), evt))

	msgs, err := client.XRange(context.Background(), "roster:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "run-7", msgs[0].Values["run_id"])
	assert.Equal(t, "true", msgs[0].Values["ran"])
	assert.Equal(t, "3", msgs[0].Values["conflict_count"])

	mr.Close()
	err = n.Notify(context.Background(), evt)
	assert.True(t, domain.IsKind(err, domain.KindExternalService))
}

func TestMulti_TriesEveryChannel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	pub := &mockPublisher{}
	pub.On("Publish", "t", byte(0), false, mock.Anything).Return(errors.New("down"))
	failing := NewMQTTNotifier(pub, "t", 0, zap.NewNop())
	m := Multi{failing, NewLogNotifier(zap.New(core))}

	err := m.Notify(context.Background(), NewEvent(EventPipelineRun))
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Pipeline notification").Len())
}

func TestStreamValues(t *testing.T) {
	evt := NewEvent(EventPipelineRun)
	evt.RunID = "run-1"
	v := streamValues(evt)
	assert.Equal(t, "run-1", v["run_id"])
	assert.Equal(t, EventPipelineRun, v["type"])
	assert.Contains(t, v, "timestamp")
}
