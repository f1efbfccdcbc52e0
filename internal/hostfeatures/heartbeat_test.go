package hostfeatures

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	features "github.com/GoCodeAlone/busfeatures"
)

type failingSession struct{}

func (failingSession) Publish(string, ...*message.Message) error { return errors.New("closed") }

func TestHeartbeatTask_Beat(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, nil)
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	received, err := pubSub.Subscribe(ctx, HeartbeatTopic)
	require.NoError(t, err)

	task := NewHeartbeatTask("@every 1h", "sales", nil)
	assert.True(t, task.LastSent().IsZero())

	session := features.NewSession(pubSub)
	require.NoError(t, task.Beat(session))
	require.NoError(t, task.Beat(session))

	for want := uint64(1); want <= 2; want++ {
		select {
		case msg := <-received:
			var beat HeartbeatMessage
			require.NoError(t, json.Unmarshal(msg.Payload, &beat))
			assert.Equal(t, "sales", beat.Endpoint)
			assert.Equal(t, want, beat.Sequence)
			assert.Equal(t, "sales", msg.Metadata.Get("endpoint"))
			msg.Ack()
		case <-ctx.Done():
			t.Fatal("heartbeat not delivered")
		}
	}
	assert.Equal(t, uint64(2), task.Sent())
	assert.False(t, task.LastSent().IsZero())
}

func TestHeartbeatTask_BeatPublishError(t *testing.T) {
	task := NewHeartbeatTask("@every 1h", "sales", nil)
	assert.Error(t, task.Beat(failingSession{}))
	assert.True(t, task.LastSent().IsZero())
}

func TestHeartbeatTask_StartStop(t *testing.T) {
	task := NewHeartbeatTask("@every 1h", "sales", nil)

	assert.ErrorIs(t, task.Start(context.Background(), nil), ErrNoSession)
	require.NoError(t, task.Start(context.Background(), failingSession{}))
	require.NoError(t, task.Stop(context.Background(), nil))
	// stopping again is harmless
	require.NoError(t, task.Stop(context.Background(), nil))
}

func TestHeartbeatTask_InvalidSchedule(t *testing.T) {
	task := NewHeartbeatTask("whenever", "sales", nil)
	assert.ErrorIs(t, task.Start(context.Background(), failingSession{}), ErrInvalidSchedule)
}

func TestHeartbeatSetup(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		a := features.NewActivator(features.ActivatorConfig{})
		require.NoError(t, a.Add(Heartbeat()))
		require.NoError(t, a.SetupFeatures(context.Background()))

		tasks := a.Tasks().Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, "heartbeat-publisher", tasks[0].Name)
		assert.Equal(t, HeartbeatFeature, tasks[0].Feature)

		task, err := a.Services().Resolve(HeartbeatService)
		require.NoError(t, err)
		assert.Equal(t, DefaultHeartbeatSchedule, task.(*HeartbeatTask).schedule)
		assert.Equal(t, DefaultHeartbeatEndpoint, task.(*HeartbeatTask).endpoint)
	})

	t.Run("invalid schedule fails setup", func(t *testing.T) {
		settings := features.NewSettings()
		require.NoError(t, settings.Set(HeartbeatScheduleSetting, "every so often"))
		a := features.NewActivator(features.ActivatorConfig{Settings: settings})
		require.NoError(t, a.Add(Heartbeat()))

		err := a.SetupFeatures(context.Background())
		var setupErr *features.SetupError
		require.ErrorAs(t, err, &setupErr)
		assert.Equal(t, HeartbeatFeature, setupErr.Feature)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})

	t.Run("mistyped endpoint fails setup", func(t *testing.T) {
		settings := features.NewSettings()
		require.NoError(t, settings.Set(HeartbeatEndpointSetting, 42))
		a := features.NewActivator(features.ActivatorConfig{Settings: settings})
		require.NoError(t, a.Add(Heartbeat()))

		err := a.SetupFeatures(context.Background())
		var setupErr *features.SetupError
		require.ErrorAs(t, err, &setupErr)
		assert.Equal(t, HeartbeatFeature, setupErr.Feature)
		assert.ErrorIs(t, err, features.ErrSettingType)
	})
}

func TestCronLogger(t *testing.T) {
	rec := &recordingLogger{}
	l := cronLogger{rec}
	l.Info("schedule", "entry", 1)
	l.Error(errors.New("boom"), "job failed")

	assert.Equal(t, []string{"DEBUG schedule", "ERROR job failed"}, rec.entries)
}

type recordingLogger struct {
	entries []string
}

func (r *recordingLogger) Info(msg string, _ ...any)  { r.entries = append(r.entries, "INFO "+msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.entries = append(r.entries, "ERROR "+msg) }
func (r *recordingLogger) Warn(msg string, _ ...any)  { r.entries = append(r.entries, "WARN "+msg) }
func (r *recordingLogger) Debug(msg string, _ ...any) { r.entries = append(r.entries, "DEBUG "+msg) }
