package features

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_PublishesThroughWatermill(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, WatermillLogger(&logger{t}))
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	received, err := pubSub.Subscribe(ctx, "heartbeat")
	require.NoError(t, err)

	session := NewSession(pubSub)
	task := StartupTaskFuncs{
		OnStart: func(_ context.Context, s Session) error {
			return s.Publish("heartbeat", message.NewMessage("1", []byte("alive")))
		},
	}
	o := NewOrchestrator(&TaskList{entries: []*taskEntry{{name: "heartbeat", task: task}}})
	require.NoError(t, o.Start(ctx, session))

	select {
	case msg := <-received:
		assert.Equal(t, "alive", string(msg.Payload))
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}

func TestSession_DoesNotExposeClose(t *testing.T) {
	session := NewSession(gochannel.NewGoChannel(gochannel.Config{}, nil))
	_, closable := session.(interface{ Close() error })
	assert.False(t, closable)
}
