package hostfeatures

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/robfig/cron/v3"

	features "github.com/GoCodeAlone/busfeatures"
)

// Heartbeat feature constants.
const (
	HeartbeatFeature = "heartbeat"
	HeartbeatTopic   = "heartbeat"

	HeartbeatScheduleSetting = "heartbeat.schedule"
	HeartbeatEndpointSetting = "heartbeat.endpoint"

	DefaultHeartbeatSchedule = "@every 30s"
	DefaultHeartbeatEndpoint = "featurehost"
)

// HeartbeatMessage is the payload published on HeartbeatTopic.
type HeartbeatMessage struct {
	Endpoint string    `json:"endpoint"`
	Sequence uint64    `json:"sequence"`
	SentAt   time.Time `json:"sentAt"`
}

// Heartbeat returns the descriptor of the heartbeat feature. It is enabled
// by default and publishes a HeartbeatMessage through the session on the
// configured cron schedule while the host runs.
func Heartbeat() features.Descriptor {
	return features.Descriptor{
		Name:             HeartbeatFeature,
		EnabledByDefault: true,
		Setup:            setupHeartbeat,
	}
}

func setupHeartbeat(cc *features.ConfigurationContext) error {
	schedule, err := settingOrDefault(cc.Settings(), HeartbeatScheduleSetting, DefaultHeartbeatSchedule)
	if err != nil {
		return err
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, schedule, err)
	}
	endpoint, err := settingOrDefault(cc.Settings(), HeartbeatEndpointSetting, DefaultHeartbeatEndpoint)
	if err != nil {
		return err
	}

	task := NewHeartbeatTask(schedule, endpoint, cc.Logger())
	if err := cc.Services().Register(HeartbeatService, task); err != nil {
		return err
	}
	cc.RegisterStartupTask(task, features.WithTaskName("heartbeat-publisher"))
	return nil
}

// HeartbeatTask publishes heartbeats on a cron schedule between Start and
// Stop.
type HeartbeatTask struct {
	schedule string
	endpoint string
	logger   features.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	sequence atomic.Uint64
	lastSent atomic.Int64
}

// NewHeartbeatTask creates a task publishing on schedule, a standard cron
// expression or descriptor such as "@every 10s".
func NewHeartbeatTask(schedule, endpoint string, logger features.Logger) *HeartbeatTask {
	if logger == nil {
		logger = features.NopLogger()
	}
	return &HeartbeatTask{schedule: schedule, endpoint: endpoint, logger: logger}
}

// Start schedules the heartbeat. The session is used for every beat until
// Stop.
func (h *HeartbeatTask) Start(ctx context.Context, session features.Session) error {
	if session == nil {
		return ErrNoSession
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c := cron.New(cron.WithLogger(cronLogger{h.logger}))
	if _, err := c.AddFunc(h.schedule, func() {
		if err := h.Beat(session); err != nil {
			h.logger.Error("Failed to publish heartbeat", "topic", HeartbeatTopic, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, h.schedule, err)
	}
	c.Start()
	h.cron = c
	h.logger.Info("Heartbeat started", "schedule", h.schedule, "endpoint", h.endpoint)
	return nil
}

// Stop unschedules the heartbeat and waits for a running beat to finish, or
// for ctx to be done.
func (h *HeartbeatTask) Stop(ctx context.Context, _ features.Session) error {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		h.logger.Info("Heartbeat stopped", "sent", h.Sent())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("heartbeat did not stop: %w", ctx.Err())
	}
}

// Beat publishes one heartbeat.
func (h *HeartbeatTask) Beat(session features.Session) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(HeartbeatMessage{
		Endpoint: h.endpoint,
		Sequence: h.sequence.Add(1),
		SentAt:   now,
	})
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("endpoint", h.endpoint)
	if err := session.Publish(HeartbeatTopic, msg); err != nil {
		return err
	}
	h.lastSent.Store(now.UnixNano())
	return nil
}

// Sent returns the number of heartbeats attempted.
func (h *HeartbeatTask) Sent() uint64 { return h.sequence.Load() }

// LastSent returns when the last heartbeat was published, or the zero time.
func (h *HeartbeatTask) LastSent() time.Time {
	n := h.lastSent.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
