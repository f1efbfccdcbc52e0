package features

import (
	"github.com/ThreeDotsLabs/watermill/message"
)

// Session is the handle to the active messaging session handed to every
// startup task. The orchestrator forwards it unchanged and never uses it.
type Session interface {
	Publish(topic string, messages ...*message.Message) error
}

type publisherSession struct {
	publisher message.Publisher
}

// NewSession exposes a watermill publisher to startup tasks as a Session.
// The publisher stays owned by the caller: tasks can publish through the
// session but cannot close it.
func NewSession(publisher message.Publisher) Session {
	return &publisherSession{publisher: publisher}
}

func (s *publisherSession) Publish(topic string, messages ...*message.Message) error {
	return s.publisher.Publish(topic, messages...)
}
