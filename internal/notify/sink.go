package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ivankudzin/daycare-admin/internal/domain/enums"
	"github.com/ivankudzin/daycare-admin/internal/infra/logger"
)

type Notification struct {
	Type        enums.NotificationType
	Message     string
	Description string
	Key         string
}

type Subscriber func(Notification)

// Sink holds at most one subscriber. Registering replaces the previous one and
// notifications sent while the slot is empty are dropped.
type Sink struct {
	mu         sync.RWMutex
	subscriber Subscriber
	log        *zap.Logger
}

func NewSink(log *zap.Logger) *Sink {
	return &Sink{log: logger.OrNop(log)}
}

func (s *Sink) Register(fn Subscriber) {
	s.mu.Lock()
	s.subscriber = fn
	s.mu.Unlock()
}

func (s *Sink) Unregister() {
	s.mu.Lock()
	s.subscriber = nil
	s.mu.Unlock()
}

func (s *Sink) Registered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriber != nil
}

// Notify reports whether a subscriber received n.
func (s *Sink) Notify(n Notification) bool {
	s.mu.RLock()
	fn := s.subscriber
	s.mu.RUnlock()

	if fn == nil {
		s.log.Warn("notification dropped: no subscriber",
			zap.String("type", string(n.Type)),
			zap.String("message", n.Message),
			zap.String("description", n.Description),
		)
		return false
	}

	fn(n)
	return true
}
