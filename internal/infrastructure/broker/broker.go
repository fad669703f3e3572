package broker

import (
	"sync"

	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

// Broker fans committed events out to subscribers. Handlers run synchronously
// on the publishing goroutine and must not block; slow consumers should take a
// channel via SubscribeChan instead.
type Broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(domain.Event)
	logger *zap.Logger
}

func New(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:   make(map[int]func(domain.Event)),
		logger: logger.Named("broker"),
	}
}

// Subscribe registers fn and returns a function removing it.
func (b *Broker) Subscribe(fn func(domain.Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// SubscribeChan delivers events into a buffered channel. Events arriving while
// the buffer is full are dropped for that subscriber.
func (b *Broker) SubscribeChan(buffer int) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, buffer)
	var once sync.Once
	var closed bool
	var chMu sync.Mutex

	unsub := b.Subscribe(func(e domain.Event) {
		chMu.Lock()
		defer chMu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			b.logger.Warn("Dropping event for slow subscriber", zap.String("type", string(e.Type())))
		}
	})

	return ch, func() {
		once.Do(func() {
			unsub()
			chMu.Lock()
			closed = true
			close(ch)
			chMu.Unlock()
		})
	}
}

func (b *Broker) Publish(e domain.Event) {
	b.mu.RLock()
	handlers := make([]func(domain.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	b.logger.Debug("Publishing event",
		zap.String("type", string(e.Type())),
		zap.String("subject", e.Subject().Hex()),
		zap.Int("subscribers", len(handlers)))
	for _, fn := range handlers {
		fn(e)
	}
}

func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
