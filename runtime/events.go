package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Lifecycle topics published by the runtime.
const (
	TopicBootstrapped = "interception.bootstrapped"
	TopicReloaded     = "interception.reloaded"
	TopicReloadFailed = "interception.reload_failed"
	TopicShutdown     = "interception.shutdown"
)

var (
	// ErrEventsClosed is returned when publishing after Shutdown.
	ErrEventsClosed = errors.New("runtime events are closed")

	// ErrPublishTimeout is returned when the buffer stays full until ctx expires.
	ErrPublishTimeout = errors.New("event publish timeout: buffer full")
)

// Event is a runtime lifecycle notification.
type Event struct {
	Topic      string
	Scopes     []string // scope names in merge order
	Generation uint64   // registry cache generation after the event
	Err        error    // set for TopicReloadFailed
	Timestamp  time.Time
}

// EventHandler receives events of the topics it subscribed to.
type EventHandler func(ctx context.Context, event Event)

type eventEnvelope struct {
	ctx   context.Context
	event Event
}

type handlerEntry struct {
	id      uint64
	handler EventHandler
}

// events delivers lifecycle notifications on a single goroutine, so handlers
// of one topic observe events in publish order.
type events struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	nextID   atomic.Uint64

	ch     chan eventEnvelope
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
	logger *zap.Logger
}

func newEvents(bufferSize int, logger *zap.Logger) *events {
	e := &events{
		handlers: make(map[string][]handlerEntry),
		ch:       make(chan eventEnvelope, bufferSize),
		done:     make(chan struct{}),
		logger:   logger,
	}

	e.wg.Add(1)
	go e.dispatch()
	return e
}

func (e *events) dispatch() {
	defer e.wg.Done()
	for {
		select {
		case env := <-e.ch:
			e.deliver(env)
		case <-e.done:
			for {
				select {
				case env := <-e.ch:
					e.deliver(env)
				default:
					return
				}
			}
		}
	}
}

func (e *events) deliver(env eventEnvelope) {
	e.mu.RLock()
	subs := append([]handlerEntry{}, e.handlers[env.event.Topic]...)
	e.mu.RUnlock()

	for _, entry := range subs {
		e.call(env, entry.handler)
	}
}

func (e *events) call(env eventEnvelope, h EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				zap.String("topic", env.event.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(env.ctx, env.event)
}

// publish queues event. It blocks while the buffer is full until ctx expires.
func (e *events) publish(ctx context.Context, event Event) error {
	if e.closed.Load() {
		return ErrEventsClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// ctx bounds the send only; handlers run after it may have been cancelled.
	env := eventEnvelope{ctx: context.WithoutCancel(ctx), event: event}
	select {
	case e.ch <- env:
		return nil
	default:
	}

	select {
	case e.ch <- env:
		return nil
	case <-ctx.Done():
		return ErrPublishTimeout
	}
}

func (e *events) subscribe(topic string, handler EventHandler) func() {
	id := e.nextID.Add(1)

	e.mu.Lock()
	e.handlers[topic] = append(e.handlers[topic], handlerEntry{id: id, handler: handler})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			subs := e.handlers[topic]
			for i, entry := range subs {
				if entry.id == id {
					e.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// close stops accepting events, delivers the queued ones and waits.
func (e *events) close() {
	if e.closed.Swap(true) {
		return
	}
	close(e.done)
	e.wg.Wait()
}
