package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
)

// publishQueueSize bounds the backlog of undelivered events. Delivery is
// at-most-once, so a full queue sheds events rather than blocking publishers.
const publishQueueSize = 256

// Service implements EventService with an in-process pub/sub pattern. Async
// publishes drain through a single dispatcher goroutine, so subscribers
// observe events in publish order - a progress stream never arrives scrambled.
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	queue       chan interfaces.Event
	done        chan struct{}
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service and starts its dispatcher
func NewService(logger arbor.ILogger) interfaces.EventService {
	s := &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		queue:       make(chan interfaces.Event, publishQueueSize),
		done:        make(chan struct{}),
		logger:      logger,
	}
	go s.dispatch()
	return s
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// Publish queues an event for asynchronous, in-order delivery. When the
// queue is full the event is dropped: delivery is at-most-once and a slow
// subscriber must not stall the engine.
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("event service is closed")
	}

	select {
	case s.queue <- event:
	default:
		s.logger.Warn().
			Str("event_type", string(event.Type)).
			Msg("Event queue full - dropping event")
	}
	return nil
}

// PublishSync sends an event to all subscribers and waits for them to finish
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	handlers := s.subscribers[event.Type]
	s.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(handlers))

	for _, handler := range handlers {
		wg.Add(1)
		go func(h interfaces.EventHandler) {
			defer wg.Done()
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
				errChan <- err
			}
		}(handler)
	}

	wg.Wait()
	close(errChan)

	var errCount int
	for range errChan {
		errCount++
	}
	if errCount > 0 {
		return fmt.Errorf("event handlers failed: %d errors", errCount)
	}

	return nil
}

// Close stops the dispatcher, delivers any queued events and drops all
// subscribers
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.queue)
	<-s.done

	s.mu.Lock()
	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.mu.Unlock()

	s.logger.Info().Msg("Event service closed")
	return nil
}

// dispatch delivers queued events one at a time, in publish order
func (s *Service) dispatch() {
	defer close(s.done)

	for event := range s.queue {
		s.mu.RLock()
		handlers := append([]interfaces.EventHandler(nil), s.subscribers[event.Type]...)
		s.mu.RUnlock()

		for _, handler := range handlers {
			if err := handler(context.Background(), event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		}
	}
}
