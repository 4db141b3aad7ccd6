package handlers

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/interfaces"
)

// EventSubscriber bridges job lifecycle events to WebSocket broadcasts
type EventSubscriber struct {
	handler      *WebSocketHandler
	eventService interfaces.EventService
	logger       arbor.ILogger
}

// NewEventSubscriber creates and initializes an event subscriber.
// Automatically subscribes to all job lifecycle events.
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger) *EventSubscriber {
	s := &EventSubscriber{
		handler:      handler,
		eventService: eventService,
		logger:       logger,
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()
	return s
}

// SubscribeAll registers subscriptions for all job lifecycle events
func (s *EventSubscriber) SubscribeAll() {
	s.eventService.Subscribe(interfaces.EventJobStatusChanged, s.handleStatusChanged)
	s.eventService.Subscribe(interfaces.EventJobProgress, s.handleProgress)
	s.eventService.Subscribe(interfaces.EventJobCompleted, s.handleCompleted)
	s.eventService.Subscribe(interfaces.EventJobFailed, s.handleFailed)

	s.logger.Info().Msg("EventSubscriber registered for job lifecycle events (status_changed, progress, completed, failed)")
}

func (s *EventSubscriber) handleStatusChanged(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(interfaces.JobStatusPayload)
	if !ok {
		s.logger.Warn().Msg("Invalid status_changed event payload type")
		return nil
	}

	s.handler.BroadcastJobEvent(payload.JobID, WSMessage{
		Type:    string(interfaces.EventJobStatusChanged),
		JobID:   payload.JobID,
		Payload: payload,
	})
	return nil
}

func (s *EventSubscriber) handleProgress(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(interfaces.JobProgressPayload)
	if !ok {
		s.logger.Warn().Msg("Invalid progress event payload type")
		return nil
	}

	s.handler.BroadcastJobEvent(payload.JobID, WSMessage{
		Type:    string(interfaces.EventJobProgress),
		JobID:   payload.JobID,
		Payload: payload,
	})
	return nil
}

func (s *EventSubscriber) handleCompleted(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(interfaces.JobCompletedPayload)
	if !ok {
		s.logger.Warn().Msg("Invalid completed event payload type")
		return nil
	}

	s.handler.BroadcastJobEvent(payload.JobID, WSMessage{
		Type:    string(interfaces.EventJobCompleted),
		JobID:   payload.JobID,
		Payload: payload,
	})
	s.handler.ForgetJob(payload.JobID)
	return nil
}

func (s *EventSubscriber) handleFailed(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(interfaces.JobFailedPayload)
	if !ok {
		s.logger.Warn().Msg("Invalid failed event payload type")
		return nil
	}

	s.handler.BroadcastJobEvent(payload.JobID, WSMessage{
		Type:    string(interfaces.EventJobFailed),
		JobID:   payload.JobID,
		Payload: payload,
	})
	s.handler.ForgetJob(payload.JobID)
	return nil
}
