package service

import (
	"context"
	"encoding/json"
	"time"

	"csvlens-be/internal/collab"
	"csvlens-be/internal/pkg/logger"
	"csvlens-be/pkg/events"
	pktNats "csvlens-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
)

type ICollabEventService interface {
	Forward(ctx context.Context) error
}

// CollabEventService relays collaboration domain events from the in-process
// bus onto the platform NATS stream, where the notification system and the
// admin activity feed pick them up.
type CollabEventService struct {
	subscriber message.Subscriber
	publisher  *pktNats.Publisher
	logger     logger.ILogger
}

func NewCollabEventService(subscriber message.Subscriber, publisher *pktNats.Publisher, log logger.ILogger) ICollabEventService {
	return &CollabEventService{
		subscriber: subscriber,
		publisher:  publisher,
		logger:     log,
	}
}

func (s *CollabEventService) Forward(ctx context.Context) error {
	msgs, err := s.subscriber.Subscribe(ctx, collab.EventsTopic)
	if err != nil {
		return err
	}

	s.logger.Info("CollabEventService", "Forwarding collab events to platform bus", nil)

	for msg := range msgs {
		eventType := msg.Metadata.Get("type")
		if eventType == "" {
			msg.Ack()
			continue
		}

		var data map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &data); err != nil {
			s.logger.Warn("CollabEventService", "Dropping undecodable event", map[string]interface{}{
				"type":  eventType,
				"error": err.Error(),
			})
			msg.Ack()
			continue
		}

		if s.publisher != nil {
			evt := events.BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
			if err := s.publisher.Publish(ctx, evt); err != nil {
				s.logger.Warn("CollabEventService", "Failed to forward event", map[string]interface{}{
					"type":  eventType,
					"error": err.Error(),
				})
			}
		}
		msg.Ack()
	}
	return nil
}
