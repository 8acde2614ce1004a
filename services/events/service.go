package events

import (
	"github.com/pkg/errors"

	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/logger"
)

type EventsService struct {
	Publisher interfaces.ProgressPublisher
}

// NewEventsService connects to RabbitMQ, or drops events when rabbitmqURL is empty.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, propagation progress events are disabled")
		return &EventsService{Publisher: NewNoopPublisher(log)}, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	return &EventsService{
		Publisher: publisher,
	}, nil
}

func (s *EventsService) Close() error {
	if s.Publisher == nil {
		return nil
	}
	if err := s.Publisher.Close(); err != nil {
		return errors.Wrap(err, "errors closing events service")
	}
	return nil
}
