package events

import (
	"encoding/json"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
)

const QueueName = "events-queue"

// QueuePublisher pushes events onto the redis events queue
type QueuePublisher struct {
	queue rmq.Queue
}

func NewQueuePublisher(connection rmq.Connection) (*QueuePublisher, error) {
	queue, err := connection.OpenQueue(QueueName)
	if err != nil {
		return nil, err
	}

	return &QueuePublisher{queue: queue}, nil
}

func (p *QueuePublisher) Publish(event Event) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to encode event")
		return
	}

	if err := p.queue.PublishBytes(eventBytes); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to publish event")
	}
}
