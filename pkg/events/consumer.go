package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livebus/pkg/elastic_client"
)

// IndexFunc stores a document in a search index
type IndexFunc func(indexName string, document interface{})

type storedEvent struct {
	Type      EventType
	Timestamp time.Time

	Body json.RawMessage
}

type indexedEvent struct {
	Type      EventType
	Timestamp time.Time

	Body map[string]interface{}
}

type BatchConsumer struct {
	index IndexFunc
}

func NewBatchConsumer() *BatchConsumer {
	return &BatchConsumer{index: elastic_client.IndexDocument}
}

func (consumer *BatchConsumer) Consume(batch rmq.Deliveries) {
	payloads := batch.Payloads()

	for _, payload := range payloads {
		var event storedEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Error().Err(err).Str("payload", payload).Msg("Failed to decode event")
			continue
		}

		var body map[string]interface{}
		if len(event.Body) > 0 {
			if err := json.Unmarshal(event.Body, &body); err != nil {
				log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to decode event body")
				continue
			}
		}

		log.Info().
			Str("type", string(event.Type)).
			Time("timestamp", event.Timestamp).
			Msg("Tracking event")
		log.Debug().Msg(pretty.Sprint(body))

		consumer.index(indexName(event.Timestamp), indexedEvent{
			Type:      event.Type,
			Timestamp: event.Timestamp,
			Body:      body,
		})
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack event")
		}
	}
}

func indexName(timestamp time.Time) string {
	return fmt.Sprintf("livebus-events-%d-%02d", timestamp.Year(), timestamp.Month())
}
