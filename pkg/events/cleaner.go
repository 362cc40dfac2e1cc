package events

import (
	"context"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
)

const CleanInterval = 5 * time.Minute

// Cleaner returns unacked events of dead consumers to the ready queue
type Cleaner interface {
	Clean() (int64, error)
}

// RunCleaner cleans the queues every interval until ctx is done
func RunCleaner(ctx context.Context, cleaner Cleaner, interval time.Duration) {
	log.Info().Msg("Starting events-queue cleaner process")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clean(cleaner)
		}
	}
}

func clean(cleaner Cleaner) int64 {
	returned, err := cleaner.Clean()
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean")
		return 0
	}

	if returned != 0 {
		log.Info().Int64("returned", returned).Msg("Cleaned events")
	}

	return returned
}

func NewCleaner(connection rmq.Connection) Cleaner {
	return rmq.NewCleaner(connection)
}
