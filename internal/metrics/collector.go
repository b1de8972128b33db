package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current values for gauge metrics.
// A count function returning -1 indicates the source is unavailable.
type StatsSource struct {
	DestinationSize func() int
	SeenKeys        func() int
	Streaming       func() bool
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(src StatsSource) {
	if src.DestinationSize != nil {
		if n := src.DestinationSize(); n >= 0 {
			DestinationSize.Set(float64(n))
		}
	}
	if src.SeenKeys != nil {
		if n := src.SeenKeys(); n >= 0 {
			SeenKeys.Set(float64(n))
		}
	}
	if src.Streaming != nil {
		if src.Streaming() {
			ConnectionState.Set(1)
		} else {
			ConnectionState.Set(0)
		}
	}
}
