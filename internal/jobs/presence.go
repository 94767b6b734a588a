package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type PresenceSweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int, error)
}

// PresenceJob periodically marks stale participants offline and forgets
// entries that have been offline longer than retention.
type PresenceJob struct {
	sweeper   PresenceSweeper
	interval  time.Duration
	retention time.Duration
	done      chan struct{}
}

func NewPresenceJob(sweeper PresenceSweeper, interval, retention time.Duration) *PresenceJob {
	return &PresenceJob{
		sweeper:   sweeper,
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
	}
}

func (j *PresenceJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("presence job started")
}

func (j *PresenceJob) Stop() {
	close(j.done)
	log.Info().Msg("presence job stopped")
}

func (j *PresenceJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *PresenceJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	changed, err := j.sweeper.Sweep(ctx, j.retention)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep presence")
	} else if changed > 0 {
		log.Info().Int("count", changed).Msg("swept presence entries")
	}
}
