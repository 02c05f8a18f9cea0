package bot

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// cron.Logger on top of the global zerolog logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// A tick is skipped while the previous housekeeping is still running
func (bot *Bot) startHousekeeping() (*cron.Cron, error) {

	logger := cronLogger{}
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	spec := fmt.Sprintf("@every %s", bot.sweepInterval)
	if _, err := scheduler.AddFunc(spec, bot.housekeeping); err != nil {
		return nil, fmt.Errorf("could not schedule housekeeping %q: %w", spec, err)
	}
	scheduler.Start()
	log.Info().Msg(fmt.Sprintf("Housekeeping scheduled %s", spec))
	return scheduler, nil
}

// Expired DayPasses and stale applications
func (bot *Bot) housekeeping() {

	ctx, cancel := context.WithTimeout(context.Background(), bot.sweepInterval)
	defer cancel()

	log.Debug().Msg("Running housekeeping")
	bot.daypass.Sweep(ctx)
	bot.circle.Expire(ctx)
}
