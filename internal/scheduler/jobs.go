package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tazhate/medremind/config"
)

// DailyTasks is the work the cron jobs trigger.
type DailyTasks interface {
	MorningBriefing(ctx context.Context) error
	CheckExpiry(ctx context.Context) error
	CheckStock(ctx context.Context) error
	EveningSummary(ctx context.Context) error
	RearmAll(ctx context.Context) error
}

// Jobs runs DailyTasks on wall-clock schedules in the configured timezone.
type Jobs struct {
	cron  *cron.Cron
	cfg   *config.Config
	tasks DailyTasks
	log   zerolog.Logger
}

func NewJobs(cfg *config.Config, tasks DailyTasks, log zerolog.Logger) *Jobs {
	return &Jobs{
		cron:  cron.New(cron.WithLocation(cfg.Timezone)),
		cfg:   cfg,
		tasks: tasks,
		log:   log.With().Str("component", "jobs").Logger(),
	}
}

// Start registers the jobs and blocks until ctx is done.
func (j *Jobs) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		// Morning briefing and the daily checks
		{"morning briefing", config.CronSpec(j.cfg.MorningTime), j.tasks.MorningBriefing},
		{"expiry check", config.CronSpec(j.cfg.MorningTime), j.tasks.CheckExpiry},
		{"stock check", config.CronSpec(j.cfg.MorningTime), j.tasks.CheckStock},
		{"evening summary", config.CronSpec(j.cfg.EveningTime), j.tasks.EveningSummary},
		// Safety net for chains broken by a failed dispatch or an edit race
		{"rearm", "5 0 * * *", j.tasks.RearmAll},
	}

	for _, job := range jobs {
		job := job
		if _, err := j.cron.AddFunc(job.spec, func() { j.run(ctx, job.name, job.run) }); err != nil {
			return fmt.Errorf("add %s: %w", job.name, err)
		}
	}

	j.cron.Start()
	j.log.Info().
		Str("tz", j.cfg.Timezone.String()).
		Str("morning", j.cfg.MorningTime).
		Str("evening", j.cfg.EveningTime).
		Msg("jobs started")

	<-ctx.Done()
	return nil
}

func (j *Jobs) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.log.Info().Msg("jobs stopped")
}

func (j *Jobs) run(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		j.log.Error().Err(err).Str("job", name).Msg("job failed")
		return
	}
	j.log.Debug().Str("job", name).Msg("job done")
}
