package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
)

// NewSweepScheduler registers the periodic credential sweep. cronspec
// accepts cron syntax or "@every <duration>".
func NewSweepScheduler(cfg config.RedisConfig, cronspec string, withinHours int) (*asynq.Scheduler, error) {
	data, err := json.Marshal(CredentialsSweepPayload{WithinHours: withinHours})
	if err != nil {
		return nil, fmt.Errorf("marshal sweep payload: %w", err)
	}
	scheduler := asynq.NewScheduler(RedisOpt(cfg), &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(cronspec, asynq.NewTask(TypeCredentialsSweep, data), asynq.MaxRetry(1)); err != nil {
		return nil, fmt.Errorf("register sweep %q: %w", cronspec, err)
	}
	return scheduler, nil
}
