package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/ledgerbridge/internal/config"
)

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueCredentialsSweep(ctx context.Context, payload CredentialsSweepPayload) error {
	return c.enqueue(ctx, TypeCredentialsSweep, payload, asynq.MaxRetry(1), asynq.Timeout(5*time.Minute))
}

// EnqueueCredentialRefresh schedules one tenant's refresh. A refresh already
// pending for the tenant is not duplicated.
func (c *Client) EnqueueCredentialRefresh(ctx context.Context, payload CredentialRefreshPayload) error {
	err := c.enqueue(ctx, TypeCredentialRefresh, payload,
		asynq.TaskID(TypeCredentialRefresh+":"+payload.TenantID),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Retention(10*time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
