package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/model"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/metrics"
)

var _ repository.InstructionCache = (*InstructionCache)(nil)

const instructionKey = "help:instructions"

type InstructionCache struct {
	client RedisClient
}

func NewInstructionCache(client RedisClient) *InstructionCache {
	return &InstructionCache{client: client}
}

func (c *InstructionCache) Get(ctx context.Context) ([]model.Instruction, error) {
	val, err := c.client.Get(ctx, instructionKey)
	if err != nil {
		metrics.IncInstructionCache("miss")
		if errors.Is(err, Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var rows []model.Instruction
	if err := json.Unmarshal([]byte(val), &rows); err != nil {
		metrics.IncInstructionCache("corrupt")
		return nil, domain.ErrNotFound
	}
	metrics.IncInstructionCache("hit")
	return rows, nil
}

func (c *InstructionCache) Set(ctx context.Context, rows []model.Instruction, ttl time.Duration) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, instructionKey, data, ttl)
}
