package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jalverson/predbot/internal/domain"
)

// Well-known shared-cache keys. These are the wire contract with the
// dashboard and the external ML worker; renaming one is a breaking change.
const (
	keyBotConfig    = "bot_config"
	keyBotPositions = "bot_positions"
	keyBotActions   = "bot_actions"
	keyAPIStatus    = "api_status"
)

// StateCache implements domain.StateCache on plain Redis string keys holding
// JSON, matching what the dashboard and ML worker read and write.
type StateCache struct {
	rdb *redis.Client
}

// NewStateCache creates a StateCache backed by the given Client.
func NewStateCache(c *Client) *StateCache {
	return &StateCache{rdb: c.Underlying()}
}

// GetRiskConfig reads the operator's risk configuration. It returns
// domain.ErrNotFound when the key has never been written.
func (sc *StateCache) GetRiskConfig(ctx context.Context) (domain.RiskConfig, error) {
	raw, err := sc.rdb.Get(ctx, keyBotConfig).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RiskConfig{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RiskConfig{}, fmt.Errorf("redis: get %s: %w", keyBotConfig, err)
	}

	var cfg domain.RiskConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.RiskConfig{}, fmt.Errorf("redis: decode %s: %w", keyBotConfig, err)
	}
	return cfg, nil
}

// SetRiskConfig replaces the risk configuration as one whole snapshot.
func (sc *StateCache) SetRiskConfig(ctx context.Context, cfg domain.RiskConfig) error {
	return sc.setJSON(ctx, keyBotConfig, cfg)
}

// PublishPositions replaces the bot_positions snapshot.
func (sc *StateCache) PublishPositions(ctx context.Context, positions []domain.Position) error {
	if positions == nil {
		positions = []domain.Position{}
	}
	return sc.setJSON(ctx, keyBotPositions, positions)
}

// PublishActions replaces the bot_actions ring, newest last.
func (sc *StateCache) PublishActions(ctx context.Context, entries []domain.AuditEntry) error {
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return sc.setJSON(ctx, keyBotActions, entries)
}

// SetAPIStatus records broker connectivity for the dashboard status widget.
func (sc *StateCache) SetAPIStatus(ctx context.Context, status string) error {
	if err := sc.rdb.Set(ctx, keyAPIStatus, status, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", keyAPIStatus, err)
	}
	return nil
}

func (sc *StateCache) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", key, err)
	}
	if err := sc.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StateCache = (*StateCache)(nil)
