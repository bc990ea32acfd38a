package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"recipebox/internal/model"
)

const versionTTL = 30 * 24 * time.Hour

// RecipeCache stores recipe list results per account. Every entry key embeds
// the account's current version; Invalidate bumps the version so older
// entries are never read again and simply expire.
type RecipeCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRecipeCache(client *redisv9.Client, ttl time.Duration) *RecipeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RecipeCache{client: client, ttl: ttl}
}

// GetList returns the cached list for variant along with the version it was
// looked up under. Pass that version back to SetList.
func (c *RecipeCache) GetList(ctx context.Context, accountID uint, variant string) ([]model.Recipe, int64, bool, error) {
	version, err := c.version(ctx, accountID)
	if err != nil {
		return nil, 0, false, err
	}

	raw, err := c.client.Get(ctx, c.listKey(accountID, version, variant)).Bytes()
	if err == redisv9.Nil {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, version, false, fmt.Errorf("redis get recipe list failed: %w", err)
	}

	var recipes []model.Recipe
	if err := json.Unmarshal(raw, &recipes); err != nil {
		return nil, version, false, fmt.Errorf("unmarshal cached recipe list failed: %w", err)
	}
	return recipes, version, true, nil
}

func (c *RecipeCache) SetList(ctx context.Context, accountID uint, version int64, variant string, recipes []model.Recipe) error {
	payload, err := json.Marshal(recipes)
	if err != nil {
		return fmt.Errorf("marshal recipe list cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.listKey(accountID, version, variant), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set recipe list failed: %w", err)
	}
	return nil
}

func (c *RecipeCache) Invalidate(ctx context.Context, accountID uint) error {
	key := c.versionKey(accountID)
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, versionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis bump recipe version failed: %w", err)
	}
	return nil
}

func (c *RecipeCache) version(ctx context.Context, accountID uint) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey(accountID)).Int64()
	if err == redisv9.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get recipe version failed: %w", err)
	}
	return v, nil
}

func (c *RecipeCache) versionKey(accountID uint) string {
	return fmt.Sprintf("recipes:ver:%d", accountID)
}

func (c *RecipeCache) listKey(accountID uint, version int64, variant string) string {
	return fmt.Sprintf("recipes:list:%d:%d:%s", accountID, version, variant)
}
