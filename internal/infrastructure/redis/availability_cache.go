package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// AvailabilityCache は都市単位の空きスポット一覧をキャッシュする
// 無効化は行わずTTLのみで失効させるため、TTLの間は確定・取消が
// 反映されない結果整合のキャッシュとなる
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailabilityCache は新しい AvailabilityCache を作成する
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

// GetSpotIDs はキャッシュされた空きスポットID一覧を取得する
func (c *AvailabilityCache) GetSpotIDs(ctx context.Context, cityID, vehicleType string, start, end time.Time) ([]string, error) {
	raw, err := c.client.Get(ctx, c.key(cityID, vehicleType, start, end)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("キャッシュの復元に失敗: %w", err)
	}
	return ids, nil
}

// SetSpotIDs は空きスポットID一覧をTTL付きで保存する
func (c *AvailabilityCache) SetSpotIDs(ctx context.Context, cityID, vehicleType string, start, end time.Time, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("キャッシュの変換に失敗: %w", err)
	}
	if err := c.client.Set(ctx, c.key(cityID, vehicleType, start, end), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) key(cityID, vehicleType string, start, end time.Time) string {
	return fmt.Sprintf("availability:%s:%s:%d-%d", cityID, vehicleType, start.Unix(), end.Unix())
}
