package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	summaryKeyPrefix    = "conversations:summary:"
	summaryGenKeyPrefix = "conversations:summary:gen:"
)

// storeIfGen 只有代数未变时才写入，KEYS[1]=代数 KEYS[2]=摘要
var storeIfGen = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then cur = '0' end
if cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// SummaryCache 以 JSON 形式缓存用户的会话摘要。
// 每个用户带一个代数计数器，Invalidate 递增代数，
// 读库前取到的代数过期后 Store 不再落盘。
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(userID string) string    { return summaryKeyPrefix + userID }
func summaryGenKey(userID string) string { return summaryGenKeyPrefix + userID }

// Generation 当前代数，从未失效过的用户为 0
func (c *SummaryCache) Generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.client.Get(ctx, summaryGenKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Load 未命中时返回 false, nil
func (c *SummaryCache) Load(ctx context.Context, userID string, dst interface{}) (bool, error) {
	data, err := c.client.Get(ctx, summaryKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// 旧格式数据直接丢弃
		_ = c.client.Del(ctx, summaryKey(userID)).Err()
		return false, nil
	}
	return true, nil
}

// Store 代数与 gen 一致时写入并返回 true；期间有过失效则丢弃
func (c *SummaryCache) Store(ctx context.Context, userID string, gen int64, value interface{}) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	keys := []string{summaryGenKey(userID), summaryKey(userID)}
	n, err := storeIfGen.Run(ctx, c.client, keys,
		strconv.FormatInt(gen, 10), payload, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate 递增代数并删除摘要
func (c *SummaryCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range userIDs {
			p.Incr(ctx, summaryGenKey(id))
			p.Del(ctx, summaryKey(id))
		}
		return nil
	})
	return err
}
