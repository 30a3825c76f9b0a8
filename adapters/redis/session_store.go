package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imagine/adapters/session"
)

// SessionStore 以 Redis hash 保存 session，每次寫入都會重設過期時間
type SessionStore struct {
	client  *redis.Client
	options sessionStoreOptions
}

type sessionStoreOptions struct {
	prefix string
	ttl    time.Duration
}

type SessionStoreOption func(*sessionStoreOptions)

// WithSessionPrefix 設定 key 前綴
func WithSessionPrefix(prefix string) SessionStoreOption {
	return func(o *sessionStoreOptions) {
		o.prefix = prefix
	}
}

// WithSessionTTL 設定 session 的存活時間
func WithSessionTTL(ttl time.Duration) SessionStoreOption {
	return func(o *sessionStoreOptions) {
		o.ttl = ttl
	}
}

var _ session.IStore = (*SessionStore)(nil)

func NewSessionStore(client *redis.Client, opts ...SessionStoreOption) *SessionStore {
	// 默認選項
	options := sessionStoreOptions{
		prefix: "session:",
		ttl:    time.Hour,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &SessionStore{
		client:  client,
		options: options,
	}
}

// Load 載入 session，key 不存在時回傳空的 map
func (s *SessionStore) Load(ctx context.Context, name string) (map[string]string, error) {
	const op = "SessionStore.Load"
	result, err := s.client.HGetAll(ctx, s.options.prefix+name).Result()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to get hash, err=%w", op, err)
	}
	return result, nil
}

// saveScript 原子性地覆寫 hash 並設定過期時間
// ARGV[1] 是過期秒數，其餘為欄位與值
var saveScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
redis.call('DEL', key)
if #ARGV > 1 then
    redis.call('HSET', key, unpack(ARGV, 2))
    if ttl > 0 then
        redis.call('EXPIRE', key, ttl)
    end
end
return 1
`)

// Save 覆寫 session，空的資料等同刪除
func (s *SessionStore) Save(ctx context.Context, name string, data map[string]string) error {
	const op = "SessionStore.Save"
	args := make([]any, 0, len(data)*2+1)
	args = append(args, int64(s.options.ttl/time.Second))
	for k, v := range data {
		args = append(args, k, v)
	}
	if err := saveScript.Run(ctx, s.client, []string{s.options.prefix + name}, args...).Err(); err != nil {
		return fmt.Errorf("[%s] Fail to execute save script, err=%w", op, err)
	}
	return nil
}
