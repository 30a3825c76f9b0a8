package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound 表示 token 不存在、已過期或已被使用
var ErrTokenNotFound = errors.New("token not found")

// TokenStore 保存一次性的密碼重設 token
type TokenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewTokenStore(client *redis.Client, prefix string, ttl time.Duration) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Issue 為使用者產生新的 token
func (s *TokenStore) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	const op = "TokenStore.Issue"
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate token, err=%w", op, err)
	}
	token := hex.EncodeToString(buf)
	if err := s.client.Set(ctx, s.prefix+token, userID.String(), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("[%s] Fail to save token, err=%w", op, err)
	}
	return token, nil
}

// Consume 取出並刪除 token，同一個 token 只能成功一次
func (s *TokenStore) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	const op = "TokenStore.Consume"
	if token == "" {
		return uuid.Nil, ErrTokenNotFound
	}
	value, err := s.client.GetDel(ctx, s.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrTokenNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Fail to consume token, err=%w", op, err)
	}
	userID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("[%s] Corrupted token value, err=%w", op, err)
	}
	return userID, nil
}
