//go:generate mockgen -package=redis -destination=mock.go -source=interfaces.go

package redis

import (
	"context"

	"github.com/google/uuid"
)

// ITokenStore 定義了一次性 token 的操作介面
type ITokenStore interface {
	Issue(ctx context.Context, userID uuid.UUID) (string, error)
	Consume(ctx context.Context, token string) (uuid.UUID, error)
}

var _ ITokenStore = (*TokenStore)(nil)
