//go:generate mockgen -package=session -destination=mock.go -source=interfaces.go

package session

import "context"

// IStore 是 session 的儲存層
type IStore interface {
	Load(ctx context.Context, name string) (map[string]string, error)
	Save(ctx context.Context, name string, data map[string]string) error
}

// ISession 是單一請求中可讀寫的 session
type ISession interface {
	ID() string
	Load() error
	Get(key string) string
	Pop(key string) string
	Set(key, value string)
	Delete(key string)
	Clear()
	Save() error
}
