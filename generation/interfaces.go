//go:generate mockgen -package=generation -destination=mock.go -source=interfaces.go

package generation

import "context"

// Generator 將提示詞送往外部生成服務，並等待最終結果
type Generator interface {
	Generate(ctx context.Context, prompt string) (any, error)
}

// Enqueuer 將提示詞送進外部服務的佇列，完成時由 webhook 回呼
type Enqueuer interface {
	Enqueue(ctx context.Context, prompt, webhookURL string) (Submission, error)
}

// Notifier 在生成請求結束時通知其他元件
type Notifier interface {
	NotifyGeneration(ctx context.Context, event Event) error
}
