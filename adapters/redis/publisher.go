package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"

	"imagine/generation"
)

// ErrClosed 表示 publisher 或 subscriber 已關閉
var ErrClosed = errors.New("stream client is closed")

type publisherOptions struct {
	logger     *slog.Logger
	bufferSize int
	maxLen     int64
}

type PublisherOption func(*publisherOptions)

// WithPublisherLogger 設置日誌記錄器
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(o *publisherOptions) {
		o.logger = logger
	}
}

// WithPublisherBufferSize 設置緩衝大小
func WithPublisherBufferSize(size int) PublisherOption {
	return func(o *publisherOptions) {
		o.bufferSize = size
	}
}

// WithPublisherMaxLen 設置 stream 大約保留的筆數，0 表示不修剪
func WithPublisherMaxLen(n int64) PublisherOption {
	return func(o *publisherOptions) {
		o.maxLen = n
	}
}

// EventPublisher 將生成結果寫入 Redis Stream，讓所有服務實例都能推送給前端
type EventPublisher struct {
	client     *redis.Client
	stream     string
	upstream   *chanx.UnboundedChan[map[string]any]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	logger     *slog.Logger
	options    publisherOptions
}

var _ generation.Notifier = (*EventPublisher)(nil)

func NewEventPublisher(client *redis.Client, stream string, opts ...PublisherOption) (*EventPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := publisherOptions{
		logger:     slog.Default(),
		bufferSize: 100,
		maxLen:     10000,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &EventPublisher{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "EventPublisher"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (p *EventPublisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.upstream = chanx.NewUnboundedChan[map[string]any](ctx, p.options.bufferSize)
	p.cancelFunc = cancel
	p.closed = false
	p.logger.Info("starting event publisher")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("publisher goroutine stopped")

		for {
			select {
			case <-ctx.Done():
				return
			case values, ok := <-p.upstream.Out:
				if !ok {
					return
				}
				p.add(ctx, values)
			}
		}
	}()
}

func (p *EventPublisher) add(ctx context.Context, values map[string]any) {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}
	if p.options.maxLen > 0 {
		args.MaxLen = p.options.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Error("publish event error", slog.Any("error", err))
		return
	}
	p.logger.Debug("event published", slog.String("messageId", id))
}

// NotifyGeneration 將事件排入佇列，實際寫入由背景 goroutine 完成
func (p *EventPublisher) NotifyGeneration(_ context.Context, event generation.Event) error {
	const op = "EventPublisher.NotifyGeneration"
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	values, err := EncodeEntry(event)
	if err != nil {
		return fmt.Errorf("[%s] Fail to encode event, err=%w", op, err)
	}
	p.upstream.In <- values
	return nil
}

func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Info("closing event publisher")
	p.closed = true
	p.cancelFunc()
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("event publisher closed")
}
