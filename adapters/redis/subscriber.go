package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"imagine/generation"
)

type subscriberOptions struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
	retryDelay   time.Duration
}

type SubscriberOption func(*subscriberOptions)

// WithSubscriberLogger 設置日誌記錄器
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(o *subscriberOptions) {
		o.logger = logger
	}
}

// WithSubscriberBufferSize 設置下游channel的緩衝大小
func WithSubscriberBufferSize(size int) SubscriberOption {
	return func(o *subscriberOptions) {
		o.bufferSize = size
	}
}

// WithSubscriberBlockTimeout 設置阻塞讀取超時時間
func WithSubscriberBlockTimeout(d time.Duration) SubscriberOption {
	return func(o *subscriberOptions) {
		o.blockTimeout = d
	}
}

// WithSubscriberRetryDelay 設置讀取失敗後的等待時間
func WithSubscriberRetryDelay(d time.Duration) SubscriberOption {
	return func(o *subscriberOptions) {
		o.retryDelay = d
	}
}

// EventSubscriber 從 Redis Stream 讀取生成事件
// 每個服務實例都會收到全部事件，只讀取啟動之後寫入的部分
type EventSubscriber struct {
	client     *redis.Client
	stream     string
	lastID     string
	downStream chan generation.Event
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    subscriberOptions
}

func NewEventSubscriber(client *redis.Client, stream string, opts ...SubscriberOption) (*EventSubscriber, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := subscriberOptions{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
		retryDelay:   100 * time.Millisecond,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &EventSubscriber{
		client:     client,
		stream:     stream,
		lastID:     "$",
		downStream: make(chan generation.Event, options.bufferSize),
		closed:     true,
		logger:     options.logger.With(slog.String("caller", "EventSubscriber"), slog.String("stream", stream)),
		options:    options,
	}, nil
}

func (s *EventSubscriber) Start() {
	if !s.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.closed = false
	s.cancelFunc = cancel
	s.logger.Info("starting event subscriber")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("subscriber goroutine stopped")
		defer close(s.downStream)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			messages, err := s.read(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				s.logger.Error("read stream error", slog.Any("error", err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.options.retryDelay):
				}
				continue
			}

			for _, message := range messages {
				event, err := DecodeEntry[generation.Event](message.Values)
				if err != nil {
					s.logger.Error("failed to decode event",
						slog.String("messageId", message.ID),
						slog.Any("error", err))
					continue
				}
				select {
				case <-ctx.Done():
					return
				case s.downStream <- event:
				}
			}
		}
	}()
}

func (s *EventSubscriber) read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, s.lastID},
		Count:   10,
		Block:   s.options.blockTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, redis.Nil
	}
	messages := streams[0].Messages
	s.lastID = messages[len(messages)-1].ID
	return messages, nil
}

// Subscribe 回傳事件通道，Close 之後通道會被關閉
func (s *EventSubscriber) Subscribe() <-chan generation.Event {
	return s.downStream
}

func (s *EventSubscriber) Close() {
	if s.closed {
		return
	}
	s.logger.Info("closing event subscriber")
	s.closed = true
	s.cancelFunc()
	s.wg.Wait()
	s.logger.Info("event subscriber closed")
}
