package sse

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"imagine/generation"
)

// ErrHubClosed 表示 Hub 已停止運作
var ErrHubClosed = errors.New("hub is closed")

type hubOptions struct {
	logger     *slog.Logger
	bufferSize int
}

type HubOption func(*hubOptions)

// WithHubLogger 設置日誌記錄器
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(o *hubOptions) {
		o.logger = logger
	}
}

// WithHubBufferSize 設置每個連線的緩衝大小
func WithHubBufferSize(size int) HubOption {
	return func(o *hubOptions) {
		o.bufferSize = size
	}
}

// Hub 將來源通道的生成事件分派給該使用者目前開啟的所有 SSE 連線
// 來源通常是 Redis Stream，讓任一服務實例完成的請求都能推送到持有連線的實例
type Hub struct {
	source   <-chan generation.Event
	logger   *slog.Logger
	options  hubOptions
	mu       sync.RWMutex
	wg       sync.WaitGroup
	active   bool
	channels map[uuid.UUID]*Channel[generation.Event]
}

var _ IHub = (*Hub)(nil)

func NewHub(source <-chan generation.Event, opts ...HubOption) *Hub {
	// 默認選項
	options := hubOptions{
		logger:     slog.Default(),
		bufferSize: 8,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Hub{
		source:   source,
		logger:   options.logger.With(slog.String("caller", "Hub")),
		options:  options,
		channels: make(map[uuid.UUID]*Channel[generation.Event]),
	}
}

// Start 開始分派事件，來源通道關閉後分派 goroutine 會自行結束
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active {
		return
	}
	h.active = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for event := range h.source {
			h.dispatch(event)
		}
		h.logger.Info("event source closed")
	}()
}

func (h *Hub) dispatch(event generation.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	channel, ok := h.channels[event.UserID]
	if !ok {
		return
	}
	if dropped := channel.Broadcast(event); dropped > 0 {
		h.logger.Warn("Drop event for slow connection",
			slog.String("user", event.UserID.String()),
			slog.Int("dropped", dropped))
	}
}

// Close 關閉所有連線，呼叫前必須先關閉來源通道
func (h *Hub) Close() {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return
	}
	h.active = false
	for _, channel := range h.channels {
		channel.UnsubscribeAll()
	}
	clear(h.channels)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) Subscribe(userID uuid.UUID) (<-chan generation.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return nil, ErrHubClosed
	}
	channel, ok := h.channels[userID]
	if !ok {
		channel = NewChannel[generation.Event](h.options.bufferSize)
		h.channels[userID] = channel
	}
	return channel.Subscribe(), nil
}

func (h *Hub) Unsubscribe(userID uuid.UUID, ch <-chan generation.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	channel, ok := h.channels[userID]
	if !ok {
		return
	}
	channel.Unsubscribe(ch)
	if channel.IsIdle() {
		delete(h.channels, userID)
	}
}
