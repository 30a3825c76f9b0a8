package sse

import (
	"github.com/google/uuid"

	"imagine/generation"
)

// IChannel 定義了 SSE 頻道的介面
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者，回傳因訂閱者來不及接收而丟棄的數量
	Broadcast(message T) int
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// IHub 依使用者分派生成事件
type IHub interface {
	Start()
	Close()
	Subscribe(userID uuid.UUID) (<-chan generation.Event, error)
	Unsubscribe(userID uuid.UUID, ch <-chan generation.Event)
}
