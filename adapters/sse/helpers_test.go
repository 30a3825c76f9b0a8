package sse_test

// Message 表示一個測試用的訊息
type Message struct {
	Data string `json:"data"`
}
