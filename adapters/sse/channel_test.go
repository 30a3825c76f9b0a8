package sse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"imagine/adapters/sse"
)

func TestChannel(t *testing.T) {
	ch := sse.NewChannel[Message](1)

	// 測試訂閱
	sub := ch.Subscribe()
	assert.NotNil(t, sub)
	assert.False(t, ch.IsIdle())

	// 測試廣播訊息
	msg := Message{Data: "test message"}
	assert.Equal(t, 0, ch.Broadcast(msg))

	select {
	case received := <-sub:
		assert.Equal(t, msg, received)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}

	// 測試取消訂閱
	ch.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok, "channel should be closed")

	// 測試 IsIdle
	assert.True(t, ch.IsIdle(), "channel should be idle")
}

func TestChannel_SlowSubscriber(t *testing.T) {
	ch := sse.NewChannel[Message](1)
	slow := ch.Subscribe()
	fast := ch.Subscribe()

	assert.Equal(t, 0, ch.Broadcast(Message{Data: "first"}))
	<-fast

	// slow 的緩衝已滿，廣播不應阻塞
	done := make(chan int)
	go func() { done <- ch.Broadcast(Message{Data: "second"}) }()
	select {
	case dropped := <-done:
		assert.Equal(t, 1, dropped)
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on slow subscriber")
	}

	assert.Equal(t, Message{Data: "first"}, <-slow)
	assert.Equal(t, Message{Data: "second"}, <-fast)

	ch.UnsubscribeAll()
	assert.True(t, ch.IsIdle())
	_, ok := <-slow
	assert.False(t, ok)
}
