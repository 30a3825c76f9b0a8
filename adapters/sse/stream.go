// modified from https://github.com/gin-gonic/examples/blob/master/server-sent-event/main.go
package sse

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeadersMiddleware 設定 SSE 回應所需的標頭
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Next()
	}
}

// Serve 將使用者的事件寫成 SSE，直到客戶端斷線或 Hub 關閉
// keepAlive 大於 0 時會定期送出註解行避免代理關閉閒置連線
func Serve(c *gin.Context, hub IHub, userID uuid.UUID, eventName string, keepAlive time.Duration) error {
	ch, err := hub.Subscribe(userID)
	if err != nil {
		return err
	}
	defer hub.Unsubscribe(userID, ch)

	var tick <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	c.Status(200)
	c.Writer.Flush()
	w := c.Writer
	for {
		select {
		case <-c.Request.Context().Done():
			return nil
		case <-tick:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			c.SSEvent(eventName, event)
			w.Flush()
		}
	}
}
