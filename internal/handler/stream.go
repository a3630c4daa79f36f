package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tradingarena/internal/broadcast"
)

type Subscriber interface {
	Subscribe() *broadcast.Subscription
	Unsubscribe(sub *broadcast.Subscription)
}

// StreamHandler upgrades /ws and relays hub events as JSON text frames.
type StreamHandler struct {
	Hub          Subscriber
	WriteTimeout time.Duration
	// AllowAnyOrigin disables the same-origin check for browser clients
	// served from another host.
	AllowAnyOrigin bool
	Logger         *zap.Logger
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/ws", h.serve)
}

// @Summary Event stream (websocket)
// @Tags stream
// @Success 101
// @Router /ws [get]
func (h *StreamHandler) serve(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: h.AllowAnyOrigin,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer conn.CloseNow()

	sub := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(sub)

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// once the peer goes away.
	ctx := conn.CloseRead(c.Request.Context())
	timeout := h.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber fell behind")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, timeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				if h.Logger != nil {
					h.Logger.Debug("websocket write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
