package server

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/palemoky/solana-bingo/internal/game/subscription"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// wsMessage WebSocket 下行消息。room 为 null 表示订阅已终止
// （房间被删除或身份被移出），客户端应回到大厅。
type wsMessage struct {
	Type string `json:"type"`
	Room any    `json:"room"`
}

// Subscribe 把一条 WebSocket 连接挂载为房间订阅。
// 订阅对象随连接断开一并销毁，定时器不会泄漏。
func (c *roomController) Subscribe(ctx *gin.Context) {
	roomID := ctx.Param("roomID")
	identity := ctx.Query("player")

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	sub := subscription.Attach(c.store, roomID, identity, c.poll)
	defer sub.Close()

	// 读协程只用于感知客户端断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return

		case snapshot, ok := <-sub.Updates():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := wsMessage{Type: "room", Room: snapshot}
			if snapshot == nil {
				msg.Type = "detached"
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if snapshot == nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
