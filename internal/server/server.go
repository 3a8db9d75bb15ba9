// Package server 对外暴露 REST + WebSocket 接口：
// 房间的增删查改走 REST，房间内的实时状态走 WebSocket 订阅。
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/palemoky/solana-bingo/internal/config"
	"github.com/palemoky/solana-bingo/internal/game/engine"
	"github.com/palemoky/solana-bingo/internal/payment"
	"github.com/palemoky/solana-bingo/internal/storage"
)

// Server 游戏 HTTP 服务
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	httpd  *http.Server
}

func New(cfg *config.Config, eng *engine.Engine, store storage.RoomStore, wallet *payment.SimulatedWallet) *Server {
	rooms := newRoomController(eng, store, cfg.Game.RoomPollDuration())
	wallets := newWalletController(wallet)

	router := setupRouter(rooms, wallets)

	return &Server{
		cfg:    cfg,
		engine: eng,
		httpd: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}
}

// Run 启动服务并阻塞，直到 ctx 取消后完成优雅退出
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("🎮 服务已启动，监听 %s", s.httpd.Addr)
		if err := s.httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("👋 正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpd.Shutdown(shutdownCtx)
}

func setupRouter(rooms *roomController, wallets *walletController) *gin.Engine {
	router := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowHeaders = []string{"Authorization", "Content-Type", "Origin", "Accept"}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	r := api.Group("/rooms")
	r.GET("", rooms.ListAvailable)
	r.GET("/all", rooms.ListAll)
	r.POST("", rooms.Create)
	r.GET("/:roomID", rooms.Get)
	r.GET("/:roomID/card", rooms.PlayerCard)
	r.POST("/:roomID/join", rooms.Join)
	r.POST("/:roomID/leave", rooms.Leave)
	r.POST("/:roomID/watch", rooms.Watch)
	r.POST("/:roomID/unwatch", rooms.Unwatch)
	r.POST("/:roomID/payments", rooms.ConfirmPayment)
	r.POST("/:roomID/start", rooms.Start)
	r.POST("/:roomID/winner", rooms.DeclareWinner)

	api.GET("/players/:addr/room", rooms.PlayerRoom)

	w := api.Group("/wallets")
	w.GET("/:addr", wallets.Balance)
	w.POST("/:addr/credit", wallets.Credit)

	router.GET("/ws/rooms/:roomID", rooms.Subscribe)

	return router
}
