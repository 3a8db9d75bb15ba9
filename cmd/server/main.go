package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/palemoky/solana-bingo/internal/config"
	"github.com/palemoky/solana-bingo/internal/game/caller"
	"github.com/palemoky/solana-bingo/internal/game/engine"
	"github.com/palemoky/solana-bingo/internal/logger"
	"github.com/palemoky/solana-bingo/internal/mockplayer"
	"github.com/palemoky/solana-bingo/internal/payment"
	"github.com/palemoky/solana-bingo/internal/server"
	"github.com/palemoky/solana-bingo/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("加载配置文件失败，使用默认配置: %v", err)
		cfg = config.Default()
	}

	if err := logger.Init(); err != nil {
		log.Printf("初始化日志文件失败: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 连接 Redis
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}
	defer client.Close()

	// 组装各组件
	store := storage.NewRedisStore(client)
	store.FinishedTTL = cfg.Game.FinishedRoomTTLDuration()

	wallet := payment.NewSimulatedWallet(client)
	wallet.FeePercent = int64(cfg.Game.FeePercent)
	wallet.RefundCooldown = cfg.Game.RefundCooldownDuration()

	scheduler := caller.NewScheduler(store)
	defer scheduler.Shutdown()

	eng := engine.New(store, wallet, scheduler)
	defer eng.Close()

	// 结算结果落日志，供排查支付问题
	go func() {
		for result := range eng.Settlements() {
			if result.Err != nil {
				logger.LogError("房间 %s 结算失败: %v", result.RoomID, result.Err)
				continue
			}
			logger.LogInfo("房间 %s 结算完成: %s 获得 %d", result.RoomID, result.Winner, result.Prize)
		}
	}()

	// 演示模式下的虚拟玩家
	if cfg.Game.MockPlayers > 0 {
		pool := mockplayer.NewPool(eng, store, wallet, cfg.Game.MockPlayers)
		pool.Interval = cfg.Game.LobbyPollDuration()
		go pool.Run(ctx)
	}

	log.Println("🎮 Bingo 服务器启动中...")
	srv := server.New(cfg, eng, store, wallet)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("服务器运行失败: %v", err)
	}
}
