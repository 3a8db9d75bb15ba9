package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服务端配置
type Config struct {
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Game   GameConfig   `yaml:"game"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GameConfig 游戏配置
type GameConfig struct {
	FeePercent        int `yaml:"fee_percent"`         // 平台抽成（百分比）
	RefundCooldown    int `yaml:"refund_cooldown"`     // 退款冷却时间（分钟）
	RoomPollInterval  int `yaml:"room_poll_interval"`  // 房间内轮询间隔（秒）
	LobbyPollInterval int `yaml:"lobby_poll_interval"` // 大厅轮询间隔（秒）
	FinishedRoomTTL   int `yaml:"finished_room_ttl"`   // 已结束房间保留时间（分钟）
	MockPlayers       int `yaml:"mock_players"`        // 演示用虚拟玩家数量，0 表示关闭
}

// RefundCooldownDuration 返回退款冷却时长
func (c *GameConfig) RefundCooldownDuration() time.Duration {
	return time.Duration(c.RefundCooldown) * time.Minute
}

// RoomPollDuration 返回房间内轮询间隔
func (c *GameConfig) RoomPollDuration() time.Duration {
	return time.Duration(c.RoomPollInterval) * time.Second
}

// LobbyPollDuration 返回大厅轮询间隔
func (c *GameConfig) LobbyPollDuration() time.Duration {
	return time.Duration(c.LobbyPollInterval) * time.Second
}

// FinishedRoomTTLDuration 返回已结束房间的保留时长
func (c *GameConfig) FinishedRoomTTLDuration() time.Duration {
	return time.Duration(c.FinishedRoomTTL) * time.Minute
}

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// 设置默认值
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 1880
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Game.FeePercent == 0 {
		cfg.Game.FeePercent = 2
	}
	if cfg.Game.RefundCooldown == 0 {
		cfg.Game.RefundCooldown = 10
	}
	if cfg.Game.RoomPollInterval == 0 {
		cfg.Game.RoomPollInterval = 1
	}
	if cfg.Game.LobbyPollInterval == 0 {
		cfg.Game.LobbyPollInterval = 5
	}
	if cfg.Game.FinishedRoomTTL == 0 {
		cfg.Game.FinishedRoomTTL = 30
	}

	return &cfg, nil
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 1880,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Game: GameConfig{
			FeePercent:        2,
			RefundCooldown:    10,
			RoomPollInterval:  1,
			LobbyPollInterval: 5,
			FinishedRoomTTL:   30,
		},
	}
}
