package storage

import (
	"context"

	"github.com/palemoky/solana-bingo/internal/game/room"
)

// RoomStore 房间持久化抽象。所有变更操作都要求在单次原子更新内完成
// 读-改-写，两个客户端基于不同快照的并发修改只能有一个成功提交。
//
// GetRoomByID 对不存在的房间返回 (nil, nil)：轮询方把它当作对账信号
// 回到空闲状态，而不是一个需要上报的错误。变更操作则返回 ErrRoomNotFound。
type RoomStore interface {
	// GetAvailableRooms 返回等待中且未满的房间，免费房优先，人多的在前
	GetAvailableRooms(ctx context.Context) ([]*room.Room, error)
	GetAllRooms(ctx context.Context) ([]*room.Room, error)
	GetRoomByID(ctx context.Context, id string) (*room.Room, error)
	// GetPlayerRoom 返回某身份所在的房间，活跃房间优先
	GetPlayerRoom(ctx context.Context, addr string) (*room.Room, error)

	CreateRoom(ctx context.Context, r *room.Room) (string, error)
	JoinRoom(ctx context.Context, id, addr string) (*room.Room, error)
	WatchRoom(ctx context.Context, id, addr string) (*room.Room, error)
	StopWatching(ctx context.Context, id, addr string) error
	ConfirmPayment(ctx context.Context, id, addr string, amount int64) error
	LeaveRoom(ctx context.Context, id, addr string) error
	// StartGame 要求房间处于等待状态且付费房全员已付费；
	// firstNumber 非空时作为首个叫号写入同一次更新
	StartGame(ctx context.Context, id, firstNumber string) error
	// CallNumber 追加一个叫号。号码已存在或未到叫号时间时静默跳过，
	// 这是并发叫号器的幂等保护
	CallNumber(ctx context.Context, id, value string) error
	DeclareWinner(ctx context.Context, id, addr string) error

	// Subscribe 订阅房间变更流。通道收到 nil 表示房间已删除，随后关闭。
	// 返回的函数用于退订，可重复调用。
	Subscribe(ctx context.Context, id string) (<-chan *room.Room, func(), error)
}
