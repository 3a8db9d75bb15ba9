package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/palemoky/solana-bingo/internal/apperrors"
	"github.com/palemoky/solana-bingo/internal/game/room"
)

const (
	// Redis key 前缀
	roomKeyPrefix  = "bingo:room:"
	eventKeyPrefix = "bingo:events:"

	// 乐观锁冲突时的重试次数
	maxTxRetries = 8
)

// errNoop 变更函数返回它表示本次更新无需写入（幂等跳过）
var errNoop = errors.New("storage: no-op")

// roomEvent 变更流消息
type roomEvent struct {
	Room    *room.Room `json:"room,omitempty"`
	Deleted bool       `json:"deleted,omitempty"`
}

// RedisStore 基于 Redis 的房间存储。所有变更走 WATCH/MULTI/EXEC
// 乐观事务：两个客户端抢同一个名额、同一个叫号时间点或同一次获胜声明时，
// 只有先提交的事务生效，后者重读最新快照再做校验。
type RedisStore struct {
	client *redis.Client

	// 房间记录的过期时间；已结束的房间更快回收
	RoomTTL     time.Duration
	FinishedTTL time.Duration
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:      client,
		RoomTTL:     2 * time.Hour,
		FinishedTTL: 30 * time.Minute,
	}
}

var _ RoomStore = (*RedisStore)(nil)

// --- 读取 ---

// GetRoomByID 加载单个房间，不存在时返回 (nil, nil)
func (rs *RedisStore) GetRoomByID(ctx context.Context, id string) (*room.Room, error) {
	data, err := rs.client.Get(ctx, roomKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 房间不存在
		}
		return nil, err
	}
	return decodeRoom(data)
}

// GetAllRooms 加载全部房间
func (rs *RedisStore) GetAllRooms(ctx context.Context) ([]*room.Room, error) {
	keys, err := rs.client.Keys(ctx, roomKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}

	rooms := make([]*room.Room, 0, len(keys))
	for _, key := range keys {
		data, err := rs.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // 刚被删除
		}
		if err != nil {
			return nil, err
		}
		r, err := decodeRoom(data)
		if err != nil {
			log.Printf("⚠️ 跳过损坏的房间记录 %s: %v", key, err)
			continue
		}
		rooms = append(rooms, r)
	}
	return rooms, nil
}

// GetAvailableRooms 返回可加入的房间：等待中且未满。
// 免费房排在付费房前面，同类中人多的排前面。
func (rs *RedisStore) GetAvailableRooms(ctx context.Context) ([]*room.Room, error) {
	rooms, err := rs.GetAllRooms(ctx)
	if err != nil {
		return nil, err
	}

	available := make([]*room.Room, 0, len(rooms))
	for _, r := range rooms {
		if r.Status == room.StatusWaiting && !r.IsFull() {
			available = append(available, r)
		}
	}

	sort.SliceStable(available, func(i, j int) bool {
		if available[i].IsPaid != available[j].IsPaid {
			return !available[i].IsPaid
		}
		return len(available[i].Players) > len(available[j].Players)
	})
	return available, nil
}

// GetPlayerRoom 返回某身份所在的房间。先找活跃房间，
// 没有再找任何包含该身份的房间（含已结束的）。
func (rs *RedisStore) GetPlayerRoom(ctx context.Context, addr string) (*room.Room, error) {
	rooms, err := rs.GetAllRooms(ctx)
	if err != nil {
		return nil, err
	}

	var fallback *room.Room
	for _, r := range rooms {
		if !r.HasPlayer(addr) {
			continue
		}
		if r.IsActive() {
			return r, nil
		}
		if fallback == nil {
			fallback = r
		}
	}
	return fallback, nil
}

// --- 变更 ---

// CreateRoom 持久化一个新房间并返回其 id
func (rs *RedisStore) CreateRoom(ctx context.Context, r *room.Room) (string, error) {
	r = r.Clone()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = room.StatusWaiting
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	normalize(r)

	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("序列化房间数据失败: %w", err)
	}
	if err := rs.client.Set(ctx, roomKeyPrefix+r.ID, payload, rs.RoomTTL).Err(); err != nil {
		return "", err
	}
	rs.publish(ctx, r.ID, &roomEvent{Room: r})
	return r.ID, nil
}

// JoinRoom 把玩家加入房间。重复加入同一房间是幂等的；
// 游戏进行中允许中途加入，晚到的客户端自己追赶已叫出的号码。
func (rs *RedisStore) JoinRoom(ctx context.Context, id, addr string) (*room.Room, error) {
	return rs.update(ctx, id, func(r *room.Room) error {
		if r.HasPlayer(addr) {
			return errNoop
		}
		if r.Status == room.StatusFinished {
			return apperrors.ErrRoomFinished
		}
		if r.IsFull() {
			return apperrors.ErrRoomFull
		}
		r.Players = append(r.Players, addr)
		return nil
	})
}

// WatchRoom 以观战身份加入。已是玩家的身份不会被加进观战列表。
func (rs *RedisStore) WatchRoom(ctx context.Context, id, addr string) (*room.Room, error) {
	return rs.update(ctx, id, func(r *room.Room) error {
		if r.HasPlayer(addr) || r.HasSpectator(addr) {
			return errNoop
		}
		r.Spectators = append(r.Spectators, addr)
		return nil
	})
}

// StopWatching 退出观战。房间已不存在时视为已完成，不报错。
func (rs *RedisStore) StopWatching(ctx context.Context, id, addr string) error {
	_, err := rs.update(ctx, id, func(r *room.Room) error {
		if !r.HasSpectator(addr) {
			return errNoop
		}
		r.Spectators = removeString(r.Spectators, addr)
		return nil
	})
	if errors.Is(err, apperrors.ErrRoomNotFound) {
		return nil
	}
	return err
}

// ConfirmPayment 记录一笔已完成的入场费支付：加入已付费名单并把
// 奖池加上这笔费用。两个字段在同一次事务里一起提交，不存在只改一半的状态。
func (rs *RedisStore) ConfirmPayment(ctx context.Context, id, addr string, amount int64) error {
	_, err := rs.update(ctx, id, func(r *room.Room) error {
		if !r.IsPaid {
			return apperrors.ErrRoomUnpaid
		}
		if !r.HasPlayer(addr) {
			return apperrors.ErrNotInRoom
		}
		if r.HasConfirmedPayment(addr) {
			return apperrors.ErrAlreadyPaid
		}
		r.PaymentConfirmed = append(r.PaymentConfirmed, addr)
		r.TotalPot += amount
		return nil
	})
	return err
}

// LeaveRoom 把玩家移出房间。最后一个玩家离开时整个房间被删除；
// 房主离开则由剩下的第一个玩家接任。离开不改变游戏状态，
// 进行中的对局对剩余玩家继续。
func (rs *RedisStore) LeaveRoom(ctx context.Context, id, addr string) error {
	_, err := rs.update(ctx, id, func(r *room.Room) error {
		if !r.HasPlayer(addr) {
			return errNoop
		}
		r.Players = removeString(r.Players, addr)
		if r.HasConfirmedPayment(addr) {
			r.PaymentConfirmed = removeString(r.PaymentConfirmed, addr)
			if r.IsPaid {
				r.TotalPot -= r.EntryFee
			}
		}
		if r.Host == addr && len(r.Players) > 0 {
			r.Host = r.Players[0]
		}
		return nil
	})
	if errors.Is(err, apperrors.ErrRoomNotFound) {
		return nil
	}
	return err
}

// StartGame 把房间推进到游戏中。只允许从等待状态出发，
// 付费房要求全员已付费。首个叫号在同一次事务里写入。
func (rs *RedisStore) StartGame(ctx context.Context, id, firstNumber string) error {
	_, err := rs.update(ctx, id, func(r *room.Room) error {
		if r.Status != room.StatusWaiting {
			return apperrors.ErrGameStarted
		}
		if !r.AllPaymentsConfirmed() {
			return apperrors.ErrPaymentsIncomplete
		}
		r.Status = room.StatusPlaying
		if len(r.CalledNumbers) == 0 && firstNumber != "" {
			r.CalledNumbers = []string{firstNumber}
			r.CurrentNumber = firstNumber
			r.NextNumberTime = time.Now().Add(time.Duration(r.CallInterval) * time.Second).UnixMilli()
		}
		return nil
	})
	return err
}

// CallNumber 追加一个叫号。两个叫号器抢同一个时间点时，
// 后提交的要么撞上 WATCH 冲突重读，要么发现未到叫号时间而跳过，
// 同一个间隔内不会出现两次叫号。
func (rs *RedisStore) CallNumber(ctx context.Context, id, value string) error {
	_, err := rs.update(ctx, id, func(r *room.Room) error {
		if r.Status != room.StatusPlaying {
			return apperrors.ErrGameNotStarted
		}
		for _, n := range r.CalledNumbers {
			if n == value {
				return errNoop // 号码已叫过
			}
		}
		if !r.NextCallDue(time.Now()) {
			return errNoop // 还没到下一次叫号时间
		}
		r.CalledNumbers = append(r.CalledNumbers, value)
		r.CurrentNumber = value
		r.NextNumberTime = time.Now().Add(time.Duration(r.CallInterval) * time.Second).UnixMilli()
		return nil
	})
	return err
}

// DeclareWinner 把房间推进到已结束并记录获胜者。
// 状态机保证第一个成功提交的声明是最终结果，之后的声明全部失败。
func (rs *RedisStore) DeclareWinner(ctx context.Context, id, addr string) error {
	_, err := rs.update(ctx, id, func(r *room.Room) error {
		if r.Status == room.StatusFinished {
			return apperrors.ErrRoomFinished
		}
		if r.Status != room.StatusPlaying {
			return apperrors.ErrGameNotStarted
		}
		r.Status = room.StatusFinished
		r.Winner = addr
		return nil
	})
	return err
}

// --- 变更流 ---

// Subscribe 订阅某房间的变更。房间被删除时通道收到一个 nil 后关闭。
func (rs *RedisStore) Subscribe(ctx context.Context, id string) (<-chan *room.Room, func(), error) {
	sub := rs.client.Subscribe(ctx, eventKeyPrefix+id)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	ch := make(chan *room.Room, 16)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}

	go func() {
		defer close(ch)
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev roomEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("⚠️ 跳过无法解析的房间事件: %v", err)
					continue
				}
				if ev.Deleted {
					select {
					case ch <- nil:
					case <-done:
					}
					return
				}
				select {
				case ch <- ev.Room:
				case <-done:
					return
				}
			}
		}
	}()

	return ch, cancel, nil
}

// --- 内部实现 ---

// update 对单个房间做一次原子的读-改-写。mutate 返回 errNoop 表示
// 无需写入；玩家清空后的房间在同一次事务里被删除。
func (rs *RedisStore) update(ctx context.Context, id string, mutate func(*room.Room) error) (*room.Room, error) {
	key := roomKeyPrefix + id

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var result *room.Room
		var deleted, skipped bool

		err := rs.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return apperrors.ErrRoomNotFound
			}
			if err != nil {
				return err
			}

			r, err := decodeRoom(data)
			if err != nil {
				return err
			}

			if err := mutate(r); err != nil {
				if errors.Is(err, errNoop) {
					result, skipped = r, true
					return nil
				}
				return err
			}

			if len(r.Players) == 0 {
				deleted = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("序列化房间数据失败: %w", err)
			}
			ttl := rs.RoomTTL
			if r.Status == room.StatusFinished {
				ttl = rs.FinishedTTL
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, ttl)
				return nil
			})
			if err == nil {
				result = r
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue // 其他客户端抢先提交，基于最新快照重试
		}
		if err != nil {
			return nil, err
		}

		if deleted {
			log.Printf("🏠 房间 %s 已清空并删除", id)
			rs.publish(ctx, id, &roomEvent{Deleted: true})
			return nil, nil
		}
		if !skipped {
			rs.publish(ctx, id, &roomEvent{Room: result})
		}
		return result, nil
	}

	return nil, apperrors.ErrStoreConflict
}

// publish 把最新快照广播给订阅者。推送失败不影响主流程，
// 轮询兜底会在下个周期拿到同一份状态。
func (rs *RedisStore) publish(ctx context.Context, id string, ev *roomEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := rs.client.Publish(ctx, eventKeyPrefix+id, payload).Err(); err != nil {
		log.Printf("⚠️ 发布房间事件失败 %s: %v", id, err)
	}
}

func decodeRoom(data []byte) (*room.Room, error) {
	var r room.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("反序列化房间数据失败: %w", err)
	}
	normalize(&r)
	return &r, nil
}

// normalize 保证切片字段非 nil，序列化后始终是 JSON 数组而不是 null
func normalize(r *room.Room) {
	if r.Players == nil {
		r.Players = []string{}
	}
	if r.CalledNumbers == nil {
		r.CalledNumbers = []string{}
	}
	if r.PaymentConfirmed == nil {
		r.PaymentConfirmed = []string{}
	}
	if r.Spectators == nil {
		r.Spectators = []string{}
	}
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
