// Package subscription 为单个客户端提供房间状态订阅。
// 每个订阅对象独占自己的定时器和协程，随连接断开整体销毁，
// 不存在游离于连接之外的全局定时器注册表。
package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/palemoky/solana-bingo/internal/game/room"
	"github.com/palemoky/solana-bingo/internal/storage"
)

// Subscription 某客户端对某房间的一次挂载。
// 以存储层变更推送为主，轮询兜底。
type Subscription struct {
	store    storage.RoomStore
	roomID   string
	identity string

	// PollInterval 轮询兜底的间隔
	pollInterval time.Duration

	updates chan *room.Room
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}

	lastPayload []byte
}

// Attach 挂载到房间并立即推送当前快照。
// 房间不存在时 updates 通道先收到 nil 再关闭，调用方据此回到空闲态。
func Attach(store storage.RoomStore, roomID, identity string, pollInterval time.Duration) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscription{
		store:        store,
		roomID:       roomID,
		identity:     identity,
		pollInterval: pollInterval,
		updates:      make(chan *room.Room, 8),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go s.run(ctx)
	return s
}

// Updates 返回快照通道。房间被删除或身份被移出时
// 通道收到一个 nil 快照，随后关闭。
func (s *Subscription) Updates() <-chan *room.Room {
	return s.updates
}

// Close 拆除订阅：停掉协程和定时器，并关闭 updates 通道。
// 可以安全地重复调用。
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.updates)
	defer close(s.done)

	// 首个快照
	r, err := s.store.GetRoomByID(ctx, s.roomID)
	if err != nil {
		log.Printf("⚠️ 订阅房间 %s 失败: %v", s.roomID, err)
		return
	}
	if !s.deliver(r) {
		return
	}

	feed, cancelFeed, err := s.store.Subscribe(ctx, s.roomID)
	if err != nil {
		log.Printf("⚠️ 房间 %s 变更推送不可用，退化为纯轮询: %v", s.roomID, err)
		feed = nil
	} else {
		defer cancelFeed()
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case snapshot, ok := <-feed:
			if !ok {
				feed = nil // 推送断开，轮询继续兜底
				continue
			}
			if !s.deliver(snapshot) {
				return
			}

		case <-ticker.C:
			snapshot, err := s.store.GetRoomByID(ctx, s.roomID)
			if err != nil {
				continue // 临时故障，下个周期重试
			}
			if !s.deliver(snapshot) {
				return
			}
		}
	}
}

// deliver 推送一个快照，返回是否继续订阅。
// nil 快照（房间已删除）和身份被移出都会终止订阅。
// 与上次内容相同的快照会被去重丢弃。
func (s *Subscription) deliver(r *room.Room) bool {
	if r == nil {
		s.send(nil)
		return false
	}

	if s.identity != "" && !r.HasPlayer(s.identity) && !r.HasSpectator(s.identity) {
		// 身份已不在房间里（被移出或已离开），回到空闲态
		s.send(nil)
		return false
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return true
	}
	if bytes.Equal(payload, s.lastPayload) {
		return true // 内容未变，不重复推送
	}
	s.lastPayload = payload

	s.send(r)
	return r.Status != room.StatusFinished
}

// send 非阻塞推送：消费方积压时丢弃旧快照，保最新
func (s *Subscription) send(r *room.Room) {
	for {
		select {
		case s.updates <- r:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
