// Package caller 实现每个房间唯一的叫号调度器。
// 调度器只负责节奏，发布哪个号、何时到期由存储层的
// 原子更新裁决，因此多实例同时调度同一房间也不会重复叫号。
package caller

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/palemoky/solana-bingo/internal/apperrors"
	"github.com/palemoky/solana-bingo/internal/game/bingo"
	"github.com/palemoky/solana-bingo/internal/storage"
)

// Scheduler 管理一组房间的叫号协程，每个房间最多一个
type Scheduler struct {
	store storage.RoomStore

	// Resolution 检查叫号到期的轮询间隔
	Resolution time.Duration

	mu    sync.Mutex
	rooms map[string]context.CancelFunc
	wg    sync.WaitGroup
}

func NewScheduler(store storage.RoomStore) *Scheduler {
	return &Scheduler{
		store:      store,
		Resolution: time.Second,
		rooms:      make(map[string]context.CancelFunc),
	}
}

// Start 为房间启动叫号协程。已在运行时是幂等的空操作。
func (s *Scheduler) Start(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.rooms[roomID]; running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.rooms[roomID] = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.detach(roomID)
		s.run(ctx, roomID)
	}()

	log.Printf("📣 房间 %s 叫号调度已启动", roomID)
}

// Stop 停止某个房间的叫号协程。未在运行时无副作用。
func (s *Scheduler) Stop(roomID string) {
	s.mu.Lock()
	cancel, ok := s.rooms[roomID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Shutdown 停止全部叫号协程并等待退出
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	for _, cancel := range s.rooms {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Running 报告某房间是否有叫号协程在运行
func (s *Scheduler) Running(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Scheduler) detach(roomID string) {
	s.mu.Lock()
	if cancel, ok := s.rooms[roomID]; ok {
		cancel()
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()
}

// run 以 Resolution 为步长轮询：房间消失、离开进行中状态
// 或号池耗尽时退出。实际是否追加号码由存储层的到期判断决定。
func (s *Scheduler) run(ctx context.Context, roomID string) {
	ticker := time.NewTicker(s.Resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r, err := s.store.GetRoomByID(ctx, roomID)
		if err != nil {
			log.Printf("⚠️ 叫号器读取房间 %s 失败: %v", roomID, err)
			continue
		}
		if r == nil || !r.IsPlaying() {
			log.Printf("📣 房间 %s 不再进行中，叫号调度退出", roomID)
			return
		}
		if !r.NextCallDue(time.Now()) {
			continue
		}

		value, ok := bingo.DrawNumber(r.CalledNumbers)
		if !ok {
			log.Printf("📣 房间 %s 号池已耗尽，叫号调度退出", roomID)
			return
		}

		err = s.store.CallNumber(ctx, roomID, value)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrStoreConflict):
			// 另一个写入者抢先了这次叫号，下个周期重试
		case errors.Is(err, apperrors.ErrGameNotStarted), errors.Is(err, apperrors.ErrRoomNotFound):
			return
		default:
			log.Printf("⚠️ 房间 %s 叫号失败: %v", roomID, err)
		}
	}
}
