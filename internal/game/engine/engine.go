// Package engine 实现房间生命周期状态机：创建、加入、观战、
// 付费确认、离开、自动开局、获胜裁决与赛后结算。
// 并发裁决交给存储层的原子更新，引擎只负责业务规则与编排。
package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/palemoky/solana-bingo/internal/apperrors"
	"github.com/palemoky/solana-bingo/internal/game/bingo"
	"github.com/palemoky/solana-bingo/internal/game/caller"
	"github.com/palemoky/solana-bingo/internal/game/room"
	"github.com/palemoky/solana-bingo/internal/payment"
	"github.com/palemoky/solana-bingo/internal/storage"
)

// Caller 是引擎消费的叫号调度接口
type Caller interface {
	Start(roomID string)
	Stop(roomID string)
}

var _ Caller = (*caller.Scheduler)(nil)

// SettlementResult 一次赛后结算的结果，供展示层呈现支付状态
type SettlementResult struct {
	RoomID string
	Winner string
	Pot    int64
	Prize  int64
	Err    error
}

// CreateRoomParams 创建房间的入参
type CreateRoomParams struct {
	Name         string
	MaxPlayers   int
	CallInterval int
	IsPaid       bool
	EntryFee     int64
	Creator      string
}

// Engine 房间生命周期引擎
type Engine struct {
	store  storage.RoomStore
	wallet payment.Collaborator
	caller Caller

	settlements chan SettlementResult
	wg          sync.WaitGroup
}

func New(store storage.RoomStore, wallet payment.Collaborator, c Caller) *Engine {
	return &Engine{
		store:       store,
		wallet:      wallet,
		caller:      c,
		settlements: make(chan SettlementResult, 16),
	}
}

// Settlements 返回结算结果通道。奖金发放不阻塞房间状态流转，
// 消费方据此展示“发放中/失败”。
func (e *Engine) Settlements() <-chan SettlementResult {
	return e.settlements
}

// Close 等待所有进行中的结算落账
func (e *Engine) Close() {
	e.wg.Wait()
}

// CreateRoom 创建房间。付费房间先向创建者收取入场费，
// 收费失败则不落任何状态。
func (e *Engine) CreateRoom(ctx context.Context, p CreateRoomParams) (*room.Room, error) {
	if len(strings.TrimSpace(p.Name)) < room.MinNameLength {
		return nil, apperrors.ErrInvalidRoomName
	}
	if p.MaxPlayers < room.MinPlayers || p.MaxPlayers > room.MaxPlayers {
		return nil, apperrors.ErrInvalidMaxPlayers
	}
	if p.CallInterval < room.MinCallInterval || p.CallInterval > room.MaxCallInterval {
		return nil, apperrors.ErrInvalidCallInterval
	}
	if p.IsPaid && p.EntryFee <= 0 {
		return nil, apperrors.ErrInvalidEntryFee
	}
	if !p.IsPaid {
		p.EntryFee = 0
	}

	if err := e.ensureNotInActiveRoom(ctx, p.Creator, ""); err != nil {
		return nil, err
	}

	// 先定房间 id，付费记录要与之关联
	id := uuid.NewString()

	r := &room.Room{
		ID:           id,
		Name:         strings.TrimSpace(p.Name),
		Host:         p.Creator,
		Players:      []string{p.Creator},
		MaxPlayers:   p.MaxPlayers,
		CallInterval: p.CallInterval,
		IsPaid:       p.IsPaid,
		EntryFee:     p.EntryFee,
	}

	if p.IsPaid {
		ok, err := e.wallet.MakePayment(ctx, p.Creator, p.EntryFee, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.ErrInsufficientBalance
		}
		r.PaymentConfirmed = []string{p.Creator}
		r.TotalPot = p.EntryFee
	}

	if _, err := e.store.CreateRoom(ctx, r); err != nil {
		return nil, err
	}
	log.Printf("🏠 %s 创建了房间 %s (%s)", p.Creator, r.Name, id)

	return e.store.GetRoomByID(ctx, id)
}

// JoinRoom 加入房间。重复加入同一房间是幂等的；
// 已在其他活跃房间中会被拒绝。满员后按规则自动开局。
func (e *Engine) JoinRoom(ctx context.Context, roomID, addr string) (*room.Room, error) {
	if err := e.ensureNotInActiveRoom(ctx, addr, roomID); err != nil {
		return nil, err
	}

	r, err := e.store.JoinRoom(ctx, roomID, addr)
	if err != nil {
		return nil, err
	}
	log.Printf("👤 %s 加入了房间 %s", addr, roomID)

	e.maybeAutoStart(ctx, r)
	return e.store.GetRoomByID(ctx, roomID)
}

// WatchRoom 以观众身份进入房间
func (e *Engine) WatchRoom(ctx context.Context, roomID, addr string) (*room.Room, error) {
	return e.store.WatchRoom(ctx, roomID, addr)
}

// StopWatching 离开观众席
func (e *Engine) StopWatching(ctx context.Context, roomID, addr string) error {
	return e.store.StopWatching(ctx, roomID, addr)
}

// ConfirmPayment 确认入场费支付。先向钱包实际收款，
// 收款成功才写入房间状态；收款失败不触碰奖池。
func (e *Engine) ConfirmPayment(ctx context.Context, roomID, addr string) (*room.Room, error) {
	r, err := e.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperrors.ErrRoomNotFound
	}
	if !r.IsPaid {
		return nil, apperrors.ErrRoomUnpaid
	}
	if !r.HasPlayer(addr) {
		return nil, apperrors.ErrNotInRoom
	}
	if r.HasConfirmedPayment(addr) {
		return nil, apperrors.ErrAlreadyPaid
	}

	ok, err := e.wallet.MakePayment(ctx, addr, r.EntryFee, roomID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrInsufficientBalance
	}

	if err := e.store.ConfirmPayment(ctx, roomID, addr, r.EntryFee); err != nil {
		// 已扣款但状态写入失败：支付记录仍在，冷却期后可退款
		log.Printf("⚠️ %s 已扣款但确认失败 (房间 %s): %v", addr, roomID, err)
		return nil, err
	}

	updated, err := e.store.GetRoomByID(ctx, roomID)
	if err != nil || updated == nil {
		return updated, err
	}
	e.maybeAutoStart(ctx, updated)
	return e.store.GetRoomByID(ctx, roomID)
}

// LeaveRoom 离开房间。已付费的玩家同时向钱包申请退款，
// 未满冷却期时钱包会拒绝，但房间侧的奖池回退不受影响。
func (e *Engine) LeaveRoom(ctx context.Context, roomID, addr string) error {
	r, err := e.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	refundable := r != nil && r.IsPaid && r.HasConfirmedPayment(addr)

	if err := e.store.LeaveRoom(ctx, roomID, addr); err != nil {
		return err
	}
	log.Printf("👋 %s 离开了房间 %s", addr, roomID)

	if refundable {
		ok, err := e.wallet.RequestRefund(ctx, addr, roomID)
		if err != nil {
			log.Printf("⚠️ %s 退款失败 (房间 %s): %v", addr, roomID, err)
		} else if !ok {
			log.Printf("⚠️ %s 的退款暂不可用 (房间 %s)", addr, roomID)
		}
	}
	return nil
}

// StartGame 手动开局入口，与自动开局共用校验。
// 状态竞争时以先到者为准。
func (e *Engine) StartGame(ctx context.Context, roomID string) error {
	return e.startGame(ctx, roomID)
}

// DeclareWinner 处理获胜声明。声明不被直接信任：
// 服务端用 (玩家, 房间) 种子重算卡片，按“已叫号即已标记”的
// 最宽松假设跑一遍连线检测，通不过直接拒绝。
func (e *Engine) DeclareWinner(ctx context.Context, roomID, addr string) (*room.Room, error) {
	r, err := e.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperrors.ErrRoomNotFound
	}
	if r.Status == room.StatusFinished {
		return nil, apperrors.ErrRoomFinished
	}
	if !r.IsPlaying() {
		return nil, apperrors.ErrGameNotStarted
	}
	if !r.HasPlayer(addr) {
		return nil, apperrors.ErrNotInRoom
	}

	card := bingo.GenerateCard(r.CardSeed(addr))
	if !bingo.HasWon(card, markedFromCalled(card, r.CalledNumbers), r.CalledNumbers) {
		log.Printf("⚠️ %s 的获胜声明未通过校验 (房间 %s)", addr, roomID)
		return nil, apperrors.ErrInvalidClaim
	}

	if err := e.store.DeclareWinner(ctx, roomID, addr); err != nil {
		return nil, err
	}
	log.Printf("🎉 %s 在房间 %s 中获胜，奖池 %d", addr, roomID, r.TotalPot)

	e.caller.Stop(roomID)
	e.settle(roomID, addr, r.TotalPot)

	return e.store.GetRoomByID(ctx, roomID)
}

// PlayerCard 重算某玩家在房间里的确定性卡片
func (e *Engine) PlayerCard(ctx context.Context, roomID, addr string) (bingo.Card, error) {
	r, err := e.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return bingo.Card{}, err
	}
	if r == nil {
		return bingo.Card{}, apperrors.ErrRoomNotFound
	}
	if !r.HasPlayer(addr) {
		return bingo.Card{}, apperrors.ErrNotInRoom
	}
	return bingo.GenerateCard(r.CardSeed(addr)), nil
}

// ensureNotInActiveRoom 校验某身份没有身处其他活跃房间。
// allowID 指定可豁免的房间（重复加入同一房间是幂等的）。
func (e *Engine) ensureNotInActiveRoom(ctx context.Context, addr, allowID string) error {
	existing, err := e.store.GetPlayerRoom(ctx, addr)
	if err != nil {
		return err
	}
	if existing != nil && existing.IsActive() && existing.ID != allowID {
		return apperrors.ErrAlreadyInRoom
	}
	return nil
}

// maybeAutoStart 在加入、付费确认等状态变化后重新评估自动开局条件
func (e *Engine) maybeAutoStart(ctx context.Context, r *room.Room) {
	if r == nil || !r.ReadyToStart() {
		return
	}
	if err := e.startGame(ctx, r.ID); err != nil {
		log.Printf("⚠️ 房间 %s 自动开局失败: %v", r.ID, err)
	}
}

func (e *Engine) startGame(ctx context.Context, roomID string) error {
	first, ok := bingo.DrawNumber(nil)
	if !ok {
		return apperrors.ErrStoreConflict // 不可能发生：空已叫集合总能抽出号码
	}

	err := e.store.StartGame(ctx, roomID, first)
	if errors.Is(err, apperrors.ErrGameStarted) {
		// 并发的另一次评估已经开局
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("🎮 房间 %s 开局，首个号码 %s", roomID, first)
	e.caller.Start(roomID)
	return nil
}

// settle 异步发奖。结果写入结算通道，通道满时只记日志。
func (e *Engine) settle(roomID, winner string, pot int64) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		prize, err := e.wallet.DistributePrize(context.Background(), winner, pot)
		if err != nil {
			log.Printf("⚠️ 房间 %s 奖金发放失败: %v", roomID, err)
		}

		result := SettlementResult{RoomID: roomID, Winner: winner, Pot: pot, Prize: prize, Err: err}
		select {
		case e.settlements <- result:
		default:
			log.Printf("⚠️ 结算通道已满，丢弃房间 %s 的结算结果", roomID)
		}
	}()
}

// markedFromCalled 以“所有已叫到的格子都被标记”的假设构造标记矩阵。
// 这是对声明者最有利的假设：连它都赢不了的声明必然无效。
func markedFromCalled(card bingo.Card, called []string) bingo.Marked {
	calledSet := make(map[string]struct{}, len(called))
	for _, n := range called {
		calledSet[n] = struct{}{}
	}

	marked := bingo.NewMarked()
	for row := 0; row < bingo.CardSize; row++ {
		for col := 0; col < bingo.CardSize; col++ {
			if _, ok := calledSet[card[row][col]]; ok {
				marked[row][col] = true
			}
		}
	}
	return marked
}
