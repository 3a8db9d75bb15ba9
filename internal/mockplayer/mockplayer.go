// Package mockplayer 提供演示用的虚拟玩家：
// 周期性扫描大厅，往人数不足的等待房间里补充玩家。
// 虚拟玩家只走公开的引擎操作，与真实客户端完全同权，
// 绝不直接改写房间内部状态。
package mockplayer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/palemoky/solana-bingo/internal/apperrors"
	"github.com/palemoky/solana-bingo/internal/game/engine"
	"github.com/palemoky/solana-bingo/internal/game/room"
	"github.com/palemoky/solana-bingo/internal/payment"
	"github.com/palemoky/solana-bingo/internal/storage"
)

// 虚拟玩家钱包的初始充值额度
const seedBalance = 1_000

// Pool 一组虚拟玩家
type Pool struct {
	engine *engine.Engine
	store  storage.RoomStore
	wallet *payment.SimulatedWallet

	// Interval 扫描大厅的周期
	Interval time.Duration

	identities []string
}

// NewPool 创建 count 个虚拟玩家。wallet 用于给虚拟玩家自助充值，
// 传 nil 时虚拟玩家只加入免费房间。
func NewPool(eng *engine.Engine, store storage.RoomStore, wallet *payment.SimulatedWallet, count int) *Pool {
	identities := make([]string, count)
	for i := range identities {
		identities[i] = fmt.Sprintf("bot-%02d", i+1)
	}
	return &Pool{
		engine:     eng,
		store:      store,
		wallet:     wallet,
		Interval:   5 * time.Second,
		identities: identities,
	}
}

// Run 周期性补位，直到 ctx 取消
func (p *Pool) Run(ctx context.Context) {
	if len(p.identities) == 0 {
		return
	}
	log.Printf("🤖 已启用 %d 个虚拟玩家", len(p.identities))

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fillOnce(ctx)
		}
	}
}

// fillOnce 扫描一轮大厅：每个等待中的欠员房间至多补一人
func (p *Pool) fillOnce(ctx context.Context) {
	rooms, err := p.store.GetAvailableRooms(ctx)
	if err != nil {
		log.Printf("⚠️ 虚拟玩家扫描大厅失败: %v", err)
		return
	}

	for _, r := range rooms {
		if r.IsPaid && p.wallet == nil {
			continue
		}
		bot, ok := p.idleIdentity(ctx)
		if !ok {
			return // 所有虚拟玩家都已占用
		}
		p.joinAndPay(ctx, r, bot)
	}
}

// idleIdentity 找一个当前不在任何活跃房间里的虚拟玩家
func (p *Pool) idleIdentity(ctx context.Context) (string, bool) {
	for _, id := range p.identities {
		r, err := p.store.GetPlayerRoom(ctx, id)
		if err != nil {
			continue
		}
		if r == nil || !r.IsActive() {
			return id, true
		}
	}
	return "", false
}

func (p *Pool) joinAndPay(ctx context.Context, r *room.Room, bot string) {
	if _, err := p.engine.JoinRoom(ctx, r.ID, bot); err != nil {
		if !errors.Is(err, apperrors.ErrRoomFull) && !errors.Is(err, apperrors.ErrRoomFinished) {
			log.Printf("⚠️ 虚拟玩家 %s 加入房间 %s 失败: %v", bot, r.ID, err)
		}
		return
	}

	if !r.IsPaid {
		return
	}

	// 余额不够就先自助充值再付入场费
	balance, err := p.wallet.BalanceOf(ctx, bot)
	if err == nil && balance < r.EntryFee {
		if err := p.wallet.Credit(ctx, bot, seedBalance+r.EntryFee); err != nil {
			log.Printf("⚠️ 虚拟玩家 %s 充值失败: %v", bot, err)
			return
		}
	}
	if _, err := p.engine.ConfirmPayment(ctx, r.ID, bot); err != nil && !errors.Is(err, apperrors.ErrAlreadyPaid) {
		log.Printf("⚠️ 虚拟玩家 %s 支付入场费失败 (房间 %s): %v", bot, r.ID, err)
	}
}
