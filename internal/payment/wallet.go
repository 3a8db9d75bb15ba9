// Package payment 提供模拟链上钱包：余额、入场费支付、退款与奖金分发。
// 真实部署时换成链上收款方，引擎侧接口不变。
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/palemoky/solana-bingo/internal/apperrors"
)

// Collaborator 是引擎消费的支付协作方接口。
// 所有布尔返回值表示业务上的成功/拒绝，error 只表示基础设施故障。
type Collaborator interface {
	// MakePayment 从 payer 扣除 amount 入场费并记录支付时间。
	// 余额不足时返回 (false, nil)，不产生任何扣款；
	// 同一 (payer, roomID) 已有支付记录时拒绝重复扣款。
	MakePayment(ctx context.Context, payer string, amount int64, roomID string) (bool, error)
	// RequestRefund 申请退回某房间的入场费。
	// 支付记录不存在或冷却期未满时返回 (false, nil)。
	RequestRefund(ctx context.Context, payer, roomID string) (bool, error)
	// DistributePrize 把奖池扣除平台费后发给赢家，返回实际到账金额。
	DistributePrize(ctx context.Context, winner string, totalPot int64) (int64, error)
}

const (
	balanceKeyPrefix = "bingo:wallet:"
	paymentKeyPrefix = "bingo:payment:"

	maxPayRetries = 8
)

// paymentRecord 记录一笔入场费支付，退款时据此判断冷却期
type paymentRecord struct {
	Amount    int64 `json:"amount"`
	Timestamp int64 `json:"timestamp"` // Unix 毫秒
}

// SimulatedWallet 基于 Redis 的模拟钱包，实现 Collaborator
type SimulatedWallet struct {
	client *redis.Client

	// FeePercent 平台抽成百分比，默认 2
	FeePercent int64
	// RefundCooldown 支付后多久才允许退款，默认 10 分钟
	RefundCooldown time.Duration
	// FeeAccount 平台费入账身份
	FeeAccount string
	// RecordTTL 支付记录保留时长
	RecordTTL time.Duration
}

func NewSimulatedWallet(client *redis.Client) *SimulatedWallet {
	return &SimulatedWallet{
		client:         client,
		FeePercent:     2,
		RefundCooldown: 10 * time.Minute,
		FeeAccount:     "platform",
		RecordTTL:      2 * time.Hour,
	}
}

var _ Collaborator = (*SimulatedWallet)(nil)

// BalanceOf 查询某身份的余额，无记录视为 0
func (w *SimulatedWallet) BalanceOf(ctx context.Context, addr string) (int64, error) {
	val, err := w.client.Get(ctx, balanceKeyPrefix+addr).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// Credit 给某身份充值，仅测试和演示入口使用
func (w *SimulatedWallet) Credit(ctx context.Context, addr string, amount int64) error {
	return w.client.IncrBy(ctx, balanceKeyPrefix+addr, amount).Err()
}

// MakePayment 以乐观事务扣款，防止并发双花。余额不足时返回
// (false, nil)。支付记录用 SetNX 写入且记录键也在 WATCH 范围内，
// 同一 (payer, roomID) 并发重复支付时只有一笔扣款成立，
// 其余全部以 ErrAlreadyPaid 拒绝，不会出现扣了两次只能退一次的窗口。
func (w *SimulatedWallet) MakePayment(ctx context.Context, payer string, amount int64, roomID string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("无效的支付金额: %d", amount)
	}

	balanceKey := balanceKeyPrefix + payer
	recordKey := w.recordKey(payer, roomID)

	record, err := json.Marshal(paymentRecord{
		Amount:    amount,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return false, err
	}

	paid := false
	txn := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, recordKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return apperrors.ErrAlreadyPaid
		}

		balance, err := tx.Get(ctx, balanceKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if balance < amount {
			paid = false
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.DecrBy(ctx, balanceKey, amount)
			pipe.SetNX(ctx, recordKey, record, w.RecordTTL)
			return nil
		})
		if err == nil {
			paid = true
		}
		return err
	}

	for i := 0; i < maxPayRetries; i++ {
		err := w.client.Watch(ctx, txn, balanceKey, recordKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, err
		}
		if paid {
			log.Printf("💰 %s 已支付入场费 %d (房间 %s)", payer, amount, roomID)
		}
		return paid, nil
	}
	return false, fmt.Errorf("支付 %s 冲突重试次数耗尽", payer)
}

// RequestRefund 退回某房间的入场费。支付记录不存在、
// 或距支付不足冷却期时返回 (false, nil)。
func (w *SimulatedWallet) RequestRefund(ctx context.Context, payer, roomID string) (bool, error) {
	recordKey := w.recordKey(payer, roomID)

	data, err := w.client.Get(ctx, recordKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil // 没有这笔支付
	}
	if err != nil {
		return false, err
	}

	var record paymentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return false, fmt.Errorf("解析支付记录失败: %w", err)
	}

	elapsed := time.Since(time.UnixMilli(record.Timestamp))
	if elapsed < w.RefundCooldown {
		log.Printf("⚠️ %s 退款冷却中，还需等待 %s", payer, (w.RefundCooldown - elapsed).Round(time.Second))
		return false, nil
	}

	// 先删记录再退款：重复请求最多丢一次退款，不会重复退
	deleted, err := w.client.Del(ctx, recordKey).Result()
	if err != nil {
		return false, err
	}
	if deleted == 0 {
		return false, nil // 已被并发的退款请求处理
	}
	if err := w.client.IncrBy(ctx, balanceKeyPrefix+payer, record.Amount).Err(); err != nil {
		return false, err
	}
	log.Printf("💸 已退还 %s 入场费 %d (房间 %s)", payer, record.Amount, roomID)
	return true, nil
}

// DistributePrize 按 FeePercent 抽成后把奖池发给赢家，
// 平台费入账 FeeAccount，返回赢家实际到账金额。
func (w *SimulatedWallet) DistributePrize(ctx context.Context, winner string, totalPot int64) (int64, error) {
	if totalPot <= 0 {
		return 0, nil
	}

	prize := totalPot * (100 - w.FeePercent) / 100
	fee := totalPot - prize

	if err := w.client.IncrBy(ctx, balanceKeyPrefix+winner, prize).Err(); err != nil {
		return 0, err
	}
	if fee > 0 {
		if err := w.client.IncrBy(ctx, balanceKeyPrefix+w.FeeAccount, fee).Err(); err != nil {
			return prize, err
		}
	}
	log.Printf("🏆 奖金 %d 已发给 %s (平台费 %d)", prize, winner, fee)
	return prize, nil
}

func (w *SimulatedWallet) recordKey(payer, roomID string) string {
	return paymentKeyPrefix + payer + ":" + roomID
}
