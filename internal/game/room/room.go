package room

import "time"

// Status 房间状态，状态机只能单向推进：waiting → playing → finished。
// 房间清空时整体删除，不是一种状态。
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// 创建房间时的参数边界
const (
	MinNameLength   = 3
	MinPlayers      = 2
	MaxPlayers      = 10
	MinCallInterval = 3  // 秒
	MaxCallInterval = 15 // 秒
)

// Room 宾果房间，持久化为扁平 JSON 记录，轮询和推送共用同一份快照
type Room struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Host             string   `json:"host"`
	Players          []string `json:"players"`        // 按加入顺序
	MaxPlayers       int      `json:"maxPlayers"`
	CallInterval     int      `json:"callInterval"`   // 叫号间隔（秒）
	CalledNumbers    []string `json:"calledNumbers"`  // 只追加，无重复，最长 75
	CurrentNumber    string   `json:"currentNumber,omitempty"`
	Status           Status   `json:"status"`
	Winner           string   `json:"winner,omitempty"`
	CreatedAt        int64    `json:"createdAt"`      // Unix 毫秒
	IsPaid           bool     `json:"isPaid"`
	EntryFee         int64    `json:"entryFee"`
	TotalPot         int64    `json:"totalPot"`
	PaymentConfirmed []string `json:"paymentConfirmed"` // 已付费玩家，恒为 Players 的子集
	Spectators       []string `json:"spectators"`
	NextNumberTime   int64    `json:"nextNumberTime,omitempty"` // 下一次叫号时间（Unix 毫秒）
}

// HasPlayer 判断某身份是否为房间玩家
func (r *Room) HasPlayer(addr string) bool {
	for _, p := range r.Players {
		if p == addr {
			return true
		}
	}
	return false
}

// HasSpectator 判断某身份是否在观战
func (r *Room) HasSpectator(addr string) bool {
	for _, s := range r.Spectators {
		if s == addr {
			return true
		}
	}
	return false
}

// HasConfirmedPayment 判断某玩家是否已确认支付
func (r *Room) HasConfirmedPayment(addr string) bool {
	for _, p := range r.PaymentConfirmed {
		if p == addr {
			return true
		}
	}
	return false
}

// IsFull 房间是否已满
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// IsActive 房间是否处于活跃状态（等待中或游戏中）。
// 一个身份同时只能出现在一个活跃房间里。
func (r *Room) IsActive() bool {
	return r.Status == StatusWaiting || r.Status == StatusPlaying
}

// IsPlaying 房间是否正在游戏中
func (r *Room) IsPlaying() bool {
	return r.Status == StatusPlaying
}

// AllPaymentsConfirmed 付费房间是否所有玩家都已付费；免费房间恒为 true
func (r *Room) AllPaymentsConfirmed() bool {
	if !r.IsPaid {
		return true
	}
	for _, p := range r.Players {
		if !r.HasConfirmedPayment(p) {
			return false
		}
	}
	return true
}

// ReadyToStart 是否满足自动开局条件：满员且（免费或全员已付费）
func (r *Room) ReadyToStart() bool {
	return r.Status == StatusWaiting && r.IsFull() && r.AllPaymentsConfirmed()
}

// CardSeed 返回某玩家在本房间的卡片种子。种子只由 (玩家, 房间) 决定，
// 服务端随时可以确定性地重算出同一张卡片。
func (r *Room) CardSeed(addr string) string {
	return addr + "-" + r.ID
}

// NextCallDue 当前时刻是否已到叫号时间
func (r *Room) NextCallDue(now time.Time) bool {
	return r.NextNumberTime == 0 || now.UnixMilli() >= r.NextNumberTime
}

// Clone 深拷贝房间记录，避免调用方共享底层切片
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = append([]string(nil), r.Players...)
	c.CalledNumbers = append([]string(nil), r.CalledNumbers...)
	c.PaymentConfirmed = append([]string(nil), r.PaymentConfirmed...)
	c.Spectators = append([]string(nil), r.Spectators...)
	return &c
}
