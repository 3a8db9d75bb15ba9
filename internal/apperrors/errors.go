package apperrors

// 错误码（传输层据此映射 HTTP 状态码和用户可见的提示分类）
const (
	ErrCodeUnknown = iota + 1000
	ErrCodeInvalidRoomName
	ErrCodeInvalidMaxPlayers
	ErrCodeInvalidCallInterval
	ErrCodeInvalidEntryFee
	ErrCodeRoomNotFound
	ErrCodeRoomFull
	ErrCodeRoomFinished
	ErrCodeAlreadyInRoom
	ErrCodeNotInRoom
	ErrCodeRoomUnpaid
	ErrCodeAlreadyPaid
	ErrCodePaymentsIncomplete
	ErrCodePaymentFailed
	ErrCodeInsufficientBalance
	ErrCodeGameNotStarted
	ErrCodeGameStarted
	ErrCodeInvalidClaim
	ErrCodeRefundUnavailable
	ErrCodeStoreConflict
)

// GameError 游戏错误（房间、支付和调度共享）
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

// 预定义错误
var (
	ErrInvalidRoomName     = &GameError{Code: ErrCodeInvalidRoomName, Message: "房间名至少需要 3 个字符"}
	ErrInvalidMaxPlayers   = &GameError{Code: ErrCodeInvalidMaxPlayers, Message: "房间人数必须在 2 到 10 之间"}
	ErrInvalidCallInterval = &GameError{Code: ErrCodeInvalidCallInterval, Message: "叫号间隔必须在 3 到 15 秒之间"}
	ErrInvalidEntryFee     = &GameError{Code: ErrCodeInvalidEntryFee, Message: "付费房间的入场费必须大于 0"}
	ErrRoomNotFound        = &GameError{Code: ErrCodeRoomNotFound, Message: "房间不存在"}
	ErrRoomFull            = &GameError{Code: ErrCodeRoomFull, Message: "房间已满"}
	ErrRoomFinished        = &GameError{Code: ErrCodeRoomFinished, Message: "游戏已结束，无法加入"}
	ErrAlreadyInRoom       = &GameError{Code: ErrCodeAlreadyInRoom, Message: "您已在其他房间中"}
	ErrNotInRoom           = &GameError{Code: ErrCodeNotInRoom, Message: "您不在房间中"}
	ErrRoomUnpaid          = &GameError{Code: ErrCodeRoomUnpaid, Message: "该房间不需要支付入场费"}
	ErrAlreadyPaid         = &GameError{Code: ErrCodeAlreadyPaid, Message: "您已确认过支付"}
	ErrPaymentsIncomplete  = &GameError{Code: ErrCodePaymentsIncomplete, Message: "仍有玩家未确认支付"}
	ErrPaymentFailed       = &GameError{Code: ErrCodePaymentFailed, Message: "支付失败，请重试"}
	ErrInsufficientBalance = &GameError{Code: ErrCodeInsufficientBalance, Message: "余额不足"}
	ErrGameNotStarted      = &GameError{Code: ErrCodeGameNotStarted, Message: "游戏尚未开始"}
	ErrGameStarted         = &GameError{Code: ErrCodeGameStarted, Message: "游戏已开始"}
	ErrInvalidClaim        = &GameError{Code: ErrCodeInvalidClaim, Message: "获胜声明未通过校验"}
	ErrRefundUnavailable   = &GameError{Code: ErrCodeRefundUnavailable, Message: "尚未到可退款时间"}
	ErrStoreConflict       = &GameError{Code: ErrCodeStoreConflict, Message: "状态已变化，请刷新后重试"}
)
