package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/palemoky/solana-bingo/internal/apperrors"
)

// respondError 把游戏错误映射为 HTTP 响应。
// 校验类 400，找不到 404，冲突类 409，余额类 402，声明无效 422。
func respondError(ctx *gin.Context, err error) {
	var gameErr *apperrors.GameError
	if !errors.As(err, &gameErr) {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch gameErr.Code {
	case apperrors.ErrCodeInvalidRoomName,
		apperrors.ErrCodeInvalidMaxPlayers,
		apperrors.ErrCodeInvalidCallInterval,
		apperrors.ErrCodeInvalidEntryFee,
		apperrors.ErrCodeRoomUnpaid:
		status = http.StatusBadRequest
	case apperrors.ErrCodeRoomNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeRoomFull,
		apperrors.ErrCodeRoomFinished,
		apperrors.ErrCodeAlreadyInRoom,
		apperrors.ErrCodeNotInRoom,
		apperrors.ErrCodeAlreadyPaid,
		apperrors.ErrCodePaymentsIncomplete,
		apperrors.ErrCodeGameNotStarted,
		apperrors.ErrCodeGameStarted,
		apperrors.ErrCodeStoreConflict:
		status = http.StatusConflict
	case apperrors.ErrCodePaymentFailed,
		apperrors.ErrCodeInsufficientBalance,
		apperrors.ErrCodeRefundUnavailable:
		status = http.StatusPaymentRequired
	case apperrors.ErrCodeInvalidClaim:
		status = http.StatusUnprocessableEntity
	}

	ctx.JSON(status, gin.H{"error": gameErr.Message, "code": gameErr.Code})
}
