package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/palemoky/solana-bingo/internal/payment"
)

// walletController 模拟钱包的查询与充值入口。
// 接入真实链上支付后这组接口整体下线。
type walletController struct {
	wallet *payment.SimulatedWallet
}

func newWalletController(wallet *payment.SimulatedWallet) *walletController {
	return &walletController{wallet: wallet}
}

func (c *walletController) Balance(ctx *gin.Context) {
	balance, err := c.wallet.BalanceOf(ctx.Request.Context(), ctx.Param("addr"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"address": ctx.Param("addr"), "balance": balance})
}

func (c *walletController) Credit(ctx *gin.Context) {
	type creditRequest struct {
		Amount int64 `json:"amount" binding:"required,gt=0"`
	}
	var req creditRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式不正确", "details": err.Error()})
		return
	}

	addr := ctx.Param("addr")
	if err := c.wallet.Credit(ctx.Request.Context(), addr, req.Amount); err != nil {
		respondError(ctx, err)
		return
	}

	balance, err := c.wallet.BalanceOf(ctx.Request.Context(), addr)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"address": addr, "balance": balance})
}
