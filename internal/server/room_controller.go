package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/palemoky/solana-bingo/internal/game/engine"
	"github.com/palemoky/solana-bingo/internal/storage"
)

type roomController struct {
	engine   *engine.Engine
	store    storage.RoomStore
	poll     time.Duration
	upgrader websocket.Upgrader
}

func newRoomController(eng *engine.Engine, store storage.RoomStore, poll time.Duration) *roomController {
	return &roomController{
		engine: eng,
		store:  store,
		poll:   poll,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *roomController) ListAvailable(ctx *gin.Context) {
	rooms, err := c.store.GetAvailableRooms(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (c *roomController) ListAll(ctx *gin.Context) {
	rooms, err := c.store.GetAllRooms(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (c *roomController) Create(ctx *gin.Context) {
	type createRequest struct {
		Name         string `json:"name" binding:"required"`
		MaxPlayers   int    `json:"maxPlayers" binding:"required"`
		CallInterval int    `json:"callInterval" binding:"required"`
		IsPaid       bool   `json:"isPaid"`
		EntryFee     int64  `json:"entryFee"`
		Creator      string `json:"creator" binding:"required"`
	}
	var req createRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式不正确", "details": err.Error()})
		return
	}

	r, err := c.engine.CreateRoom(ctx.Request.Context(), engine.CreateRoomParams{
		Name:         req.Name,
		MaxPlayers:   req.MaxPlayers,
		CallInterval: req.CallInterval,
		IsPaid:       req.IsPaid,
		EntryFee:     req.EntryFee,
		Creator:      req.Creator,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"room": r})
}

func (c *roomController) Get(ctx *gin.Context) {
	r, err := c.store.GetRoomByID(ctx.Request.Context(), ctx.Param("roomID"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if r == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "房间不存在"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": r})
}

func (c *roomController) PlayerRoom(ctx *gin.Context) {
	r, err := c.store.GetPlayerRoom(ctx.Request.Context(), ctx.Param("addr"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	if r == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "该玩家不在任何房间中"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": r})
}

func (c *roomController) PlayerCard(ctx *gin.Context) {
	player := ctx.Query("player")
	if player == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "缺少 player 参数"})
		return
	}

	card, err := c.engine.PlayerCard(ctx.Request.Context(), ctx.Param("roomID"), player)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"card": card})
}

// identityRequest 携带操作者身份的请求体
type identityRequest struct {
	Player string `json:"player" binding:"required"`
}

func (c *roomController) Join(ctx *gin.Context) {
	var req identityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式不正确", "details": err.Error()})
		return
	}

	r, err := c.engine.JoinRoom(ctx.Request.Context(), ctx.Param("roomID"), req.Player)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": r})
}

func (c *roomController) Leave(ctx *gin.Context) {
	var req identityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式不正确", "details": err.Error()})
		return
	}

	if err := c.engine.LeaveRoom(ctx.Request.Context(), ctx.Param("roomID"), req.Player); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *roomController) Watch(ctx *gin.Context) {
	var req identityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式不正确", "details": err.Error()})
		return
	}

	r, err := c.engine.WatchRoom(ctx.Request.Context(), ctx.Param("roomID"), req.Player)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": r})
}

func (c *roomController) Unwatch(ctx *gin.Context) {
	var req identityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式不正确", "details": err.Error()})
		return
	}

	if err := c.engine.StopWatching(ctx.Request.Context(), ctx.Param("roomID"), req.Player); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *roomController) ConfirmPayment(ctx *gin.Context) {
	var req identityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式不正确", "details": err.Error()})
		return
	}

	r, err := c.engine.ConfirmPayment(ctx.Request.Context(), ctx.Param("roomID"), req.Player)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": r})
}

func (c *roomController) Start(ctx *gin.Context) {
	if err := c.engine.StartGame(ctx.Request.Context(), ctx.Param("roomID")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *roomController) DeclareWinner(ctx *gin.Context) {
	var req identityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "请求体格式不正确", "details": err.Error()})
		return
	}

	r, err := c.engine.DeclareWinner(ctx.Request.Context(), ctx.Param("roomID"), req.Player)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": r})
}
