package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/solana-bingo/internal/apperrors"
	"github.com/palemoky/solana-bingo/internal/game/bingo"
	"github.com/palemoky/solana-bingo/internal/game/caller"
	"github.com/palemoky/solana-bingo/internal/game/room"
	"github.com/palemoky/solana-bingo/internal/payment"
	"github.com/palemoky/solana-bingo/internal/storage"
)

type testEnv struct {
	engine *Engine
	store  storage.RoomStore
	wallet *payment.SimulatedWallet
	caller *caller.Scheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := storage.NewRedisStore(client)
	wallet := payment.NewSimulatedWallet(client)
	sched := caller.NewScheduler(store)
	sched.Resolution = 10 * time.Millisecond
	t.Cleanup(sched.Shutdown)

	eng := New(store, wallet, sched)
	t.Cleanup(eng.Close)

	return &testEnv{engine: eng, store: store, wallet: wallet, caller: sched}
}

func validParams(creator string) CreateRoomParams {
	return CreateRoomParams{
		Name:         "Test Room",
		MaxPlayers:   4,
		CallInterval: 5,
		Creator:      creator,
	}
}

func TestEngine_CreateRoom_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateRoomParams)
		want   error
	}{
		{"short name", func(p *CreateRoomParams) { p.Name = "ab" }, apperrors.ErrInvalidRoomName},
		{"blank name", func(p *CreateRoomParams) { p.Name = "   " }, apperrors.ErrInvalidRoomName},
		{"too few players", func(p *CreateRoomParams) { p.MaxPlayers = 1 }, apperrors.ErrInvalidMaxPlayers},
		{"too many players", func(p *CreateRoomParams) { p.MaxPlayers = 11 }, apperrors.ErrInvalidMaxPlayers},
		{"interval too short", func(p *CreateRoomParams) { p.CallInterval = 2 }, apperrors.ErrInvalidCallInterval},
		{"interval too long", func(p *CreateRoomParams) { p.CallInterval = 16 }, apperrors.ErrInvalidCallInterval},
		{"paid without fee", func(p *CreateRoomParams) { p.IsPaid = true; p.EntryFee = 0 }, apperrors.ErrInvalidEntryFee},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams("alice")
			tc.mutate(&p)
			_, err := env.engine.CreateRoom(ctx, p)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// No room should have leaked out of any rejected attempt
	r, err := env.store.GetPlayerRoom(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestEngine_CreateRoom_Free(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	p := validParams("alice")
	p.IsPaid = false
	p.EntryFee = 99 // ignored for free rooms

	r, err := env.engine.CreateRoom(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "alice", r.Host)
	assert.Equal(t, []string{"alice"}, r.Players)
	assert.Equal(t, room.StatusWaiting, r.Status)
	assert.Zero(t, r.EntryFee)
	assert.Zero(t, r.TotalPot)
}

func TestEngine_CreateRoom_PaidChargesCreator(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.wallet.Credit(ctx, "alice", 100))

	p := validParams("alice")
	p.IsPaid = true
	p.EntryFee = 25

	r, err := env.engine.CreateRoom(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, r.PaymentConfirmed)
	assert.Equal(t, int64(25), r.TotalPot)

	balance, err := env.wallet.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)
}

func TestEngine_CreateRoom_PaidInsufficientBalance(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	p := validParams("broke")
	p.IsPaid = true
	p.EntryFee = 25

	_, err := env.engine.CreateRoom(ctx, p)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

	// Payment failure must abort the whole operation: no room persisted
	r, err := env.store.GetPlayerRoom(ctx, "broke")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestEngine_SingleActiveRoom(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.CreateRoom(ctx, validParams("alice"))
	require.NoError(t, err)
	other, err := env.engine.CreateRoom(ctx, validParams("bob"))
	require.NoError(t, err)

	// While alice's room is active she cannot create or join another
	_, err = env.engine.CreateRoom(ctx, validParams("alice"))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInRoom)
	_, err = env.engine.JoinRoom(ctx, other.ID, "alice")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyInRoom)

	// Rejoining her own room stays idempotent
	r, err := env.engine.JoinRoom(ctx, first.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, r.Players)

	// After leaving, joining elsewhere works
	require.NoError(t, env.engine.LeaveRoom(ctx, first.ID, "alice"))
	_, err = env.engine.JoinRoom(ctx, other.ID, "alice")
	assert.NoError(t, err)
}

func TestEngine_AutoStart_FreeRoom(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	p := validParams("alice")
	p.MaxPlayers = 2
	created, err := env.engine.CreateRoom(ctx, p)
	require.NoError(t, err)

	r, err := env.engine.JoinRoom(ctx, created.ID, "bob")
	require.NoError(t, err)

	assert.Equal(t, room.StatusPlaying, r.Status)
	require.Len(t, r.CalledNumbers, 1)
	assert.Equal(t, r.CalledNumbers[0], r.CurrentNumber)
	assert.True(t, env.caller.Running(created.ID))
}

func TestEngine_AutoStart_PaidRoomWaitsForPayments(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.wallet.Credit(ctx, "alice", 100))
	require.NoError(t, env.wallet.Credit(ctx, "bob", 100))

	p := validParams("alice")
	p.MaxPlayers = 2
	p.IsPaid = true
	p.EntryFee = 10
	created, err := env.engine.CreateRoom(ctx, p)
	require.NoError(t, err)

	// Full capacity but bob has not paid: no auto-start
	r, err := env.engine.JoinRoom(ctx, created.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, room.StatusWaiting, r.Status)
	assert.False(t, env.caller.Running(created.ID))

	// The last confirmation tips the room into playing
	r, err = env.engine.ConfirmPayment(ctx, created.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, room.StatusPlaying, r.Status)
	assert.Equal(t, int64(20), r.TotalPot)
	assert.True(t, env.caller.Running(created.ID))
}

func TestEngine_ConfirmPayment_PotAccounting(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	const fee = int64(10)
	players := []string{"alice", "bob", "carol"}
	for _, p := range players {
		require.NoError(t, env.wallet.Credit(ctx, p, 100))
	}

	params := validParams("alice")
	params.IsPaid = true
	params.EntryFee = fee
	created, err := env.engine.CreateRoom(ctx, params)
	require.NoError(t, err)

	_, err = env.engine.JoinRoom(ctx, created.ID, "bob")
	require.NoError(t, err)
	_, err = env.engine.JoinRoom(ctx, created.ID, "carol")
	require.NoError(t, err)

	_, err = env.engine.ConfirmPayment(ctx, created.ID, "bob")
	require.NoError(t, err)
	r, err := env.engine.ConfirmPayment(ctx, created.ID, "carol")
	require.NoError(t, err)

	assert.Equal(t, fee*int64(len(players)), r.TotalPot)
	assert.Len(t, r.PaymentConfirmed, len(players))

	// Re-confirmation is a conflict and leaves the pot alone
	_, err = env.engine.ConfirmPayment(ctx, created.ID, "bob")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
	r, err = env.store.GetRoomByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, fee*int64(len(players)), r.TotalPot)
}

func TestEngine_ConfirmPayment_InsufficientBalance(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.wallet.Credit(ctx, "alice", 100))

	p := validParams("alice")
	p.IsPaid = true
	p.EntryFee = 10
	created, err := env.engine.CreateRoom(ctx, p)
	require.NoError(t, err)
	_, err = env.engine.JoinRoom(ctx, created.ID, "broke")
	require.NoError(t, err)

	_, err = env.engine.ConfirmPayment(ctx, created.ID, "broke")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

	r, err := env.store.GetRoomByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.TotalPot)
	assert.Equal(t, []string{"alice"}, r.PaymentConfirmed)
}

func TestEngine_LeaveRoom_RefundsAfterCooldown(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.wallet.RefundCooldown = 0
	ctx := context.Background()

	require.NoError(t, env.wallet.Credit(ctx, "alice", 100))
	require.NoError(t, env.wallet.Credit(ctx, "bob", 100))

	p := validParams("alice")
	p.IsPaid = true
	p.EntryFee = 10
	created, err := env.engine.CreateRoom(ctx, p)
	require.NoError(t, err)
	_, err = env.engine.JoinRoom(ctx, created.ID, "bob")
	require.NoError(t, err)
	_, err = env.engine.ConfirmPayment(ctx, created.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, env.engine.LeaveRoom(ctx, created.ID, "bob"))

	// Bob's fee comes back out of the pot and his wallet is made whole
	r, err := env.store.GetRoomByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.TotalPot)
	balance, err := env.wallet.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

// newWinnableRoom persists a playing room whose called numbers complete
// the first row of the given player's deterministic card.
func newWinnableRoom(t *testing.T, store storage.RoomStore, winner string, pot int64) string {
	t.Helper()

	const id = "winnable-room"
	card := bingo.GenerateCard(winner + "-" + id)
	called := make([]string, 0, bingo.CardSize)
	for col := 0; col < bingo.CardSize; col++ {
		called = append(called, card[0][col])
	}

	_, err := store.CreateRoom(context.Background(), &room.Room{
		ID:            id,
		Name:          "Winnable",
		Host:          winner,
		Players:       []string{winner, "loser"},
		MaxPlayers:    4,
		CallInterval:  5,
		Status:        room.StatusPlaying,
		CalledNumbers: called,
		IsPaid:        pot > 0,
		EntryFee:      pot / 2,
		TotalPot:      pot,
	})
	require.NoError(t, err)
	return id
}

func TestEngine_DeclareWinner_ValidClaim(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	id := newWinnableRoom(t, env.store, "alice", 100)

	r, err := env.engine.DeclareWinner(ctx, id, "alice")
	require.NoError(t, err)
	assert.Equal(t, room.StatusFinished, r.Status)
	assert.Equal(t, "alice", r.Winner)

	// Settlement happens off the request path but its outcome is observable
	select {
	case result := <-env.engine.Settlements():
		assert.Equal(t, id, result.RoomID)
		assert.Equal(t, "alice", result.Winner)
		assert.Equal(t, int64(100), result.Pot)
		assert.Equal(t, int64(98), result.Prize)
		assert.NoError(t, result.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no settlement result delivered")
	}

	balance, err := env.wallet.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(98), balance)
}

func TestEngine_DeclareWinner_RejectsBogusClaim(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	// The called numbers complete alice's card, not loser's
	id := newWinnableRoom(t, env.store, "alice", 0)

	_, err := env.engine.DeclareWinner(ctx, id, "loser")
	assert.ErrorIs(t, err, apperrors.ErrInvalidClaim)

	r, err := env.store.GetRoomByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, room.StatusPlaying, r.Status)
	assert.Empty(t, r.Winner)
}

func TestEngine_DeclareWinner_Conflicts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	id := newWinnableRoom(t, env.store, "alice", 0)

	_, err := env.engine.DeclareWinner(ctx, id, "mallory")
	assert.ErrorIs(t, err, apperrors.ErrNotInRoom)

	_, err = env.engine.DeclareWinner(ctx, id, "alice")
	require.NoError(t, err)

	// A second claim on the finished room is rejected
	_, err = env.engine.DeclareWinner(ctx, id, "alice")
	assert.ErrorIs(t, err, apperrors.ErrRoomFinished)

	_, err = env.engine.DeclareWinner(ctx, "nope", "alice")
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
}

func TestEngine_DeclareWinner_NotPlaying(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.CreateRoom(ctx, validParams("alice"))
	require.NoError(t, err)

	_, err = env.engine.DeclareWinner(ctx, created.ID, "alice")
	assert.ErrorIs(t, err, apperrors.ErrGameNotStarted)
}

func TestEngine_PlayerCard(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.CreateRoom(ctx, validParams("alice"))
	require.NoError(t, err)

	card, err := env.engine.PlayerCard(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, bingo.GenerateCard("alice-"+created.ID), card)
	assert.Equal(t, bingo.FreeCell, card[2][2])

	_, err = env.engine.PlayerCard(ctx, created.ID, "stranger")
	assert.ErrorIs(t, err, apperrors.ErrNotInRoom)
}

func TestEngine_WatchRoom(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.CreateRoom(ctx, validParams("alice"))
	require.NoError(t, err)

	r, err := env.engine.WatchRoom(ctx, created.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, r.Spectators)

	require.NoError(t, env.engine.StopWatching(ctx, created.ID, "carol"))
	r, err = env.store.GetRoomByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, r.Spectators)
}
