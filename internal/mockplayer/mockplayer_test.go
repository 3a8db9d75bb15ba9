package mockplayer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/solana-bingo/internal/game/caller"
	"github.com/palemoky/solana-bingo/internal/game/engine"
	"github.com/palemoky/solana-bingo/internal/game/room"
	"github.com/palemoky/solana-bingo/internal/payment"
	"github.com/palemoky/solana-bingo/internal/storage"
)

type testEnv struct {
	engine *engine.Engine
	store  storage.RoomStore
	wallet *payment.SimulatedWallet
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
	t.Cleanup(sched.Shutdown)
	eng := engine.New(store, wallet, sched)
	t.Cleanup(eng.Close)

	return &testEnv{engine: eng, store: store, wallet: wallet}
}

func TestPool_FillsFreeRoom(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.engine.CreateRoom(ctx, engine.CreateRoomParams{
		Name:         "Bot fodder",
		MaxPlayers:   3,
		CallInterval: 5,
		Creator:      "alice",
	})
	require.NoError(t, err)

	pool := NewPool(env.engine, env.store, env.wallet, 4)

	// One sweep adds at most one bot per room
	pool.fillOnce(ctx)
	r, err := env.store.GetRoomByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, r.Players, 2)

	// The second sweep fills the room and triggers auto-start
	pool.fillOnce(ctx)
	r, err = env.store.GetRoomByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, r.Players, 3)
	assert.Equal(t, room.StatusPlaying, r.Status)
}

func TestPool_PaysEntryFee(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.wallet.Credit(ctx, "alice", 100))
	created, err := env.engine.CreateRoom(ctx, engine.CreateRoomParams{
		Name:         "Paid bots",
		MaxPlayers:   2,
		CallInterval: 5,
		IsPaid:       true,
		EntryFee:     10,
		Creator:      "alice",
	})
	require.NoError(t, err)

	pool := NewPool(env.engine, env.store, env.wallet, 1)
	pool.fillOnce(ctx)

	// The bot joined, self-funded, and paid, tipping the room into playing
	r, err := env.store.GetRoomByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, r.Players, 2)
	assert.True(t, r.AllPaymentsConfirmed())
	assert.Equal(t, int64(20), r.TotalPot)
	assert.Equal(t, room.StatusPlaying, r.Status)
}

func TestPool_SkipsPaidRoomsWithoutWallet(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.wallet.Credit(ctx, "alice", 100))
	created, err := env.engine.CreateRoom(ctx, engine.CreateRoomParams{
		Name:         "Paid no wallet",
		MaxPlayers:   2,
		CallInterval: 5,
		IsPaid:       true,
		EntryFee:     10,
		Creator:      "alice",
	})
	require.NoError(t, err)

	pool := NewPool(env.engine, env.store, nil, 2)
	pool.fillOnce(ctx)

	r, err := env.store.GetRoomByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, r.Players)
}

func TestPool_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	pool := NewPool(env.engine, env.store, env.wallet, 1)
	pool.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}
