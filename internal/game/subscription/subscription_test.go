package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/solana-bingo/internal/game/room"
	"github.com/palemoky/solana-bingo/internal/storage"
)

const testPollInterval = 20 * time.Millisecond

func newTestStore(t *testing.T) storage.RoomStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return storage.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func createRoom(t *testing.T, store storage.RoomStore, players ...string) string {
	t.Helper()
	id, err := store.CreateRoom(context.Background(), &room.Room{
		Name:       "sub test",
		Host:       players[0],
		Players:    players,
		MaxPlayers: 4,
	})
	require.NoError(t, err)
	return id
}

func waitSnapshot(t *testing.T, sub *Subscription) *room.Room {
	t.Helper()
	select {
	case r, ok := <-sub.Updates():
		require.True(t, ok, "updates channel closed unexpectedly")
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestSubscription_InitialSnapshot(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	id := createRoom(t, store, "alice")

	sub := Attach(store, id, "alice", testPollInterval)
	defer sub.Close()

	snap := waitSnapshot(t, sub)
	require.NotNil(t, snap)
	assert.Equal(t, id, snap.ID)
}

func TestSubscription_DeliversChanges(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	id := createRoom(t, store, "alice")

	sub := Attach(store, id, "alice", testPollInterval)
	defer sub.Close()

	require.NotNil(t, waitSnapshot(t, sub))

	_, err := store.JoinRoom(context.Background(), id, "bob")
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-sub.Updates():
			require.NotNil(t, snap)
			if snap.HasPlayer("bob") {
				return
			}
		case <-deadline:
			t.Fatal("join was never observed")
		}
	}
}

func TestSubscription_MissingRoomYieldsNilThenCloses(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	sub := Attach(store, "nope", "alice", testPollInterval)
	defer sub.Close()

	snap := waitSnapshot(t, sub)
	assert.Nil(t, snap)

	_, ok := <-sub.Updates()
	assert.False(t, ok)
}

func TestSubscription_ClosesWhenIdentityLeaves(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	id := createRoom(t, store, "alice", "bob")

	sub := Attach(store, id, "bob", testPollInterval)
	defer sub.Close()

	require.NotNil(t, waitSnapshot(t, sub))

	require.NoError(t, store.LeaveRoom(context.Background(), id, "bob"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-sub.Updates():
			if !ok {
				t.Fatal("channel closed before the nil snapshot")
			}
			if snap == nil {
				_, ok := <-sub.Updates()
				assert.False(t, ok)
				return
			}
		case <-deadline:
			t.Fatal("eviction was never observed")
		}
	}
}

func TestSubscription_FinishedRoomDeliversFinalSnapshot(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	id := createRoom(t, store, "alice", "bob")
	require.NoError(t, store.StartGame(context.Background(), id, "B7"))

	sub := Attach(store, id, "alice", testPollInterval)
	defer sub.Close()

	require.NotNil(t, waitSnapshot(t, sub))

	require.NoError(t, store.DeclareWinner(context.Background(), id, "alice"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-sub.Updates():
			require.True(t, ok, "channel closed before the finished snapshot")
			require.NotNil(t, snap)
			if snap.Status == room.StatusFinished {
				assert.Equal(t, "alice", snap.Winner)
				_, ok := <-sub.Updates()
				assert.False(t, ok)
				return
			}
		case <-deadline:
			t.Fatal("finish was never observed")
		}
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	id := createRoom(t, store, "alice")

	sub := Attach(store, id, "alice", testPollInterval)
	waitSnapshot(t, sub)

	sub.Close()
	sub.Close()

	_, ok := <-sub.Updates()
	assert.False(t, ok)
}

func TestSubscription_SpectatorReceivesUpdates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	id := createRoom(t, store, "alice")
	_, err := store.WatchRoom(context.Background(), id, "carol")
	require.NoError(t, err)

	sub := Attach(store, id, "carol", testPollInterval)
	defer sub.Close()

	snap := waitSnapshot(t, sub)
	require.NotNil(t, snap)
	assert.True(t, snap.HasSpectator("carol"))
}
