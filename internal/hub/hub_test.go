package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/tgrelay/internal/notify"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, conn *Connection) notify.Envelope {
	t.Helper()
	select {
	case data := <-conn.Send:
		var env notify.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return notify.Envelope{}
}

func TestPublishReachesRoomMembersOnly(t *testing.T) {
	h := runHub(t)
	a := h.NewConnection(nil)
	b := h.NewConnection(nil)
	h.Register(a)
	h.Register(b)
	h.Join(a, "chat_42")
	h.Join(b, "chat_7")

	require.NoError(t, h.Publish(context.Background(), "chat_42", "new_message", map[string]int64{"user_id": 42}))

	env := receive(t, a)
	assert.Equal(t, "new_message", env.Type)
	assert.Equal(t, "chat_42", env.Room)
	select {
	case <-b.Send:
		t.Fatal("connection outside the room received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectionInSeveralRooms(t *testing.T) {
	h := runHub(t)
	c := h.NewConnection(nil)
	h.Register(c)
	h.Join(c, notify.DashboardRoom)
	h.Join(c, "chat_1")
	assert.ElementsMatch(t, []string{"dashboard", "chat_1"}, c.Rooms())

	require.NoError(t, h.Publish(context.Background(), notify.DashboardRoom, "new_message", nil))
	assert.Equal(t, "dashboard", receive(t, c).Room)

	h.Leave(c, "chat_1")
	assert.Equal(t, 0, h.RoomSize("chat_1"))
	assert.Equal(t, 1, h.RoomSize(notify.DashboardRoom))
}

func TestUnregisterClearsRooms(t *testing.T) {
	h := runHub(t)
	c := h.NewConnection(nil)
	h.Register(c)
	h.Join(c, "chat_1")
	h.Unregister(c)

	require.Eventually(t, func() bool {
		return h.GetConnectionCount() == 0 && h.RoomSize("chat_1") == 0
	}, time.Second, 5*time.Millisecond)
	_, open := <-c.Send
	assert.False(t, open)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := NewHub(zerolog.Nop())
	var err error
	for i := 0; i < 300; i++ {
		err = h.Broadcast("chat_1", []byte("x"))
	}
	assert.ErrorIs(t, err, ErrBufferFull)
}
