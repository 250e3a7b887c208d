package chat

import (
	"context"
	"testing"

	"GProject/config"
	"GProject/service/transport"

	"github.com/stretchr/testify/require"
)

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	cfg := config.Default()
	cfg.UserID = "u1"
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return newRoom(context.Background(), c, "42")
}

func TestMalformedPushLeavesTimelineUnchanged(t *testing.T) {
	r := newTestRoom(t)

	f := transport.NewFrame(transport.CmdMessage, []byte("{invalid json")).
		Set(transport.HdrDestination, "/topic/chat/42")
	r.handleFrame(f) // must not panic
	require.Empty(t, r.Messages())
}

func TestPushAppendsPeerMessage(t *testing.T) {
	r := newTestRoom(t)

	f := transport.NewFrame(transport.CmdMessage,
		[]byte(`{"id":"m1","chatRoomId":"42","sender":"u2","content":"hello","timestamp":"2026-08-28T10:00:00"}`)).
		Set(transport.HdrDestination, "/topic/chat/42")
	r.handleFrame(f)

	msgs := r.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, OriginPushed, msgs[0].Origin)
	require.Equal(t, 2026, msgs[0].CreatedAt.Year())
}

func TestNonMessageFramesIgnored(t *testing.T) {
	r := newTestRoom(t)
	r.handleFrame(transport.NewFrame(transport.CmdError, []byte("boom")))
	require.Empty(t, r.Messages())
}

