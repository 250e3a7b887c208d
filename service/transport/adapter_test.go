package transport_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"GProject/service/mockgate"
	"GProject/service/transport"
	"GProject/tools/errs"

	"github.com/stretchr/testify/require"
)

func startGateway(t *testing.T, secret string) (*mockgate.Gateway, string) {
	t.Helper()
	gw := mockgate.NewGateway(mockgate.Config{Secret: secret})
	srv := httptest.NewServer(gw.Router())
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return gw, wsURL
}

func newAdapter(wsURL string) *transport.Adapter {
	return transport.NewAdapter(transport.Config{
		URL:               wsURL,
		HeartbeatInterval: time.Second,
		SendQueueSize:     16,
		HandshakeTimeout:  2 * time.Second,
	})
}

func TestConnectAnonymous(t *testing.T) {
	_, wsURL := startGateway(t, "")
	a := newAdapter(wsURL)

	require.NoError(t, a.Connect(context.Background(), ""))
	require.True(t, a.IsConnected())

	// idempotent while connected
	require.NoError(t, a.Connect(context.Background(), ""))
	require.NoError(t, a.Close())
	require.False(t, a.IsConnected())
	require.NoError(t, a.Close())
}

func TestConnectBadToken(t *testing.T) {
	_, wsURL := startGateway(t, "test-secret")
	a := newAdapter(wsURL)

	err := a.Connect(context.Background(), "not-a-jwt")
	require.Error(t, err)
	require.True(t, errs.ErrAuthRejected.Is(err), "got %v", err)
	require.False(t, a.IsConnected())
}

func TestConnectGoodToken(t *testing.T) {
	gw, wsURL := startGateway(t, "test-secret")
	tok, err := gw.IssueToken("u1", time.Hour)
	require.NoError(t, err)

	a := newAdapter(wsURL)
	require.NoError(t, a.Connect(context.Background(), tok))
	defer func() { _ = a.Close() }()
	require.True(t, a.IsConnected())
}

func TestSubscribeDeliversPublishedFrames(t *testing.T) {
	_, wsURL := startGateway(t, "")
	a := newAdapter(wsURL)

	got := make(chan *transport.Frame, 4)
	a.OnFrame(func(f *transport.Frame) { got <- f })

	require.NoError(t, a.Connect(context.Background(), ""))
	defer func() { _ = a.Close() }()

	a.Subscribe("s1", "/topic/chat/7")
	time.Sleep(100 * time.Millisecond) // let the SUBSCRIBE frame land
	a.Send("/app/chat/7", []byte(`{"sender":"u2","content":"yo"}`))

	select {
	case f := <-got:
		require.Equal(t, transport.CmdMessage, f.Command)
		require.Equal(t, "/topic/chat/7", f.Header(transport.HdrDestination))
		require.Contains(t, string(f.Body), `"content":"yo"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no MESSAGE frame delivered")
	}
}

func TestSendWhileDisconnectedIsDropped(t *testing.T) {
	a := newAdapter("ws://127.0.0.1:1/ws")
	// must not panic or block
	a.Send("/app/chat/7", []byte(`{}`))
	a.Subscribe("s1", "/topic/chat/7")
	a.Unsubscribe("s1")
	require.False(t, a.IsConnected())
}

func TestStateChangeOnServerClose(t *testing.T) {
	_, wsURL := startGateway(t, "")
	a := newAdapter(wsURL)

	states := make(chan transport.State, 4)
	a.OnStateChange(func(s transport.State) { states <- s })

	require.NoError(t, a.Connect(context.Background(), ""))
	require.Equal(t, transport.StateReady, <-states)

	require.NoError(t, a.Close())
	select {
	case s := <-states:
		require.Equal(t, transport.StateDisconnected, s)
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect state event")
	}
}

func TestConnectRefused(t *testing.T) {
	a := newAdapter("ws://127.0.0.1:1/ws")
	err := a.Connect(context.Background(), "")
	require.Error(t, err)
	require.True(t, errs.ErrConnection.Is(err), "got %v", err)
}
