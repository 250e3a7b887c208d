package subs

import (
	"sync"
	"testing"

	"GProject/service/transport"

	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	subscribes []string // "id|dest"
	unsubs     []string
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) Subscribe(id, dest string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, id+"|"+dest)
}

func (f *fakeBroker) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, id)
}

func (f *fakeBroker) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeBroker) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

func TestSubscribeIdempotent(t *testing.T) {
	b := &fakeBroker{connected: true}
	r := NewRegistry(b)

	calls := 0
	h := func(*transport.Frame) { calls++ }

	s1 := r.Subscribe("/topic/chat/1", h)
	s2 := r.Subscribe("/topic/chat/1", h)
	require.Same(t, s1, s2)
	require.Equal(t, 1, b.subscribeCount(), "broker-level subscribe must happen once")

	// exactly one handler invocation per frame
	f := transport.NewFrame(transport.CmdMessage, []byte(`{}`)).
		Set(transport.HdrDestination, "/topic/chat/1")
	r.Dispatch(f)
	require.Equal(t, 1, calls)
}

func TestSubscribeDeferredUntilReady(t *testing.T) {
	b := &fakeBroker{connected: false}
	r := NewRegistry(b)

	r.Subscribe("/topic/chat/1", func(*transport.Frame) {})
	require.Equal(t, 0, b.subscribeCount(), "no broker subscribe while disconnected")

	b.setConnected(true)
	r.ResubscribeAll()
	require.Equal(t, 1, b.subscribeCount())
}

func TestUnsubscribe(t *testing.T) {
	b := &fakeBroker{connected: true}
	r := NewRegistry(b)

	sub := r.Subscribe("/topic/chat/1", func(*transport.Frame) {})
	r.Unsubscribe("/topic/chat/1")
	require.Equal(t, []string{sub.ID}, b.unsubs)
	require.Empty(t, r.Topics())

	// no-op on inactive topic
	r.Unsubscribe("/topic/chat/1")
	require.Len(t, b.unsubs, 1)
}

func TestResubscribeAllRestoresExactSet(t *testing.T) {
	b := &fakeBroker{connected: true}
	r := NewRegistry(b)

	r.Subscribe("/topic/chat/A", func(*transport.Frame) {})
	r.Subscribe("/topic/chat/B", func(*transport.Frame) {})
	r.Subscribe("/topic/chat/C", func(*transport.Frame) {})
	r.Unsubscribe("/topic/chat/C")

	b.mu.Lock()
	b.subscribes = nil
	b.mu.Unlock()

	// ready -> disconnected -> ready
	b.setConnected(false)
	b.setConnected(true)
	r.ResubscribeAll()

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.subscribes, 2)
	dests := map[string]bool{}
	for _, s := range b.subscribes {
		dests[s[len(s)-len("/topic/chat/X"):]] = true
	}
	require.True(t, dests["/topic/chat/A"])
	require.True(t, dests["/topic/chat/B"])
	require.False(t, dests["/topic/chat/C"])
}

func TestDispatchUnknownDestination(t *testing.T) {
	b := &fakeBroker{connected: true}
	r := NewRegistry(b)

	called := false
	r.Subscribe("/topic/chat/1", func(*transport.Frame) { called = true })

	f := transport.NewFrame(transport.CmdMessage, nil).
		Set(transport.HdrDestination, "/topic/chat/other")
	r.Dispatch(f) // dropped, no panic
	require.False(t, called)
}

func TestDispatchBySubscriptionID(t *testing.T) {
	b := &fakeBroker{connected: true}
	r := NewRegistry(b)

	got := 0
	sub := r.Subscribe("/user/queue/notifications", func(*transport.Frame) { got++ })

	f := transport.NewFrame(transport.CmdMessage, nil).
		Set("subscription", sub.ID)
	r.Dispatch(f)
	require.Equal(t, 1, got)
}
