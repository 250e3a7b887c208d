package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"GProject/service/transport"
	"GProject/tools/errs"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	script   []error // results for successive Connect calls; empty = succeed
	calls    int
	stateFns []func(transport.State)
}

func (f *fakeTransport) Connect(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.script) == 0 {
		return nil
	}
	err := f.script[0]
	f.script = f.script[1:]
	return err
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) OnStateChange(fn func(transport.State)) {
	f.mu.Lock()
	f.stateFns = append(f.stateFns, fn)
	f.mu.Unlock()
}

func (f *fakeTransport) drop() {
	f.mu.Lock()
	fns := f.stateFns
	f.mu.Unlock()
	for _, fn := range fns {
		fn(transport.StateDisconnected)
	}
}

func (f *fakeTransport) connectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func shortBackoff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == want
	}, 2*time.Second, 5*time.Millisecond, "want state %s, have %s", want, c.State())
}

func TestConnectReachesReady(t *testing.T) {
	tr := &fakeTransport{}
	c := NewController(tr, "", shortBackoff())
	c.Connect(context.Background())
	waitForState(t, c, Ready)
	c.Logout()
	waitForState(t, c, Failed)
}

func TestRetriesAfterConnectFailure(t *testing.T) {
	tr := &fakeTransport{script: []error{
		errs.ErrConnection.WrapMsg("refused"),
		errs.ErrConnection.WrapMsg("refused"),
	}}
	c := NewController(tr, "", shortBackoff())
	c.Connect(context.Background())

	waitForState(t, c, Ready)
	require.GreaterOrEqual(t, tr.connectCalls(), 3)
	require.GreaterOrEqual(t, c.Retries(), 2)
	require.Error(t, c.LastError())
}

func TestAuthRejectionIsTerminal(t *testing.T) {
	tr := &fakeTransport{script: []error{
		errs.ErrAuthRejected.WrapMsg("bad token"),
	}}
	c := NewController(tr, "tok", shortBackoff())
	c.Connect(context.Background())

	waitForState(t, c, Failed)
	require.Equal(t, 1, tr.connectCalls(), "no retry after auth rejection")
	require.True(t, errs.ErrAuthRejected.Is(c.LastError()))
}

func TestReadyFiresOnEveryReentry(t *testing.T) {
	tr := &fakeTransport{}
	c := NewController(tr, "", shortBackoff())

	var mu sync.Mutex
	readies := 0
	c.OnReady(func() {
		mu.Lock()
		readies++
		mu.Unlock()
	})
	c.Connect(context.Background())
	waitForState(t, c, Ready)

	tr.drop()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return readies >= 2
	}, 2*time.Second, 5*time.Millisecond, "OnReady must fire again after reconnect")
}

func TestExhaustedPolicyFails(t *testing.T) {
	tr := &fakeTransport{script: []error{
		errs.ErrConnection.WrapMsg("refused"),
	}}
	c := NewController(tr, "", &backoff.StopBackOff{})
	c.Connect(context.Background())
	waitForState(t, c, Failed)
}

func TestAnonymousSkipsAuthenticating(t *testing.T) {
	tr := &fakeTransport{}
	c := NewController(tr, "", shortBackoff())

	var mu sync.Mutex
	var seen []State
	c.OnState(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	c.Connect(context.Background())
	waitForState(t, c, Ready)

	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		require.NotEqual(t, Authenticating, s, "anonymous connect must skip authenticating")
	}
}
