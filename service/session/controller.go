package session

import (
	"context"
	"sync"
	"time"

	"GProject/logger"
	"GProject/service/transport"
	"GProject/tools/errs"
	"GProject/tools/safe"

	"github.com/cenkalti/backoff/v4"
)

// State of the logical session. Authenticating is entered only when a
// token is supplied; anonymous sessions go straight from Connecting to
// Ready, matching the gateway's behavior.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Transport is the slice of the adapter the controller drives. Only the
// controller calls Connect/Close; rooms share the connection read-only.
type Transport interface {
	Connect(ctx context.Context, token string) error
	Close() error
	OnStateChange(fn func(transport.State))
}

// Controller orchestrates connect -> authenticate -> ready and owns the
// reconnect policy. Default policy is a constant 3s delay; pass any
// backoff.BackOff to change it. A policy returning backoff.Stop moves the
// session to the terminal Failed state.
type Controller struct {
	tr    Transport
	token string
	boff  backoff.BackOff

	mu       sync.Mutex
	state    State
	lastErr  error
	retries  int
	started  bool
	cancel   context.CancelFunc
	watchers []func(State)
	readyFns []func()

	drops chan struct{}
}

func NewController(tr Transport, token string, boff backoff.BackOff) *Controller {
	if boff == nil {
		boff = backoff.NewConstantBackOff(3 * time.Second)
	}
	c := &Controller{
		tr:    tr,
		token: token,
		boff:  boff,
		drops: make(chan struct{}, 1),
	}
	tr.OnStateChange(func(s transport.State) {
		if s == transport.StateDisconnected {
			select {
			case c.drops <- struct{}{}:
			default:
			}
		}
	})
	return c
}

// OnState registers a state observer. Observers run on the controller
// goroutine and must not block.
func (c *Controller) OnState(fn func(State)) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
}

// OnReady fires on every Ready entry, including re-entries after a drop.
// The client wires the registry's ResubscribeAll here.
func (c *Controller) OnReady(fn func()) {
	c.mu.Lock()
	c.readyFns = append(c.readyFns, fn)
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Connect starts the session loop. Idempotent while running.
func (c *Controller) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	safe.Go(func() { c.run(runCtx) })
}

// Logout tears the session down for good. Terminal.
func (c *Controller) Logout() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	_ = c.tr.Close()
	c.setState(Failed)
}

func (c *Controller) run(ctx context.Context) {
	c.boff.Reset()
	for {
		c.setState(Connecting)
		if c.token != "" {
			c.setState(Authenticating)
		}
		err := c.tr.Connect(ctx, c.token)
		if err != nil {
			c.recordErr(err)
			if errs.ErrAuthRejected.Is(err) {
				logger.Error("session auth rejected: " + err.Error())
				c.setState(Failed)
				return
			}
			logger.Infof("[session] connect failed: %v", err)
			c.setState(Disconnected)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.boff.Reset()
		c.setState(Ready)
		c.fireReady()

		select {
		case <-ctx.Done():
			_ = c.tr.Close()
			c.setStateIfNotFailed(Disconnected)
			return
		case <-c.drops:
			logger.Info("session dropped, scheduling reconnect")
			c.setState(Disconnected)
			if !c.sleep(ctx) {
				return
			}
		}
	}
}

// sleep waits out the backoff delay. Returns false when the session
// should stop (context done or policy exhausted).
func (c *Controller) sleep(ctx context.Context) bool {
	c.mu.Lock()
	c.retries++
	c.mu.Unlock()

	d := c.boff.NextBackOff()
	if d == backoff.Stop {
		logger.Error("session retries exhausted")
		c.setState(Failed)
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Controller) recordErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	watchers := c.watchers
	c.mu.Unlock()
	for _, fn := range watchers {
		fn(s)
	}
}

// setStateIfNotFailed keeps Logout's terminal Failed from being clobbered
// by the run loop winding down.
func (c *Controller) setStateIfNotFailed(s State) {
	c.mu.Lock()
	if c.state == Failed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setState(s)
}

func (c *Controller) fireReady() {
	c.mu.Lock()
	fns := c.readyFns
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
