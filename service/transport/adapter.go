package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"GProject/logger"
	"GProject/tools/errs"
	"GProject/tools/safe"

	"github.com/gorilla/websocket"
)

// State of the underlying broker connection. Readiness here means the
// broker acknowledged the CONNECT frame, not just that the socket is up.
type State int

const (
	StateDisconnected State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "disconnected"
}

type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	SendQueueSize     int
	HandshakeTimeout  time.Duration
}

// Adapter owns exactly one STOMP-over-WebSocket connection, no matter how
// many rooms are subscribed. It never retries on its own: a drop is
// reported through the state callbacks and the adapter waits for the next
// explicit Connect call (the session controller owns retry policy).
type Adapter struct {
	cfg Config

	mu        sync.Mutex
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	connected bool

	handlerMu sync.RWMutex
	frameFns  []func(*Frame)
	stateFns  []func(State)
}

func NewAdapter(cfg Config) *Adapter {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Adapter{cfg: cfg}
}

// OnFrame registers a callback for every inbound MESSAGE or ERROR frame.
// Register before Connect.
func (a *Adapter) OnFrame(fn func(*Frame)) {
	a.handlerMu.Lock()
	a.frameFns = append(a.frameFns, fn)
	a.handlerMu.Unlock()
}

// OnStateChange registers a callback fired on Ready and Disconnected
// transitions.
func (a *Adapter) OnStateChange(fn func(State)) {
	a.handlerMu.Lock()
	a.stateFns = append(a.stateFns, fn)
	a.handlerMu.Unlock()
}

func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Connect dials the gateway and performs the CONNECT/CONNECTED handshake.
// An empty token connects anonymously. Idempotent while connected.
func (a *Adapter) Connect(ctx context.Context, token string) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: a.cfg.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, a.cfg.URL, nil)
	if err != nil {
		return errs.ErrConnection.WrapMsg("dial", "url", a.cfg.URL, "err", err)
	}

	hb := a.cfg.HeartbeatInterval.Milliseconds()
	connect := NewFrame(CmdConnect, nil).
		Set(HdrAcceptVersion, "1.2").
		Set(HdrHeartBeat, fmt.Sprintf("%d,%d", hb, hb))
	if token != "" {
		connect.Set(HdrAuthorization, "Bearer "+token)
	}
	if err := ws.WriteMessage(websocket.TextMessage, connect.Marshal()); err != nil {
		_ = ws.Close()
		return errs.ErrConnection.WrapMsg("write connect frame", "err", err)
	}

	if _, err := a.awaitConnected(ws); err != nil {
		_ = ws.Close()
		return err
	}
	logger.Debug("broker handshake ok")

	a.mu.Lock()
	a.ws = ws
	a.send = make(chan []byte, a.cfg.SendQueueSize)
	a.done = make(chan struct{})
	a.connected = true
	send, done := a.send, a.done
	a.mu.Unlock()

	safe.Go(func() { a.writeLoop(ws, send, done) })
	safe.Go(func() { a.readLoop(ws, done) })

	a.notifyState(StateReady)
	return nil
}

// awaitConnected reads frames until CONNECTED or ERROR, skipping
// heartbeats.
func (a *Adapter) awaitConnected(ws *websocket.Conn) (*Frame, error) {
	deadline := time.Now().Add(a.cfg.HandshakeTimeout)
	for {
		_ = ws.SetReadDeadline(deadline)
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, errs.ErrConnection.WrapMsg("handshake read", "err", err)
		}
		f, perr := ParseFrame(data)
		if perr != nil || f == nil {
			continue
		}
		switch f.Command {
		case CmdConnected:
			_ = ws.SetReadDeadline(time.Time{})
			return f, nil
		case CmdError:
			msg := f.Header(HdrMessage)
			if msg == "" {
				msg = string(f.Body)
			}
			if isAuthRejection(msg) {
				return nil, errs.ErrAuthRejected.WrapMsg(msg)
			}
			return nil, errs.ErrConnection.WrapMsg("broker rejected connect", "message", msg)
		default:
			// ignore anything else before CONNECTED
		}
	}
}

func isAuthRejection(msg string) bool {
	m := strings.ToLower(msg)
	for _, kw := range []string{"auth", "token", "credential", "401", "forbidden"} {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

// Close sends DISCONNECT best-effort and tears the socket down.
// Idempotent when already disconnected.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil
	}
	ws := a.ws
	a.mu.Unlock()

	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	a.teardown()
	return nil
}

// Send transmits a SEND frame. Silently dropped when not connected;
// callers check IsConnected or accept best-effort delivery.
func (a *Adapter) Send(destination string, body []byte) {
	f := NewFrame(CmdSend, body).
		Set(HdrDestination, destination).
		Set(HdrContentType, "application/json")
	a.enqueue(f)
}

// Subscribe issues a broker-level SUBSCRIBE frame. Bookkeeping lives in
// the registry, not here.
func (a *Adapter) Subscribe(id, destination string) {
	f := NewFrame(CmdSubscribe, nil).
		Set(HdrSubscription, id).
		Set(HdrDestination, destination)
	a.enqueue(f)
}

func (a *Adapter) Unsubscribe(id string) {
	f := NewFrame(CmdUnsubscribe, nil).Set(HdrSubscription, id)
	a.enqueue(f)
}

func (a *Adapter) enqueue(f *Frame) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		logger.Debug("drop frame while disconnected")
		return
	}
	send := a.send
	a.mu.Unlock()

	select {
	case send <- f.Marshal():
	default:
		logger.Warnf("send queue full, dropping %s frame", f.Command)
	}
}

// writeLoop is the single writer for the connection; gorilla sockets
// allow one writer goroutine. It also emits client heartbeats.
func (a *Adapter) writeLoop(ws *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	var ticker *time.Ticker
	var tick <-chan time.Time
	if a.cfg.HeartbeatInterval > 0 {
		ticker = time.NewTicker(a.cfg.HeartbeatInterval)
		tick = ticker.C
		defer ticker.Stop()
	}
	for {
		select {
		case <-done:
			return
		case b := <-send:
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				logger.Infof("[transport] write err: %v", err)
				a.teardown()
				return
			}
		case <-tick:
			if err := ws.WriteMessage(websocket.TextMessage, heartbeatFrame); err != nil {
				logger.Infof("[transport] heartbeat write err: %v", err)
				a.teardown()
				return
			}
		}
	}
}

func (a *Adapter) readLoop(ws *websocket.Conn, done <-chan struct{}) {
	grace := 3 * a.cfg.HeartbeatInterval
	for {
		select {
		case <-done:
			return
		default:
		}
		if grace > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(grace))
		}
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[transport] peer closed: %v", err)
			} else {
				logger.Infof("[transport] read err: %v", err)
			}
			a.teardown()
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		f, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[transport] drop malformed frame err=%v sample=%q", perr, sample)
			continue
		}
		if f == nil {
			continue // heartbeat
		}
		switch f.Command {
		case CmdMessage, CmdError:
			a.dispatch(f)
		default:
			logger.Debug("ignoring frame " + f.Command)
		}
	}
}

func (a *Adapter) dispatch(f *Frame) {
	a.handlerMu.RLock()
	fns := a.frameFns
	a.handlerMu.RUnlock()
	for _, fn := range fns {
		fn(f)
	}
}

func (a *Adapter) teardown() {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return
	}
	a.connected = false
	close(a.done)
	ws := a.ws
	a.ws = nil
	a.mu.Unlock()

	_ = ws.Close()
	a.notifyState(StateDisconnected)
}

func (a *Adapter) notifyState(s State) {
	a.handlerMu.RLock()
	fns := a.stateFns
	a.handlerMu.RUnlock()
	for _, fn := range fns {
		fn(s)
	}
}
