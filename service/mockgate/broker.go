package mockgate

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"GProject/logger"
	"GProject/service/transport"
	"GProject/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const notificationsDest = "/user/queue/notifications"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// broker is a minimal STOMP relay: CONNECT/CONNECTED handshake,
// SUBSCRIBE/UNSUBSCRIBE bookkeeping and SEND fan-out. Just enough for the
// client's transport to talk to.
type broker struct {
	gw    *Gateway
	mu    sync.Mutex
	conns map[string]*brokerConn
}

type brokerConn struct {
	id   string
	user string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu   sync.Mutex
	subs map[string]string // sub id -> destination
}

func newBroker(gw *Gateway) *broker {
	return &broker{
		gw:    gw,
		conns: make(map[string]*brokerConn),
	}
}

func (b *broker) handleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[mockgate] upgrade failed: %v", err)
		return
	}
	defer func() { _ = ws.Close() }()

	conn, ok := b.handshake(ws)
	if !ok {
		return
	}

	b.mu.Lock()
	b.conns[conn.id] = conn
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn.id)
		b.mu.Unlock()
		close(conn.done)
	}()

	safe.Go(func() { conn.writeLoop() })
	b.readLoop(conn)
}

// handshake reads until CONNECT and answers CONNECTED, or rejects with an
// ERROR frame when bearer validation fails.
func (b *broker) handshake(ws *websocket.Conn) (*brokerConn, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil, false
		}
		f, perr := transport.ParseFrame(data)
		if perr != nil || f == nil {
			continue
		}
		if f.Command != transport.CmdConnect {
			continue
		}

		var user string
		if b.gw.cfg.Secret != "" {
			user, err = b.gw.userFromBearer(f.Header(transport.HdrAuthorization))
			if err != nil {
				errFrame := transport.NewFrame(transport.CmdError, []byte(err.Error())).
					Set(transport.HdrMessage, "unauthorized: bad credentials")
				_ = ws.WriteMessage(websocket.TextMessage, errFrame.Marshal())
				return nil, false
			}
		}

		connected := transport.NewFrame(transport.CmdConnected, nil).
			Set("version", "1.2").
			Set(transport.HdrHeartBeat, f.Header(transport.HdrHeartBeat))
		if err := ws.WriteMessage(websocket.TextMessage, connected.Marshal()); err != nil {
			return nil, false
		}
		_ = ws.SetReadDeadline(time.Time{})
		return &brokerConn{
			id:   uuid.New().String(),
			user: user,
			ws:   ws,
			send: make(chan []byte, 64),
			done: make(chan struct{}),
			subs: make(map[string]string),
		}, true
	}
}

func (b *broker) readLoop(conn *brokerConn) {
	for {
		mt, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		f, perr := transport.ParseFrame(data)
		if perr != nil {
			logger.Infof("[mockgate] drop malformed frame: %v", perr)
			continue
		}
		if f == nil {
			continue // heartbeat
		}
		switch f.Command {
		case transport.CmdSubscribe:
			conn.mu.Lock()
			conn.subs[f.Header(transport.HdrSubscription)] = f.Header(transport.HdrDestination)
			conn.mu.Unlock()
		case transport.CmdUnsubscribe:
			conn.mu.Lock()
			delete(conn.subs, f.Header(transport.HdrSubscription))
			conn.mu.Unlock()
		case transport.CmdSend:
			b.handleSend(conn, f)
		case transport.CmdDisconnect:
			return
		}
	}
}

// handleSend stores a publish on /app/chat/{room} and fans it out on the
// matching topic. Other destinations are dropped.
func (b *broker) handleSend(conn *brokerConn, f *transport.Frame) {
	dest := f.Header(transport.HdrDestination)
	roomID, ok := strings.CutPrefix(dest, "/app/chat/")
	if !ok {
		return
	}
	var p struct {
		Sender      string `json:"sender"`
		Content     string `json:"content"`
		ClientMsgID string `json:"clientMsgId"`
	}
	if err := json.Unmarshal(f.Body, &p); err != nil {
		logger.Infof("[mockgate] drop malformed publish: %v", err)
		return
	}
	sender := p.Sender
	if sender == "" {
		sender = conn.user
	}
	m, isNew := b.gw.save(roomID, sender, p.Content, p.ClientMsgID)
	if !isNew {
		return // the REST path already stored and fanned out this send
	}
	b.fanout(roomTopic(roomID), m)
}

// fanout delivers a message to every subscription on the destination.
func (b *broker) fanout(dest string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.deliver(dest, body)
	}
}

// notifyUser delivers to the notification queue of one user's
// connections (all connections when userID is empty).
func (b *broker) notifyUser(userID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.conns))
	for _, c := range b.conns {
		if userID == "" || c.user == userID {
			conns = append(conns, c)
		}
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.deliver(notificationsDest, body)
	}
}

func (b *broker) dropAll() {
	b.mu.Lock()
	conns := make([]*brokerConn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (c *brokerConn) deliver(dest string, body []byte) {
	c.mu.Lock()
	var subIDs []string
	for id, d := range c.subs {
		if d == dest {
			subIDs = append(subIDs, id)
		}
	}
	c.mu.Unlock()

	for _, id := range subIDs {
		f := transport.NewFrame(transport.CmdMessage, body).
			Set(transport.HdrDestination, dest).
			Set("subscription", id).
			Set("message-id", uuid.New().String()).
			Set(transport.HdrContentType, "application/json")
		select {
		case c.send <- f.Marshal():
		default:
			logger.Warnf("[mockgate] conn %s send queue full", c.id)
		}
	}
}

// writeLoop is the single writer for the connection. Server heartbeats
// keep long-lived clients from tripping their read deadline.
func (c *brokerConn) writeLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.TextMessage, []byte("\n")); err != nil {
				return
			}
		}
	}
}
