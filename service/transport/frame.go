package transport

import (
	"bytes"
	"strings"

	"GProject/tools/errs"
)

// STOMP 1.2 frame commands used by the gateway.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdMessage     = "MESSAGE"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

// Common header keys.
const (
	HdrDestination   = "destination"
	HdrSubscription  = "id"
	HdrAuthorization = "Authorization"
	HdrAcceptVersion = "accept-version"
	HdrHeartBeat     = "heart-beat"
	HdrContentType   = "content-type"
	HdrMessage       = "message"
)

// Frame is a single STOMP frame. Headers are kept as a flat map; the
// gateway never sends repeated headers.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

func NewFrame(command string, body []byte) *Frame {
	return &Frame{
		Command: command,
		Headers: make(map[string]string),
		Body:    body,
	}
}

func (f *Frame) Header(key string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[key]
}

func (f *Frame) Set(key, value string) *Frame {
	if f.Headers == nil {
		f.Headers = make(map[string]string)
	}
	f.Headers[key] = value
	return f
}

// heartbeatFrame is the one-byte newline a peer sends when idle.
var heartbeatFrame = []byte("\n")

// Marshal renders the frame as COMMAND\nheaders\n\nbody\x00.
func (f *Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	for k, v := range f.Headers {
		buf.WriteString(escapeHeader(k))
		buf.WriteByte(':')
		buf.WriteString(escapeHeader(v))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// ParseFrame decodes a raw websocket text payload. A bare newline is a
// heartbeat and yields (nil, nil).
func ParseFrame(raw []byte) (*Frame, error) {
	raw = bytes.TrimSuffix(raw, []byte{0})
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	head, body, found := bytes.Cut(raw, []byte("\n\n"))
	if !found {
		// frame with no body separator, e.g. "CONNECTED\nversion:1.2\n"
		head = bytes.TrimRight(raw, "\n")
		body = nil
	}
	lines := strings.Split(string(head), "\n")
	cmd := strings.TrimSpace(strings.TrimSuffix(lines[0], "\r"))
	if cmd == "" {
		return nil, errs.ErrParse.WrapMsg("empty command")
	}
	f := NewFrame(cmd, body)
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return nil, errs.ErrParse.WrapMsg("bad header line", "line", line)
		}
		key := unescapeHeader(k)
		// first occurrence wins, per the STOMP spec
		if _, exists := f.Headers[key]; !exists {
			f.Headers[key] = unescapeHeader(v)
		}
	}
	return f, nil
}

var headerEscaper = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")

var headerUnescaper = strings.NewReplacer("\\r", "\r", "\\n", "\n", "\\c", ":", "\\\\", "\\")

func escapeHeader(s string) string   { return headerEscaper.Replace(s) }
func unescapeHeader(s string) string { return headerUnescaper.Replace(s) }
