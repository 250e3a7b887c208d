package transport

import (
	"bytes"
	"testing"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	f := NewFrame(CmdSend, []byte(`{"content":"hi"}`)).
		Set(HdrDestination, "/app/chat/42").
		Set(HdrContentType, "application/json")

	parsed, err := ParseFrame(f.Marshal())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Command != CmdSend {
		t.Fatalf("command = %q, want SEND", parsed.Command)
	}
	if got := parsed.Header(HdrDestination); got != "/app/chat/42" {
		t.Fatalf("destination = %q", got)
	}
	if !bytes.Equal(parsed.Body, []byte(`{"content":"hi"}`)) {
		t.Fatalf("body = %q", parsed.Body)
	}
}

func TestParseHeartbeat(t *testing.T) {
	for _, raw := range []string{"\n", "\r\n", "", "\n\x00"} {
		f, err := ParseFrame([]byte(raw))
		if err != nil {
			t.Fatalf("heartbeat %q: %v", raw, err)
		}
		if f != nil {
			t.Fatalf("heartbeat %q parsed as frame %v", raw, f)
		}
	}
}

func TestParseNoBodyFrame(t *testing.T) {
	f, err := ParseFrame([]byte("CONNECTED\nversion:1.2\nheart-beat:0,0\n\n\x00"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Command != CmdConnected {
		t.Fatalf("command = %q", f.Command)
	}
	if f.Header("version") != "1.2" {
		t.Fatalf("version = %q", f.Header("version"))
	}
	if len(f.Body) != 0 {
		t.Fatalf("body = %q, want empty", f.Body)
	}
}

func TestParseBadHeader(t *testing.T) {
	_, err := ParseFrame([]byte("MESSAGE\nnot-a-header\n\nbody\x00"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestHeaderEscaping(t *testing.T) {
	f := NewFrame(CmdMessage, nil).Set("k", "a:b\nc")
	parsed, err := ParseFrame(f.Marshal())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := parsed.Header("k"); got != "a:b\nc" {
		t.Fatalf("unescaped value = %q", got)
	}
}

func TestFirstHeaderWins(t *testing.T) {
	f, err := ParseFrame([]byte("MESSAGE\nfoo:one\nfoo:two\n\n\x00"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := f.Header("foo"); got != "one" {
		t.Fatalf("foo = %q, want first occurrence", got)
	}
}
