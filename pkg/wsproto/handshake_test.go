package wsproto

import (
	"errors"
	"strings"
	"testing"
)

func TestComputeAcceptKeyRFCExample(t *testing.T) {
	got := ComputeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	if got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("accept key %q", got)
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	key, err := NewKey()
	if err != nil {
		t.Fatal(err)
	}
	req := AppendRequest(nil, "127.0.0.1:28800", key)

	n, gotKey, err := ParseRequest(req)
	if err != nil {
		t.Fatalf("parse request: %v", err)
	}
	if n != len(req) || gotKey != key {
		t.Fatalf("n=%d key=%q, want n=%d key=%q", n, gotKey, len(req), key)
	}

	resp := AppendResponse(nil, gotKey)
	n, err = ParseResponse(resp, key)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if n != len(resp) {
		t.Fatalf("response consumed %d of %d", n, len(resp))
	}
}

func TestParseRequestIncomplete(t *testing.T) {
	req := AppendRequest(nil, "host", "dGhlIHNhbXBsZSBub25jZQ==")
	for cut := 0; cut < len(req); cut += 7 {
		n, _, err := ParseRequest(req[:cut])
		if n != 0 || err != nil {
			t.Fatalf("cut %d: n=%d err=%v, want 0,nil", cut, n, err)
		}
	}
}

func TestParseRequestLeavesTrailingBytes(t *testing.T) {
	req := AppendRequest(nil, "host", "dGhlIHNhbXBsZSBub25jZQ==")
	withFrame := append(append([]byte(nil), req...), AppendFrame(nil, OpBinary, true, []byte("hi"))...)

	n, _, err := ParseRequest(withFrame)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(req) {
		t.Fatalf("consumed %d, want %d", n, len(req))
	}
}

func TestParseRequestRejects(t *testing.T) {
	base := string(AppendRequest(nil, "host", "dGhlIHNhbXBsZSBub25jZQ=="))
	cases := map[string]string{
		"missing key":   strings.Replace(base, "Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n", "", 1),
		"empty key":     strings.Replace(base, "Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==", "Sec-WebSocket-Key: ", 1),
		"version 8":     strings.Replace(base, "Sec-WebSocket-Version: 13", "Sec-WebSocket-Version: 8", 1),
		"no upgrade":    strings.Replace(base, "Upgrade: websocket\r\n", "", 1),
		"no connection": strings.Replace(base, "Connection: Upgrade\r\n", "Connection: keep-alive\r\n", 1),
		"post":          strings.Replace(base, "GET /", "POST /", 1),
	}
	for name, req := range cases {
		n, _, err := ParseRequest([]byte(req))
		if !errors.Is(err, ErrBadHandshake) {
			t.Errorf("%s: expected ErrBadHandshake, got %v", name, err)
		}
		if n != len(req) {
			t.Errorf("%s: consumed %d, want %d", name, n, len(req))
		}
	}
}

func TestParseResponseRejectsWrongAccept(t *testing.T) {
	resp := AppendResponse(nil, "some-other-key")
	if _, err := ParseResponse(resp, "dGhlIHNhbXBsZSBub25jZQ=="); !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("expected ErrBadHandshake, got %v", err)
	}

	notUpgrade := []byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n")
	if _, err := ParseResponse(notUpgrade, "k"); !errors.Is(err, ErrBadHandshake) {
		t.Fatalf("expected ErrBadHandshake for 400, got %v", err)
	}
}
