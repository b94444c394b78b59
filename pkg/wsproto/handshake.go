// Package wsproto holds the RFC 6455 pieces the WebSocket transport needs:
// the HTTP upgrade handshake and the binary frame codec.
package wsproto

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	GUID           = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	Version        = "13"
	KeySize        = 16
	headerTerminal = "\r\n\r\n"
)

var ErrBadHandshake = errors.New("wsproto: bad handshake")

// ComputeAcceptKey returns base64(SHA1(key + GUID)).
func ComputeAcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(GUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// NewKey returns a fresh base64 encoded 16 byte client key.
func NewKey() (string, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate websocket key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// AppendRequest appends the client upgrade request for host.
func AppendRequest(dst []byte, host, key string) []byte {
	dst = append(dst, "GET / HTTP/1.1\r\n"...)
	dst = append(dst, "Connection: Upgrade\r\n"...)
	dst = append(dst, "Upgrade: websocket\r\n"...)
	dst = append(dst, "Sec-WebSocket-Version: "+Version+"\r\n"...)
	dst = append(dst, "Sec-WebSocket-Key: "+key+"\r\n"...)
	dst = append(dst, "Host: "+host+"\r\n"...)
	dst = append(dst, "Origin: http://"+host+"\r\n"...)
	return append(dst, "\r\n"...)
}

// AppendResponse appends the server's 101 reply to a request carrying key.
func AppendResponse(dst []byte, key string) []byte {
	dst = append(dst, "HTTP/1.1 101 Switching Protocols\r\n"...)
	dst = append(dst, "Connection: Upgrade\r\n"...)
	dst = append(dst, "Upgrade: websocket\r\n"...)
	dst = append(dst, "Sec-WebSocket-Accept: "+ComputeAcceptKey(key)+"\r\n"...)
	return append(dst, "\r\n"...)
}

// headerEnd returns the length of the header block in msg including the
// terminating blank line, or 0 if it has not fully arrived yet.
func headerEnd(msg []byte) int {
	i := bytes.Index(msg, []byte(headerTerminal))
	if i < 0 {
		return 0
	}
	return i + len(headerTerminal)
}

// ParseRequest looks for a complete upgrade request at the start of msg.
// It returns the number of bytes the request used, 0 if more data is needed,
// and the client key when the request is acceptable. A complete but
// unacceptable request returns n > 0 with ErrBadHandshake.
func ParseRequest(msg []byte) (n int, key string, err error) {
	n = headerEnd(msg)
	if n == 0 {
		return 0, "", nil
	}

	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(msg[:n])))
	if err != nil {
		return n, "", fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if req.Method != http.MethodGet {
		return n, "", fmt.Errorf("%w: method %s", ErrBadHandshake, req.Method)
	}
	if !headerContainsToken(req.Header, "Connection", "Upgrade") ||
		!headerContainsToken(req.Header, "Upgrade", "websocket") {
		return n, "", fmt.Errorf("%w: missing upgrade headers", ErrBadHandshake)
	}
	if v := req.Header.Get("Sec-WebSocket-Version"); v != Version {
		return n, "", fmt.Errorf("%w: unsupported version %q", ErrBadHandshake, v)
	}
	key = req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return n, "", fmt.Errorf("%w: missing Sec-WebSocket-Key", ErrBadHandshake)
	}
	return n, key, nil
}

// ParseResponse validates the server reply to a request sent with key.
// It returns 0 while the header block is incomplete.
func ParseResponse(msg []byte, key string) (int, error) {
	n := headerEnd(msg)
	if n == 0 {
		return 0, nil
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(msg[:n])), nil)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return n, fmt.Errorf("%w: status %d", ErrBadHandshake, resp.StatusCode)
	}
	if !headerContainsToken(resp.Header, "Connection", "Upgrade") ||
		!headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return n, fmt.Errorf("%w: missing upgrade headers", ErrBadHandshake)
	}
	if resp.Header.Get("Sec-WebSocket-Accept") != ComputeAcceptKey(key) {
		return n, fmt.Errorf("%w: accept key mismatch", ErrBadHandshake)
	}
	return n, nil
}

func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
