package wsproto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	}
	return fmt.Sprintf("opcode(%d)", byte(o))
}

// MaxFramePayload caps the payload length a peer may announce.
const MaxFramePayload = 1 << 20

var ErrFrameTooLarge = errors.New("wsproto: frame payload exceeds maximum size")

type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	Payload []byte
}

// AppendFrame appends a single final frame. With mask set a random 4 byte
// key is generated and XORed over the payload, as clients must.
func AppendFrame(dst []byte, op Opcode, mask bool, payload []byte) []byte {
	var maskBit byte
	if mask {
		maskBit = 0x80
	}

	dst = append(dst, 0x80|byte(op&0x0F))
	n := len(payload)
	switch {
	case n < 126:
		dst = append(dst, maskBit|byte(n))
	case n <= 0xFFFF:
		dst = append(dst, maskBit|126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, maskBit|127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}

	if !mask {
		return append(dst, payload...)
	}

	var key [4]byte
	rand.Read(key[:])
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	for i := range payload {
		dst[start+i] ^= key[i%4]
	}
	return dst
}

// DecodeFrame parses one frame from the front of raw.
// If the frame is incomplete it returns (nil, 0, nil).
func DecodeFrame(raw []byte) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil
	}
	f := &Frame{
		Fin:    raw[0]&0x80 != 0,
		Opcode: Opcode(raw[0] & 0x0F),
		Masked: raw[1]&0x80 != 0,
	}
	length := uint64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil
		}
		length = binary.BigEndian.Uint64(raw[offset:])
		offset += 8
	}
	if length > MaxFramePayload {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	var key [4]byte
	if f.Masked {
		if len(raw) < offset+4 {
			return nil, 0, nil
		}
		copy(key[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return nil, 0, nil
	}

	f.Payload = make([]byte, length)
	copy(f.Payload, raw[offset:total])
	if f.Masked {
		for i := range f.Payload {
			f.Payload[i] ^= key[i%4]
		}
	}
	return f, total, nil
}
