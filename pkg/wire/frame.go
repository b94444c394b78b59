// Package wire implements the fixed-header frame exchanged by the protocol
// engine once a transport is connected.
//
// Layout, all integers little-endian:
//
//	[size:int16][command:int16][payload:0..MaxDataSize][checksum:byte]
//
// size counts the whole frame, header and checksum included. The checksum is
// the two's-complement negated byte sum of everything before it.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	Capacity    = 4096
	SizeLen     = 2
	HeaderSize  = SizeLen + 2 + 1 // size + command + checksum
	MaxDataSize = Capacity - HeaderSize
)

var (
	ErrSizeInvalid = errors.New("wire: frame size out of range")
	ErrChecksum    = errors.New("wire: checksum mismatch")
)

type Command int16

func (c Command) String() string {
	return fmt.Sprintf("0x%04x", uint16(c))
}

type Frame struct {
	Command Command
	Payload []byte
}

// New builds a frame. Payloads longer than MaxDataSize are truncated.
func New(cmd Command, payload []byte) *Frame {
	if len(payload) > MaxDataSize {
		payload = payload[:MaxDataSize]
	}
	return &Frame{Command: cmd, Payload: payload}
}

// Size is the encoded length of the frame.
func (f *Frame) Size() int {
	return HeaderSize + len(f.Payload)
}

// AppendTo encodes f onto dst.
func (f *Frame) AppendTo(dst []byte) []byte {
	payload := f.Payload
	if len(payload) > MaxDataSize {
		payload = payload[:MaxDataSize]
	}
	start := len(dst)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(HeaderSize+len(payload)))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(f.Command))
	dst = append(dst, payload...)
	return append(dst, Checksum(dst[start:]))
}

func (f *Frame) Encode() []byte {
	return f.AppendTo(make([]byte, 0, f.Size()))
}

// Checksum returns the byte that makes the sum of b plus itself zero mod 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return ^sum + 1
}

// SizeValid reports whether size is a plausible total frame length.
func SizeValid(size int) bool {
	return size >= HeaderSize && size <= Capacity
}

// ParseSize reads the size prefix. hdr must hold at least SizeLen bytes.
func ParseSize(hdr []byte) int {
	return int(int16(binary.LittleEndian.Uint16(hdr)))
}

// ChecksumValid reports whether raw, a complete encoded frame, checks out.
func ChecksumValid(raw []byte) bool {
	if len(raw) < HeaderSize {
		return false
	}
	return Checksum(raw[:len(raw)-1]) == raw[len(raw)-1]
}

// Decode parses one complete encoded frame. The payload aliases raw.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < SizeLen {
		return nil, ErrSizeInvalid
	}
	size := ParseSize(raw)
	if !SizeValid(size) || size != len(raw) {
		return nil, fmt.Errorf("%w: %d (have %d bytes)", ErrSizeInvalid, size, len(raw))
	}
	if !ChecksumValid(raw) {
		return nil, ErrChecksum
	}
	return &Frame{
		Command: Command(int16(binary.LittleEndian.Uint16(raw[2:4]))),
		Payload: raw[4 : size-1],
	}, nil
}
