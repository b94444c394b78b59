package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	commands := []Command{0x0001, 0x0100, 0x0002, 0x0200, 0x0600, 0x7fff, -1}
	sizes := []int{0, 1, 5, 255, 1024, MaxDataSize}

	for _, cmd := range commands {
		for _, n := range sizes {
			payload := bytes.Repeat([]byte{byte(n)}, n)
			raw := New(cmd, payload).Encode()

			if len(raw) != HeaderSize+n {
				t.Fatalf("cmd %v size %d: encoded length %d", cmd, n, len(raw))
			}
			if !ChecksumValid(raw) {
				t.Fatalf("cmd %v size %d: checksum invalid", cmd, n)
			}
			f, err := Decode(raw)
			if err != nil {
				t.Fatalf("cmd %v size %d: %v", cmd, n, err)
			}
			if f.Command != cmd || !bytes.Equal(f.Payload, payload) {
				t.Fatalf("cmd %v size %d: round trip mismatch", cmd, n)
			}
		}
	}
}

func TestLittleEndianLayout(t *testing.T) {
	raw := New(0x0100, []byte{0xAA}).Encode()
	want := []byte{0x06, 0x00, 0x00, 0x01, 0xAA}
	if !bytes.Equal(raw[:5], want) {
		t.Fatalf("header bytes %x, want %x", raw[:5], want)
	}
	// 6+0+0+1+0xAA = 0xB1, negated = 0x4F
	if raw[5] != 0x4F {
		t.Fatalf("checksum %#x, want 0x4f", raw[5])
	}
}

func TestSingleByteCorruption(t *testing.T) {
	raw := New(0x0003, []byte("interact payload")).Encode()
	for i := range raw {
		for _, delta := range []byte{1, 0x80, 0xFF} {
			bad := append([]byte(nil), raw...)
			bad[i] += delta
			if ChecksumValid(bad) {
				t.Fatalf("corruption at byte %d (+%#x) not detected", i, delta)
			}
		}
	}
}

func TestTruncatesOversizedPayload(t *testing.T) {
	f := New(0x0002, make([]byte, Capacity))
	if len(f.Payload) != MaxDataSize {
		t.Fatalf("payload length %d, want %d", len(f.Payload), MaxDataSize)
	}
	if f.Size() != Capacity {
		t.Fatalf("size %d, want %d", f.Size(), Capacity)
	}
}

func TestSizeValid(t *testing.T) {
	cases := map[int]bool{
		-1: false, 0: false, HeaderSize - 1: false,
		HeaderSize: true, Capacity: true, Capacity + 1: false,
	}
	for size, want := range cases {
		if got := SizeValid(size); got != want {
			t.Errorf("SizeValid(%d) = %v, want %v", size, got, want)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	raw := New(0x0001, nil).Encode()

	if _, err := Decode(raw[:3]); !errors.Is(err, ErrSizeInvalid) {
		t.Fatalf("short frame: expected ErrSizeInvalid, got %v", err)
	}

	bad := append([]byte(nil), raw...)
	bad[len(bad)-1]++
	if _, err := Decode(bad); !errors.Is(err, ErrChecksum) {
		t.Fatalf("bad checksum: expected ErrChecksum, got %v", err)
	}
}
