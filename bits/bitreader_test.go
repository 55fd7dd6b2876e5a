/*
NAME
  bitreader_test.go

DESCRIPTION
  Tests for Reader, including the Exp-Golomb and marker-bit properties
  required by the AVS family of bitstream syntaxes.
*/

package bits

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestReadUE checks that ReadUE correctly parses an Exp-Golomb-coded element
// to a code number, using the same bit strings as ITU-T H.264 Table 9-2
// (the AVS family reuses the identical Exp-Golomb code).
func TestReadUE(t *testing.T) {
	tests := []struct {
		in   []byte
		want uint32
	}{
		{[]byte{0x80}, 0},  // 1
		{[]byte{0x40}, 1},  // 010
		{[]byte{0x60}, 2},  // 011
		{[]byte{0x20}, 3},  // 00100
		{[]byte{0x28}, 4},  // 00101
		{[]byte{0x30}, 5},  // 00110
		{[]byte{0x38}, 6},  // 00111
		{[]byte{0x10}, 7},  // 0001000
		{[]byte{0x12}, 8},  // 0001001
		{[]byte{0x14}, 9},  // 0001010
		{[]byte{0x16}, 10}, // 0001011
	}

	for i, test := range tests {
		r := NewReader(test.in)
		got, err := r.ReadUE()
		if err != nil {
			t.Fatalf("test %d: unexpected error: %v", i, err)
		}
		if got != test.want {
			t.Errorf("test %d: got %d, want %d", i, got, test.want)
		}
	}
}

// TestReadSE checks the signed Exp-Golomb mapping.
func TestReadSE(t *testing.T) {
	tests := []struct {
		in   []byte
		want int32
	}{
		{[]byte{0x80}, 0},  // codeNum 0 -> 0
		{[]byte{0x40}, 1},  // codeNum 1 -> 1
		{[]byte{0x60}, -1}, // codeNum 2 -> -1
		{[]byte{0x20}, 2},  // codeNum 3 -> 2
		{[]byte{0x28}, -2}, // codeNum 4 -> -2
	}
	for i, test := range tests {
		r := NewReader(test.in)
		got, err := r.ReadSE()
		if err != nil {
			t.Fatalf("test %d: unexpected error: %v", i, err)
		}
		if got != test.want {
			t.Errorf("test %d: got %d, want %d", i, got, test.want)
		}
	}
}

// TestExpGolombInverse checks the round trip for all small unsigned values:
// encode n using the standard procedure, then confirm ReadUE recovers it.
func TestExpGolombInverse(t *testing.T) {
	for n := uint32(0); n < 4096; n++ {
		buf, bitLen := encodeUE(n)
		r := NewReader(buf)
		got, err := r.ReadUE()
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		if got != n {
			t.Fatalf("n=%d: round trip got %d", n, got)
		}
		if r.BytePos()*8+r.BitPos() != bitLen {
			t.Fatalf("n=%d: consumed %d bits, want %d", n, r.BytePos()*8+r.BitPos(), bitLen)
		}
	}
}

// encodeUE encodes n using the standard unsigned Exp-Golomb procedure,
// returning a byte-padded buffer and the exact number of bits written.
func encodeUE(n uint32) ([]byte, int) {
	code := n + 1
	nbits := 0
	for tmp := code; tmp != 0; tmp >>= 1 {
		nbits++
	}
	leadingZeros := nbits - 1
	totalBits := leadingZeros*2 + 1
	buf := make([]byte, (totalBits+7)/8+1)
	bytePos, bitPos := 0, 0
	put := func(bit uint32) {
		if bit != 0 {
			buf[bytePos] |= 1 << uint(7-bitPos)
		}
		bitPos++
		if bitPos == 8 {
			bitPos = 0
			bytePos++
		}
	}
	for i := 0; i < leadingZeros; i++ {
		put(0)
	}
	for i := nbits - 1; i >= 0; i-- {
		put((code >> uint(i)) & 1)
	}
	return buf, totalBits
}

// TestBitReaderRoundTrip checks that reading out every bit of an arbitrary
// buffer via non-overlapping ReadBits calls reproduces it, MSB first.
func TestBitReaderRoundTrip(t *testing.T) {
	buf := []byte{0x8f, 0xe3, 0x5a, 0x01, 0xff, 0x00, 0x7c}
	r := NewReader(buf)

	var got []byte
	var cur byte
	var curBits int
	sizes := []int{4, 2, 4, 6, 3, 5, 1, 7, 6, 2, 8, 8}
	total := 0
	for _, n := range sizes {
		total += n
	}
	if total != len(buf)*8 {
		t.Fatalf("test setup error: sizes sum to %d bits, want %d", total, len(buf)*8)
	}

	for _, n := range sizes {
		v, err := r.ReadBits(n)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := n - 1; i >= 0; i-- {
			bit := byte((v >> uint(i)) & 1)
			cur = (cur << 1) | bit
			curBits++
			if curBits == 8 {
				got = append(got, cur)
				cur = 0
				curBits = 0
			}
		}
	}
	if diff := cmp.Diff(buf, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestReadBitsTruncated checks that reading past the end of the buffer
// fails with ErrTruncated and leaves the cursor unchanged.
func TestReadBitsTruncated(t *testing.T) {
	r := NewReader([]byte{0xff})
	if _, err := r.ReadBits(4); err != nil {
		t.Fatalf("unexpected error on first read: %v", err)
	}
	_, err := r.ReadBits(8)
	if err != ErrTruncated {
		t.Fatalf("got err %v, want ErrTruncated", err)
	}
	if r.BytePos() != 0 || r.BitPos() != 4 {
		t.Fatalf("cursor moved on failed read: byte=%d bit=%d", r.BytePos(), r.BitPos())
	}
}

// TestCheckMarkerBit checks marker-bit gatekeeping: a 0 bit fails with
// ErrMarkerBitViolation, a 1 bit advances the cursor normally.
func TestCheckMarkerBit(t *testing.T) {
	r := NewReader([]byte{0x80}) // 1000 0000
	if err := r.CheckMarkerBit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2 := NewReader([]byte{0x00})
	if err := r2.CheckMarkerBit(); err != ErrMarkerBitViolation {
		t.Fatalf("got %v, want ErrMarkerBitViolation", err)
	}
}

func TestByteAlign(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff})
	r.ReadBits(3)
	r.ByteAlign()
	if !r.ByteAligned() {
		t.Fatalf("expected byte aligned after ByteAlign")
	}
	if r.BytePos() != 1 {
		t.Fatalf("got bytePos %d, want 1", r.BytePos())
	}
}
