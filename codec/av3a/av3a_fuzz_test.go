package av3a

import "testing"

// FuzzAV3AFrame fuzzes Parse directly against arbitrary byte input,
// seeded with valid frame headers built the same way TestParseGeneralBasicStereo
// builds them, matching the teacher's cavlc_fuzz.go-style exported wrapper
// but using the standard testing.F harness instead of a separate fuzz
// package.
func FuzzAV3AFrame(f *testing.F) {
	w := &bitWriter{}
	w.writeBits(0xFFF, 12)
	w.writeBits(2, 4)
	w.writeBits(0, 1)
	w.writeBits(0, 3)
	w.writeBits(0, 3)
	w.writeBits(2, 4)
	w.writeBits(0, 8)
	w.writeBits(1, 7)
	w.writeBits(1, 2)
	w.writeBits(7, 4)
	f.Add(w.finish())

	f.Add([]byte{})
	f.Add([]byte{0xFF})
	f.Add([]byte{0xFF, 0xF0})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Parse must never panic on arbitrary input; a returned error is
		// an expected outcome for malformed data.
		_, _ = Parse(data)
	})
}
