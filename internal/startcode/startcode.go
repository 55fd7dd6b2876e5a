/*
NAME
  startcode.go

DESCRIPTION
  startcode.go scans an elementary stream for the 00 00 01 start-code prefix
  shared by AVS1, AVS2 and AVS3 video, following the same "scan for a byte
  sequence, then dispatch on what follows" idiom as
  codec/h264/h264dec/read.go's isStartCodeOnePrefix.

AUTHORS
  AVS Probe Contributors
*/

// Package startcode scans AVS video elementary streams for 00 00 01
// start-code prefixes.
package startcode

// Prefix is the three-byte start-code prefix shared by AVS1, AVS2 and AVS3
// video elementary streams.
var Prefix = [3]byte{0x00, 0x00, 0x01}

// Next finds the next start code at or after from, returning the index of
// the byte immediately following the 00 00 01 prefix (i.e. the start-code
// value byte) and true, or (0, false) if no further start code exists.
func Next(data []byte, from int) (int, bool) {
	for i := from; i+3 < len(data); i++ {
		if data[i] == Prefix[0] && data[i+1] == Prefix[1] && data[i+2] == Prefix[2] {
			return i + 3, true
		}
	}
	return 0, false
}
