package bmff

import (
	"encoding/binary"
	"testing"

	"github.com/avsprobe/avsmeta/model"
)

func box(boxType string, payload []byte) []byte {
	out := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	copy(out[4:8], boxType)
	return append(out, payload...)
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// av3aFrame is a minimal GENERAL/BASIC AV3A frame header, 48 bits long,
// mirroring container/mts's demux_test.go bit layout.
func av3aFrame() []byte {
	type bw struct {
		bytes []byte
		cur   byte
		nbits int
	}
	w := &bw{}
	write := func(v uint32, n int) {
		for i := n - 1; i >= 0; i-- {
			bit := byte((v >> uint(i)) & 1)
			w.cur = (w.cur << 1) | bit
			w.nbits++
			if w.nbits == 8 {
				w.bytes = append(w.bytes, w.cur)
				w.cur = 0
				w.nbits = 0
			}
		}
	}
	write(0xFFF, 12)
	write(2, 4) // audio_codec_id = GENERAL
	write(0, 1) // anc_data_index
	write(0, 3) // nn_type
	write(0, 3) // coding_profile = BASIC
	write(2, 4) // sampling_frequency_index -> 48000
	write(0, 8) // aatf_error_check
	write(1, 7) // channel_number_index -> STEREO
	write(1, 2) // resolution -> 16
	write(7, 4) // bitrate_index
	return w.bytes
}

// buildPrefix assembles ftyp+moov for a single av3a audio track whose one
// chunk's one sample starts at mdatSampleOffset (absolute, within the full
// file byte stream), with sampleSize bytes.
func buildPrefix(mdatSampleOffset uint32, sampleSize uint32) []byte {
	ftyp := box("ftyp", append([]byte("isom"), 0, 0, 0, 0))

	tkhd := box("tkhd", append(append(make([]byte, 12), u32(1)...), make([]byte, 8)...)) // track_id=1
	mdhd := box("mdhd", append(append(make([]byte, 12), u32(48000)...), 0, 0)...)

	entry := box("av3a", make([]byte, 8))
	stsd := box("stsd", append(append(make([]byte, 4), u32(1)...), entry...))
	stsz := box("stsz", append(append(append(make([]byte, 4), u32(0)...), u32(1)...), u32(sampleSize)...))
	stsc := box("stsc", append(append(make([]byte, 4), u32(1)...), append(append(u32(1), u32(1)...), u32(1)...)...))
	stco := box("stco", append(append(make([]byte, 4), u32(1)...), u32(mdatSampleOffset)...))

	stbl := box("stbl", concat(stsd, stsz, stsc, stco))
	minf := box("minf", stbl)
	mdia := box("mdia", concat(mdhd, minf))
	trak := box("trak", concat(tkhd, mdia))
	moov := box("moov", trak)

	return concat(ftyp, moov)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestAnalyzeDiscoversAV3ATrackAndSample(t *testing.T) {
	frame := av3aFrame()

	prefixProbe := buildPrefix(0, uint32(len(frame)))
	mdatOffset := uint32(len(prefixProbe) + 8) // mdat header is 8 bytes.

	prefix := buildPrefix(mdatOffset, uint32(len(frame)))
	mdat := box("mdat", frame)
	data := append(prefix, mdat...)

	tracks, samples, warnings, err := Analyze(data)
	if err != nil {
		t.Fatalf("Analyze: %v (warnings: %v)", err, warnings)
	}
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1 (warnings: %v)", len(tracks), warnings)
	}
	tr := tracks[0]
	if tr.FourCC != FourCCAV3A {
		t.Errorf("FourCC = %q, want av3a", tr.FourCC)
	}
	if tr.Kind != model.CodecAV3AAudio {
		t.Errorf("Kind = %v, want CodecAV3AAudio", tr.Kind)
	}
	if tr.Timescale != 48000 {
		t.Errorf("Timescale = %d, want 48000", tr.Timescale)
	}

	sample, ok := samples[tr.TrackID]
	if !ok {
		t.Fatalf("no sample extracted for track %d (warnings: %v)", tr.TrackID, warnings)
	}
	if string(sample) != string(frame) {
		t.Errorf("sample = %x, want %x", sample, frame)
	}
}

func TestAnalyzeNoMoovErrors(t *testing.T) {
	data := box("ftyp", append([]byte("isom"), 0, 0, 0, 0))
	_, _, _, err := Analyze(data)
	if err == nil {
		t.Fatalf("Analyze: want error for missing moov, got nil")
	}
}
