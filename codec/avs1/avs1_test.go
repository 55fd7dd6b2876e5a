package avs1

import (
	"errors"
	"testing"

	"github.com/avsprobe/avsmeta/bits"
	"github.com/avsprobe/avsmeta/tables"
)

// bitWriter is a tiny MSB-first bit-packer used only by this test file to
// build synthetic AVS1 elementary streams field by field.
type bitWriter struct {
	bytes []byte
	cur   byte
	nbits int
}

func (w *bitWriter) writeBits(v uint32, n int) {
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

func (w *bitWriter) marker() { w.writeBits(1, 1) }

func (w *bitWriter) finish() []byte {
	if w.nbits > 0 {
		w.cur <<= uint(8 - w.nbits)
		w.bytes = append(w.bytes, w.cur)
		w.nbits = 0
	}
	return w.bytes
}

// buildSequenceHeader encodes a minimal, valid sequence_header for the given
// profile, matching the field order in parseSequenceHeader.
func buildSequenceHeader(profileID uint32) []byte {
	w := &bitWriter{}
	w.writeBits(profileID, 8)  // profile_id
	w.writeBits(0x20, 8)       // level_id
	w.writeBits(1, 1)          // progressive_sequence
	w.writeBits(1920, 14)      // horizontal_size
	w.writeBits(1080, 14)      // vertical_size
	w.writeBits(1, 2)          // chroma_format (4:2:0)
	w.writeBits(1, 3)          // sample_precision (8-bit)
	w.writeBits(3, 4)          // aspect_ratio_info (16:9)
	w.writeBits(5, 4)          // frame_rate_code (30fps)
	w.writeBits(1000, 18)      // bit_rate_lower
	w.marker()
	w.writeBits(0, 12) // bit_rate_upper
	w.writeBits(0, 1)  // low_delay
	w.marker()
	w.writeBits(0, 18) // bbv_buffer_size

	if profileID == profileShenzhan {
		w.writeBits(0, 1) // background_picture_disable
		w.writeBits(1, 1) // core_picture_disable
		w.writeBits(0, 1) // slice_set_disable
		w.marker()
		w.writeBits(0, 4) // scene_model
		w.writeBits(0, 5) // reserved (core_picture_disable=1 -> 5 bits)
	} else {
		w.writeBits(0, 3) // reserved
	}
	return w.finish()
}

func wrapStartCode(code byte, payload []byte) []byte {
	out := append([]byte{0x00, 0x00, 0x01, code}, payload...)
	return out
}

func TestParseBroadcastingProfile(t *testing.T) {
	// AVS1+ with the GY/T 299.1 Broadcasting profile, profile_id 0x48.
	seq := buildSequenceHeader(profileBroadcasting)
	pic := []byte{0x00, 0x00, 0x01, startCodePictureI}
	data := append(wrapStartCode(startCodeSequenceHeader, seq), pic...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.Generation != "AVS+" {
		t.Errorf("Generation = %q, want AVS+", info.Generation)
	}
	if info.Profile != "Broadcasting Profile" {
		t.Errorf("Profile = %q, want to mention Broadcasting", info.Profile)
	}
	if info.HorizontalSize != 1920 || info.VerticalSize != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", info.HorizontalSize, info.VerticalSize)
	}
	if info.FrameRate != 30 {
		t.Errorf("FrameRate = %v, want 30", info.FrameRate)
	}
	if info.LumaBitDepth != 8 {
		t.Errorf("LumaBitDepth = %d, want 8", info.LumaBitDepth)
	}
}

func TestParseShenzhanProfile(t *testing.T) {
	seq := buildSequenceHeader(profileShenzhan)
	pic := []byte{0x00, 0x00, 0x01, startCodePicturePB}
	data := append(wrapStartCode(startCodeSequenceHeader, seq), pic...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.Profile != "Shenzhan Profile" {
		t.Errorf("Profile = %q, want Shenzhan Profile", info.Profile)
	}
	if info.Generation != "AVS" {
		t.Errorf("Generation = %q, want AVS", info.Generation)
	}
}

func TestParseNoSequenceHeader(t *testing.T) {
	data := []byte{0x00, 0x00, 0x01, startCodePictureI}
	if _, err := Parse(data); err != ErrNoSequenceHeader {
		t.Errorf("err = %v, want ErrNoSequenceHeader", err)
	}
}

func TestParseMarkerBitViolation(t *testing.T) {
	seq := buildSequenceHeader(profileBroadcasting)
	// Flip the marker bit immediately following bit_rate_lower (bit offset
	// 8+8+1+14+14+2+3+4+4+18 = 76) from 1 to 0.
	byteIdx := 76 / 8
	bitIdx := 76 % 8
	seq[byteIdx] &^= 1 << uint(7-bitIdx)

	data := wrapStartCode(startCodeSequenceHeader, seq)
	if _, err := Parse(data); err == nil {
		t.Errorf("expected marker bit violation error, got nil")
	} else if !errors.Is(err, bits.ErrMarkerBitViolation) {
		t.Errorf("err = %v, want wrapping %v", err, bits.ErrMarkerBitViolation)
	}
}

func TestParseSequenceDisplayExtension(t *testing.T) {
	seq := buildSequenceHeader(profileBroadcasting)
	data := wrapStartCode(startCodeSequenceHeader, seq)

	ext := &bitWriter{}
	ext.writeBits(0b0010, 4) // ext_id
	ext.writeBits(5, 3)      // video_format (Unspecified)
	ext.writeBits(1, 1)      // sample_range
	ext.writeBits(1, 1)      // colour_description
	ext.writeBits(1, 8)      // colour_primaries (BT709)
	ext.writeBits(6, 8)      // transfer_characteristics (SMPTE170M)
	ext.writeBits(1, 8)      // matrix_coefficients (BT709)
	ext.writeBits(1920, 14)  // display_horizontal_size
	ext.marker()
	ext.writeBits(1080, 14) // display_vertical_size
	ext.writeBits(1, 2)     // stereo_packing_mode (SBS)
	extPayload := ext.finish()

	data = append(data, wrapStartCode(startCodeExtension, extPayload)...)
	data = append(data, wrapStartCode(startCodePictureI, nil)...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.VideoFormat != "Unspecified" {
		t.Errorf("VideoFormat = %q, want Unspecified", info.VideoFormat)
	}
	if info.PackingMode == nil || *info.PackingMode != tables.PackingSBS {
		t.Errorf("PackingMode = %v, want SBS", info.PackingMode)
	}
	if info.ColorDescription == nil {
		t.Fatalf("ColorDescription not set")
	}
}

func TestParseSequenceDisplayExtensionColourForbiddenAbsent(t *testing.T) {
	seq := buildSequenceHeader(profileBroadcasting)
	data := wrapStartCode(startCodeSequenceHeader, seq)

	ext := &bitWriter{}
	ext.writeBits(0b0010, 4) // ext_id
	ext.writeBits(5, 3)      // video_format (Unspecified)
	ext.writeBits(1, 1)      // sample_range
	ext.writeBits(1, 1)      // colour_description
	ext.writeBits(0, 8)      // colour_primaries = 0 (forbidden)
	ext.writeBits(0, 8)      // transfer_characteristics = 0 (forbidden)
	ext.writeBits(0, 8)      // matrix_coefficients = 0 (forbidden)
	ext.writeBits(1920, 14)  // display_horizontal_size
	ext.marker()
	ext.writeBits(1080, 14) // display_vertical_size
	ext.writeBits(1, 2)     // stereo_packing_mode (SBS)
	extPayload := ext.finish()

	data = append(data, wrapStartCode(startCodeExtension, extPayload)...)
	data = append(data, wrapStartCode(startCodePictureI, nil)...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.ColourPrimaries != nil {
		t.Errorf("ColourPrimaries = %v, want nil", info.ColourPrimaries)
	}
	if info.TransferCharacteristics != nil {
		t.Errorf("TransferCharacteristics = %v, want nil", info.TransferCharacteristics)
	}
	if info.MatrixCoefficients != nil {
		t.Errorf("MatrixCoefficients = %v, want nil", info.MatrixCoefficients)
	}
}

func TestParseSequenceDisplayExtensionColourOutOfRangeReserved(t *testing.T) {
	seq := buildSequenceHeader(profileBroadcasting)
	data := wrapStartCode(startCodeSequenceHeader, seq)

	ext := &bitWriter{}
	ext.writeBits(0b0010, 4) // ext_id
	ext.writeBits(5, 3)      // video_format (Unspecified)
	ext.writeBits(1, 1)      // sample_range
	ext.writeBits(1, 1)      // colour_description
	ext.writeBits(200, 8)    // colour_primaries out of range
	ext.writeBits(200, 8)    // transfer_characteristics out of range
	ext.writeBits(200, 8)    // matrix_coefficients out of range
	ext.writeBits(1920, 14)  // display_horizontal_size
	ext.marker()
	ext.writeBits(1080, 14) // display_vertical_size
	ext.writeBits(1, 2)     // stereo_packing_mode (SBS)
	extPayload := ext.finish()

	data = append(data, wrapStartCode(startCodeExtension, extPayload)...)
	data = append(data, wrapStartCode(startCodePictureI, nil)...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.ColourPrimaries == nil || *info.ColourPrimaries != tables.PrimariesReserved {
		t.Errorf("ColourPrimaries = %v, want PrimariesReserved", info.ColourPrimaries)
	}
	if info.TransferCharacteristics == nil || *info.TransferCharacteristics != tables.TransferReserved {
		t.Errorf("TransferCharacteristics = %v, want TransferReserved", info.TransferCharacteristics)
	}
	if info.MatrixCoefficients == nil || *info.MatrixCoefficients != tables.MatrixReserved {
		t.Errorf("MatrixCoefficients = %v, want MatrixReserved", info.MatrixCoefficients)
	}
}
