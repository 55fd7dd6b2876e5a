package avs2

import (
	"errors"
	"testing"

	"github.com/avsprobe/avsmeta/bits"
	"github.com/avsprobe/avsmeta/tables"
)

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

func wrapStartCode(code byte, payload []byte) []byte {
	return append([]byte{0x00, 0x00, 0x01, code}, payload...)
}

// buildSequenceHeader writes a minimal, valid Main-profile AVS2 sequence
// header matching the field order in parseSequenceHeader.
func buildSequenceHeader() []byte {
	w := &bitWriter{}
	w.writeBits(0x20, 8) // profile_id (Main)
	w.writeBits(0x20, 8) // level_id
	w.writeBits(1, 1)    // progressive_sequence
	w.writeBits(0, 1)    // field_coded_sequence
	w.writeBits(1920, 14)
	w.writeBits(1080, 14)
	w.writeBits(1, 2) // chroma_format 4:2:0
	w.writeBits(1, 3) // sample_precision (8-bit)
	// profile 0x20 is not in the encoding_precision set.
	w.writeBits(3, 4) // aspect_ratio_info
	w.writeBits(5, 4) // frame_rate_code (30fps)
	w.writeBits(1000, 18)
	w.marker()
	w.writeBits(0, 12) // bit_rate_upper
	w.writeBits(1, 1)  // low_delay
	w.marker()
	w.writeBits(0, 1)  // temporal_id_enable_flag
	w.writeBits(0, 18) // bbv_buffer_size
	w.writeBits(5, 3)  // lcu_size

	w.writeBits(0, 1) // weight_quant_enable_flag = 0

	for i := 0; i < 10; i++ {
		w.writeBits(0, 1) // tool flags, all off
	}

	w.writeBits(0, 6) // num_of_rcs = 0

	// low_delay=1, so no output_reorder_delay.
	w.writeBits(0, 1) // cross_slice_loopfilter_enable_flag
	// chroma_format != 0b11, so no universal_string_prediction_enable_flag.
	return w.finish()
}

func TestParseMainProfile(t *testing.T) {
	seq := buildSequenceHeader()
	data := wrapStartCode(startCodeSequenceHeader, seq)
	data = append(data, wrapStartCode(startCodePictureI, nil)...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.Generation != "AVS2" {
		t.Errorf("Generation = %q, want AVS2", info.Generation)
	}
	if info.Profile != "Main Profile" {
		t.Errorf("Profile = %q, want Main Profile", info.Profile)
	}
	if info.HorizontalSize != 1920 || info.VerticalSize != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", info.HorizontalSize, info.VerticalSize)
	}
	if info.WeightQuantEnabled == nil || *info.WeightQuantEnabled {
		t.Errorf("WeightQuantEnabled = %v, want false", info.WeightQuantEnabled)
	}
	if len(info.ToolFlags) != 10 {
		t.Errorf("len(ToolFlags) = %d, want 10", len(info.ToolFlags))
	}
	if len(info.ReferenceConfigurationSets) != 0 {
		t.Errorf("len(ReferenceConfigurationSets) = %d, want 0", len(info.ReferenceConfigurationSets))
	}
	if info.OutputReorderDelay != nil {
		t.Errorf("OutputReorderDelay = %v, want nil (low_delay=1)", info.OutputReorderDelay)
	}
}

func TestParseSequenceDisplayExtensionColourForbiddenAbsent(t *testing.T) {
	seq := buildSequenceHeader()
	data := wrapStartCode(startCodeSequenceHeader, seq)

	ext := &bitWriter{}
	ext.writeBits(extIDSequenceDisplay, 4)
	ext.writeBits(5, 3) // video_format (Unspecified)
	ext.writeBits(1, 1) // sample_range
	ext.writeBits(1, 1) // colour_description
	ext.writeBits(0, 8) // colour_primaries = 0 (forbidden)
	ext.writeBits(0, 8) // transfer_characteristics = 0 (forbidden)
	ext.writeBits(0, 8) // matrix_coefficients = 0 (forbidden)
	ext.writeBits(1920, 14)
	ext.marker()
	ext.writeBits(1080, 14)
	ext.writeBits(0, 1) // td_mode = 0
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
	seq := buildSequenceHeader()
	data := wrapStartCode(startCodeSequenceHeader, seq)

	ext := &bitWriter{}
	ext.writeBits(extIDSequenceDisplay, 4)
	ext.writeBits(5, 3)
	ext.writeBits(1, 1)
	ext.writeBits(1, 1)
	ext.writeBits(200, 8) // colour_primaries out of range
	ext.writeBits(200, 8) // transfer_characteristics out of range
	ext.writeBits(200, 8) // matrix_coefficients out of range
	ext.writeBits(1920, 14)
	ext.marker()
	ext.writeBits(1080, 14)
	ext.writeBits(0, 1)
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

func TestParseWithReferenceConfigurationSet(t *testing.T) {
	w := &bitWriter{}
	w.writeBits(0x20, 8)
	w.writeBits(0x20, 8)
	w.writeBits(1, 1)
	w.writeBits(0, 1)
	w.writeBits(1920, 14)
	w.writeBits(1080, 14)
	w.writeBits(1, 2)
	w.writeBits(1, 3)
	w.writeBits(3, 4)
	w.writeBits(5, 4)
	w.writeBits(1000, 18)
	w.marker()
	w.writeBits(0, 12)
	w.writeBits(0, 1) // low_delay = 0
	w.marker()
	w.writeBits(0, 1)
	w.writeBits(0, 18)
	w.writeBits(5, 3)
	w.writeBits(0, 1) // weight_quant_enable_flag
	for i := 0; i < 10; i++ {
		w.writeBits(0, 1)
	}
	w.writeBits(1, 6) // num_of_rcs = 1
	// one reference_configuration_set:
	w.writeBits(1, 1) // refered_by_others
	w.writeBits(2, 3) // num_of_reference_picture = 2
	w.writeBits(4, 6)
	w.writeBits(8, 6)
	w.writeBits(1, 3) // num_of_removed_picture = 1
	w.writeBits(2, 6)
	w.marker()
	w.writeBits(4, 5) // output_reorder_delay (low_delay=0)
	w.writeBits(1, 1) // cross_slice_loopfilter_enable_flag
	seq := w.finish()

	data := wrapStartCode(startCodeSequenceHeader, seq)
	data = append(data, wrapStartCode(startCodePictureI, nil)...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(info.ReferenceConfigurationSets) != 1 {
		t.Fatalf("len(ReferenceConfigurationSets) = %d, want 1", len(info.ReferenceConfigurationSets))
	}
	rcs := info.ReferenceConfigurationSets[0]
	if !rcs.ReferredByOthers {
		t.Errorf("ReferredByOthers = false, want true")
	}
	if len(rcs.ReferencePictureDeltaDOI) != 2 || rcs.ReferencePictureDeltaDOI[0] != 4 || rcs.ReferencePictureDeltaDOI[1] != 8 {
		t.Errorf("ReferencePictureDeltaDOI = %v, want [4 8]", rcs.ReferencePictureDeltaDOI)
	}
	if len(rcs.RemovedPictureDeltaDOI) != 1 || rcs.RemovedPictureDeltaDOI[0] != 2 {
		t.Errorf("RemovedPictureDeltaDOI = %v, want [2]", rcs.RemovedPictureDeltaDOI)
	}
	if info.OutputReorderDelay == nil || *info.OutputReorderDelay != 4 {
		t.Errorf("OutputReorderDelay = %v, want 4", info.OutputReorderDelay)
	}
	if info.CrossSliceLoopfilter == nil || !*info.CrossSliceLoopfilter {
		t.Errorf("CrossSliceLoopfilter = %v, want true", info.CrossSliceLoopfilter)
	}
}

func TestParseNoSequenceHeader(t *testing.T) {
	data := []byte{0x00, 0x00, 0x01, startCodePictureI}
	if _, err := Parse(data); err != ErrNoSequenceHeader {
		t.Errorf("err = %v, want ErrNoSequenceHeader", err)
	}
}

func TestParseTruncated(t *testing.T) {
	// A sequence header start code with far too few trailing bytes must
	// fail with a wrapped ErrTruncated, not panic.
	data := []byte{0x00, 0x00, 0x01, startCodeSequenceHeader, 0x20}
	_, err := Parse(data)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, bits.ErrTruncated) {
		t.Errorf("err = %v, want wrapping ErrTruncated", err)
	}
}
