/*
NAME
  tables.go

DESCRIPTION
  tables.go holds the shared, immutable numeric tables used across the AVS1,
  AVS2 and AVS3 sequence-header parsers: frame rates, aspect ratios, colour
  enums, packing modes and the default weight-quantization matrices.

AUTHORS
  AVS Probe Contributors
*/

// Package tables provides the shared data tables used by the AVS codec
// parsers: frame-rate, aspect-ratio, chroma/colour/packing enums, default
// weight-quantization matrices, and the AV3A configuration tables.
package tables

// FrameRates maps frame_rate_code (1-8, as found in AVS1/AVS2/AVS3 sequence
// headers) to the frame rate in frames per second. Index 0 is unused
// (frame_rate_code is never 0 in a valid stream).
var FrameRates = [9]float64{
	0: 0,
	1: 24000.0 / 1001.0,
	2: 24,
	3: 25,
	4: 30000.0 / 1001.0,
	5: 30,
	6: 50,
	7: 60000.0 / 1001.0,
	8: 60,
}

// ChromaFormat identifies the chroma subsampling of a coded sequence.
type ChromaFormat uint8

const (
	ChromaReserved ChromaFormat = iota
	Chroma420
	Chroma422
	Chroma444
)

func (c ChromaFormat) String() string {
	switch c {
	case Chroma420:
		return "4:2:0"
	case Chroma422:
		return "4:2:2"
	case Chroma444:
		return "4:4:4"
	default:
		return "reserved"
	}
}

// ChromaFormatFromCode maps the 2-bit chroma_format field to ChromaFormat.
func ChromaFormatFromCode(code uint32) ChromaFormat {
	switch code {
	case 1:
		return Chroma420
	case 2:
		return Chroma422
	case 3:
		return Chroma444
	default:
		return ChromaReserved
	}
}

// ColourPrimaries enumerates recognized colour_primaries values.
type ColourPrimaries uint8

const (
	PrimariesReserved ColourPrimaries = iota
	PrimariesBT709
	PrimariesUnspecified
	_
	PrimariesBT470M
	PrimariesBT470BG
	PrimariesSMPTE170M
	PrimariesSMPTE240M
	PrimariesBT2020
)

// TransferCharacteristics enumerates recognized transfer_characteristics
// values.
type TransferCharacteristics uint8

const (
	TransferReserved TransferCharacteristics = iota
	TransferBT709
	TransferUnspecified
	_
	TransferBT470M
	TransferBT470BG
	TransferSMPTE170M
	TransferSMPTE240M
	TransferLinear
	TransferLog100
	TransferLog316
	TransferIEC61966
	TransferBT1361
	TransferPQ // SMPTE ST 2084 / PQ, value 13 for AVS2; AVS3 treats 13 as reserved.
)

// MatrixCoefficients enumerates recognized matrix_coefficients values.
type MatrixCoefficients uint8

const (
	MatrixReserved MatrixCoefficients = iota
	MatrixBT709
	MatrixUnspecified
	_
	MatrixFCC
	MatrixBT470BG
	MatrixSMPTE170M
	MatrixSMPTE240M
	MatrixBT2020NCL
	MatrixBT2020CL
)

// ColorDescription is the "combined" colour description reported when
// primaries, transfer and matrix coincide on a single well-known standard.
type ColorDescription uint8

const (
	ColorDescriptionNone ColorDescription = iota
	ColorDescriptionBT709
	ColorDescriptionBT470M
	ColorDescriptionBT470BG
	ColorDescriptionSMPTE170M
	ColorDescriptionSMPTE240M
	ColorDescriptionBT2020
)

// CombinedColorDescription collapses a primaries/transfer/matrix triple into
// the single well-known ColorDescription it matches, the way receivers
// commonly summarize GB/T 20090.2/GB/T 33475.2/T/AI 109.2 colour signaling:
// "BT.709" fires iff (primaries=1, transfer=6, matrix=1). Otherwise, if
// primaries=transfer=matrix and the common value has a matching
// ColorDescription member, that member is reported; else none.
func CombinedColorDescription(primaries ColourPrimaries, transfer TransferCharacteristics, matrix MatrixCoefficients) ColorDescription {
	if primaries == PrimariesBT709 && transfer == TransferSMPTE170M && matrix == MatrixBT709 {
		return ColorDescriptionBT709
	}
	if uint8(primaries) != uint8(transfer) || uint8(transfer) != uint8(matrix) {
		return ColorDescriptionNone
	}
	switch uint8(primaries) {
	case uint8(PrimariesBT709):
		return ColorDescriptionBT709
	case uint8(PrimariesBT470M):
		return ColorDescriptionBT470M
	case uint8(PrimariesBT470BG):
		return ColorDescriptionBT470BG
	case uint8(PrimariesSMPTE170M):
		return ColorDescriptionSMPTE170M
	case uint8(PrimariesSMPTE240M):
		return ColorDescriptionSMPTE240M
	case uint8(PrimariesBT2020):
		return ColorDescriptionBT2020
	default:
		return ColorDescriptionNone
	}
}

// PackingMode is the unified 3D/stereo frame-packing enum shared by AVS1's
// stereo_packing_mode, AVS2's td_packing_mode and AVS3's packing mode.
type PackingMode uint8

const (
	PackingMono PackingMode = iota
	PackingSBS
	PackingOU
	PackingQuad
	PackingTDOU
	PackingTDSBS
	PackingReserved
)

// PackingModeAVS1 maps AVS1's 2-bit stereo_packing_mode field.
func PackingModeAVS1(code uint32) PackingMode {
	switch code {
	case 0:
		return PackingMono
	case 1:
		return PackingSBS
	case 2:
		return PackingOU
	default:
		return PackingReserved
	}
}

// PackingModeAVS2 maps AVS2's td_packing_mode field, valid in [0,4].
func PackingModeAVS2(code uint32) PackingMode {
	if code <= 4 {
		return PackingMode(code)
	}
	return PackingReserved
}

// PackingModeAVS3 maps AVS3's simplified packing mode field, valid in [0,2].
func PackingModeAVS3(code uint32) PackingMode {
	if code <= 2 {
		return PackingMode(code)
	}
	return PackingReserved
}

// AspectRatio holds the sample/display aspect ratio strings for a given
// aspect_ratio_info/aspect_ratio code, per the shared AVS aspect-ratio
// table. SAR and DAR are empty when not meaningfully defined for the code.
type AspectRatio struct {
	SAR string
	DAR string
}

// AspectRatios maps the 4-bit aspect_ratio_info/aspect_ratio field (1-4
// defined, others reserved/forbidden) to its SAR/DAR strings.
var AspectRatios = map[uint32]AspectRatio{
	1: {SAR: "1:1", DAR: ""},
	2: {SAR: "", DAR: "4:3"},
	3: {SAR: "", DAR: "16:9"},
	4: {SAR: "", DAR: "2.21:1"},
}

// BitDepthFromSamplePrecision maps sample_precision (AVS1/AVS2/AVS3) to the
// luma/chroma bit depth. Returns (0, false) for reserved/forbidden codes.
func BitDepthFromSamplePrecision(code uint32) (int, bool) {
	switch code {
	case 1:
		return 8, true
	case 3:
		return 10, true
	case 5:
		return 12, true
	default:
		return 0, false
	}
}

// DefaultWQM4x4 is the normative default 4x4 weight-quantization matrix
// (row-major, 4x4) applied when weight_quant_enable_flag=1 and
// load_seq_weight_quant_data_flag=0.
var DefaultWQM4x4 = [4][4]int{
	{64, 64, 64, 68},
	{64, 64, 68, 72},
	{64, 68, 76, 80},
	{72, 76, 84, 96},
}

// DefaultWQM8x8 is the normative default 8x8 weight-quantization matrix.
var DefaultWQM8x8 = [8][8]int{
	{64, 64, 64, 64, 68, 68, 72, 76},
	{64, 64, 64, 68, 72, 76, 84, 92},
	{64, 64, 68, 72, 76, 80, 88, 100},
	{64, 68, 72, 80, 84, 92, 100, 112},
	{68, 72, 80, 84, 92, 104, 112, 128},
	{76, 80, 84, 92, 104, 116, 132, 152},
	{96, 100, 104, 116, 124, 140, 164, 188},
	{104, 108, 116, 128, 152, 172, 192, 216},
}
