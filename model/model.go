/*
NAME
  model.go

DESCRIPTION
  model.go defines the codec-kind tag and the semantic records produced by
  the bitstream parsers and the container descriptor parser: AVSVideoInfo,
  AVSAudioInfo, AVSVideoDescriptor and AVSAudioDescriptor, spanning the
  GB/T 20090.2, GB/T 33475.2, T/AI 109.2 and T/AI 109.3 syntaxes.

AUTHORS
  AVS Probe Contributors
*/

// Package model holds the data records shared by every AVS codec parser and
// by the container layer that discovers and reports on elementary streams.
package model

import "github.com/avsprobe/avsmeta/tables"

// CodecKind is the closed tagged variant identifying which AVS family
// syntax an elementary stream carries.
type CodecKind uint8

const (
	CodecUnknown CodecKind = iota
	CodecAVS1
	CodecAVS2
	CodecAVS3Video
	CodecAV3AAudio
)

func (k CodecKind) String() string {
	switch k {
	case CodecAVS1:
		return "AVS1"
	case CodecAVS2:
		return "AVS2"
	case CodecAVS3Video:
		return "AVS3Video"
	case CodecAV3AAudio:
		return "AV3AAudio"
	default:
		return "Unknown"
	}
}

// AVSVideoInfo is the semantic record produced by the AVS1, AVS2 and AVS3
// sequence-level parsers. Required fields are always populated on a
// successful parse; optional fields are only populated when the relevant
// display extension was present in the bitstream.
type AVSVideoInfo struct {
	// Generation is "AVS", "AVS+", "AVS2" or "AVS3".
	Generation string
	// Profile is a human-readable profile name, e.g. "Main Profile" or
	// "Main 8bit Profile".
	Profile string
	// Level is a human-readable level name.
	Level string

	HorizontalSize int
	VerticalSize   int
	Progressive    bool
	ChromaFormat   tables.ChromaFormat
	LumaBitDepth   int
	ChromaBitDepth int
	FrameRate      float64
	BitRate        uint32 // bps
	LowDelay       bool

	// SAR/DAR are empty strings when not determinable from the
	// aspect-ratio table.
	SAR string
	DAR string

	// The following are only set when a display extension was parsed.
	VideoFormat             string
	SampleRange             *bool
	HDRDynamicMetadataType  string
	ColorDescription        *tables.ColorDescription
	ColourPrimaries         *tables.ColourPrimaries
	TransferCharacteristics *tables.TransferCharacteristics
	MatrixCoefficients      *tables.MatrixCoefficients
	DisplayHorizontalSize   *int
	DisplayVerticalSize     *int
	PackingMode             *tables.PackingMode

	// The following are only set by the AVS2 and AVS3 parsers.
	WeightQuantEnabled   *bool
	WeightQuantCustom    *bool
	WeightQuantMatrix4x4 *[4][4]int
	WeightQuantMatrix8x8 *[8][8]int

	// ToolFlags holds the flat run of tool-enable u1 flags read from the
	// sequence header (e.g. "sao", "alf", "affine", "ibc"), keyed by the
	// syntax element name. Presence of a key means the bit was read, except
	// for the AVS3 enhanced-profile companion features (e.g. "eipm"), which
	// are set true with no bit read; absence means the profile/branch did
	// not reach that field.
	ToolFlags map[string]bool

	// AVS2-only: the num_of_rcs reference_configuration_set records.
	ReferenceConfigurationSets []ReferenceConfigurationSet
	OutputReorderDelay         *int
	CrossSliceLoopfilter       *bool
	UniversalStringPrediction  *bool

	// AVS3-only patch fields.
	CrossPatchLoopfilter *bool
	RefColocatedPatch    *bool
	StablePatch          *bool
	UniformPatch         *bool
	PatchWidth           *int
	PatchHeight          *int

	// AVS3 additionally carries a block of coding-structure and
	// reference-library fields with no AVS1/AVS2 analogue.
	AVS3 *AVS3Extra
}

// AVS3Extra holds the AVS3-specific sequence-header fields that have no
// AVS1/AVS2 analogue: library-stream signaling, reference picture list
// sets, LCU/CU/BT/EQT size fields and the enhanced-profile tool block.
type AVS3Extra struct {
	LibraryStreamFlag          bool
	LibraryPictureEnable       bool
	DuplicateSequenceHeader    bool
	MaxDPBMinus1               int
	RPL1IndexExist             bool
	RPL1SameAsRPL0             bool
	ReferencePictureListSet0   []ReferencePictureListSet
	ReferencePictureListSet1   []ReferencePictureListSet
	NumRefDefaultActiveMinus1  [2]int
	Log2LCUSizeMinus2          int
	Log2MinCUSizeMinus2        int
	Log2MaxPartRatioMinus2     int
	MaxSplitTimesMinus6        int
	Log2MinQTSizeMinus2        int
	Log2MaxBTSizeMinus2        int
	Log2MaxEQTSizeMinus3       int
	NumOfHMVPCand              int
	DTMaxSizeMinus4            *int
	EnhancedProfile            bool
	NumOfIntraHMVPCand         *int
	NNToolsSetHook             int
	NumOfNNFilterMinus1        *int
}

// ReferencePictureListSet is one AVS3 reference_picture_list_set(rplIdx,·)
// record.
type ReferencePictureListSet struct {
	ReferenceToLibraryEnable bool
	Refs                     []ReferencePictureListEntry
}

// ReferencePictureListEntry is one reference within a
// ReferencePictureListSet: either a library-picture reference or a
// delta-DOI reference.
type ReferencePictureListEntry struct {
	LibraryIndexFlag              bool
	ReferencedLibraryPictureIndex *int
	AbsDeltaDOI                   *int // sign already applied
}

// ReferenceConfigurationSet is one AVS2 reference_configuration_set record.
type ReferenceConfigurationSet struct {
	ReferredByOthers         bool
	ReferencePictureDeltaDOI []int
	RemovedPictureDeltaDOI   []int
}

// AVSAudioInfo is the semantic record produced by the AV3A frame-header
// parser.
type AVSAudioInfo struct {
	AudioCodecID      tables.AudioCodecID
	CodingProfile     tables.CodingProfile
	SamplingFrequency int // Hz
	Resolution        int // 8, 16 or 24

	// The following are only set on the branches of the AATF header (T/AI
	// 109.3 clause 6.2) that assign them.
	NeuralNetworkType     *int
	ChannelNumber         *int
	ChannelConfiguration  *tables.ChannelConfiguration
	ObjectChannelNumber   *int
	HOAOrder              *int
	BitRate               *uint32 // bps, absent unless a branch set it
}

// AVSVideoDescriptor is the container-side metadata parsed from a PMT
// elementary-stream descriptor for an AVS video stream. It overlaps with,
// but is smaller than, the in-band AVSVideoInfo for the same stream.
type AVSVideoDescriptor struct {
	Generation              string
	Profile                 int
	Level                   int
	MultipleFrameRateFlag   bool
	FrameRateCode           int
	StillPresent            bool
	ChromaFormat            tables.ChromaFormat
	SamplePrecision         int

	// AVS3-only fields.
	TemporalIDFlag          *bool
	TemporalDomainMode      *bool
	LibraryStreamFlag       *bool
	LibraryPictureFlag      *bool
	ColourPrimaries         *tables.ColourPrimaries
	TransferCharacteristics *tables.TransferCharacteristics
	MatrixCoefficients      *tables.MatrixCoefficients
}

// AVSAudioDescriptor is the container-side metadata parsed from a PMT
// elementary-stream descriptor for an AV3A audio stream.
type AVSAudioDescriptor struct {
	AudioCodecID         tables.AudioCodecID
	SamplingFrequency    int // Hz
	TotalBitRate         uint32 // bps
	Resolution           int
	ChannelConfiguration *tables.ChannelConfiguration
}

// StreamInfo is everything known about one elementary stream discovered in
// a PMT, or one track discovered in an ISO BMFF file.
type StreamInfo struct {
	StreamType  byte // PMT stream_type, or 0 for BMFF-derived tracks.
	PID         uint16
	FourCC      string // set instead of StreamType for BMFF tracks.
	Kind        CodecKind
	Language    string // ISO-639, empty if absent.
	Registration string // 4-char registration descriptor fourCC, empty if absent.

	VideoDescriptor *AVSVideoDescriptor
	AudioDescriptor *AVSAudioDescriptor
	VideoInfo       *AVSVideoInfo
	AudioInfo       *AVSAudioInfo
}

// ProgramInfo is one MPEG-TS program: its PMT PID and the elementary
// streams it carries, keyed by PID.
type ProgramInfo struct {
	ProgramNumber uint16
	PMTPID        uint16
	Streams       map[uint16]*StreamInfo
}
