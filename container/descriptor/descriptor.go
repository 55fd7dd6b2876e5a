/*
NAME
  descriptor.go

DESCRIPTION
  descriptor.go parses PMT elementary-stream descriptors: the AVS1/AVS2/AVS3
  video and AVS3 audio descriptors keyed by (tag, stream_type), plus the
  generic registration, ISO-639 language and maximum-bitrate descriptors and
  a well-known-tag lookup table for non-AVS codecs, per GY/T 363.

AUTHORS
  AVS Probe Contributors
*/

// Package descriptor parses MPEG-2 PMT elementary-stream descriptors,
// recognizing the AVS-family tag/stream-type pairs and a handful of common
// non-AVS descriptor types.
package descriptor

import (
	"github.com/pkg/errors"

	"github.com/avsprobe/avsmeta/bits"
	"github.com/avsprobe/avsmeta/internal/fieldreader"
	"github.com/avsprobe/avsmeta/model"
	"github.com/avsprobe/avsmeta/tables"
)

// Tag values this package recognizes directly.
const (
	TagRegistration = 0x05
	TagLanguage     = 0x0A
	TagMaxBitrate   = 0x0E
	TagAVS1Video    = 0x3F
	TagAVS2Video    = 0x40
	TagAVS3Video    = 0xD1
	TagAVS3Audio    = 0xD2
)

// Stream-type values gating the AVS tag interpretations.
const (
	streamTypeAVS1Video = 0x42
	streamTypeAVS2Video = 0xD2
	streamTypeAVS3Video = 0xD4
	streamTypeAVS3Audio = 0xD5
)

// profileAVS1Plus is the profile_id that, combined with stream_type 0x42,
// signals AVS1+ rather than plain AVS1.
const profileAVS1Plus = 0x48

// Kind identifies which typed field of Result was populated.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAVSVideo
	KindAVSAudio
	KindRegistration
	KindLanguage
	KindMaxBitrate
	KindWellKnown
)

// Result is the outcome of parsing one elementary-stream descriptor.
type Result struct {
	Kind Kind

	AVSVideo *model.AVSVideoDescriptor
	AVSAudio *model.AVSAudioDescriptor

	RegistrationFourCC string
	Language           string
	MaxBitRate         uint32 // bps

	// WellKnownName/WellKnownType are set for KindWellKnown, naming a
	// recognized non-AVS codec or subtitle/caption descriptor.
	WellKnownName string
	WellKnownType string
}

// Parse decodes one descriptor given its tag, the stream_type of the
// elementary stream it is attached to, and its data (excluding the
// tag/length header bytes). Unknown tags return (nil, nil): the caller
// should simply skip them.
func Parse(tag byte, streamType byte, data []byte) (*Result, error) {
	switch {
	case tag == TagAVS1Video && streamType == streamTypeAVS1Video:
		return parseAVS1VideoDescriptor(data)
	case tag == TagAVS2Video && streamType == streamTypeAVS2Video:
		return parseAVS2VideoDescriptor(data)
	case tag == TagAVS3Video && streamType == streamTypeAVS3Video:
		return parseAVS3VideoDescriptor(data)
	case tag == TagAVS3Audio && streamType == streamTypeAVS3Audio:
		return parseAVS3AudioDescriptor(data)
	case tag == TagRegistration:
		return parseRegistrationDescriptor(data)
	case tag == TagLanguage:
		return parseLanguageDescriptor(data)
	case tag == TagMaxBitrate:
		return parseMaxBitrateDescriptor(data)
	}
	if name, kind, ok := wellKnownTags[tag]; ok {
		return &Result{Kind: KindWellKnown, WellKnownName: name, WellKnownType: kind}, nil
	}
	return nil, nil
}

// parseAVS1VideoDescriptor decodes tag 0x3F + stream_type 0x42. Layout
// (byte-aligned; GY/T 363 names the fields but not an exact bit table, so
// this packing is an implementer choice documented in DESIGN.md):
//
//	byte0: profile_id
//	byte1: level_id
//	byte2: multiple_frame_rate_flag(1) frame_rate_code(4) AVS_still_present(1) chroma_format(2)
//	byte3: sample_precision(3) reserved(5)
func parseAVS1VideoDescriptor(data []byte) (*Result, error) {
	d, err := parseBaseVideoFields(data)
	if err != nil {
		return nil, errors.Wrap(err, "descriptor: avs1_video_descriptor")
	}
	d.Generation = "AVS1"
	if d.Profile == profileAVS1Plus {
		d.Generation = "AVS1+"
	}
	return &Result{Kind: KindAVSVideo, AVSVideo: d}, nil
}

// parseAVS2VideoDescriptor decodes tag 0x40 + stream_type 0xD2, same shape
// as the AVS1 descriptor against the AVS2 profile/level tables.
func parseAVS2VideoDescriptor(data []byte) (*Result, error) {
	d, err := parseBaseVideoFields(data)
	if err != nil {
		return nil, errors.Wrap(err, "descriptor: avs2_video_descriptor")
	}
	d.Generation = "AVS2"
	return &Result{Kind: KindAVSVideo, AVSVideo: d}, nil
}

// parseAVS3VideoDescriptor decodes tag 0xD1 + stream_type 0xD4: the base
// fields plus temporal_id/td_mode/library-stream/library-picture flags and
// an explicit colour description, per GY/T 363. chroma_format values
// other than 1 (4:2:0) are normalized to RESERVED.
func parseAVS3VideoDescriptor(data []byte) (*Result, error) {
	br := bits.NewReader(data)
	r := fieldreader.New(br)

	profile := r.U(8)
	level := r.U(8)
	mfrf := r.Bool()
	frameRateCode := r.U(4)
	stillPresent := r.Bool()
	chromaFormat := r.U(2) // byte2 fully consumed: 1+4+1+2 bits.
	samplePrecision := r.U(3)
	r.Skip(5) // byte3 remainder.

	temporalID := r.Bool()
	tdMode := r.Bool()
	libraryStream := r.Bool()
	libraryPicture := r.Bool()
	r.Skip(4)

	rawPrimaries := r.U(8)
	rawTransfer := r.U(8)
	rawMatrix := r.U(8)

	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "descriptor: avs3_video_descriptor")
	}

	chroma := tables.ChromaFormatFromCode(chromaFormat)
	if chroma != tables.Chroma420 {
		chroma = tables.ChromaReserved
	}

	d := &model.AVSVideoDescriptor{
		Generation:            "AVS3",
		Profile:               int(profile),
		Level:                 int(level),
		MultipleFrameRateFlag: mfrf,
		FrameRateCode:         int(frameRateCode),
		StillPresent:          stillPresent,
		ChromaFormat:          chroma,
		SamplePrecision:       int(samplePrecision),
		TemporalIDFlag:        boolPtr(temporalID),
		TemporalDomainMode:    boolPtr(tdMode),
		LibraryStreamFlag:     boolPtr(libraryStream),
		LibraryPictureFlag:    boolPtr(libraryPicture),
	}
	if primaries, ok := normalizePrimaries(rawPrimaries); ok {
		d.ColourPrimaries = &primaries
	}
	if transfer, ok := normalizeTransfer(rawTransfer); ok {
		d.TransferCharacteristics = &transfer
	}
	if matrix, ok := normalizeMatrix(rawMatrix); ok {
		d.MatrixCoefficients = &matrix
	}
	return &Result{Kind: KindAVSVideo, AVSVideo: d}, nil
}

// normalizePrimaries maps a raw 8-bit colour_primaries value per GY/T 363:
// 0 is forbidden and reported absent (ok=false); 1-8 are valid; anything
// else is normalized to RESERVED (still ok=true, distinct from the
// forbidden/absent case).
func normalizePrimaries(v uint32) (p tables.ColourPrimaries, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= 8 {
		return tables.ColourPrimaries(v), true
	}
	return tables.PrimariesReserved, true
}

// normalizeTransfer maps a raw 8-bit transfer_characteristics value the same
// way as normalizePrimaries: 0 forbidden/absent, 1-10 valid, else RESERVED.
func normalizeTransfer(v uint32) (t tables.TransferCharacteristics, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= 10 {
		return tables.TransferCharacteristics(v), true
	}
	return tables.TransferReserved, true
}

// normalizeMatrix maps a raw 8-bit matrix_coefficients value the same way
// as normalizePrimaries: 0 forbidden/absent, 1-7 valid, else RESERVED.
func normalizeMatrix(v uint32) (m tables.MatrixCoefficients, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= 7 {
		return tables.MatrixCoefficients(v), true
	}
	return tables.MatrixReserved, true
}

// parseBaseVideoFields reads the profile/level/multiple_frame_rate_flag/
// frame_rate_code/AVS_still_present/chroma_format/sample_precision fields
// shared by the AVS1 and AVS2 video descriptors.
func parseBaseVideoFields(data []byte) (*model.AVSVideoDescriptor, error) {
	br := bits.NewReader(data)
	r := fieldreader.New(br)

	profile := r.U(8)
	level := r.U(8)
	mfrf := r.Bool()
	frameRateCode := r.U(4)
	stillPresent := r.Bool()
	chromaFormat := r.U(2)
	samplePrecision := r.U(3)
	r.Skip(5)

	if err := r.Err(); err != nil {
		return nil, err
	}

	return &model.AVSVideoDescriptor{
		Profile:               int(profile),
		Level:                 int(level),
		MultipleFrameRateFlag: mfrf,
		FrameRateCode:         int(frameRateCode),
		StillPresent:          stillPresent,
		ChromaFormat:          tables.ChromaFormatFromCode(chromaFormat),
		SamplePrecision:       int(samplePrecision),
	}, nil
}

// parseAVS3AudioDescriptor decodes tag 0xD2 + stream_type 0xD5: fields
// parallel to the AATF frame header (codec/av3a), minus the bit-rate table
// lookups since total_bitrate is carried directly as an explicit u16.
func parseAVS3AudioDescriptor(data []byte) (*Result, error) {
	br := bits.NewReader(data)
	r := fieldreader.New(br)

	codecCode := r.U(4)
	codecID := tables.AudioCodecIDFromCode(codecCode)
	sfi := r.U(4)

	var samplingFrequency int
	if codecID == tables.AudioCodecIDLossless && sfi == 0xF {
		samplingFrequency = int(r.U(24))
	} else {
		samplingFrequency = tables.SamplingFrequencies[sfi]
	}

	var channelConfig tables.ChannelConfiguration
	var haveChannelConfig bool

	switch codecID {
	case tables.AudioCodecIDGeneral:
		codingProfile := tables.CodingProfile(r.U(3))
		switch codingProfile {
		case tables.CodingProfileBasic:
			idx := r.U(7)
			if cfg, _, ok := tables.ChannelConfigurationFromIndex(idx); ok {
				channelConfig = cfg
				haveChannelConfig = true
			}
		case tables.CodingProfileObjectMetadata:
			soundBedType := r.U(2)
			switch soundBedType {
			case 0:
				r.U(7) // object_channel_number - 1
			case 1:
				idx := r.U(7)
				if cfg, _, ok := tables.ChannelConfigurationFromIndex(idx); ok {
					channelConfig = cfg
					haveChannelConfig = true
				}
				r.U(7) // objects - 1
			}
		case tables.CodingProfileFOAHOA:
			r.U(4) // order
		}
	case tables.AudioCodecIDLossless:
		v := r.U(4)
		if v == 15 {
			r.U(8)
		}
	}

	totalBitrate := r.U(16)
	resolutionCode := r.U(2)
	resolution, _ := tables.ResolutionFromCode(resolutionCode)

	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "descriptor: avs3_audio_descriptor")
	}

	d := &model.AVSAudioDescriptor{
		AudioCodecID:      codecID,
		SamplingFrequency: samplingFrequency,
		TotalBitRate:      totalBitrate * 1000,
		Resolution:        resolution,
	}
	if haveChannelConfig {
		cfg := channelConfig
		d.ChannelConfiguration = &cfg
	}
	return &Result{Kind: KindAVSAudio, AVSAudio: d}, nil
}

// parseRegistrationDescriptor reads a 4-character format identifier fourCC.
func parseRegistrationDescriptor(data []byte) (*Result, error) {
	if len(data) < 4 {
		return nil, errors.New("descriptor: registration_descriptor: too short")
	}
	return &Result{Kind: KindRegistration, RegistrationFourCC: string(data[:4])}, nil
}

// parseLanguageDescriptor reads a 3-character ISO-639 language code.
func parseLanguageDescriptor(data []byte) (*Result, error) {
	if len(data) < 3 {
		return nil, errors.New("descriptor: ISO_639_language_descriptor: too short")
	}
	return &Result{Kind: KindLanguage, Language: string(data[:3])}, nil
}

// parseMaxBitrateDescriptor reads the 18-bit maximum bitrate and converts
// it to bps via the ×400 convention shared with the AVS bit_rate fields.
func parseMaxBitrateDescriptor(data []byte) (*Result, error) {
	r := fieldreader.New(bits.NewReader(data))
	r.Skip(6) // reserved
	v := r.U(18)
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "descriptor: maximum_bitrate_descriptor")
	}
	return &Result{Kind: KindMaxBitrate, MaxBitRate: v * 400}, nil
}

// wellKnownTags maps common non-AVS descriptor tags to a human-readable
// codec/kind name. Values follow the MPEG-2 Systems / DVB SI registries;
// this is a representative subset, not an exhaustive registry.
var wellKnownTags = map[byte]struct {
	name string
	kind string
}{
	0x6A: {"AC-3", "audio"},
	0x7A: {"E-AC-3", "audio"},
	0x7B: {"DTS", "audio"},
	0x1C: {"AAC", "audio"},
	0x28: {"AVC", "video"},
	0x38: {"HEVC", "video"},
	0x59: {"Subtitle", "subtitle"},
	0x86: {"Caption Service", "caption"},
}

func boolPtr(b bool) *bool { return &b }
