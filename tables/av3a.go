/*
NAME
  av3a.go

DESCRIPTION
  av3a.go holds the Audio Vivid (AV3A) specific tables: codec id, coding
  profile, channel configuration, sampling frequency and per-configuration
  bit-rate tables referenced by codec/av3a.
*/

package tables

// AudioCodecID identifies the AV3A codec_id field.
type AudioCodecID uint8

const (
	AudioCodecIDReserved AudioCodecID = iota
	AudioCodecIDLossless
	AudioCodecIDGeneral
)

func (c AudioCodecID) String() string {
	switch c {
	case AudioCodecIDLossless:
		return "Lossless"
	case AudioCodecIDGeneral:
		return "General"
	default:
		return "reserved"
	}
}

// AudioCodecIDFromCode maps the 4-bit audio_codec_id field.
func AudioCodecIDFromCode(code uint32) AudioCodecID {
	switch code {
	case 1:
		return AudioCodecIDLossless
	case 2:
		return AudioCodecIDGeneral
	default:
		return AudioCodecIDReserved
	}
}

// CodingProfile identifies the AV3A coding_profile field, valid only when
// AudioCodecID is General.
type CodingProfile uint8

const (
	CodingProfileBasic CodingProfile = iota
	CodingProfileObjectMetadata
	CodingProfileFOAHOA
)

func (p CodingProfile) String() string {
	switch p {
	case CodingProfileBasic:
		return "Basic"
	case CodingProfileObjectMetadata:
		return "ObjectMetadata"
	case CodingProfileFOAHOA:
		return "FOA/HOA"
	default:
		return "reserved"
	}
}

// ChannelConfiguration enumerates recognized channel_number_index values
// for the General/Basic AV3A profile.
type ChannelConfiguration uint8

const (
	ChannelConfigReserved ChannelConfiguration = iota
	ChannelConfigMono
	ChannelConfigStereo
	ChannelConfig5_1
	ChannelConfig7_1
	ChannelConfig10_2
	ChannelConfig22_2
)

func (c ChannelConfiguration) String() string {
	switch c {
	case ChannelConfigMono:
		return "1.0"
	case ChannelConfigStereo:
		return "2.0"
	case ChannelConfig5_1:
		return "5.1"
	case ChannelConfig7_1:
		return "7.1"
	case ChannelConfig10_2:
		return "10.2"
	case ChannelConfig22_2:
		return "22.2"
	default:
		return "reserved"
	}
}

// channelConfigTable maps channel_number_index to (configuration, channel
// count).
var channelConfigTable = map[uint32]struct {
	Config   ChannelConfiguration
	Channels int
}{
	0: {ChannelConfigMono, 1},
	1: {ChannelConfigStereo, 2},
	2: {ChannelConfig5_1, 6},
	3: {ChannelConfig7_1, 8},
	4: {ChannelConfig10_2, 12},
	5: {ChannelConfig22_2, 24},
}

// ChannelConfigurationFromIndex looks up the channel configuration and
// derived channel count for a channel_number_index value. ok is false for
// an index outside the defined table, in which case the configuration is
// reserved and channel count is 0 (not inferable).
func ChannelConfigurationFromIndex(index uint32) (cfg ChannelConfiguration, channels int, ok bool) {
	e, ok := channelConfigTable[index]
	if !ok {
		return ChannelConfigReserved, 0, false
	}
	return e.Config, e.Channels, true
}

// SamplingFrequencies maps the 4-bit sampling_frequency_index field to Hz.
// Index 0xF is reserved for an explicit 24-bit sampling_frequency field and
// is not present in this table.
var SamplingFrequencies = map[uint32]int{
	0:  16000,
	1:  32000,
	2:  48000,
	3:  44100,
	4:  96000,
	5:  88200,
	6:  24000,
	7:  22050,
	8:  12000,
	9:  11025,
	10: 8000,
	11: 64000,
	12: 192000,
	13: 176400,
}

// ResolutionFromCode maps the 2-bit resolution field to bits per sample.
func ResolutionFromCode(code uint32) (int, bool) {
	switch code {
	case 0:
		return 8, true
	case 1:
		return 16, true
	case 2:
		return 24, true
	default:
		return 0, false
	}
}

// bitrateTableKbps holds, per ChannelConfiguration, the bit rate in kbps
// indexed by the 4-bit bitrate_index field.
var bitrateTableKbps = map[ChannelConfiguration][16]int{
	ChannelConfigMono:   {16, 24, 32, 48, 64, 80, 96, 112, 128, 144, 160, 192, 224, 256, 320, 384},
	ChannelConfigStereo: {16, 32, 48, 64, 96, 128, 136, 144, 160, 192, 224, 256, 320, 384, 448, 512},
	ChannelConfig5_1:    {64, 96, 128, 160, 192, 224, 256, 320, 384, 448, 512, 576, 640, 704, 768, 832},
	ChannelConfig7_1:    {96, 128, 160, 192, 224, 256, 320, 384, 448, 512, 576, 640, 704, 768, 832, 896},
	ChannelConfig10_2:   {128, 160, 192, 256, 320, 384, 448, 512, 576, 640, 704, 768, 832, 896, 960, 1024},
	ChannelConfig22_2:   {256, 320, 384, 448, 512, 640, 768, 896, 1024, 1152, 1280, 1408, 1536, 1664, 1792, 1920},
}

// BitRateKbps returns the bit rate in kbps for a given channel
// configuration and 4-bit bitrate_index. ok is false for a reserved
// configuration or an index outside [0,15].
func BitRateKbps(cfg ChannelConfiguration, bitrateIndex uint32) (int, bool) {
	table, ok := bitrateTableKbps[cfg]
	if !ok || bitrateIndex > 15 {
		return 0, false
	}
	return table[bitrateIndex], true
}

// MonoBitRateKbps returns the bit rate in kbps for a single audio object or
// a mono bed channel, used by the object-metadata soundBedType branches of
// the AV3A frame header.
func MonoBitRateKbps(bitrateIndex uint32) (int, bool) {
	return BitRateKbps(ChannelConfigMono, bitrateIndex)
}
