/*
NAME
  av3a.go

DESCRIPTION
  av3a.go parses the AV3A (Audio Vivid) AATF frame header: 12-bit syncword
  location with byte-at-a-time retry, audio_codec_id validation, and the
  LOSSLESS/GENERAL profile-dependent channel/object/HOA branches, per
  T/AI 109.3 clause 6.2.

AUTHORS
  AVS Probe Contributors
*/

// Package av3a parses AV3A (Audio Vivid) frame-header syntax.
package av3a

import (
	"github.com/pkg/errors"

	"github.com/avsprobe/avsmeta/bits"
	"github.com/avsprobe/avsmeta/internal/fieldreader"
	"github.com/avsprobe/avsmeta/model"
	"github.com/avsprobe/avsmeta/tables"
)

// ErrNoSyncword indicates no byte offset in data led to a valid
// audio_codec_id following a 0xFFF-aligned candidate.
var ErrNoSyncword = errors.New("av3a: no valid syncword found")

// Parse scans data for the 12-bit 0xFFF syncword and decodes the AATF frame
// header at the first candidate offset that yields a valid audio_codec_id.
func Parse(data []byte) (*model.AVSAudioInfo, error) {
	for i := 0; i+1 < len(data); i++ {
		if data[i] != 0xFF || data[i+1]&0xF0 != 0xF0 {
			continue
		}

		br := bits.NewReader(data[i:])
		r := fieldreader.New(br)
		r.Skip(12) // syncword
		codecCode := r.U(4)
		if r.Err() != nil {
			break // not enough bytes left anywhere from here on; stop scanning.
		}
		codecID := tables.AudioCodecIDFromCode(codecCode)
		if codecID == tables.AudioCodecIDReserved {
			continue // InvalidSyncword: advance one byte and retry.
		}

		info, err := parseFrameHeader(r, codecID)
		if err != nil {
			if errors.Is(err, bits.ErrTruncated) {
				continue
			}
			return nil, errors.Wrap(err, "av3a: frame header")
		}
		return info, nil
	}
	return nil, ErrNoSyncword
}

func parseFrameHeader(r *fieldreader.R, codecID tables.AudioCodecID) (*model.AVSAudioInfo, error) {
	r.Bool() // anc_data_index, not surfaced.

	var nnType *int
	if codecID == tables.AudioCodecIDGeneral {
		v := int(r.U(3))
		nnType = &v
	}

	codingProfile := tables.CodingProfile(r.U(3))
	sfi := r.U(4)

	var samplingFrequency int
	if codecID == tables.AudioCodecIDLossless && sfi == 0xF {
		samplingFrequency = int(r.U(24))
	} else {
		samplingFrequency = tables.SamplingFrequencies[sfi]
	}

	if codecID != tables.AudioCodecIDGeneral {
		r.U(16) // raw_frame_length, captured but unused.
	}
	r.Skip(8) // aatf_error_check (CRC)

	var channelNumber *int
	var objectChannelNumber *int
	var hoaOrder *int
	var channelConfig tables.ChannelConfiguration
	var haveChannelConfig bool

	switch {
	case codecID == tables.AudioCodecIDLossless:
		v := int(r.U(4))
		if v == 15 {
			v = int(r.U(8))
		}
		channelNumber = &v

	case codecID == tables.AudioCodecIDGeneral && codingProfile == tables.CodingProfileBasic:
		idx := r.U(7)
		cfg, channels, ok := tables.ChannelConfigurationFromIndex(idx)
		if ok {
			channelConfig = cfg
			haveChannelConfig = true
			v := channels
			channelNumber = &v
		}

	case codecID == tables.AudioCodecIDGeneral && codingProfile == tables.CodingProfileObjectMetadata:
		soundBedType := r.U(2)
		switch soundBedType {
		case 0:
			objects := int(r.U(7)) + 1
			bitrateIdx := r.U(4)
			objectChannelNumber = &objects
			if perObject, ok := tables.MonoBitRateKbps(bitrateIdx); ok {
				v := uint32(perObject) * uint32(objects)
				return finishFrame(r, codecID, codingProfile, samplingFrequency, channelNumber,
					channelConfig, haveChannelConfig, objectChannelNumber, hoaOrder, nnType, &v, true)
			}
			return finishFrame(r, codecID, codingProfile, samplingFrequency, channelNumber,
				channelConfig, haveChannelConfig, objectChannelNumber, hoaOrder, nnType, nil, true)
		case 1:
			bedIdx := r.U(7)
			bedConfig, _, bedOK := tables.ChannelConfigurationFromIndex(bedIdx)
			bedBitrateIdx := r.U(4)
			objects := int(r.U(7)) + 1
			objBitrateIdx := r.U(4)
			objectChannelNumber = &objects
			if bedOK {
				channelConfig = bedConfig
				haveChannelConfig = true
			}
			bedRate, bedOK2 := tables.BitRateKbps(bedConfig, bedBitrateIdx)
			objRate, objOK := tables.MonoBitRateKbps(objBitrateIdx)
			if bedOK && bedOK2 && objOK {
				v := uint32(bedRate) + uint32(objRate)*uint32(objects)
				return finishFrame(r, codecID, codingProfile, samplingFrequency, channelNumber,
					channelConfig, haveChannelConfig, objectChannelNumber, hoaOrder, nnType, &v, true)
			}
			return finishFrame(r, codecID, codingProfile, samplingFrequency, channelNumber,
				channelConfig, haveChannelConfig, objectChannelNumber, hoaOrder, nnType, nil, true)
		}

	case codecID == tables.AudioCodecIDGeneral && codingProfile == tables.CodingProfileFOAHOA:
		v := int(r.U(4))
		hoaOrder = &v
	}

	return finishFrame(r, codecID, codingProfile, samplingFrequency, channelNumber,
		channelConfig, haveChannelConfig, objectChannelNumber, hoaOrder, nnType, nil, false)
}

// finishFrame reads the trailing resolution field and, for non-OBJECT_METADATA
// GENERAL profiles, the bitrate_index/table lookup, then assembles the
// AVSAudioInfo record. objectMetadataBitRate, when non-nil, has already been
// computed by the OBJECT_METADATA branch and is used as-is; skipBitrateField
// indicates that branch already consumed its own bitrate_index field(s) and
// the trailing bitrate_index read must not run.
func finishFrame(r *fieldreader.R, codecID tables.AudioCodecID, codingProfile tables.CodingProfile,
	samplingFrequency int, channelNumber *int, channelConfig tables.ChannelConfiguration, haveChannelConfig bool,
	objectChannelNumber, hoaOrder, nnType *int, objectMetadataBitRate *uint32, skipBitrateField bool) (*model.AVSAudioInfo, error) {

	resolutionCode := r.U(2)
	resolution, _ := tables.ResolutionFromCode(resolutionCode)

	var bitRate *uint32
	if objectMetadataBitRate != nil {
		bitRate = objectMetadataBitRate
	} else if !skipBitrateField && codecID == tables.AudioCodecIDGeneral && codingProfile != tables.CodingProfileObjectMetadata {
		bitrateIdx := r.U(4)
		if haveChannelConfig {
			if kbps, ok := tables.BitRateKbps(channelConfig, bitrateIdx); ok {
				v := uint32(kbps)
				bitRate = &v
			}
		}
	}

	if err := r.Err(); err != nil {
		return nil, err
	}

	if bitRate != nil {
		v := *bitRate * 1000
		bitRate = &v
	}

	info := &model.AVSAudioInfo{
		AudioCodecID:      codecID,
		CodingProfile:     codingProfile,
		SamplingFrequency: samplingFrequency,
		Resolution:        resolution,
		NeuralNetworkType: nnType,
		ChannelNumber:     channelNumber,
		ObjectChannelNumber: objectChannelNumber,
		HOAOrder:          hoaOrder,
		BitRate:           bitRate,
	}
	if haveChannelConfig {
		cfg := channelConfig
		info.ChannelConfiguration = &cfg
	}
	return info, nil
}
