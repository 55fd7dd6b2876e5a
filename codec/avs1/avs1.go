/*
NAME
  avs1.go

DESCRIPTION
  avs1.go parses the sequence-level syntax of an AVS1 / AVS1+ (GB/T 20090.2)
  elementary stream: the sequence_header (start code 0xB0) and, if present,
  the sequence_display_extension (start code 0xB5, ext-id 0b0010). Parsing
  stops at the first picture header (0xB3/0xB6), per GB/T 20090.2 clause 6.2.

  The shape follows codec/h264/h264dec/sps.go's NewSPS: construct a bit
  reader over the syntax element's bytes, and walk the syntax table in
  order into a result struct, using a sticky-error field reader so the
  happy path reads as a flat sequence of statements.

AUTHORS
  AVS Probe Contributors
*/

// Package avs1 parses AVS1 and AVS1+ sequence-level bitstream syntax.
package avs1

import (
	"github.com/pkg/errors"

	"github.com/avsprobe/avsmeta/bits"
	"github.com/avsprobe/avsmeta/internal/fieldreader"
	"github.com/avsprobe/avsmeta/internal/startcode"
	"github.com/avsprobe/avsmeta/model"
	"github.com/avsprobe/avsmeta/tables"
)

// Start code values recognized while scanning an AVS1 elementary stream.
const (
	startCodeSequenceHeader = 0xB0
	startCodeExtension      = 0xB5
	startCodePictureI       = 0xB3
	startCodePicturePB      = 0xB6
)

// extIDSequenceDisplay is the 4-bit extension id for sequence_display_extension.
const extIDSequenceDisplay = 0b0010

// profileBroadcasting is the AVS1+ (Broadcasting) profile_id.
const profileBroadcasting = 0x48

// profileShenzhan gates the background/core-picture/scene-model fields.
const profileShenzhan = 0x24

// ErrNoSequenceHeader indicates a picture header (or end of stream) was
// reached before any sequence_header start code was seen.
var ErrNoSequenceHeader = errors.New("avs1: no sequence header found")

// Parse scans data for an AVS1 sequence header (and optional sequence
// display extension), stopping at the first picture header. It returns the
// populated AVSVideoInfo, or ErrNoSequenceHeader if none was found before a
// picture header / end of stream.
func Parse(data []byte) (*model.AVSVideoInfo, error) {
	var (
		info    *model.AVSVideoInfo
		havePic bool
		pos     int
	)

	for {
		idx, ok := startcode.Next(data, pos)
		if !ok {
			break
		}
		if idx >= len(data) {
			break
		}
		code := data[idx]
		rest := data[idx+1:]
		pos = idx + 1

		switch code {
		case startCodeSequenceHeader:
			i, err := parseSequenceHeader(rest)
			if err != nil {
				return nil, errors.Wrap(err, "avs1: sequence_header")
			}
			info = i
		case startCodeExtension:
			if info == nil {
				continue
			}
			if len(rest) < 1 {
				continue
			}
			br := bits.NewReader(rest)
			extID, err := br.ReadBits(4)
			if err != nil {
				continue
			}
			if extID == extIDSequenceDisplay {
				if err := parseSequenceDisplayExtension(br, info); err != nil {
					return nil, errors.Wrap(err, "avs1: sequence_display_extension")
				}
			}
		case startCodePictureI, startCodePicturePB:
			havePic = true
		}
		if havePic {
			break
		}
	}

	if info == nil {
		return nil, ErrNoSequenceHeader
	}
	return info, nil
}

// parseSequenceHeader parses the sequence_header syntax element beginning
// immediately after the 0xB0 start code, per GB/T 20090.2 clause 6.2.1.
func parseSequenceHeader(data []byte) (*model.AVSVideoInfo, error) {
	br := bits.NewReader(data)
	r := fieldreader.New(br)

	profileID := r.U(8)
	levelID := r.U(8)
	progressive := r.Bool()
	horizontal := r.U(14)
	vertical := r.U(14)
	chromaCode := r.U(2)
	samplePrecision := r.U(3)
	aspectRatio := r.U(4)
	frameRateCode := r.U(4)
	bitRateLower := r.U(18)
	r.Marker()
	bitRateUpper := r.U(12)
	lowDelay := r.Bool()
	r.Marker()
	r.U(18) // bbv_buffer_size, not surfaced.

	if profileID == profileShenzhan {
		r.Bool() // background_picture_disable
		coreDisable := r.Bool()
		if !coreDisable {
			r.U(4) // core_picture_buffer_size
		}
		r.Bool() // slice_set_disable
		r.Marker()
		r.U(4) // scene_model
		if coreDisable {
			r.Skip(5)
		} else {
			r.Skip(3)
		}
	} else {
		r.Skip(3)
	}

	if err := r.Err(); err != nil {
		return nil, err
	}

	bitDepth, _ := tables.BitDepthFromSamplePrecision(samplePrecision)

	generation := "AVS"
	if profileID == profileBroadcasting {
		generation = "AVS+"
	}

	aspect := tables.AspectRatios[aspectRatio]

	var frameRate float64
	if int(frameRateCode) < len(tables.FrameRates) {
		frameRate = tables.FrameRates[frameRateCode]
	}

	info := &model.AVSVideoInfo{
		Generation:     generation,
		Profile:        profileName(profileID),
		Level:          levelName(levelID),
		HorizontalSize: int(horizontal),
		VerticalSize:   int(vertical),
		Progressive:    progressive,
		ChromaFormat:   tables.ChromaFormatFromCode(chromaCode),
		LumaBitDepth:   bitDepth,
		ChromaBitDepth: bitDepth,
		FrameRate:      frameRate,
		BitRate:        ((bitRateUpper << 18) | bitRateLower) * 400,
		LowDelay:       lowDelay,
		SAR:            aspect.SAR,
		DAR:            aspect.DAR,
	}
	return info, nil
}

// parseSequenceDisplayExtension parses the sequence_display_extension
// syntax element, populating the optional display fields of info.
func parseSequenceDisplayExtension(br *bits.Reader, info *model.AVSVideoInfo) error {
	r := fieldreader.New(br)

	videoFormat := r.U(3)
	sampleRange := r.Bool()
	colourDescFlag := r.Bool()

	var rawPrimaries, rawTransfer, rawMatrix uint32
	if colourDescFlag {
		rawPrimaries = r.U(8)
		rawTransfer = r.U(8)
		rawMatrix = r.U(8)
	}

	displayH := r.U(14)
	r.Marker()
	displayV := r.U(14)
	packing := r.U(2)

	if err := r.Err(); err != nil {
		return err
	}

	info.VideoFormat = videoFormatName(videoFormat)
	info.SampleRange = boolPtr(sampleRange)
	if colourDescFlag {
		primaries, primariesOK := normalizePrimaries(rawPrimaries)
		transfer, transferOK := normalizeTransfer(rawTransfer)
		matrix, matrixOK := normalizeMatrix(rawMatrix)
		if primariesOK {
			info.ColourPrimaries = &primaries
		}
		if transferOK {
			info.TransferCharacteristics = &transfer
		}
		if matrixOK {
			info.MatrixCoefficients = &matrix
		}
		cd := tables.CombinedColorDescription(primaries, transfer, matrix)
		info.ColorDescription = &cd
	}
	dh := int(displayH)
	dv := int(displayV)
	info.DisplayHorizontalSize = &dh
	info.DisplayVerticalSize = &dv
	pm := tables.PackingModeAVS1(packing)
	info.PackingMode = &pm
	return nil
}

// normalizePrimaries maps a raw 8-bit colour_primaries value per GB/T
// 20090.2 clause 6.2.1.1: 0 is forbidden and reported absent (ok=false);
// 1-8 are valid; anything else is normalized to RESERVED (still ok=true,
// distinct from the forbidden/absent case).
func normalizePrimaries(v uint32) (p tables.ColourPrimaries, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= 8 {
		return tables.ColourPrimaries(v), true
	}
	return tables.PrimariesReserved, true
}

func normalizeTransfer(v uint32) (t tables.TransferCharacteristics, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= 10 {
		return tables.TransferCharacteristics(v), true
	}
	return tables.TransferReserved, true
}

func normalizeMatrix(v uint32) (m tables.MatrixCoefficients, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= 7 {
		return tables.MatrixCoefficients(v), true
	}
	return tables.MatrixReserved, true
}

func boolPtr(b bool) *bool { return &b }

func videoFormatName(v uint32) string {
	names := []string{"Component", "PAL", "NTSC", "SECAM", "MAC", "Unspecified", "Reserved", "Reserved"}
	if int(v) < len(names) {
		return names[v]
	}
	return "Reserved"
}

// profileName returns a human-readable AVS1 profile name.
func profileName(id uint32) string {
	switch id {
	case 0x20:
		return "Jizhun (Baseline) Profile"
	case profileShenzhan:
		return "Shenzhan Profile"
	case profileBroadcasting:
		return "Broadcasting Profile"
	default:
		return "Reserved Profile"
	}
}

// levelName returns a human-readable AVS1 level name.
func levelName(id uint32) string {
	switch id {
	case 0x10:
		return "2.0"
	case 0x20:
		return "4.0"
	case 0x22:
		return "4.2"
	case 0x40:
		return "6.0"
	case 0x42:
		return "6.2"
	default:
		return "Reserved"
	}
}
