/*
NAME
  avs2.go

DESCRIPTION
  avs2.go parses the sequence-level syntax of an AVS2 (GB/T 33475.2)
  elementary stream. Dispatch shape matches codec/avs1 exactly (same
  start-code values and termination rule); the sequence header and display
  extension carry a superset of AVS1's fields: weight-quantization matrices,
  a run of coding-tool enable flags, reference configuration sets, and
  optional multi-view/3D/scene display fields.

AUTHORS
  AVS Probe Contributors
*/

// Package avs2 parses AVS2 sequence-level bitstream syntax.
package avs2

import (
	"github.com/pkg/errors"

	"github.com/avsprobe/avsmeta/bits"
	"github.com/avsprobe/avsmeta/internal/fieldreader"
	"github.com/avsprobe/avsmeta/internal/startcode"
	"github.com/avsprobe/avsmeta/internal/wqm"
	"github.com/avsprobe/avsmeta/model"
	"github.com/avsprobe/avsmeta/tables"
)

const (
	startCodeSequenceHeader = 0xB0
	startCodeExtension      = 0xB5
	startCodePictureI       = 0xB3
	startCodePicturePB      = 0xB6
)

const extIDSequenceDisplay = 0b0010

// Profiles that carry the 3-bit encoding_precision field.
const (
	profileMainPicture = 0x12
	profileMain10      = 0x22
	profileMain10Pic   = 0x32
)

// Profiles carrying the multi-view/3D display extension fields. Spec.md
// gestures at "profile-gated multi-view/3D/scene extensions" without
// assigning concrete profile_id values; these are an implementer choice
// recorded in DESIGN.md.
const (
	profileMultiview = 0x34
	profile3D        = 0x38
)

// ErrNoSequenceHeader indicates a picture header (or end of stream) was
// reached before any sequence_header start code was seen.
var ErrNoSequenceHeader = errors.New("avs2: no sequence header found")

// Parse scans data for an AVS2 sequence header and optional sequence
// display extension, stopping at the first picture header.
func Parse(data []byte) (*model.AVSVideoInfo, error) {
	var (
		info      *model.AVSVideoInfo
		profileID uint32
		havePic   bool
		pos       int
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
			i, pid, err := parseSequenceHeader(rest)
			if err != nil {
				return nil, errors.Wrap(err, "avs2: sequence_header")
			}
			info = i
			profileID = pid
		case startCodeExtension:
			if info == nil || len(rest) < 1 {
				continue
			}
			br := bits.NewReader(rest)
			extID, err := br.ReadBits(4)
			if err != nil {
				continue
			}
			if extID == extIDSequenceDisplay {
				if err := parseSequenceDisplayExtension(br, info, profileID); err != nil {
					return nil, errors.Wrap(err, "avs2: sequence_display_extension")
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

func parseSequenceHeader(data []byte) (*model.AVSVideoInfo, uint32, error) {
	br := bits.NewReader(data)
	r := fieldreader.New(br)

	profileID := r.U(8)
	levelID := r.U(8)
	progressive := r.Bool()
	r.Bool() // field_coded_sequence, not surfaced in AVSVideoInfo.
	horizontal := r.U(14)
	vertical := r.U(14)
	chromaCode := r.U(2)
	samplePrecision := r.U(3)

	if profileID == profileMainPicture || profileID == profileMain10 || profileID == profileMain10Pic {
		r.U(3) // encoding_precision
	}

	aspectRatio := r.U(4)
	frameRateCode := r.U(4)
	bitRateLower := r.U(18)
	r.Marker()
	bitRateUpper := r.U(12)
	lowDelay := r.Bool()
	r.Marker()
	r.Bool() // temporal_id_enable_flag
	r.U(18)  // bbv_buffer_size
	r.U(3)   // lcu_size

	wq := wqm.Parse(r)

	toolFlags := map[string]bool{
		"weighted_skip":                r.Bool(),
		"asymmetric_motion_partitions": r.Bool(),
		"nonsquare_quadtree_transform":  r.Bool(),
		"nonsquare_intra_prediction":    r.Bool(),
		"secondary_transform":           r.Bool(),
		"sample_adaptive_offset":        r.Bool(),
		"adaptive_loop_filter":          r.Bool(),
		"pmvr":                          r.Bool(),
		"multi_hypothesis_skip":         r.Bool(),
		"dual_hypothesis_prediction":    r.Bool(),
	}

	numRCS := r.U(6)
	var rcsSets []model.ReferenceConfigurationSet
	for i := uint32(0); i < numRCS; i++ {
		rcs, err := parseReferenceConfigurationSet(r)
		if err != nil {
			return nil, 0, err
		}
		rcsSets = append(rcsSets, rcs)
	}

	var outputReorderDelay *int
	if !lowDelay {
		v := int(r.U(5))
		outputReorderDelay = &v
	}

	crossSlice := r.Bool()

	var universalStringPrediction *bool
	if chromaCode == 0b11 {
		v := r.Bool()
		universalStringPrediction = &v
	}

	if err := r.Err(); err != nil {
		return nil, 0, err
	}

	bitDepth, _ := tables.BitDepthFromSamplePrecision(samplePrecision)
	aspect := tables.AspectRatios[aspectRatio]

	var frameRate float64
	if int(frameRateCode) < len(tables.FrameRates) {
		frameRate = tables.FrameRates[frameRateCode]
	}

	info := &model.AVSVideoInfo{
		Generation:                 "AVS2",
		Profile:                    profileName(profileID),
		Level:                      levelName(levelID),
		HorizontalSize:             int(horizontal),
		VerticalSize:               int(vertical),
		Progressive:                progressive,
		ChromaFormat:               tables.ChromaFormatFromCode(chromaCode),
		LumaBitDepth:               bitDepth,
		ChromaBitDepth:             bitDepth,
		FrameRate:                  frameRate,
		BitRate:                    (bitRateUpper<<18 | bitRateLower) * 400,
		LowDelay:                   lowDelay,
		SAR:                        aspect.SAR,
		DAR:                        aspect.DAR,
		WeightQuantEnabled:         boolPtr(wq.Enabled),
		ToolFlags:                  toolFlags,
		ReferenceConfigurationSets: rcsSets,
		OutputReorderDelay:         outputReorderDelay,
		CrossSliceLoopfilter:       boolPtr(crossSlice),
		UniversalStringPrediction:  universalStringPrediction,
	}
	if wq.Enabled {
		info.WeightQuantCustom = boolPtr(wq.Custom)
		m4 := wq.M4x4
		m8 := wq.M8x8
		info.WeightQuantMatrix4x4 = &m4
		info.WeightQuantMatrix8x8 = &m8
	}
	return info, profileID, nil
}

func parseReferenceConfigurationSet(r *fieldreader.R) (model.ReferenceConfigurationSet, error) {
	var rcs model.ReferenceConfigurationSet
	rcs.ReferredByOthers = r.Bool()
	numRef := r.U(3)
	for i := uint32(0); i < numRef; i++ {
		rcs.ReferencePictureDeltaDOI = append(rcs.ReferencePictureDeltaDOI, int(r.U(6)))
	}
	numRemoved := r.U(3)
	for i := uint32(0); i < numRemoved; i++ {
		rcs.RemovedPictureDeltaDOI = append(rcs.RemovedPictureDeltaDOI, int(r.U(6)))
	}
	r.Marker()
	return rcs, r.Err()
}

// parseDepthRange consumes one near/far depth_range pair without surfacing
// values in the output model; only marker-bit placement matters downstream.
func parseDepthRange(r *fieldreader.R) {
	for plane := 0; plane < 2; plane++ {
		r.Bool() // sign
		r.U(8)   // exponent
		r.Marker()
		r.U(22) // mantissa
		r.Marker()
	}
}

// parseCameraParameterSet consumes one camera_parameter_set record.
func parseCameraParameterSet(r *fieldreader.R) {
	r.U(8) // focal_length exponent
	r.Marker()
	r.U(22) // focal_length mantissa
	r.Marker()

	r.Bool() // camera_position sign
	r.U(8)   // camera_position exponent
	r.Marker()
	r.U(22) // camera_position mantissa
	r.Marker()

	r.U(8) // camera_shift_x exponent
	r.Marker()
	r.U(22) // camera_shift_x mantissa
	r.Marker()
	r.Bool() // camera_shift_x sign
}

func parseSequenceDisplayExtension(br *bits.Reader, info *model.AVSVideoInfo, profileID uint32) error {
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

	isMultiOr3D := profileID == profileMultiview || profileID == profile3D
	if isMultiOr3D {
		contentDesc := r.U(2)
		if contentDesc == 2 {
			parseDepthRange(r)
			parseCameraParameterSet(r)
		}
	}

	tdMode := r.Bool()
	var packing tables.PackingMode
	if tdMode {
		packingCode := r.U(8)
		r.Bool() // view_reverse_flag
		packing = tables.PackingModeAVS2(packingCode)
	} else {
		packing = tables.PackingModeAVS2(0)
	}

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
	info.PackingMode = &packing
	return nil
}

// normalizePrimaries maps a raw 8-bit colour_primaries value per GB/T
// 33475.2 clause 7.1.2.6: 0 is forbidden and reported absent (ok=false);
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

// normalizeTransfer: 0 is forbidden/absent, 1-10 and 13 (PQ) are valid,
// anything else is normalized to RESERVED.
func normalizeTransfer(v uint32) (t tables.TransferCharacteristics, ok bool) {
	if v == 0 {
		return 0, false
	}
	if (v >= 1 && v <= 10) || v == uint32(tables.TransferPQ) {
		return tables.TransferCharacteristics(v), true
	}
	return tables.TransferReserved, true
}

// normalizeMatrix: 0 is forbidden/absent, 1-9 (up to BT.2020 CL) are
// valid, anything else is normalized to RESERVED.
func normalizeMatrix(v uint32) (m tables.MatrixCoefficients, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= uint32(tables.MatrixBT2020CL) {
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

func profileName(id uint32) string {
	switch id {
	case 0x20:
		return "Main Profile"
	case profileMain10:
		return "Main10 Profile"
	case profileMainPicture:
		return "Main Picture Profile"
	case profileMain10Pic:
		return "Main10 Picture Profile"
	case profileMultiview:
		return "Multiview Profile"
	case profile3D:
		return "3D Profile"
	default:
		return "Reserved Profile"
	}
}

func levelName(id uint32) string {
	switch id {
	case 0x10:
		return "2.0.15"
	case 0x12:
		return "2.0.30"
	case 0x14:
		return "2.0.60"
	case 0x20:
		return "4.0.30"
	case 0x22:
		return "4.0.60"
	case 0x40:
		return "6.0.30"
	case 0x42:
		return "6.2.30"
	case 0x44:
		return "6.4.30"
	case 0x46:
		return "6.6.30"
	case 0x48:
		return "6.8.30"
	default:
		return "Reserved"
	}
}
