/*
NAME
  avs3.go

DESCRIPTION
  avs3.go parses the sequence-level syntax of an AVS3 video (T/AI 109.2,
  GY/T 368) elementary stream: the sequence_header, reference picture list
  sets, the Main/enhanced tool-enable run, the simplified display extension
  and the HDR dynamic metadata extension. Dispatch shape matches codec/avs1
  and codec/avs2 (same start-code values, plus the 0b0101 HDR extension id).

AUTHORS
  AVS Probe Contributors
*/

// Package avs3 parses AVS3 video sequence-level bitstream syntax.
package avs3

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

const (
	extIDSequenceDisplay  = 0b0010
	extIDHDRDynamicMeta   = 0b0101
)

// Profiles carrying the 3-bit encoding_precision field.
const (
	profileMain10    = 0x22
	profileMain10Pic = 0x32
)

// profileEnhanced, together with profileMain10Pic (0x32, shared with the
// encoding_precision gate), gates the enhanced-profile tool block.
const profileEnhanced = 0x30

// ErrNoSequenceHeader indicates a picture header (or end of stream) was
// reached before any sequence_header start code was seen.
var ErrNoSequenceHeader = errors.New("avs3: no sequence header found")

// Parse scans data for an AVS3 sequence header and optional display/HDR
// extensions, stopping at the first picture header.
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
				return nil, errors.Wrap(err, "avs3: sequence_header")
			}
			info = i
		case startCodeExtension:
			if info == nil || len(rest) < 1 {
				continue
			}
			br := bits.NewReader(rest)
			extID, err := br.ReadBits(4)
			if err != nil {
				continue
			}
			switch extID {
			case extIDSequenceDisplay:
				if err := parseSequenceDisplayExtension(br, info); err != nil {
					return nil, errors.Wrap(err, "avs3: sequence_display_extension")
				}
			case extIDHDRDynamicMeta:
				if err := parseHDRDynamicMetadataExtension(br, info); err != nil {
					return nil, errors.Wrap(err, "avs3: hdr_dynamic_metadata_extension")
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

func parseSequenceHeader(data []byte) (*model.AVSVideoInfo, error) {
	br := bits.NewReader(data)
	r := fieldreader.New(br)

	profileID := r.U(8)
	levelID := r.U(8)
	progressive := r.Bool()
	r.Bool() // field_coded_sequence, not surfaced.
	libraryStreamFlag := r.Bool()

	var libraryPictureEnable, duplicateSeqHeader bool
	if !libraryStreamFlag {
		libraryPictureEnable = r.Bool()
		if libraryPictureEnable {
			duplicateSeqHeader = r.Bool()
		}
	}

	r.Marker()
	horizontal := r.U(14)
	r.Marker()
	vertical := r.U(14)
	chromaCode := r.U(2)
	samplePrecision := r.U(3)

	if profileID == profileMain10 || profileID == profileMain10Pic {
		r.U(3) // encoding_precision
	}

	r.Marker()
	aspectRatio := r.U(4)
	frameRateCode := r.U(4)
	r.Marker()
	bitRateLower := r.U(18)
	r.Marker()
	bitRateUpper := r.U(12)
	lowDelay := r.Bool()
	r.Bool() // temporal_id_enable_flag
	r.Marker()
	r.U(18) // bbv_buffer_size
	r.Marker()
	maxDPBMinus1 := r.UE()
	rpl1IndexExist := r.Bool()
	rpl1SameAsRPL0 := r.Bool()
	r.Marker()

	numSet0 := r.UE()
	var rpl0 []model.ReferencePictureListSet
	for i := uint32(0); i < numSet0; i++ {
		s, err := parseReferencePictureListSet(r, libraryPictureEnable)
		if err != nil {
			return nil, err
		}
		rpl0 = append(rpl0, s)
	}

	var rpl1 []model.ReferencePictureListSet
	if !rpl1SameAsRPL0 {
		numSet1 := r.UE()
		for i := uint32(0); i < numSet1; i++ {
			s, err := parseReferencePictureListSet(r, libraryPictureEnable)
			if err != nil {
				return nil, err
			}
			rpl1 = append(rpl1, s)
		}
	}

	numRefDefault0 := r.UE()
	numRefDefault1 := r.UE()
	log2LCU := r.U(3)
	log2MinCU := r.U(2)
	log2MaxPartRatio := r.U(2)
	maxSplitTimes := r.U(3)
	log2MinQT := r.U(3)
	log2MaxBT := r.U(3)
	log2MaxEQT := r.U(2)
	r.Marker()

	wq := wqm.Parse(r)

	toolFlags := map[string]bool{}
	toolFlags["st"] = r.Bool()
	toolFlags["sao"] = r.Bool()
	toolFlags["alf"] = r.Bool()
	toolFlags["affine"] = r.Bool()
	toolFlags["smvd"] = r.Bool()
	toolFlags["ipcm"] = r.Bool()
	toolFlags["amvr"] = r.Bool()
	numHMVPCand := r.U(4)
	toolFlags["umve"] = r.Bool()
	if toolFlags["umve"] {
		toolFlags["emvr"] = r.Bool()
	}
	toolFlags["intra_pf"] = r.Bool()
	toolFlags["tscpm"] = r.Bool()
	r.Marker()
	toolFlags["dt_enable"] = r.Bool()
	var dtMaxSizeMinus4 *int
	if toolFlags["dt_enable"] {
		v := int(r.U(2))
		dtMaxSizeMinus4 = &v
	}
	toolFlags["pbt"] = r.Bool()

	enhanced := profileID == profileEnhanced || profileID == profileMain10Pic
	var numIntraHMVPCand *int
	var nnToolsHook uint32
	var numNNFilterMinus1 *int
	if enhanced {
		toolFlags["pmc"] = r.Bool()
		toolFlags["iip"] = r.Bool()
		toolFlags["sawp"] = r.Bool()
		if toolFlags["affine"] {
			toolFlags["asr"] = r.Bool()
		}
		toolFlags["awp"] = r.Bool()
		toolFlags["etmvp_mvap"] = r.Bool()
		toolFlags["dmvr"] = r.Bool()
		toolFlags["bio"] = r.Bool()
		toolFlags["bgc"] = r.Bool()
		toolFlags["inter_pf"] = r.Bool()
		toolFlags["inter_pc"] = r.Bool()
		toolFlags["obmc"] = r.Bool()
		toolFlags["sbt"] = r.Bool()
		toolFlags["ist"] = r.Bool()
		toolFlags["esao"] = r.Bool()
		toolFlags["ccsao"] = r.Bool()
		if toolFlags["alf"] {
			toolFlags["ealf"] = r.Bool()
		}
		toolFlags["ibc"] = r.Bool()
		r.Marker()
		toolFlags["isc"] = r.Bool()
		if toolFlags["ibc"] || toolFlags["isc"] {
			v := int(r.U(4))
			numIntraHMVPCand = &v
		}
		toolFlags["fimc"] = r.Bool()
		nnToolsHook = r.U(8)
		if nnToolsHook&0x1 != 0 {
			v := int(r.UE())
			numNNFilterMinus1 = &v
		}
		r.Marker()

		// Companion features implicitly enabled by the enhanced-profile
		// block; no further bits are consumed for these.
		for _, name := range []string{
			"eipm", "mipf", "intra_pf_chroma", "umve_enhancement", "affine_umve",
			"sb_tmvp", "srcc", "enhanced_st", "enhanced_tscpm", "maec",
		} {
			toolFlags[name] = true
		}

		if toolFlags["esao"] {
			toolFlags["sao"] = false
		}
	}

	var outputReorderDelay *int
	if !lowDelay {
		v := int(r.U(5))
		outputReorderDelay = &v
	}
	crossPatchLoopfilter := r.Bool()
	refColocatedPatch := r.Bool()
	stablePatch := r.Bool()
	var uniformPatch bool
	var patchWidth, patchHeight *int
	if stablePatch {
		uniformPatch = r.Bool()
		if uniformPatch {
			r.Marker()
			w := int(r.UE()) + 1
			h := int(r.UE()) + 1
			patchWidth = &w
			patchHeight = &h
		}
	}
	r.Skip(2) // reserved

	if err := r.Err(); err != nil {
		return nil, err
	}

	bitDepth, _ := tables.BitDepthFromSamplePrecision(samplePrecision)
	aspect := tables.AspectRatios[aspectRatio]

	var frameRate float64
	if int(frameRateCode) < len(tables.FrameRates) {
		frameRate = tables.FrameRates[frameRateCode]
	}

	info := &model.AVSVideoInfo{
		Generation:           "AVS3",
		Profile:               profileName(profileID),
		Level:                 levelName(levelID),
		HorizontalSize:        int(horizontal),
		VerticalSize:          int(vertical),
		Progressive:           progressive,
		ChromaFormat:          tables.ChromaFormatFromCode(chromaCode),
		LumaBitDepth:          bitDepth,
		ChromaBitDepth:        bitDepth,
		FrameRate:             frameRate,
		BitRate:               (bitRateUpper<<18 | bitRateLower) * 400,
		LowDelay:              lowDelay,
		SAR:                   aspect.SAR,
		DAR:                   aspect.DAR,
		ToolFlags:             toolFlags,
		OutputReorderDelay:    outputReorderDelay,
		CrossPatchLoopfilter:  boolPtr(crossPatchLoopfilter),
		RefColocatedPatch:     boolPtr(refColocatedPatch),
		StablePatch:           boolPtr(stablePatch),
		UniformPatch:          boolPtr(uniformPatch),
		PatchWidth:            patchWidth,
		PatchHeight:           patchHeight,
	}
	if wq.Enabled {
		info.WeightQuantEnabled = boolPtr(true)
		info.WeightQuantCustom = boolPtr(wq.Custom)
		m4 := wq.M4x4
		m8 := wq.M8x8
		info.WeightQuantMatrix4x4 = &m4
		info.WeightQuantMatrix8x8 = &m8
	} else {
		info.WeightQuantEnabled = boolPtr(false)
	}

	info.AVS3 = &model.AVS3Extra{
		LibraryStreamFlag:         libraryStreamFlag,
		LibraryPictureEnable:      libraryPictureEnable,
		DuplicateSequenceHeader:   duplicateSeqHeader,
		MaxDPBMinus1:              int(maxDPBMinus1),
		RPL1IndexExist:            rpl1IndexExist,
		RPL1SameAsRPL0:            rpl1SameAsRPL0,
		ReferencePictureListSet0:  rpl0,
		ReferencePictureListSet1:  rpl1,
		NumRefDefaultActiveMinus1: [2]int{int(numRefDefault0), int(numRefDefault1)},
		Log2LCUSizeMinus2:         int(log2LCU),
		Log2MinCUSizeMinus2:       int(log2MinCU),
		Log2MaxPartRatioMinus2:    int(log2MaxPartRatio),
		MaxSplitTimesMinus6:       int(maxSplitTimes),
		Log2MinQTSizeMinus2:       int(log2MinQT),
		Log2MaxBTSizeMinus2:       int(log2MaxBT),
		Log2MaxEQTSizeMinus3:      int(log2MaxEQT),
		NumOfHMVPCand:             int(numHMVPCand),
		DTMaxSizeMinus4:           dtMaxSizeMinus4,
		EnhancedProfile:           enhanced,
		NumOfIntraHMVPCand:        numIntraHMVPCand,
		NNToolsSetHook:            int(nnToolsHook),
		NumOfNNFilterMinus1:       numNNFilterMinus1,
	}
	return info, nil
}

func parseReferencePictureListSet(r *fieldreader.R, libraryPictureEnable bool) (model.ReferencePictureListSet, error) {
	var s model.ReferencePictureListSet
	if libraryPictureEnable {
		s.ReferenceToLibraryEnable = r.Bool()
	}
	numRef := r.UE()
	for i := uint32(0); i < numRef; i++ {
		var e model.ReferencePictureListEntry
		if s.ReferenceToLibraryEnable {
			e.LibraryIndexFlag = r.Bool()
		}
		if e.LibraryIndexFlag {
			v := int(r.UE())
			e.ReferencedLibraryPictureIndex = &v
		} else {
			delta := int(r.UE())
			if delta > 0 {
				if r.Bool() {
					delta = -delta
				}
			}
			e.AbsDeltaDOI = &delta
		}
		s.Refs = append(s.Refs, e)
	}
	return s, r.Err()
}

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
	packingCode := r.U(2)

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
	pm := tables.PackingModeAVS3(packingCode)
	info.PackingMode = &pm
	return nil
}

func parseHDRDynamicMetadataExtension(br *bits.Reader, info *model.AVSVideoInfo) error {
	r := fieldreader.New(br)
	t := r.U(4)
	if err := r.Err(); err != nil {
		return err
	}
	if t == 5 {
		info.HDRDynamicMetadataType = "HDR_VIVID"
	} else {
		info.HDRDynamicMetadataType = "RESERVED"
	}
	return nil
}

// normalizePrimaries implements AVS3's (T/AI 109.2 clause 9.2.6)
// colour_primaries validation: 0 is forbidden and reported absent
// (ok=false), 1-8 valid, else normalized to RESERVED (still ok=true).
func normalizePrimaries(v uint32) (p tables.ColourPrimaries, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= 8 {
		return tables.ColourPrimaries(v), true
	}
	return tables.PrimariesReserved, true
}

// normalizeTransfer implements AVS3's rule: value 13 is RESERVED (unlike
// AVS2, which accepts it as PQ), others 1-10 valid, 0 forbidden/absent.
func normalizeTransfer(v uint32) (t tables.TransferCharacteristics, ok bool) {
	if v == 0 {
		return 0, false
	}
	if v >= 1 && v <= 10 {
		return tables.TransferCharacteristics(v), true
	}
	return tables.TransferReserved, true
}

// normalizeMatrix implements AVS3's rule: matrix values above 9 are
// RESERVED; 1-9 (up to BT.2020 CL) are valid, with 0 forbidden/absent.
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
		return "Main 8bit Profile"
	case profileMain10:
		return "Main 10bit Profile"
	case profileEnhanced:
		return "Main 8bit Enhanced Profile"
	case profileMain10Pic:
		return "Main 10bit Enhanced Profile"
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
	case 0x4A:
		return "6.10.30"
	default:
		return "Reserved"
	}
}
