/*
NAME
  bmff.go

DESCRIPTION
  bmff.go implements the incremental ISO BMFF (ISO/IEC 14496-12) box
  scanner: moov/trak/stbl traversal, avst/avs3/av3a fourCC track
  recognition, and first-compressed-sample extraction.

AUTHORS
  AVS Probe Contributors
*/

// Package bmff scans an ISO Base Media File Format (MP4-family) byte stream
// for tracks carrying AVS2, AVS3 or Audio Vivid (av3a) samples and extracts
// the first compressed sample of each matching track.
package bmff

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/avsprobe/avsmeta/model"
)

// Recognized sample-entry fourCCs. avst/avs3 force the track kind to video
// and av3a forces it to audio, regardless of what the handler box in the
// container claims.
const (
	FourCCAVS2 = "avst"
	FourCCAVS3 = "avs3"
	FourCCAV3A = "av3a"
)

func codecKindForFourCC(fourCC string) model.CodecKind {
	switch fourCC {
	case FourCCAVS2:
		return model.CodecAVS2
	case FourCCAVS3:
		return model.CodecAVS3Video
	case FourCCAV3A:
		return model.CodecAV3AAudio
	default:
		return model.CodecUnknown
	}
}

// boxHeaderSize is the minimum size of a standard (32-bit size) box header.
const boxHeaderSize = 8

// containerBoxTypes recurse into their children rather than being treated as
// leaf payloads.
var containerBoxTypes = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"dinf": true,
	"edts": true,
}

// Track is one track discovered in the moov atom, selected because its
// sample-entry fourCC is one of FourCCAVS2/FourCCAVS3/FourCCAV3A.
type Track struct {
	TrackID   uint32
	FourCC    string
	Kind      model.CodecKind
	Timescale uint32

	sampleSizes  []uint32 // from stsz; empty if a single uniform size applies.
	uniformSize  uint32
	sampleCount  uint32
	chunkOffsets []uint64
	samplesToChunk []stscEntry
	syncSamples  []uint32 // 1-based sample numbers, from stss; nil if absent.
}

type stscEntry struct {
	firstChunk     uint32
	samplesPerChunk uint32
}

// Demuxer accumulates ISO BMFF bytes and, once Finish is called, scans the
// moov atom's track tables and extracts one compressed sample per
// recognized track. Because a classic (non-fragmented) MP4 file may place
// moov after mdat, sample extraction cannot begin until the whole byte
// stream has been seen — Feed buffers every byte fed to it for this reason.
type Demuxer struct {
	full     []byte
	scanned  int64 // offset into full up to which top-level boxes have been identified.
	tracks   []*Track
	sawMoov  bool
	Warnings []string
}

// NewDemuxer returns a Demuxer ready to receive ISO BMFF bytes via Feed.
func NewDemuxer() *Demuxer {
	return &Demuxer{}
}

// Tracks returns the recognized AVS-family tracks discovered so far.
func (d *Demuxer) Tracks() []*Track { return d.tracks }

// Feed appends data and scans every top-level box that has become complete,
// parsing moov as soon as it is fully buffered.
func (d *Demuxer) Feed(data []byte) error {
	d.full = append(d.full, data...)

	for {
		boxType, headerLen, dataLen, ok := peekBoxHeader(d.full, d.scanned)
		if !ok {
			return nil // not enough bytes yet for the next box header.
		}
		total := headerLen + dataLen
		if d.scanned+total > int64(len(d.full)) {
			return nil // wait for the rest of this box.
		}

		if boxType == "moov" {
			payload := d.full[d.scanned+headerLen : d.scanned+total]
			if err := d.parseMoov(payload); err != nil {
				d.Warnings = append(d.Warnings, errors.Wrap(err, "bmff: moov").Error())
			} else {
				d.sawMoov = true
			}
		}

		d.scanned += total
	}
}

// Finish locates and returns the first compressed sample for each
// recognized track, keyed by track ID. A track with no locatable sample
// (e.g. an empty stsz or a sample offset beyond the fed data) is omitted
// and a warning is recorded instead.
func (d *Demuxer) Finish() map[uint32][]byte {
	samples := make(map[uint32][]byte)
	for _, tr := range d.tracks {
		sampleNumber := uint32(1)
		if len(tr.syncSamples) > 0 {
			sampleNumber = tr.syncSamples[0]
		}
		offset, size, ok := locateSample(tr, sampleNumber)
		if !ok {
			d.Warnings = append(d.Warnings, errors.Errorf(
				"bmff: track %d (%s): could not locate sample %d", tr.TrackID, tr.FourCC, sampleNumber).Error())
			continue
		}
		if offset+int64(size) > int64(len(d.full)) {
			d.Warnings = append(d.Warnings, errors.Errorf(
				"bmff: track %d (%s): sample %d extends past fed data", tr.TrackID, tr.FourCC, sampleNumber).Error())
			continue
		}
		samples[tr.TrackID] = d.full[offset : offset+int64(size)]
	}
	return samples
}

// peekBoxHeader reads the size/type header of the box starting at offset in
// data, handling the 64-bit largesize extension. It returns ok=false if not
// enough bytes are buffered yet to read the header.
func peekBoxHeader(data []byte, offset int64) (boxType string, headerLen, dataLen int64, ok bool) {
	if offset+boxHeaderSize > int64(len(data)) {
		return "", 0, 0, false
	}
	size := int64(binary.BigEndian.Uint32(data[offset : offset+4]))
	boxType = string(data[offset+4 : offset+8])

	if size == 1 {
		if offset+16 > int64(len(data)) {
			return "", 0, 0, false
		}
		largesize := int64(binary.BigEndian.Uint64(data[offset+8 : offset+16]))
		return boxType, 16, largesize - 16, true
	}
	if size == 0 {
		// Box extends to the end of file/enclosing box; not resolvable
		// until we know we've reached the end of the stream. Treat as
		// unresolvable for now (see the Demuxer type doc for its
		// whole-stream-buffered model).
		return "", 0, 0, false
	}
	return boxType, boxHeaderSize, size - boxHeaderSize, true
}

// forEachChildBox walks the sibling boxes within data, calling fn with each
// box's type and payload (header stripped).
func forEachChildBox(data []byte, fn func(boxType string, payload []byte) error) error {
	var off int64
	for off < int64(len(data)) {
		boxType, headerLen, dataLen, ok := peekBoxHeader(data, off)
		if !ok {
			break // trailing partial/zero-size box; nothing more to do.
		}
		total := headerLen + dataLen
		if off+total > int64(len(data)) {
			break
		}
		payload := data[off+headerLen : off+total]
		if err := fn(boxType, payload); err != nil {
			return err
		}
		off += total
	}
	return nil
}

// parseMoov walks moov's trak children, building a Track record for each
// one whose stsd sample entry carries a recognized fourCC.
func (d *Demuxer) parseMoov(data []byte) error {
	return forEachChildBox(data, func(boxType string, payload []byte) error {
		if boxType != "trak" {
			return nil // mvhd, udta, etc. not needed.
		}
		tr, err := parseTrak(payload)
		if err != nil {
			d.Warnings = append(d.Warnings, errors.Wrap(err, "bmff: trak").Error())
			return nil
		}
		if tr != nil {
			d.tracks = append(d.tracks, tr)
		}
		return nil
	})
}

func parseTrak(data []byte) (*Track, error) {
	tr := &Track{}
	found := false

	err := forEachChildBox(data, func(boxType string, payload []byte) error {
		switch boxType {
		case "tkhd":
			if len(payload) >= 20 {
				version := payload[0]
				idOffset := 12
				if version == 1 {
					idOffset = 20
				}
				if len(payload) >= idOffset+4 {
					tr.TrackID = binary.BigEndian.Uint32(payload[idOffset : idOffset+4])
				}
			}
		case "mdia":
			ok, err := parseMdia(payload, tr)
			if err != nil {
				return err
			}
			found = found || ok
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found || codecKindForFourCC(tr.FourCC) == model.CodecUnknown {
		return nil, nil // not an AVS-family track; not an error.
	}
	tr.Kind = codecKindForFourCC(tr.FourCC)
	return tr, nil
}

func parseMdia(data []byte, tr *Track) (bool, error) {
	found := false
	err := forEachChildBox(data, func(boxType string, payload []byte) error {
		switch boxType {
		case "mdhd":
			if len(payload) >= 4 {
				version := payload[0]
				tsOffset := 12
				if version == 1 {
					tsOffset = 20
				}
				if len(payload) >= tsOffset+4 {
					tr.Timescale = binary.BigEndian.Uint32(payload[tsOffset : tsOffset+4])
				}
			}
		case "minf":
			ok, err := parseMinf(payload, tr)
			if err != nil {
				return err
			}
			found = found || ok
		}
		return nil
	})
	return found, err
}

func parseMinf(data []byte, tr *Track) (bool, error) {
	found := false
	err := forEachChildBox(data, func(boxType string, payload []byte) error {
		if boxType != "stbl" {
			return nil
		}
		ok, err := parseStbl(payload, tr)
		found = found || ok
		return err
	})
	return found, err
}

func parseStbl(data []byte, tr *Track) (bool, error) {
	found := false
	err := forEachChildBox(data, func(boxType string, payload []byte) error {
		switch boxType {
		case "stsd":
			fourCC, ok := parseStsd(payload)
			if ok {
				tr.FourCC = fourCC
				found = true
			}
		case "stsz":
			parseStsz(payload, tr)
		case "stsc":
			parseStsc(payload, tr)
		case "stco":
			parseStco(payload, tr, false)
		case "co64":
			parseStco(payload, tr, true)
		case "stss":
			parseStss(payload, tr)
		}
		return nil
	})
	return found, err
}

// parseStsd reads the sample description box's first entry and returns its
// fourCC (the entry's own box type, e.g. "avst").
func parseStsd(data []byte) (string, bool) {
	if len(data) < 8 {
		return "", false
	}
	entryCount := binary.BigEndian.Uint32(data[4:8])
	if entryCount == 0 {
		return "", false
	}
	boxType, _, _, ok := peekBoxHeader(data, 8)
	if !ok {
		return "", false
	}
	return boxType, true
}

func parseStsz(data []byte, tr *Track) {
	if len(data) < 12 {
		return
	}
	tr.uniformSize = binary.BigEndian.Uint32(data[4:8])
	tr.sampleCount = binary.BigEndian.Uint32(data[8:12])
	if tr.uniformSize != 0 {
		return // all samples share uniformSize; no per-sample table follows.
	}
	for i := uint32(0); i < tr.sampleCount; i++ {
		off := 12 + int(i)*4
		if off+4 > len(data) {
			break
		}
		tr.sampleSizes = append(tr.sampleSizes, binary.BigEndian.Uint32(data[off:off+4]))
	}
}

func parseStsc(data []byte, tr *Track) {
	if len(data) < 8 {
		return
	}
	entryCount := binary.BigEndian.Uint32(data[4:8])
	for i := uint32(0); i < entryCount; i++ {
		off := 8 + int(i)*12
		if off+12 > len(data) {
			break
		}
		tr.samplesToChunk = append(tr.samplesToChunk, stscEntry{
			firstChunk:      binary.BigEndian.Uint32(data[off : off+4]),
			samplesPerChunk: binary.BigEndian.Uint32(data[off+4 : off+8]),
		})
	}
}

func parseStco(data []byte, tr *Track, is64 bool) {
	if len(data) < 8 {
		return
	}
	entryCount := binary.BigEndian.Uint32(data[4:8])
	width := 4
	if is64 {
		width = 8
	}
	for i := uint32(0); i < entryCount; i++ {
		off := 8 + int(i)*width
		if off+width > len(data) {
			break
		}
		var v uint64
		if is64 {
			v = binary.BigEndian.Uint64(data[off : off+8])
		} else {
			v = uint64(binary.BigEndian.Uint32(data[off : off+4]))
		}
		tr.chunkOffsets = append(tr.chunkOffsets, v)
	}
}

func parseStss(data []byte, tr *Track) {
	if len(data) < 8 {
		return
	}
	entryCount := binary.BigEndian.Uint32(data[4:8])
	for i := uint32(0); i < entryCount; i++ {
		off := 8 + int(i)*4
		if off+4 > len(data) {
			break
		}
		tr.syncSamples = append(tr.syncSamples, binary.BigEndian.Uint32(data[off:off+4]))
	}
}

// sampleSize returns the size of the 1-based sampleNumber-th sample.
func sampleSize(tr *Track, sampleNumber uint32) (uint32, bool) {
	if tr.uniformSize != 0 {
		return tr.uniformSize, true
	}
	idx := int(sampleNumber) - 1
	if idx < 0 || idx >= len(tr.sampleSizes) {
		return 0, false
	}
	return tr.sampleSizes[idx], true
}

// locateSample computes the absolute file offset and size of sampleNumber
// (1-based) within tr, walking the stsc chunk-run table to find which chunk
// holds it and summing the sizes of the samples preceding it in that chunk.
func locateSample(tr *Track, sampleNumber uint32) (offset int64, size uint32, ok bool) {
	size, ok = sampleSize(tr, sampleNumber)
	if !ok || len(tr.samplesToChunk) == 0 || len(tr.chunkOffsets) == 0 {
		return 0, 0, false
	}

	// Walk chunks in order, accumulating sample numbers until we find the
	// chunk containing sampleNumber.
	var chunkIndex uint32 = 1
	var sampleInFile uint32 = 1
	for sci, entry := range tr.samplesToChunk {
		nextFirstChunk := uint32(len(tr.chunkOffsets)) + 1
		if sci+1 < len(tr.samplesToChunk) {
			nextFirstChunk = tr.samplesToChunk[sci+1].firstChunk
		}
		for chunkIndex = entry.firstChunk; chunkIndex < nextFirstChunk; chunkIndex++ {
			if chunkIndex > uint32(len(tr.chunkOffsets)) {
				return 0, 0, false
			}
			chunkStart := int64(tr.chunkOffsets[chunkIndex-1])
			samplesHere := entry.samplesPerChunk
			if sampleNumber < sampleInFile || sampleNumber >= sampleInFile+samplesHere {
				sampleInFile += samplesHere
				continue
			}
			// sampleNumber falls within this chunk; sum sizes of samples
			// before it in the same chunk to find the byte offset.
			posInChunk := sampleNumber - sampleInFile
			var byteOffset int64
			for s := uint32(0); s < posInChunk; s++ {
				sz, ok := sampleSize(tr, sampleInFile+s)
				if !ok {
					return 0, 0, false
				}
				byteOffset += int64(sz)
			}
			return chunkStart + byteOffset, size, true
		}
	}
	return 0, 0, false
}

// Analyze runs a complete one-shot scan of data, a whole ISO BMFF file held
// in memory, and returns the recognized tracks alongside each one's first
// extracted compressed sample, keyed by track ID.
func Analyze(data []byte) (tracks []*Track, samples map[uint32][]byte, warnings []string, err error) {
	d := NewDemuxer()
	if err := d.Feed(data); err != nil {
		return nil, nil, nil, err
	}
	if !d.sawMoov {
		return nil, nil, d.Warnings, errors.New("bmff: no moov box found")
	}
	samples = d.Finish()
	return d.tracks, samples, d.Warnings, nil
}
