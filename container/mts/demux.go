/*
NAME
  demux.go

DESCRIPTION
  demux.go implements the incremental MPEG transport-stream demultiplexer
  (ITU-T H.222.0 / ISO/IEC 13818-1): 188/192-byte packet-size detection,
  PAT/PMT discovery with duplicate-PMT suppression, per-PID PES
  reassembly, and codec dispatch to the avs1/avs2/avs3/av3a parsers using
  the GY/T 363 AVS stream_type assignments, with early termination.

AUTHORS
  AVS Probe Contributors
*/

package mts

import (
	"github.com/pkg/errors"

	"github.com/avsprobe/avsmeta/codec/av3a"
	"github.com/avsprobe/avsmeta/codec/avs1"
	"github.com/avsprobe/avsmeta/codec/avs2"
	"github.com/avsprobe/avsmeta/codec/avs3"
	"github.com/avsprobe/avsmeta/container/descriptor"
	"github.com/avsprobe/avsmeta/model"
)

// PacketSize is the size of a standard MPEG-TS packet.
const PacketSize = 188

// HeadSize is the size of a standard TS packet header.
const HeadSize = 4

// PatPid is the PID that carries the program association table.
const PatPid = 0x0000

// M2TSPacketSize is the packet size (including a 4-byte timecode header)
// used by Blu-ray/M2TS-style MPEG-TS files.
const M2TSPacketSize = 192

// probeCount is the number of consecutive packets checked when probing a
// packet-size hypothesis.
const probeCount = 20

// DefaultMaxCompletedPES bounds the number of completed-but-undetected PES
// buffers retained per PID before the oldest is dropped.
const DefaultMaxCompletedPES = 8

// DefaultPacketBudget is the fast-scan packet budget: once this many
// packets have been processed and at least one program and stream have
// been found, the scan terminates even if PMTs remain unparsed.
const DefaultPacketBudget = 20000

// stream-type values recognized as AVS elementary streams, per GY/T 363.
const (
	StreamTypeAVS1Video = 0x42
	StreamTypeAVS2Video = 0xD2
	StreamTypeAVS3Video = 0xD4
	StreamTypeAVS3Audio = 0xD5
)

func codecKindForStreamType(st byte) model.CodecKind {
	switch st {
	case StreamTypeAVS1Video:
		return model.CodecAVS1
	case StreamTypeAVS2Video:
		return model.CodecAVS2
	case StreamTypeAVS3Video:
		return model.CodecAVS3Video
	case StreamTypeAVS3Audio:
		return model.CodecAV3AAudio
	default:
		return model.CodecUnknown
	}
}

// pesState is one PID's PES-reassembly bookkeeping.
type pesState struct {
	collecting bool
	current    []byte
	completed  [][]byte
}

// Demuxer is an incremental, push-based MPEG-TS demultiplexer. Feed data in
// any chunking via Feed; call Finish when the input is exhausted to flush
// any still-collecting PES buffers.
type Demuxer struct {
	MaxCompletedPES int
	PacketBudget    int

	sized      bool
	packetSize int
	pending    []byte // undersized tail, or presize-detection buffer.

	packetsSeen int
	done        bool

	patSeen bool

	// program_number -> info, accumulated as PATs/PMTs are discovered.
	programs map[uint16]*model.ProgramInfo
	// pmt pid -> program_number, for every PMT pid ever seen in a PAT.
	pmtProgram map[uint16]uint16
	// program_number -> true once its PMT has been parsed (duplicate
	// suppression).
	pmtParsed map[uint16]bool
	// pmt pid -> true while its program has not yet been parsed.
	pmtPending map[uint16]bool

	// pid -> codec kind, populated only for AVS elementary streams.
	streamKind map[uint16]model.CodecKind
	// pid -> the ProgramInfo.Streams entry to update on detection.
	streamInfo map[uint16]*model.StreamInfo
	// pid -> detection still outstanding.
	detection map[uint16]bool

	pes map[uint16]*pesState

	// Warnings accumulates non-fatal conditions (e.g. packet-size
	// detection falling back to a default).
	Warnings []string
}

// NewDemuxer returns a Demuxer ready to receive transport-stream bytes via
// Feed.
func NewDemuxer() *Demuxer {
	return &Demuxer{
		MaxCompletedPES: DefaultMaxCompletedPES,
		PacketBudget:    DefaultPacketBudget,
		programs:        make(map[uint16]*model.ProgramInfo),
		pmtProgram:      make(map[uint16]uint16),
		pmtParsed:       make(map[uint16]bool),
		pmtPending:      make(map[uint16]bool),
		streamKind:      make(map[uint16]model.CodecKind),
		streamInfo:      make(map[uint16]*model.StreamInfo),
		detection:       make(map[uint16]bool),
		pes:             make(map[uint16]*pesState),
	}
}

// Done reports whether the demuxer has reached a termination condition and
// will ignore further Feed calls.
func (d *Demuxer) Done() bool { return d.done }

// Programs returns the programs discovered so far, keyed by program number.
func (d *Demuxer) Programs() map[uint16]*model.ProgramInfo { return d.programs }

// DetectPacketSize scans data for the first sync byte 0x47 and probes the
// M2TS (192-byte) and standard (188-byte) hypotheses over probeCount
// consecutive packets. It returns the chosen packet size, the byte offset
// of the first TS packet's sync byte, and whether the standard size was
// assumed because data holds no sync byte or both hypotheses were
// contradicted. A probe that runs out of data counts as confirming.
func DetectPacketSize(data []byte) (packetSize, start int, assumed bool) {
	syncOffset := -1
	for i, b := range data {
		if b == 0x47 {
			syncOffset = i
			break
		}
	}
	if syncOffset == -1 {
		return PacketSize, 0, true
	}

	m2tsStart := syncOffset - 4
	m2tsOK := m2tsStart >= 0 && probe(data, m2tsStart+4, M2TSPacketSize)
	stdOK := probe(data, syncOffset, PacketSize)

	switch {
	case stdOK:
		return PacketSize, syncOffset, false
	case m2tsOK:
		return M2TSPacketSize, m2tsStart, false
	default:
		return PacketSize, syncOffset, true
	}
}

// probe verifies that data holds a sync byte at start+i*stride for
// i in [0, probeCount), stopping early (and succeeding) if data runs out
// before probeCount packets are available — a short clip cannot falsify the
// hypothesis, only a contradicting sync byte can.
func probe(data []byte, start, stride int) bool {
	checked := 0
	for i := 0; i < probeCount; i++ {
		off := start + i*stride
		if off >= len(data) {
			break
		}
		if data[off] != 0x47 {
			return false
		}
		checked++
	}
	return checked > 0
}

// Feed appends data to the demuxer's input and processes every complete TS
// packet now available. It is safe to call repeatedly with successive
// chunks of a larger stream.
func (d *Demuxer) Feed(data []byte) error {
	if d.done {
		return nil
	}
	d.pending = append(d.pending, data...)

	if !d.sized {
		if len(d.pending) < PacketSize {
			return nil // wait for at least one packet's worth of data.
		}
		size, start, assumed := DetectPacketSize(d.pending)
		d.packetSize = size
		d.sized = true
		if assumed {
			d.Warnings = append(d.Warnings, "packet-size detection inconclusive, assuming 188-byte TS")
		}
		d.pending = d.pending[start:]
	}

	stride := d.packetSize
	n := len(d.pending) / stride
	for i := 0; i < n && !d.done; i++ {
		pkt := d.pending[i*stride : (i+1)*stride]
		if d.packetSize == M2TSPacketSize {
			pkt = pkt[4:] // strip M2TS timecode header.
		}
		if err := d.processPacket(pkt); err != nil {
			d.Warnings = append(d.Warnings, err.Error())
		}
		d.packetsSeen++
		d.checkTermination()
	}
	d.pending = d.pending[n*stride:]
	return nil
}

// Finish flushes any still-collecting PES buffer per PID, attempting
// detection on each.
func (d *Demuxer) Finish() {
	for pid, st := range d.pes {
		if st.collecting && len(st.current) > 0 {
			d.tryDetect(pid, st.current)
			st.collecting = false
		}
	}
}

func (d *Demuxer) checkTermination() {
	if d.patSeen && len(d.pmtPending) == 0 && len(d.detection) == 0 {
		d.done = true
		return
	}
	if d.packetsSeen >= d.PacketBudget && len(d.programs) > 0 && len(d.streamKind) > 0 {
		d.done = true
	}
}

// processPacket parses one 188-byte standard TS packet header and payload
// and dispatches it to PAT/PMT handling or PES reassembly.
func (d *Demuxer) processPacket(pkt []byte) error {
	if len(pkt) < PacketSize {
		return errors.New("mts: short packet")
	}
	if pkt[0] != 0x47 {
		return errors.New("mts: packet missing sync byte")
	}

	pusi := pkt[1]&0x40 != 0
	pid := (uint16(pkt[1]&0x1f) << 8) | uint16(pkt[2])
	afc := (pkt[3] & 0x30) >> 4

	off := HeadSize
	switch afc {
	case 0:
		return errors.New("mts: reserved adaptation_field_control")
	case 2:
		return nil // adaptation field only, no payload.
	case 3:
		off += 1 + int(pkt[4])
	}
	if off > len(pkt) {
		return errors.New("mts: adaptation field longer than packet")
	}
	payload := pkt[off:]

	if pid == PatPid {
		d.patSeen = true
		return d.handlePAT(payload)
	}
	if _, isPMT := d.pmtProgram[pid]; isPMT {
		return d.handlePMT(pid, payload)
	}

	// Not a PSI/PMT pid: consider for PES reassembly if still of interest.
	if d.detection[pid] || len(d.pmtPending) > 0 {
		d.handlePES(pid, pusi, payload)
	}
	return nil
}

// handlePAT parses a PAT section, recording every program and queuing its
// PMT pid for parsing.
func (d *Demuxer) handlePAT(payload []byte) error {
	section, ok := psiSection(payload)
	if !ok {
		return nil // pointer_field indicates no section starts in this packet.
	}
	if len(section) < 8 || section[0] != 0x00 {
		return errors.New("mts: PAT table_id != 0x00")
	}
	sectionLength := int(section[1]&0x0F)<<8 | int(section[2])
	end := 3 + sectionLength - 4 // exclude trailing CRC32.
	if end > len(section) {
		end = len(section)
	}
	for i := 8; i+4 <= end; i += 4 {
		programNumber := uint16(section[i])<<8 | uint16(section[i+1])
		pmtPID := (uint16(section[i+2]&0x1F) << 8) | uint16(section[i+3])
		if programNumber == 0 {
			continue // network PID entry, not a program.
		}
		if _, ok := d.programs[programNumber]; !ok {
			d.programs[programNumber] = &model.ProgramInfo{
				ProgramNumber: programNumber,
				PMTPID:        pmtPID,
				Streams:       make(map[uint16]*model.StreamInfo),
			}
		}
		d.pmtProgram[pmtPID] = programNumber
		if !d.pmtParsed[programNumber] {
			d.pmtPending[pmtPID] = true
		}
	}
	return nil
}

// handlePMT parses a PMT section for pid, enumerating elementary streams
// and their descriptors, and applies duplicate-PMT suppression.
func (d *Demuxer) handlePMT(pid uint16, payload []byte) error {
	programNumber := d.pmtProgram[pid]
	if d.pmtParsed[programNumber] {
		return nil // duplicate-PMT suppression.
	}

	section, ok := psiSection(payload)
	if !ok {
		return nil
	}
	if len(section) < 12 || section[0] != 0x02 {
		return errors.New("mts: PMT table_id != 0x02")
	}
	sectionLength := int(section[1]&0x0F)<<8 | int(section[2])
	end := 3 + sectionLength - 4
	if end > len(section) {
		end = len(section)
	}
	programInfoLength := int(section[10]&0x0F)<<8 | int(section[11])
	i := 12 + programInfoLength

	prog := d.programs[programNumber]
	if prog == nil {
		prog = &model.ProgramInfo{ProgramNumber: programNumber, PMTPID: pid, Streams: make(map[uint16]*model.StreamInfo)}
		d.programs[programNumber] = prog
	}

	for i+5 <= end {
		streamType := section[i]
		elementaryPID := (uint16(section[i+1]&0x1F) << 8) | uint16(section[i+2])
		esInfoLength := int(section[i+3]&0x0F)<<8 | int(section[i+4])
		descStart := i + 5
		descEnd := descStart + esInfoLength
		if descEnd > end {
			descEnd = end
		}

		si := &model.StreamInfo{StreamType: streamType, PID: elementaryPID, Kind: codecKindForStreamType(streamType)}
		d.parseDescriptors(si, streamType, section[descStart:descEnd])
		prog.Streams[elementaryPID] = si

		if kind := codecKindForStreamType(streamType); kind != model.CodecUnknown {
			d.streamKind[elementaryPID] = kind
			d.streamInfo[elementaryPID] = si
			d.detection[elementaryPID] = true
		}

		i = descEnd
	}

	d.pmtParsed[programNumber] = true
	delete(d.pmtPending, pid)
	return nil
}

// parseDescriptors walks the tag/length/data triples of one elementary
// stream's descriptor loop and applies each recognized one to si.
func (d *Demuxer) parseDescriptors(si *model.StreamInfo, streamType byte, data []byte) {
	for i := 0; i+2 <= len(data); {
		tag := data[i]
		length := int(data[i+1])
		start := i + 2
		end := start + length
		if end > len(data) {
			end = len(data)
		}
		res, err := descriptor.Parse(tag, streamType, data[start:end])
		if err == nil && res != nil {
			switch res.Kind {
			case descriptor.KindAVSVideo:
				si.VideoDescriptor = res.AVSVideo
			case descriptor.KindAVSAudio:
				si.AudioDescriptor = res.AVSAudio
			case descriptor.KindRegistration:
				si.Registration = res.RegistrationFourCC
			case descriptor.KindLanguage:
				si.Language = res.Language
			}
		}
		i = end
	}
}

// handlePES accumulates PES payloads for pid and, on each PUSI-triggered
// finalize, attempts detection on the just-completed buffer.
func (d *Demuxer) handlePES(pid uint16, pusi bool, payload []byte) {
	st := d.pes[pid]
	if st == nil {
		st = &pesState{}
		d.pes[pid] = st
	}

	if pusi {
		if st.collecting && len(st.current) > 0 {
			d.finalizeAndDetect(pid, st)
		}
		st.current = append([]byte(nil), payload...)
		st.collecting = true
		return
	}
	if st.collecting {
		st.current = append(st.current, payload...)
	}
}

// finalizeAndDetect moves st.current into the completed list (bounded by
// MaxCompletedPES) and, if pid is still awaiting detection, attempts to
// decode it.
func (d *Demuxer) finalizeAndDetect(pid uint16, st *pesState) {
	buf := st.current
	if d.detection[pid] {
		d.tryDetect(pid, buf)
	}
	st.completed = append(st.completed, buf)
	if len(st.completed) > d.MaxCompletedPES {
		st.completed = st.completed[len(st.completed)-d.MaxCompletedPES:]
	}
}

// tryDetect strips the PES header from buf and feeds the elementary-stream
// payload to the codec parser matching pid's stream type. On success the
// result is stored and pid is removed from the detection set.
func (d *Demuxer) tryDetect(pid uint16, buf []byte) {
	if !d.detection[pid] {
		return
	}
	es, ok := stripPESHeader(buf)
	if !ok {
		return
	}

	si := d.streamInfo[pid]
	switch d.streamKind[pid] {
	case model.CodecAVS1:
		info, err := avs1.Parse(es)
		if err == nil {
			si.VideoInfo = info
			delete(d.detection, pid)
		}
	case model.CodecAVS2:
		info, err := avs2.Parse(es)
		if err == nil {
			si.VideoInfo = info
			delete(d.detection, pid)
		}
	case model.CodecAVS3Video:
		info, err := avs3.Parse(es)
		if err == nil {
			si.VideoInfo = info
			delete(d.detection, pid)
		}
	case model.CodecAV3AAudio:
		info, err := av3a.Parse(es)
		if err == nil {
			si.AudioInfo = info
			delete(d.detection, pid)
		}
	}
}

// stripPESHeader recognizes the 00 00 01 PES start-code prefix, checks the
// stream_id is a video (0xE0-0xEF) or audio (0xC0-0xDF) id, and returns the
// elementary-stream payload following the optional-fields block.
func stripPESHeader(buf []byte) ([]byte, bool) {
	if len(buf) < 9 || buf[0] != 0x00 || buf[1] != 0x00 || buf[2] != 0x01 {
		return nil, false
	}
	streamID := buf[3]
	isVideo := streamID >= 0xE0 && streamID <= 0xEF
	isAudio := streamID >= 0xC0 && streamID <= 0xDF
	if !isVideo && !isAudio {
		return nil, false
	}
	headerDataLength := int(buf[8])
	start := 9 + headerDataLength
	if start > len(buf) {
		return nil, false
	}
	return buf[start:], true
}

// psiSection strips the pointer_field from a PSI packet payload, returning
// the section starting at table_id. Returns false if pointer_field skips
// past the available data (no section begins in this packet).
func psiSection(payload []byte) ([]byte, bool) {
	if len(payload) < 1 {
		return nil, false
	}
	pointer := int(payload[0])
	if 1+pointer >= len(payload) {
		return nil, false
	}
	return payload[1+pointer:], true
}

// Analyze runs a complete one-shot demultiplex of data, a whole MPEG-TS
// clip held in memory, and returns the resulting demuxer state.
func Analyze(data []byte) (*Demuxer, error) {
	d := NewDemuxer()
	if err := d.Feed(data); err != nil {
		return nil, err
	}
	d.Finish()
	return d, nil
}
