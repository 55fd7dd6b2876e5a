/*
NAME
  report.go

DESCRIPTION
  report.go is the composition root that ties the container demultiplexers
  and codec parsers together behind one Analyze call: it drives
  container/mts or container/bmff (or parses a single raw elementary
  stream directly), assembles the per-stream StreamReport records, and
  raises ErrNoContent when nothing recognizable as AVS-family content
  was found.

AUTHORS
  AVS Probe Contributors
*/

// Package report composes the container demultiplexers and codec parsers
// into a single top-level Analyze entry point and the StreamReport
// aggregate it produces.
package report

import (
	"bufio"
	"context"
	"io"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	"github.com/avsprobe/avsmeta/codec/av3a"
	"github.com/avsprobe/avsmeta/codec/avs1"
	"github.com/avsprobe/avsmeta/codec/avs2"
	"github.com/avsprobe/avsmeta/codec/avs3"
	"github.com/avsprobe/avsmeta/container/bmff"
	"github.com/avsprobe/avsmeta/container/mts"
	"github.com/avsprobe/avsmeta/model"
)

// Container identifies which demultiplexing strategy Analyze should use:
// MPEG-TS, ISO BMFF, or a single raw elementary stream of a known kind.
type Container int

const (
	ContainerTS Container = iota
	ContainerBMFF
	ContainerRawES
)

// feedChunkSize bounds how much of the input is read between cancellation
// checks, so a parse can abort at any packet (TS) or box (BMFF) boundary
// instead of only after the whole input has been consumed.
const feedChunkSize = 64 * 1024

// ErrNoContent reports that no program/track carried a decodable AVS
// header, whether or not any stream types or fourCCs were seen.
var ErrNoContent = errors.New("report: no recognizable AVS content")

// StreamReport is everything known about one discovered elementary stream
// or BMFF track.
type StreamReport struct {
	ProgramNumber *uint16 // set only for TS streams.
	PIDOrTrackID  uint32
	StreamType    *byte  // MPEG-TS stream_type, set only for TS streams.
	FourCC        string // BMFF sample-entry fourCC, set only for BMFF tracks.

	Language           string
	RegistrationFourCC string

	VideoDescriptor *model.AVSVideoDescriptor
	AudioDescriptor *model.AVSAudioDescriptor
	VideoInfo       *model.AVSVideoInfo
	AudioInfo       *model.AVSAudioInfo
}

// Result is the outcome of one Analyze call.
type Result struct {
	Streams  []StreamReport
	Warnings []string

	// ObservedStreamTypes and ObservedFourCCs list every stream type / fourCC
	// seen on the wire, whether or not it was AVS-family, to help diagnose
	// an ErrNoContent result.
	ObservedStreamTypes []byte
	ObservedFourCCs     []string
}

// Option configures Analyze.
type Option func(*options)

type options struct {
	log logging.Logger
}

// WithLogger supplies a logger for Analyze's composition-level events
// (container detection, per-stream decode outcomes). Library packages
// beneath report (codec/*, container/*) are pure parsers and report
// failures through returned errors instead; nothing would be said that
// those errors don't already carry, so report is the first layer in this
// module where ambient logging earns a distinct message of its own,
// matching how cmd/rv's rv.go logs at the composition layer and leaves
// subsystem packages to return errors.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

func defaultLogger() logging.Logger {
	return logging.New(logging.Error, io.Discard, true)
}

// Analyze demultiplexes r according to container and returns the AVS
// streams discovered, honouring ctx cancellation between packets (TS) or
// boxes (BMFF). kind is only consulted when container is ContainerRawES.
func Analyze(ctx context.Context, r io.Reader, container Container, kind model.CodecKind, opts ...Option) (*Result, error) {
	o := &options{log: defaultLogger()}
	for _, opt := range opts {
		opt(o)
	}

	switch container {
	case ContainerTS:
		return analyzeTS(ctx, r, o)
	case ContainerBMFF:
		return analyzeBMFF(ctx, r, o)
	case ContainerRawES:
		return analyzeRawES(r, kind, o)
	default:
		return nil, errors.Errorf("report: unknown container %d", container)
	}
}

func analyzeTS(ctx context.Context, r io.Reader, o *options) (*Result, error) {
	d := mts.NewDemuxer()
	br := bufio.NewReader(r)
	buf := make([]byte, feedChunkSize)

	for !d.Done() {
		if err := ctx.Err(); err != nil {
			o.log.Warning("report: TS analysis cancelled", "error", err.Error())
			break
		}
		n, err := br.Read(buf)
		if n > 0 {
			if ferr := d.Feed(buf[:n]); ferr != nil {
				o.log.Warning("report: TS feed error", "error", ferr.Error())
			}
		}
		if err != nil {
			break // io.EOF or another read error; fall through to Finish.
		}
	}
	d.Finish()

	res := &Result{Warnings: append([]string(nil), d.Warnings...)}
	seenTypes := make(map[byte]bool)
	for programNumber, prog := range d.Programs() {
		pn := programNumber
		for pid, si := range prog.Streams {
			seenTypes[si.StreamType] = true
			res.Streams = append(res.Streams, StreamReport{
				ProgramNumber:      &pn,
				PIDOrTrackID:       uint32(pid),
				StreamType:         &si.StreamType,
				Language:           si.Language,
				RegistrationFourCC: si.Registration,
				VideoDescriptor:    si.VideoDescriptor,
				AudioDescriptor:    si.AudioDescriptor,
				VideoInfo:          si.VideoInfo,
				AudioInfo:          si.AudioInfo,
			})
		}
	}
	for st := range seenTypes {
		res.ObservedStreamTypes = append(res.ObservedStreamTypes, st)
	}

	if noContent(res) {
		o.log.Info("report: no recognizable AVS content in TS input")
		return res, ErrNoContent
	}
	return res, nil
}

func analyzeBMFF(ctx context.Context, r io.Reader, o *options) (*Result, error) {
	d := bmff.NewDemuxer()
	br := bufio.NewReader(r)
	buf := make([]byte, feedChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			o.log.Warning("report: BMFF analysis cancelled", "error", err.Error())
			break
		}
		n, err := br.Read(buf)
		if n > 0 {
			if ferr := d.Feed(buf[:n]); ferr != nil {
				o.log.Warning("report: BMFF feed error", "error", ferr.Error())
			}
		}
		if err != nil {
			break
		}
	}

	samples := d.Finish()
	res := &Result{Warnings: append([]string(nil), d.Warnings...)}

	for _, tr := range d.Tracks() {
		res.ObservedFourCCs = append(res.ObservedFourCCs, tr.FourCC)
		sample, ok := samples[tr.TrackID]
		if !ok {
			continue
		}

		sr := StreamReport{PIDOrTrackID: tr.TrackID, FourCC: tr.FourCC}
		switch tr.Kind {
		case model.CodecAVS2:
			info, err := avs2.Parse(sample)
			if err != nil {
				o.log.Warning("report: AVS2 BMFF sample decode failed", "track", tr.TrackID, "error", err.Error())
			} else {
				sr.VideoInfo = info
			}
		case model.CodecAVS3Video:
			info, err := avs3.Parse(sample)
			if err != nil {
				o.log.Warning("report: AVS3 BMFF sample decode failed", "track", tr.TrackID, "error", err.Error())
			} else {
				sr.VideoInfo = info
			}
		case model.CodecAV3AAudio:
			info, err := av3a.Parse(sample)
			if err != nil {
				o.log.Warning("report: AV3A BMFF sample decode failed", "track", tr.TrackID, "error", err.Error())
			} else {
				sr.AudioInfo = info
			}
		}
		res.Streams = append(res.Streams, sr)
	}

	if noContent(res) {
		o.log.Info("report: no recognizable AVS content in BMFF input")
		return res, ErrNoContent
	}
	return res, nil
}

func analyzeRawES(r io.Reader, kind model.CodecKind, o *options) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "report: reading raw elementary stream")
	}

	sr := StreamReport{}
	res := &Result{}

	switch kind {
	case model.CodecAVS1:
		info, perr := avs1.Parse(data)
		if perr != nil {
			o.log.Warning("report: AVS1 raw ES decode failed", "error", perr.Error())
		} else {
			sr.VideoInfo = info
		}
	case model.CodecAVS2:
		info, perr := avs2.Parse(data)
		if perr != nil {
			o.log.Warning("report: AVS2 raw ES decode failed", "error", perr.Error())
		} else {
			sr.VideoInfo = info
		}
	case model.CodecAVS3Video:
		info, perr := avs3.Parse(data)
		if perr != nil {
			o.log.Warning("report: AVS3 raw ES decode failed", "error", perr.Error())
		} else {
			sr.VideoInfo = info
		}
	case model.CodecAV3AAudio:
		info, perr := av3a.Parse(data)
		if perr != nil {
			o.log.Warning("report: AV3A raw ES decode failed", "error", perr.Error())
		} else {
			sr.AudioInfo = info
		}
	default:
		return nil, errors.Errorf("report: unrecognized raw ES codec kind %v", kind)
	}

	if sr.VideoInfo != nil || sr.AudioInfo != nil {
		res.Streams = append(res.Streams, sr)
	}

	if noContent(res) {
		o.log.Info("report: no recognizable AVS content in raw ES input")
		return res, ErrNoContent
	}
	return res, nil
}

// noContent reports whether no stream in res had its codec header
// successfully decoded.
func noContent(res *Result) bool {
	for _, sr := range res.Streams {
		if sr.VideoInfo != nil || sr.AudioInfo != nil {
			return false
		}
	}
	return true
}
