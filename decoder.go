// Package flac implements a progressive, buffer-driven FLAC decoder: raw
// FLAC or FLAC-in-Ogg audio is decoded a caller-supplied buffer at a time,
// with no requirement that a whole file (or even a whole frame) be
// available up front.
package flac

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/nsnikhil/flacstream/frame"
	"github.com/nsnikhil/flacstream/internal/bitio"
	"github.com/nsnikhil/flacstream/meta"
	"github.com/nsnikhil/flacstream/ogg"
)

// Decoder holds all state needed to resume decoding across Decode calls:
// stream parameters pulled from STREAMINFO (or set directly via
// SetRawBlockParams), the in-progress frame/subframe/output state machine,
// and the Ogg demuxer when the stream is Ogg-wrapped.
type Decoder struct {
	maxChannels    int
	maxBlockSize   uint32
	maxOutBuffSize int
	log            *slog.Logger

	br *bitio.Reader

	state  frame.State
	header *frame.Header

	channels      int
	sampleRate    uint32
	bitsPerSample int
	totalSamples  uint64
	audioDataLen  uint32

	samples      [][]int32 // one reusable buffer per channel, length maxBlockSize
	coeffScratch [32]int32

	numOutSamples int // current frame's block size
	offset        int // progress emitting the current block through OUT_SAMPLES

	validSamples int // set by the most recent OUT_SAMPLES chunk, single-shot

	bitrate          uint32
	compressionRatio float64
	sbl              int // bytes decoded since the last bitrate update

	firstCall      bool
	oggWrapper     bool
	demux          *ogg.Demuxer
	audioDataStart uint32
	curFilePos     uint32
	audioCarry     []byte // undecoded audio bytes carried from a previous Ogg page

	streamTitle    string
	newStreamTitle bool
}

// New constructs a Decoder with default hard limits, overridden by opts.
func New(opts ...Option) (*Decoder, error) {
	d := &Decoder{
		maxChannels:    DefaultMaxChannels,
		maxBlockSize:   DefaultMaxBlockSize,
		maxOutBuffSize: DefaultMaxOutBuffSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxChannels < 1 {
		return nil, errors.New("flac: WithMaxChannels must be >= 1")
	}
	if d.maxBlockSize < 1 {
		return nil, errors.New("flac: WithMaxBlockSize must be >= 1")
	}

	d.samples = make([][]int32, d.maxChannels)
	for i := range d.samples {
		d.samples[i] = make([]int32, d.maxBlockSize)
	}
	d.br = bitio.NewReader(nil, new(int))
	d.demux = ogg.NewDemuxer(d.maxBlockSize)
	d.Reset()
	return d, nil
}

// Clear resets the decode state machine and per-frame buffers but keeps
// stream parameters (channel count, sample rate, ...) learned so far.
// Mirrors the source's clear(): called after a fatal per-frame error, not
// a full stream restart.
func (d *Decoder) Clear() {
	d.state = frame.StateDecodeFrame
	d.header = nil
	d.numOutSamples = 0
	d.offset = 0
	d.validSamples = 0
	for _, ch := range d.samples {
		for i := range ch {
			ch[i] = 0
		}
	}
}

// Reset returns the Decoder to its just-constructed state: stream
// parameters, Ogg demux progress, bitrate bookkeeping, and the single-shot
// latches are all discarded. Used after an unrecoverable stream error or
// an Ogg resync.
func (d *Decoder) Reset() {
	d.Clear()
	d.channels = 0
	d.sampleRate = 0
	d.bitsPerSample = 0
	d.totalSamples = 0
	d.audioDataLen = 0
	d.bitrate = 0
	d.compressionRatio = 0
	d.sbl = 0
	d.firstCall = true
	d.oggWrapper = false
	d.audioDataStart = 0
	d.curFilePos = 0
	d.streamTitle = ""
	d.newStreamTitle = false
	d.audioCarry = nil
	d.demux.Reset()
}

// SetRawBlockParams supplies stream parameters directly, bypassing
// STREAMINFO, for a raw FLAC frame stream whose container already knows
// them (e.g. an RTP or file-format wrapper that carries its own header).
func (d *Decoder) SetRawBlockParams(channels int, sampleRate uint32, bps int, totalSamples uint64, audioDataLen uint32) {
	d.channels = channels
	d.sampleRate = sampleRate
	d.bitsPerSample = bps
	d.totalSamples = totalSamples
	d.audioDataLen = audioDataLen
}

// FindSyncWord scans buf for a resync point: an Ogg "OggS" page signature
// takes priority, falling back to a byte-aligned FLAC frame sync code
// (11111111111110xx). Returns -1 if neither is found.
func FindSyncWord(buf []byte) int {
	if i := ogg.FindSyncWord(buf); i == 0 {
		return 0
	} else if i > 0 {
		return i
	}
	for i := 0; i < len(buf)-1; i++ {
		if buf[i] == 0xFF && buf[i+1]&0xFC == 0xF8 {
			return i
		}
	}
	return -1
}

func (d *Decoder) Channels() int        { return d.channels }
func (d *Decoder) SampleRate() uint32   { return d.sampleRate }
func (d *Decoder) BitsPerSample() int   { return d.bitsPerSample }
func (d *Decoder) Bitrate() uint32      { return d.bitrate }
func (d *Decoder) TotalSamples() uint64 { return d.totalSamples }
func (d *Decoder) AudioDataStart() uint32 { return d.audioDataStart }

// AudioFileDuration returns the stream duration in whole seconds, or 0 if
// the sample rate isn't known yet.
func (d *Decoder) AudioFileDuration() uint64 {
	if d.sampleRate == 0 {
		return 0
	}
	return d.totalSamples / uint64(d.sampleRate)
}

// OutputSamples returns the count of interleaved int16 samples written by
// the most recent Decode call, and zero thereafter until the next
// emission: a single-shot read, like StreamTitle.
func (d *Decoder) OutputSamples() int {
	n := d.validSamples
	d.validSamples = 0
	return n
}

// StreamTitle returns the most recently parsed "ARTIST - TITLE" string
// pulled from a VORBIS_COMMENT block, and resets the latch so a caller
// only sees a given title once.
func (d *Decoder) StreamTitle() (string, bool) {
	if !d.newStreamTitle {
		if title, ok := d.demux.TakeStreamTitle(); ok {
			return title, true
		}
		return "", false
	}
	d.newStreamTitle = false
	title := d.streamTitle
	return title, strings.TrimSpace(title) != ""
}

// MetadataBlockPicture returns the per-page slice lengths of the most
// recently completed METADATA_BLOCK_PICTURE descriptor, resetting the
// latch on read.
func (d *Decoder) MetadataBlockPicture() []meta.PictureSlice {
	return d.demux.TakeMetadataBlockPicture()
}

// logWarn logs a recoverable frame-level error, if a logger is attached.
func (d *Decoder) logWarn(msg string, err error) {
	if d.log != nil {
		d.log.Warn(msg, "error", err)
	}
}

// logError logs a fatal stream/metadata-level error, if a logger is attached.
func (d *Decoder) logError(msg string, err error) {
	if d.log != nil {
		d.log.Error(msg, "error", err)
	}
}

func (d *Decoder) applyStreamInfo(si *meta.StreamInfo) {
	d.channels = int(si.ChannelCount)
	d.sampleRate = si.SampleRate
	d.bitsPerSample = int(si.BitsPerSample)
	d.totalSamples = si.SampleCount
}
