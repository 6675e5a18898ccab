package flac

import (
	"github.com/pkg/errors"

	"github.com/nsnikhil/flacstream/frame"
	"github.com/nsnikhil/flacstream/ogg"
)

// Decode advances the decoder by consuming as much of in as it can, up to
// bytesLeft bytes, writing interleaved 16-bit samples into out and
// returning a Status describing what happened. The caller inspects the
// returned Status (and OutputSamples) to decide whether to call again
// with more input, the same input (StatusGiveNextLoop), or stop.
func (d *Decoder) Decode(in []byte, bytesLeft *int, out []int16) (Status, error) {
	if d.firstCall {
		d.firstCall = false
		if ogg.FindSyncWord(in) == 0 {
			d.oggWrapper = true
		}
	}

	if d.oggWrapper {
		return d.decodeOggPage(in, bytesLeft, out)
	}
	return d.decodeNative(in, bytesLeft, out)
}

// decodeOggPage consumes one whole Ogg page per call: a simplification of
// the source's segment-by-segment resumable parse (which tracks an exact
// file offset across calls). A page that doesn't fully fit in in yet
// requests more data without consuming anything, preserving the
// no-partial-progress invariant. Audio-page payload is concatenated with
// any carried-over bytes from a previous page and run through the same
// native frame decode loop used outside Ogg.
func (d *Decoder) decodeOggPage(in []byte, bytesLeft *int, out []int16) (Status, error) {
	hdr, err := ogg.ParsePageHeader(in)
	if err != nil {
		if i := ogg.FindSyncWord(in); i > 0 {
			d.demux.Reset()
			*bytesLeft -= i
			return StatusOggSyncFound, nil
		}
		wrapped := errors.Wrap(err, "ogg page header")
		d.logError("ogg page header parse failed", wrapped)
		return StatusErr, wrapped
	}

	pageLen := hdr.HeaderSize
	for _, s := range hdr.Segments {
		pageLen += s
	}
	if len(in) < pageLen {
		return StatusDecodeFramesLoop, nil
	}

	d.demux.OnPageHeader(hdr)
	segTable := ogg.NewSegmentTable(hdr.Segments)

	pos := hdr.HeaderSize
	var audioPayload []byte
	for {
		n, ok := segTable.Next()
		if !ok {
			break
		}
		payload := in[pos : pos+n]
		pos += n

		res, err := d.demux.HandleSegment(payload)
		if err != nil {
			wrapped := errors.Wrap(err, "ogg segment")
			d.logError("ogg metadata segment failed", wrapped)
			return StatusErr, wrapped
		}
		if res.IsAudio {
			audioPayload = append(audioPayload, payload...)
		}
	}

	*bytesLeft -= pageLen

	if si := d.demux.StreamInfo(); si != nil && d.channels == 0 {
		d.applyStreamInfo(si)
	}
	if title, ok := d.demux.TakeStreamTitle(); ok {
		d.streamTitle = title
		d.newStreamTitle = true
	}

	if len(audioPayload) == 0 {
		return StatusParseOggDone, nil
	}

	if d.audioDataStart == 0 {
		d.audioDataStart = d.curFilePos
	}
	d.curFilePos += uint32(pageLen)

	buf := append(d.audioCarry, audioPayload...)
	d.audioCarry = nil
	localLeft := len(buf)
	status, err := d.decodeNativeLoop(buf, &localLeft, out)
	// A resync found an Ogg page signature where audio was expected: the
	// leftover bytes are a fresh page, not undecoded audio, so they must
	// not be folded back into audioCarry.
	if localLeft > 0 && status != StatusOggSyncFound {
		d.audioCarry = append(d.audioCarry, buf[len(buf)-localLeft:]...)
	}
	return status, err
}

// decodeNative runs the frame decode loop directly against in/bytesLeft,
// for a raw (non-Ogg) FLAC stream.
func (d *Decoder) decodeNative(in []byte, bytesLeft *int, out []int16) (Status, error) {
	return d.decodeNativeLoop(in, bytesLeft, out)
}

// decodeNativeLoop implements the DECODE_FRAME -> DECODE_SUBFRAMES ->
// OUT_SAMPLES state machine shared by native and (post-demux) Ogg audio
// payload. At the start of every DECODE_FRAME it also checks for a bare
// "OggS" page signature appearing where a frame header was expected: a
// mid-stream container switch (or a resync after a corrupt frame) that
// forces the decoder back into Ogg demuxing regardless of the mode it was
// already in.
func (d *Decoder) decodeNativeLoop(in []byte, bytesLeft *int, out []int16) (Status, error) {
	d.br.Reset(in, bytesLeft)
	blBefore := *bytesLeft

	for d.state == frame.StateDecodeFrame {
		if pos := d.br.Pos(); pos+4 <= len(in) && string(in[pos:pos+4]) == "OggS" {
			d.Reset()
			d.oggWrapper = true
			d.demux.ForcePageAudio()
			*bytesLeft = len(in) - pos
			return StatusOggSyncFound, nil
		}
		if err := d.decodeFrameHeader(); err != nil {
			if d.br.Underflow() {
				return StatusDecodeFramesLoop, nil
			}
			d.logWarn("frame header decode failed", err)
			return StatusErr, err
		}
		if *bytesLeft < int(d.maxBlockSize) {
			return StatusDecodeFramesLoop, nil
		}
		d.sbl += blBefore - *bytesLeft
	}

	if d.state == frame.StateDecodeSubframes {
		blSub := *bytesLeft
		if err := frame.DecodeSubframes(d.br, d.header, uint(d.bitsPerSample), d.samples[:d.channels], &d.coeffScratch); err != nil {
			if d.br.Underflow() {
				return StatusDecodeFramesLoop, nil
			}
			d.logWarn("subframe decode failed", err)
			d.Clear()
			return StatusErr, err
		}
		d.state = frame.StateOutSamples
		d.sbl += blSub - *bytesLeft
	}

	if d.state == frame.StateOutSamples {
		status := d.emitOutSamples(out)
		if status == StatusGiveNextLoop {
			return status, nil
		}
	}

	d.br.AlignToByte()
	d.br.ReadUint(16) // frame footer CRC-16: read and discarded, never checked
	d.state = frame.StateDecodeFrame
	return StatusNone, nil
}

// decodeFrameHeader parses one frame header, resolving any stream
// parameter the header leaves to STREAMINFO (sample rate, bits per
// sample, channel count) the first time it's seen.
func (d *Decoder) decodeFrameHeader() error {
	hdr, err := frame.DecodeHeader(d.br)
	if err != nil {
		return err
	}
	d.header = hdr

	if d.channels == 0 {
		d.channels = hdr.ChannelAssignment.ChannelCount()
	}
	if d.channels < 1 || d.channels > d.maxChannels {
		return errors.Wrapf(ErrUnsupportedChannelAssignment, "channel count %d", d.channels)
	}

	if d.bitsPerSample == 0 && hdr.BitsPerSample != 0 {
		d.bitsPerSample = int(hdr.BitsPerSample)
	}
	if d.bitsPerSample < 8 || d.bitsPerSample > 16 {
		return errors.Wrapf(ErrBitsPerSampleRange, "bits per sample %d", d.bitsPerSample)
	}

	if d.sampleRate == 0 && hdr.SampleRate != 0 {
		d.sampleRate = hdr.SampleRate
	}

	if hdr.BlockSize > d.maxBlockSize {
		return errors.Wrapf(ErrBlockSizeTooLarge, "block size %d", hdr.BlockSize)
	}
	d.numOutSamples = int(hdr.BlockSize)
	d.state = frame.StateDecodeSubframes
	return nil
}

// emitOutSamples writes as much of the current block as fits in out,
// chunking across calls (via d.offset) when the block is larger than the
// caller's output buffer. Updates the bitrate/compression-ratio estimate
// once a full block has been emitted.
func (d *Decoder) emitOutSamples(out []int16) Status {
	outCap := len(out) / d.channels
	if outCap > d.maxOutBuffSize {
		outCap = d.maxOutBuffSize
	}

	blockSize := d.numOutSamples - d.offset
	if blockSize > outCap {
		blockSize = outCap
	}

	for i := 0; i < blockSize; i++ {
		for ch := 0; ch < d.channels; ch++ {
			v := d.samples[ch][i+d.offset]
			if d.bitsPerSample == 8 {
				v += 128
			}
			out[i*d.channels+ch] = int16(v)
		}
	}

	d.validSamples = blockSize * d.channels
	d.offset += blockSize

	if d.offset != d.numOutSamples {
		return StatusGiveNextLoop
	}
	d.offset = 0

	if d.sbl > 0 {
		d.compressionRatio = float64(d.numOutSamples*d.channels*2*d.channels) / float64(d.sbl)
		d.sbl = 0
		if d.compressionRatio > 0 {
			d.bitrate = uint32(float64(d.sampleRate) * float64(d.bitsPerSample) * float64(d.channels) / d.compressionRatio)
		}
	}
	return StatusNone
}
