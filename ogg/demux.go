package ogg

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/nsnikhil/flacstream/meta"
)

// PageNr names which stage of the logical Ogg bitstream a segment belongs
// to, mirroring the original decoder's page_nr.
type PageNr int

const (
	// PageIdentification expects the single "fLaC" identification packet.
	PageIdentification PageNr = iota
	// PageMetadata expects one or more METADATA_BLOCK-carrying packets.
	PageMetadata
	// PageAudio carries raw FLAC frame payload.
	PageAudio
)

// Demuxer tracks cross-page Ogg/FLAC state: the current page_nr stage, an
// in-progress metadata block split across page boundaries, and the
// accumulated STREAMINFO/VorbisComment/picture results pulled out of
// metadata pages as they are consumed.
type Demuxer struct {
	pageNr            PageNr
	lastMetadataBlock bool
	maxBlockSize      uint32

	blockAccum     *meta.PictureAccumulator // in-progress oversized metadata block
	blockAccumType meta.BlockType

	streamInfo    *meta.StreamInfo
	vorbisComment *meta.VorbisComment
	picture       *meta.Picture
	pictureSlices []meta.PictureSlice

	newStreamTitle   bool
	newPicture       bool
	newPictureSlices bool
}

// NewDemuxer creates a Demuxer. maxBlockSize, if non-zero, is enforced
// against STREAMINFO's max_blocksize field.
func NewDemuxer(maxBlockSize uint32) *Demuxer {
	return &Demuxer{maxBlockSize: maxBlockSize}
}

// Reset returns the demuxer to its initial identification-page state,
// discarding any in-progress metadata block. Used on Ogg resync.
func (d *Demuxer) Reset() {
	*d = Demuxer{maxBlockSize: d.maxBlockSize}
}

// PageNr reports the current demux stage.
func (d *Demuxer) PageNr() PageNr {
	return d.pageNr
}

// ForcePageAudio jumps the demuxer straight to the audio stage, bypassing
// identification/metadata. Used when a mid-stream resync finds "OggS"
// while already decoding native audio: the container is known to have
// already delivered its metadata, so there is nothing left to wait for.
func (d *Demuxer) ForcePageAudio() {
	d.pageNr = PageAudio
}

// OnPageHeader updates demuxer state for a freshly parsed page header. The
// beginning-of-stream flag resets the stage to identification, matching
// the original decoder's "firstPage" handling.
func (d *Demuxer) OnPageHeader(h *PageHeader) {
	if h.FirstPage {
		d.pageNr = PageIdentification
	}
}

// SegmentResult reports what the caller should do with a segment just
// handed to HandleSegment.
type SegmentResult struct {
	// IsAudio is true once the demuxer has reached PageAudio: payload is
	// raw FLAC frame data for the frame decoder, not ogg's concern.
	IsAudio bool
}

// HandleSegment advances the page_nr state machine by one segment. For
// PageIdentification it expects the literal "fLaC" signature at the start
// of payload and parses any bytes after it as metadata blocks. For
// PageMetadata it parses one or more metadata blocks out of payload,
// transparently resuming an in-progress oversized block if one is
// pending. For PageAudio it reports the segment as audio payload without
// inspecting it further.
func (d *Demuxer) HandleSegment(payload []byte) (SegmentResult, error) {
	switch d.pageNr {
	case PageIdentification:
		if len(payload) < 4 || string(payload[:4]) != "fLaC" {
			return SegmentResult{}, errors.New("ogg: \"fLaC\" signature not found in identification packet")
		}
		d.pageNr = PageMetadata
		if len(payload) == 4 {
			return SegmentResult{}, nil
		}
		payload = payload[4:]
		fallthrough

	case PageMetadata:
		if d.blockAccum != nil {
			d.blockAccum.Feed(payload)
			if !d.blockAccum.Done() {
				return SegmentResult{}, nil
			}
			body := d.blockAccum.Bytes()
			fragments := d.blockAccum.Fragments()
			typ := d.blockAccumType
			d.blockAccum = nil
			if err := d.completeBlock(typ, d.lastMetadataBlock, body, fragments); err != nil {
				return SegmentResult{}, err
			}
			if d.lastMetadataBlock {
				d.pageNr = PageAudio
			}
			return SegmentResult{}, nil
		}
		if err := d.handleMetadataSegment(payload); err != nil {
			return SegmentResult{}, err
		}
		if d.lastMetadataBlock && d.blockAccum == nil {
			d.pageNr = PageAudio
		}
		return SegmentResult{}, nil

	default: // PageAudio
		return SegmentResult{IsAudio: true}, nil
	}
}

// handleMetadataSegment parses every complete metadata block header found
// in payload, dispatching each body to the meta package. A block whose
// declared length runs past the end of payload starts cross-page
// accumulation and stops scanning this segment early.
func (d *Demuxer) handleMetadataSegment(payload []byte) error {
	pos := 0
	for pos+4 <= len(payload) {
		var headerBuf [4]byte
		copy(headerBuf[:], payload[pos:pos+4])
		header, err := meta.ParseBlockHeader(bytes.NewReader(headerBuf[:]))
		if err != nil {
			return err
		}
		pos += 4

		end := pos + header.Length
		if end > len(payload) {
			have := payload[pos:]
			accum := meta.NewPictureAccumulator(header.Length)
			accum.Feed(have)
			d.blockAccum = accum
			d.blockAccumType = header.Type
			d.lastMetadataBlock = header.IsLast
			return nil
		}

		body := payload[pos:end]
		if err := d.completeBlock(header.Type, header.IsLast, body, []meta.PictureSlice{{Data: body}}); err != nil {
			return err
		}
		d.lastMetadataBlock = header.IsLast
		pos = end

		if header.IsLast {
			return nil
		}
	}
	return nil
}

// completeBlock decodes one complete metadata block body already sliced to
// its declared length, via meta.ParseBlock. fragments are the page-sized
// pieces body was assembled from (a single whole-body fragment if it
// arrived in one segment), used to report a METADATA_BLOCK_PICTURE
// descriptor's per-page slice lengths without needing to track byte
// offsets file-position-style the way the original decoder does.
//
// Block types ParseBlock does not decode (Application, SeekTable,
// CueSheet, and reserved types) come back wrapped in meta.Unimplemented;
// that error is fatal to the stream, since there is no way to recover a
// meaningful position without CRC verification, and is returned as-is.
func (d *Demuxer) completeBlock(typ meta.BlockType, isLast bool, body []byte, fragments []meta.PictureSlice) error {
	var headerBuf [4]byte
	headerBuf[0] = byte(typ)
	if isLast {
		headerBuf[0] |= 0x80
	}
	n := len(body)
	headerBuf[1] = byte(n >> 16)
	headerBuf[2] = byte(n >> 8)
	headerBuf[3] = byte(n)

	block, err := meta.ParseBlock(headerBuf, body, d.maxBlockSize)
	if err != nil {
		return err
	}

	switch b := block.Body.(type) {
	case *meta.StreamInfo:
		d.streamInfo = b

	case *meta.VorbisComment:
		d.vorbisComment = b
		if title := b.StreamTitle(); title != "" {
			d.newStreamTitle = true
		}
		if raw, ok := b.Lookup(meta.PictureBlockTag); ok {
			valueBytes := []byte(raw)
			if offset := bytes.Index(body, valueBytes); offset >= 0 {
				d.pictureSlices = intersectFragments(fragments, offset, len(valueBytes))
				d.newPictureSlices = true
			}
			if pic, perr := meta.DecodePictureDescriptor(valueBytes); perr == nil {
				d.picture = pic
				d.newPicture = true
			}
		}

	case *meta.Picture:
		d.picture = b
		d.newPicture = true
		d.pictureSlices = []meta.PictureSlice{{Data: body}}
		d.newPictureSlices = true
	}
	return nil
}

// intersectFragments splits fragments (a contiguous, in-order partition of
// some byte range) down to the sub-range [start, start+length), preserving
// page boundaries so the returned slice lengths still sum to length.
func intersectFragments(fragments []meta.PictureSlice, start, length int) []meta.PictureSlice {
	var out []meta.PictureSlice
	pos := 0
	end := start + length
	for _, f := range fragments {
		fStart, fEnd := pos, pos+len(f.Data)
		pos = fEnd
		lo, hi := max(fStart, start), min(fEnd, end)
		if lo < hi {
			out = append(out, meta.PictureSlice{Data: f.Data[lo-fStart : hi-fStart]})
		}
	}
	return out
}

// StreamInfo returns the most recently parsed STREAMINFO block, or nil if
// none has been seen yet.
func (d *Demuxer) StreamInfo() *meta.StreamInfo {
	return d.streamInfo
}

// TakeStreamTitle returns the latest "ARTIST - TITLE" string and resets
// the new-title latch: a single-shot read, returned only once per update.
func (d *Demuxer) TakeStreamTitle() (string, bool) {
	if !d.newStreamTitle || d.vorbisComment == nil {
		return "", false
	}
	d.newStreamTitle = false
	return d.vorbisComment.StreamTitle(), true
}

// TakePicture returns the most recently completed PICTURE block (whether
// carried natively or embedded in a Vorbis comment) and resets the
// new-picture latch.
func (d *Demuxer) TakePicture() (*meta.Picture, bool) {
	if !d.newPicture || d.picture == nil {
		return nil, false
	}
	d.newPicture = false
	return d.picture, true
}

// TakeMetadataBlockPicture returns the per-page slice lengths of the most
// recently completed picture descriptor and resets the latch: a
// single-shot read, like TakeStreamTitle.
func (d *Demuxer) TakeMetadataBlockPicture() []meta.PictureSlice {
	if !d.newPictureSlices {
		return nil
	}
	d.newPictureSlices = false
	return d.pictureSlices
}
