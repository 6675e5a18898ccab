// Package ogg implements just enough of RFC 3533 page framing to demux a
// FLAC-in-Ogg stream: page header parsing, the lacing/segment table, and
// the page_nr state machine (identification -> metadata -> audio) that
// drives which package (meta or frame) owns a given page's payload.
//
// ref: https://www.xiph.org/ogg/doc/rfc3533.txt
// ref: https://xiph.org/flac/ogg_mapping.html
package ogg

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const signature = "OggS"

// fixedHeaderSize is the length of the page header up to, and including,
// the page_segments count, before the variable-length segment table.
const fixedHeaderSize = 27

// PageHeader is one parsed Ogg page header.
type PageHeader struct {
	Version         uint8
	Continued       bool // packet data continued from the previous page
	FirstPage       bool // beginning-of-stream page
	LastPage        bool // end-of-stream page
	GranulePosition uint64
	SerialNumber    uint32
	SequenceNumber  uint32
	CRC             uint32

	// Segments holds one entry per packet segment in this page, in page
	// order; 255-byte lacing continuations are already folded together,
	// so each entry is a complete segment length. See SegmentTable.
	Segments []int

	// HeaderSize is the total byte length of the fixed header plus the
	// segment table, i.e. the offset from the page's first byte to its
	// first payload byte.
	HeaderSize int
}

// ParsePageHeader parses an Ogg page header starting at buf[0]. buf must
// hold at least the fixed header; FindSyncWord locates that start.
func ParsePageHeader(buf []byte) (*PageHeader, error) {
	if len(buf) < fixedHeaderSize {
		return nil, errors.New("ogg: buffer shorter than a page header")
	}
	if string(buf[:4]) != signature {
		return nil, errors.New("ogg: missing \"OggS\" capture pattern")
	}

	h := &PageHeader{Version: buf[4]}
	headerType := buf[5]
	h.Continued = headerType&0x01 != 0
	h.FirstPage = headerType&0x02 != 0
	h.LastPage = headerType&0x04 != 0

	h.GranulePosition = binary.LittleEndian.Uint64(buf[6:14])
	h.SerialNumber = binary.LittleEndian.Uint32(buf[14:18])
	h.SequenceNumber = binary.LittleEndian.Uint32(buf[18:22])
	h.CRC = binary.LittleEndian.Uint32(buf[22:26])

	pageSegments := int(buf[26])
	if len(buf) < fixedHeaderSize+pageSegments {
		return nil, errors.New("ogg: buffer too short for segment table")
	}

	var segments []int
	for i := 0; i < pageSegments; i++ {
		n := int(buf[fixedHeaderSize+i])
		for buf[fixedHeaderSize+i] == 255 {
			i++
			if i == pageSegments {
				break
			}
			n += int(buf[fixedHeaderSize+i])
		}
		segments = append(segments, n)
	}
	h.Segments = segments
	h.HeaderSize = fixedHeaderSize + pageSegments
	return h, nil
}

// FindSyncWord scans buf for the next "OggS" capture pattern, returning its
// offset or -1 if not found. An offset greater than 0 indicates the stream
// has drifted out of sync with page boundaries and the caller should
// resynchronize.
func FindSyncWord(buf []byte) int {
	if len(buf) < 4 {
		return -1
	}
	for i := 0; i <= len(buf)-4; i++ {
		if string(buf[i:i+4]) == signature {
			return i
		}
	}
	return -1
}

// SegmentTable is a page's segment-length list, consumed front-to-back as
// audio/metadata segments are handed to their decoders; a plain
// slice-plus-index is the natural Go shape for a FIFO cursor.
type SegmentTable struct {
	lengths []int
	pos     int
}

// NewSegmentTable wraps a page header's segment list for consumption.
func NewSegmentTable(segments []int) *SegmentTable {
	return &SegmentTable{lengths: segments}
}

// Next returns the next segment length and advances past it, or ok=false
// once every segment in the page has been consumed.
func (t *SegmentTable) Next() (length int, ok bool) {
	if t.pos >= len(t.lengths) {
		return 0, false
	}
	length = t.lengths[t.pos]
	t.pos++
	return length, true
}

// Remaining reports how many segments are still unconsumed.
func (t *SegmentTable) Remaining() int {
	return len(t.lengths) - t.pos
}
