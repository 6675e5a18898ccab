// Package meta implements parsing of FLAC metadata blocks: STREAMINFO,
// PADDING, VORBIS_COMMENT, and PICTURE, plus stubs for the block types the
// driver does not otherwise act on (APPLICATION, SEEKTABLE, CUESHEET).
//
// Unlike frame decoding, a metadata block is always parsed from a single,
// fully-buffered payload once its 24-bit length prefix is known, so parsing
// here works over a bytes.Reader rather than the bit-level reader in
// internal/bitio.
package meta

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// BlockType identifies the kind of a metadata block.
type BlockType uint8

// Metadata block types.
//
// ref: http://flac.sourceforge.net/format.html#metadata_block_header
const (
	TypeStreamInfo BlockType = iota
	TypePadding
	TypeApplication
	TypeSeekTable
	TypeVorbisComment
	TypeCueSheet
	TypePicture
)

func (t BlockType) String() string {
	switch t {
	case TypeStreamInfo:
		return "stream info"
	case TypePadding:
		return "padding"
	case TypeApplication:
		return "application"
	case TypeSeekTable:
		return "seek table"
	case TypeVorbisComment:
		return "vorbis comment"
	case TypeCueSheet:
		return "cue sheet"
	case TypePicture:
		return "picture"
	default:
		return "reserved"
	}
}

// Unimplemented is returned by ParseBlock for metadata block types the
// decoder recognizes but does not act on beyond skipping their payload.
var Unimplemented = errors.New("meta: block type not decoded")

// BlockHeader is the 32-bit header preceding every metadata block's payload.
type BlockHeader struct {
	// IsLast reports whether this is the last metadata block before the
	// first audio frame.
	IsLast bool
	Type   BlockType
	// Length is the payload length in bytes, not counting this header.
	Length int
}

const (
	isLastMask = 0x80000000
	typeMask   = 0x7F000000
	lengthMask = 0x00FFFFFF
)

// ParseBlockHeader reads the 4-byte big-endian metadata block header. A
// type value in the reserved range 7-126 is accepted and reported as its
// raw Type value so callers can skip the block by Length; only 127
// (invalid) is rejected.
func ParseBlockHeader(r *bytes.Reader) (*BlockHeader, error) {
	var word uint32
	if err := binary.Read(r, binary.BigEndian, &word); err != nil {
		return nil, errors.Wrap(err, "meta: reading block header")
	}
	rawType := (word & typeMask) >> 24
	if rawType == 127 {
		return nil, errors.New("meta: invalid block type 127")
	}
	h := &BlockHeader{
		IsLast: word&isLastMask != 0,
		Type:   BlockType(rawType),
		Length: int(word & lengthMask),
	}
	return h, nil
}

// StreamInfo is the mandatory first metadata block of a FLAC stream. It
// carries the stream-wide parameters frame decoding falls back to when a
// frame header leaves sample rate or bit depth unspecified.
//
// ref: http://flac.sourceforge.net/format.html#metadata_block_streaminfo
type StreamInfo struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32
	MaxFrameSize  uint32
	SampleRate    uint32
	ChannelCount  uint8
	BitsPerSample uint8
	SampleCount   uint64
	MD5sum        [16]byte
}

// ParseStreamInfo parses a STREAMINFO block payload.
func ParseStreamInfo(r *bytes.Reader, maxBlockSizeLimit uint32) (*StreamInfo, error) {
	var word1 uint64
	if err := binary.Read(r, binary.BigEndian, &word1); err != nil {
		return nil, errors.Wrap(err, "meta: reading stream info")
	}
	si := new(StreamInfo)
	si.MinBlockSize = uint16(word1 >> 48)
	si.MaxBlockSize = uint16(word1 >> 32)
	si.MinFrameSize = uint32(word1>>8) & 0xFFFFFF
	maxFrameSizeHigh := uint32(word1) & 0xFF

	var word2 uint64
	// MaxFrameSize's low 16 bits, then SampleRate(20)/ChannelCount(3)/
	// BitsPerSample(5)/SampleCount(36) packed across the remaining 8 bytes.
	var low16 uint16
	if err := binary.Read(r, binary.BigEndian, &low16); err != nil {
		return nil, errors.Wrap(err, "meta: reading stream info")
	}
	si.MaxFrameSize = maxFrameSizeHigh<<16 | uint32(low16)

	if err := binary.Read(r, binary.BigEndian, &word2); err != nil {
		return nil, errors.Wrap(err, "meta: reading stream info")
	}
	si.SampleRate = uint32(word2 >> 44)
	si.ChannelCount = uint8((word2>>41)&0x7) + 1
	si.BitsPerSample = uint8((word2>>36)&0x1F) + 1
	si.SampleCount = word2 & 0xFFFFFFFFF

	if _, err := io.ReadFull(r, si.MD5sum[:]); err != nil {
		return nil, errors.Wrap(err, "meta: reading stream info md5")
	}

	if si.MinBlockSize < 16 {
		return nil, errors.Errorf("meta: invalid min block size %d; must be >= 16", si.MinBlockSize)
	}
	if si.MaxBlockSize < si.MinBlockSize {
		return nil, errors.Errorf("meta: max block size %d smaller than min block size %d", si.MaxBlockSize, si.MinBlockSize)
	}
	if maxBlockSizeLimit != 0 && uint32(si.MaxBlockSize) > maxBlockSizeLimit {
		return nil, errors.Errorf("meta: max block size %d exceeds configured limit %d", si.MaxBlockSize, maxBlockSizeLimit)
	}
	if si.SampleRate == 0 || si.SampleRate > 655350 {
		return nil, errors.Errorf("meta: invalid sample rate %d", si.SampleRate)
	}
	if si.ChannelCount < 1 || si.ChannelCount > 8 {
		return nil, errors.Errorf("meta: invalid channel count %d", si.ChannelCount)
	}
	return si, nil
}

// VorbisComment is the human-readable tag block: a vendor string plus a
// list of "NAME=value" entries. At most one VORBIS_COMMENT block appears
// in a conforming stream.
type VorbisComment struct {
	Vendor  string
	Entries []VorbisEntry
}

// VorbisEntry is a single "NAME=value" tag.
type VorbisEntry struct {
	Name  string
	Value string
}

// ParseVorbisComment parses a VORBIS_COMMENT block payload. Unlike every
// other FLAC field, vendor/comment lengths here are little-endian, per the
// upstream Vorbis comment header format.
func ParseVorbisComment(r *bytes.Reader) (*VorbisComment, error) {
	var vendorLen uint32
	if err := binary.Read(r, binary.LittleEndian, &vendorLen); err != nil {
		return nil, errors.Wrap(err, "meta: reading vorbis comment vendor length")
	}
	vendor := make([]byte, vendorLen)
	if _, err := io.ReadFull(r, vendor); err != nil {
		return nil, errors.Wrap(err, "meta: reading vorbis comment vendor string")
	}
	vc := &VorbisComment{Vendor: string(vendor)}

	var commentCount uint32
	if err := binary.Read(r, binary.LittleEndian, &commentCount); err != nil {
		return nil, errors.Wrap(err, "meta: reading vorbis comment count")
	}
	vc.Entries = make([]VorbisEntry, 0, commentCount)
	for i := uint32(0); i < commentCount; i++ {
		var vectorLen uint32
		if err := binary.Read(r, binary.LittleEndian, &vectorLen); err != nil {
			return nil, errors.Wrap(err, "meta: reading vorbis comment vector length")
		}
		buf := make([]byte, vectorLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(err, "meta: reading vorbis comment vector")
		}
		vector := string(buf)
		pos := strings.Index(vector, "=")
		if pos == -1 {
			return nil, errors.Errorf("meta: invalid comment vector %q; missing '='", vector)
		}
		vc.Entries = append(vc.Entries, VorbisEntry{Name: vector[:pos], Value: vector[pos+1:]})
	}
	return vc, nil
}

// StreamTitle assembles the "ARTIST - TITLE" display string from a parsed
// VorbisComment, following the same tag precedence the original decoder
// uses. It returns "" if neither tag is present.
func (vc *VorbisComment) StreamTitle() string {
	var artist, title string
	for _, e := range vc.Entries {
		switch strings.ToUpper(e.Name) {
		case "ARTIST":
			artist = e.Value
		case "TITLE":
			title = e.Value
		}
	}
	switch {
	case artist != "" && title != "":
		return artist + " - " + title
	case title != "":
		return title
	case artist != "":
		return artist
	default:
		return ""
	}
}

// Lookup returns the value of the first entry whose name matches key
// case-insensitively, and whether one was found.
func (vc *VorbisComment) Lookup(key string) (string, bool) {
	for _, e := range vc.Entries {
		if strings.EqualFold(e.Name, key) {
			return e.Value, true
		}
	}
	return "", false
}

// PictureBlockTag is the Vorbis comment name under which a base64-encoded
// METADATA_BLOCK_PICTURE descriptor is sometimes embedded instead of being
// carried in its own native PICTURE block.
const PictureBlockTag = "METADATA_BLOCK_PICTURE"

// Picture is the structural parse of a PICTURE metadata block. Image data
// is captured verbatim; decoding the image itself is out of scope.
//
// ref: http://flac.sourceforge.net/format.html#metadata_block_picture
type Picture struct {
	Type       uint32
	MIME       string
	Desc       string
	Width      uint32
	Height     uint32
	ColorDepth uint32
	ColorCount uint32
	Data       []byte
}

// Picture types with a fixed meaning; only Type 3 (cover, front) is
// distinguished by most consumers, but all 21 values are legal.
const maxPictureType = 20

// ParsePicture parses a PICTURE block payload.
func ParsePicture(r *bytes.Reader) (*Picture, error) {
	pic := new(Picture)
	if err := binary.Read(r, binary.BigEndian, &pic.Type); err != nil {
		return nil, errors.Wrap(err, "meta: reading picture type")
	}
	if pic.Type > maxPictureType {
		return nil, errors.Errorf("meta: invalid picture type %d", pic.Type)
	}

	var mimeLen uint32
	if err := binary.Read(r, binary.BigEndian, &mimeLen); err != nil {
		return nil, errors.Wrap(err, "meta: reading picture mime length")
	}
	mime := make([]byte, mimeLen)
	if _, err := io.ReadFull(r, mime); err != nil {
		return nil, errors.Wrap(err, "meta: reading picture mime string")
	}
	pic.MIME = string(mime)

	var descLen uint32
	if err := binary.Read(r, binary.BigEndian, &descLen); err != nil {
		return nil, errors.Wrap(err, "meta: reading picture description length")
	}
	desc := make([]byte, descLen)
	if _, err := io.ReadFull(r, desc); err != nil {
		return nil, errors.Wrap(err, "meta: reading picture description")
	}
	pic.Desc = string(desc)

	fields := []*uint32{&pic.Width, &pic.Height, &pic.ColorDepth, &pic.ColorCount}
	for _, f := range fields {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return nil, errors.Wrap(err, "meta: reading picture dimensions")
		}
	}

	var dataLen uint32
	if err := binary.Read(r, binary.BigEndian, &dataLen); err != nil {
		return nil, errors.Wrap(err, "meta: reading picture data length")
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Wrap(err, "meta: reading picture data")
	}
	pic.Data = data
	return pic, nil
}

// isAllZero reports whether buf contains only zero bytes, used to validate
// PADDING blocks without caring about their content otherwise.
func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// VerifyPadding checks that a PADDING block's payload, already extracted
// into buf, is all-zero, as recommended (but not required) by the format.
func VerifyPadding(buf []byte) error {
	if !isAllZero(buf) {
		return errors.New("meta: padding block contains non-zero bytes")
	}
	return nil
}

// Block is a parsed metadata block: a header plus a type-specific body.
// Body is nil for types ParseBlock does not decode (Application, SeekTable,
// CueSheet); callers still get BlockHeader.Length to skip the payload.
type Block struct {
	Header *BlockHeader
	Body   interface{}
}

// ParseBlock reads one metadata block header and, for the types the driver
// acts on, its body. payload must hold exactly header.Length bytes. Types the
// driver does not otherwise need (Application, SeekTable, CueSheet) are
// reported with a nil Body and a wrapped Unimplemented error so the caller
// can tell "parsed, nothing to do" from a real failure.
func ParseBlock(headerBuf [4]byte, payload []byte, maxBlockSizeLimit uint32) (*Block, error) {
	hr := bytes.NewReader(headerBuf[:])
	header, err := ParseBlockHeader(hr)
	if err != nil {
		return nil, err
	}
	if header.Length != len(payload) {
		return nil, errors.Errorf("meta: block length %d does not match payload of %d bytes", header.Length, len(payload))
	}

	r := bytes.NewReader(payload)
	block := &Block{Header: header}
	switch header.Type {
	case TypeStreamInfo:
		block.Body, err = ParseStreamInfo(r, maxBlockSizeLimit)
	case TypePadding:
		err = VerifyPadding(payload)
	case TypeVorbisComment:
		block.Body, err = ParseVorbisComment(r)
	case TypePicture:
		block.Body, err = ParsePicture(r)
	case TypeApplication, TypeSeekTable, TypeCueSheet:
		return block, errors.Wrapf(Unimplemented, "block type %s", header.Type)
	default:
		// Reserved type: the header was already accepted (see
		// ParseBlockHeader), skip the payload without decoding it.
		return block, errors.Wrapf(Unimplemented, "reserved block type %d", header.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s block", header.Type)
	}
	return block, nil
}

// PictureSlice is one Ogg-page-sized fragment of an accumulated metadata
// block payload, captured as it arrives because a VORBIS_COMMENT block
// carrying an embedded METADATA_BLOCK_PICTURE tag can span more pages than
// fit in one segment.
type PictureSlice struct {
	Data []byte
}

// PictureAccumulator reassembles a metadata block payload that arrives
// split across Ogg pages — in practice, a VORBIS_COMMENT block whose
// embedded METADATA_BLOCK_PICTURE value is too large for one segment.
// Rather than track the picture value's exact byte offset within the
// block the way the original file-position-based decoder does, the ogg
// package accumulates the whole remaining block payload and reparses it
// in one pass once complete, which is simpler and behaviorally equivalent
// for a byte-span decoder. Remaining tracks how many declared bytes are
// still outstanding; the caller feeds it fragments as pages are demuxed
// and calls Done to check completion.
type PictureAccumulator struct {
	Remaining int
	slices    []PictureSlice
}

// NewPictureAccumulator starts accumulation for a block payload of the
// given total declared length.
func NewPictureAccumulator(totalLen int) *PictureAccumulator {
	return &PictureAccumulator{Remaining: totalLen}
}

// Feed appends the next fragment and reduces Remaining. It is safe to call
// with more data than Remaining; the excess is still recorded so the
// caller can re-slice once the true boundary (the Vorbis comment framing)
// is known.
func (a *PictureAccumulator) Feed(fragment []byte) {
	a.slices = append(a.slices, PictureSlice{Data: fragment})
	a.Remaining -= len(fragment)
	if a.Remaining < 0 {
		a.Remaining = 0
	}
}

// Done reports whether every declared byte has been fed.
func (a *PictureAccumulator) Done() bool {
	return a.Remaining == 0
}

// Fragments returns the raw fragments fed so far, in arrival order, before
// concatenation. Callers that need to locate a sub-range of the
// reassembled payload within its original page boundaries (e.g. to report
// a METADATA_BLOCK_PICTURE descriptor's per-page slice lengths) should use
// this instead of Bytes.
func (a *PictureAccumulator) Fragments() []PictureSlice {
	return a.slices
}

// Bytes concatenates every fragment fed so far, in arrival order.
func (a *PictureAccumulator) Bytes() []byte {
	var total int
	for _, s := range a.slices {
		total += len(s.Data)
	}
	out := make([]byte, 0, total)
	for _, s := range a.slices {
		out = append(out, s.Data...)
	}
	return out
}

// DecodePictureDescriptor base64-decodes a complete METADATA_BLOCK_PICTURE
// value and parses it as a native PICTURE block.
func DecodePictureDescriptor(b64 []byte) (*Picture, error) {
	trimmed := bytes.TrimSpace(b64)
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(raw, trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "meta: decoding METADATA_BLOCK_PICTURE base64")
	}
	return ParsePicture(bytes.NewReader(raw[:n]))
}
