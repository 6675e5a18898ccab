// Package frame implements FLAC frame header, subframe, and residual
// decoding: the per-frame reconstruction of one block of interleaved PCM
// from a bit-level encoding.
package frame

import (
	"github.com/pkg/errors"

	"github.com/nsnikhil/flacstream/internal/bitio"
)

// SyncCode is the 14-bit frame sync pattern, MSB-first: 11111111111110.
const SyncCode = 0x3FFE

// ChannelAssignment is the 4-bit channel-assignment field of a frame
// header. Values 0-7 name an independent-channel layout (0 is one channel,
// 1-7 are two channels); 8-10 select a two-channel decorrelated layout.
type ChannelAssignment uint8

// Two-channel decorrelated layouts.
const (
	LeftSide  ChannelAssignment = 8
	RightSide ChannelAssignment = 9
	MidSide   ChannelAssignment = 10
)

// ChannelCount returns the number of channels implied by the assignment:
// 0 is mono, 1 is stereo, 2-7 and the decorrelated assignments 8-10 are all
// two channels.
func (c ChannelAssignment) ChannelCount() int {
	if c == 0 {
		return 1
	}
	return 2
}

// Header is a parsed FLAC frame header. It is rebuilt fresh for every frame;
// the driver keeps it through DECODE_SUBFRAMES, where its block size and
// channel assignment drive subframe decoding, and replaces it at the next
// frame header.
type Header struct {
	HasVariableBlockSize bool
	BlockSize            uint32 // number of samples per channel in this frame
	SampleRate           uint32
	ChannelAssignment    ChannelAssignment
	BitsPerSample        uint8
	FrameOrSampleNum     uint64
	CRC8                 uint8 // CRC-8 byte as read from the header; never checked
}

var sampleRateTable = [12]uint32{
	0: 0, // get from STREAMINFO
	1: 88200, 2: 176400, 3: 192000, 4: 8000, 5: 16000, 6: 22050,
	7: 24000, 8: 32000, 9: 44100, 10: 48000, 11: 96000,
}

// DecodeHeader reads one frame header from br. A BitsPerSample/SampleRate
// of 0 means "use the stream's STREAMINFO value"; the caller resolves that.
//
// ref: http://flac.sourceforge.net/format.html#frame_header
func DecodeHeader(br *bitio.Reader) (*Header, error) {
	br.EnableCRC()
	defer br.DisableCRC()

	sync := br.ReadUint(14)
	reserved := br.ReadUint(1)
	if br.Underflow() {
		return nil, errors.New("frame: bitreader underflow in header")
	}
	if sync != SyncCode {
		return nil, errors.Errorf("frame: invalid sync code %014b", sync)
	}
	if reserved != 0 {
		return nil, errors.New("frame: reserved header bit must be 0")
	}

	hdr := new(Header)
	hdr.HasVariableBlockSize = br.ReadUint(1) != 0

	blockSizeCode := br.ReadUint(4)
	sampleRateCode := br.ReadUint(4)
	chanAsgn := br.ReadUint(4)
	sampleSizeCode := br.ReadUint(3)
	reserved = br.ReadUint(1)
	if br.Underflow() {
		return nil, errors.New("frame: bitreader underflow in header")
	}
	if reserved != 0 {
		return nil, errors.New("frame: reserved header bit must be 0")
	}
	if chanAsgn > 10 {
		return nil, errors.Errorf("frame: reserved channel assignment %04b", chanAsgn)
	}
	hdr.ChannelAssignment = ChannelAssignment(chanAsgn)

	switch sampleSizeCode {
	case 0:
		hdr.BitsPerSample = 0 // use STREAMINFO
	case 1:
		hdr.BitsPerSample = 8
	case 2:
		hdr.BitsPerSample = 12
	case 4:
		hdr.BitsPerSample = 16
	case 5:
		hdr.BitsPerSample = 20
	case 6:
		hdr.BitsPerSample = 24
	default:
		return nil, errors.Errorf("frame: reserved sample size bit pattern %03b", sampleSizeCode)
	}

	num, err := decodeUTF8Int(br)
	if err != nil {
		return nil, err
	}
	hdr.FrameOrSampleNum = num

	switch {
	case blockSizeCode == 0:
		return nil, errors.New("frame: reserved block size bit pattern 0000")
	case blockSizeCode == 1:
		hdr.BlockSize = 192
	case blockSizeCode >= 2 && blockSizeCode <= 5:
		hdr.BlockSize = 576 << (blockSizeCode - 2)
	case blockSizeCode == 6:
		hdr.BlockSize = br.ReadUint(8) + 1
	case blockSizeCode == 7:
		hdr.BlockSize = br.ReadUint(16) + 1
	case blockSizeCode >= 8 && blockSizeCode <= 15:
		hdr.BlockSize = 256 << (blockSizeCode - 8)
	}

	switch {
	case sampleRateCode == 0:
		hdr.SampleRate = 0 // use STREAMINFO
	case sampleRateCode <= 11:
		hdr.SampleRate = sampleRateTable[sampleRateCode]
	case sampleRateCode == 12:
		hdr.SampleRate = br.ReadUint(8) * 1000
	case sampleRateCode == 13:
		hdr.SampleRate = br.ReadUint(16)
	case sampleRateCode == 14:
		hdr.SampleRate = br.ReadUint(16) * 10
	case sampleRateCode == 15:
		return nil, errors.New("frame: invalid sample rate bit pattern 1111")
	}

	got := br.ReadUint(8)
	if br.Underflow() {
		return nil, errors.New("frame: bitreader underflow in header")
	}
	hdr.CRC8 = uint8(got)

	return hdr, nil
}

// decodeUTF8Int decodes the FLAC-flavored UTF-8 coded integer used for the
// frame/sample number: up to 7 bytes, with the leading byte's run of
// leading one-bits giving the total byte count (1 means no continuation).
func decodeUTF8Int(br *bitio.Reader) (uint64, error) {
	first := br.ReadUint(8)
	if br.Underflow() {
		return 0, errors.New("frame: bitreader underflow decoding UTF-8 number")
	}
	if first&0x80 == 0 {
		return uint64(first), nil
	}
	var count int
	var mask byte = 0x40
	for count = 1; count < 7; count++ {
		if byte(first)&mask == 0 {
			break
		}
		mask >>= 1
	}
	val := uint64(first) & uint64(0xFF>>uint(count+1))
	for i := 1; i < count; i++ {
		b := br.ReadUint(8)
		if br.Underflow() {
			return 0, errors.New("frame: bitreader underflow decoding UTF-8 number")
		}
		if b&0xC0 != 0x80 {
			return 0, errors.New("frame: invalid UTF-8 continuation byte in frame number")
		}
		val = val<<6 | uint64(b&0x3F)
	}
	return val, nil
}
