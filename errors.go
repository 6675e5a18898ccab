package flac

import "github.com/pkg/errors"

// Sentinel errors of the root package. Decode returns three of them,
// wrapped with context via errors.Wrapf: ErrUnsupportedChannelAssignment,
// ErrBitsPerSampleRange and ErrBlockSizeTooLarge. No code path returns the
// others; failures inside the frame, meta and ogg packages come back as
// those packages' own wrapped errors. The pinned github.com/pkg/errors
// wrappers have no Unwrap method, so callers recover a sentinel with
// errors.Cause and compare it directly.
var (
	// ErrMissingFlacSignature reports that the "fLaC" identification
	// packet was expected but not found.
	ErrMissingFlacSignature = errors.New("flac: missing \"fLaC\" signature")
	// ErrMissingOggSignature reports that an Ogg page was expected at
	// the decoder's current input offset but "OggS" was not found there.
	ErrMissingOggSignature = errors.New("flac: missing \"OggS\" signature")
	// ErrEmptySegmentTable reports that an Ogg page's segment table was
	// consumed to completion while the demuxer still expected a segment.
	ErrEmptySegmentTable = errors.New("flac: ogg segment table exhausted")
	// ErrDesynced reports a frame header whose sync code didn't match;
	// the driver cannot keep decoding without a resync.
	ErrDesynced = errors.New("flac: frame desynchronized")

	// ErrUnsupportedSubframeType reports a reserved subframe type code.
	ErrUnsupportedSubframeType = errors.New("flac: unsupported subframe type")
	// ErrUnsupportedResidualMethod reports a reserved residual coding
	// method code.
	ErrUnsupportedResidualMethod = errors.New("flac: unsupported residual coding method")
	// ErrUnsupportedChannelAssignment reports a frame whose channel count
	// is outside 1 to the configured maximum. Reserved assignment codes
	// 11-15 are rejected earlier by frame.DecodeHeader with its own error.
	ErrUnsupportedChannelAssignment = errors.New("flac: unsupported channel assignment")
	// ErrUnsupportedMetadataBlock reports an APPLICATION, SEEKTABLE, or
	// CUESHEET block: structurally valid but not decoded.
	ErrUnsupportedMetadataBlock = errors.New("flac: unsupported metadata block type")
	// ErrBitsPerSampleRange reports a bits-per-sample value outside 8-16.
	ErrBitsPerSampleRange = errors.New("flac: bits per sample out of range")
	// ErrBlockSizeTooLarge reports a block size exceeding the decoder's
	// configured MaxBlockSize.
	ErrBlockSizeTooLarge = errors.New("flac: block size exceeds configured limit")

	// ErrPartitionCount reports a block size not evenly divisible by the
	// residual partition count.
	ErrPartitionCount = errors.New("flac: block size not divisible by partition count")
	// ErrPredictorOrder reports a FIXED subframe predictor order above 4.
	ErrPredictorOrder = errors.New("flac: fixed predictor order greater than 4")

	// ErrBitreaderUnderflow reports that a read ran past the bytes
	// available in the current input buffer.
	ErrBitreaderUnderflow = errors.New("flac: bitreader underflow")

	// ErrNotInitialized reports a call to an accessor before enough of
	// the stream has been decoded to answer it.
	ErrNotInitialized = errors.New("flac: decoder not yet initialized")
)
