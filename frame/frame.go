package frame

import (
	"github.com/pkg/errors"

	"github.com/nsnikhil/flacstream/internal/bitio"
)

// DecodeSubframes decodes one subframe per channel named by hdr's channel
// assignment and, for the two-channel decorrelated assignments (8-10),
// reconstructs left/right from the decoded mid/side or left/side pair.
// samples holds one reusable []int32 per channel (at least hdr.BlockSize
// long); coeffScratch is reused across subframes within the frame.
//
// ref: http://flac.sourceforge.net/format.html#frame_subframes
func DecodeSubframes(br *bitio.Reader, hdr *Header, bitsPerSample uint, samples [][]int32, coeffScratch *[32]int32) error {
	numSamples := int(hdr.BlockSize)
	asgn := hdr.ChannelAssignment

	switch {
	case asgn <= 7:
		for ch := 0; ch < asgn.ChannelCount(); ch++ {
			if err := DecodeSubframe(br, bitsPerSample, numSamples, samples[ch], coeffScratch); err != nil {
				return errors.Wrapf(err, "channel %d", ch)
			}
		}
		return nil

	case asgn >= LeftSide && asgn <= MidSide:
		depth0, depth1 := bitsPerSample, bitsPerSample
		if asgn == RightSide {
			depth0++
		} else {
			depth1++
		}
		if err := DecodeSubframe(br, depth0, numSamples, samples[0], coeffScratch); err != nil {
			return errors.Wrap(err, "channel 0")
		}
		if err := DecodeSubframe(br, depth1, numSamples, samples[1], coeffScratch); err != nil {
			return errors.Wrap(err, "channel 1")
		}

		left, side := samples[0], samples[1]
		switch asgn {
		case LeftSide:
			for i := 0; i < numSamples; i++ {
				side[i] = left[i] - side[i]
			}
		case RightSide:
			for i := 0; i < numSamples; i++ {
				left[i] += side[i]
			}
		case MidSide:
			for i := 0; i < numSamples; i++ {
				s := side[i]
				right := left[i] - (s >> 1)
				side[i] = right
				left[i] = right + s
			}
		}
		return nil

	default:
		return errors.Errorf("frame: reserved channel assignment %d", asgn)
	}
}
