package frame

import (
	"github.com/pkg/errors"

	"github.com/nsnikhil/flacstream/internal/bitio"
)

// DecodeResidual reads the residual coding method, partition order, and
// partitioned Rice (or escape-coded raw) residuals, writing decoded values
// into out[warmup:numSamples]. out[:warmup] must already hold the warm-up
// samples; they are not touched.
//
// ref: http://flac.sourceforge.net/format.html#residual
func DecodeResidual(br *bitio.Reader, warmup int, numSamples int, out []int32) error {
	method := br.ReadUint(2)
	if br.Underflow() {
		return errors.New("frame: bitreader underflow reading residual method")
	}
	var paramBits uint
	var escape uint32
	switch method {
	case 0:
		paramBits, escape = 4, 0xF
	case 1:
		paramBits, escape = 5, 0x1F
	default:
		return errors.Errorf("frame: reserved residual coding method %02b", method)
	}

	partitionOrder := br.ReadUint(4)
	if br.Underflow() {
		return errors.New("frame: bitreader underflow reading partition order")
	}
	numPartitions := 1 << partitionOrder
	if numSamples%numPartitions != 0 {
		return errors.Errorf("frame: block size %d not divisible by %d rice partitions", numSamples, numPartitions)
	}
	partitionSize := numSamples / numPartitions

	for i := 0; i < numPartitions; i++ {
		start := i * partitionSize
		if i == 0 {
			start += warmup
		}
		end := (i + 1) * partitionSize

		param := br.ReadUint(paramBits)
		if br.Underflow() {
			return errors.New("frame: bitreader underflow reading rice parameter")
		}
		if param < escape {
			for j := start; j < end; j++ {
				out[j] = int32(br.ReadRiceSigned(uint(param)))
			}
		} else {
			numBits := br.ReadUint(5)
			if br.Underflow() {
				return errors.New("frame: bitreader underflow reading escape bit width")
			}
			for j := start; j < end; j++ {
				out[j] = br.ReadSignedInt(uint(numBits))
			}
		}
	}

	if br.Underflow() {
		return errors.New("frame: bitreader underflow decoding residual partitions")
	}
	return nil
}
