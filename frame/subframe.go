package frame

import (
	"github.com/pkg/errors"

	"github.com/nsnikhil/flacstream/internal/bitio"
)

// predMethod is the subframe prediction method named by the 6-bit subframe
// type code.
type predMethod uint8

const (
	predConstant predMethod = iota
	predVerbatim
	predFixed
	predLPC
)

// fixedCoeffs maps a FIXED predictor order to its hard-coded coefficients.
//
//	x_0[n] = 0
//	x_1[n] = x[n-1]
//	x_2[n] = 2*x[n-1] - x[n-2]
//	x_3[n] = 3*x[n-1] - 3*x[n-2] + x[n-3]
//	x_4[n] = 4*x[n-1] - 6*x[n-2] + 4*x[n-3] - x[n-4]
var fixedCoeffs = [5][]int32{
	0: {},
	1: {1},
	2: {2, -1},
	3: {3, -3, 1},
	4: {4, -6, 4, -1},
}

// DecodeSubframe decodes one channel's subframe into out[:numSamples]. depth
// is the effective sample depth for this subframe (already adjusted by the
// caller for the decorrelated "side" channel in assignments 8-10).
// coeffScratch is reused across subframes to avoid a per-subframe
// allocation for the LPC/FIXED coefficient list.
//
// ref: http://flac.sourceforge.net/format.html#subframe
func DecodeSubframe(br *bitio.Reader, depth uint, numSamples int, out []int32, coeffScratch *[32]int32) error {
	padding := br.ReadUint(1)
	typeCode := br.ReadUint(6)
	if br.Underflow() {
		return errors.New("frame: bitreader underflow in subframe header")
	}
	if padding != 0 {
		return errors.New("frame: invalid subframe padding; must be 0")
	}

	hasWasted := br.ReadUint(1)
	var wasted uint
	if hasWasted != 0 {
		wasted = uint(br.ReadUnary()) + 1
	}
	if br.Underflow() {
		return errors.New("frame: bitreader underflow reading wasted bits")
	}
	effectiveDepth := depth - wasted

	var (
		method predMethod
		order  int
	)
	switch {
	case typeCode == 0:
		method, order = predConstant, 0
	case typeCode == 1:
		method, order = predVerbatim, 0
	case typeCode < 8:
		return errors.Errorf("frame: reserved subframe type %06b", typeCode)
	case typeCode < 16:
		order = int(typeCode & 0x07)
		if order > 4 {
			return errors.Errorf("frame: reserved subframe type %06b", typeCode)
		}
		method = predFixed
	case typeCode < 32:
		return errors.Errorf("frame: reserved subframe type %06b", typeCode)
	default:
		method = predLPC
		order = int(typeCode&0x1F) + 1
	}

	var err error
	switch method {
	case predConstant:
		err = decodeConstant(br, effectiveDepth, out[:numSamples])
	case predVerbatim:
		err = decodeVerbatim(br, effectiveDepth, out[:numSamples])
	case predFixed:
		err = decodeFixed(br, order, effectiveDepth, numSamples, out)
	case predLPC:
		err = decodeLPC(br, order, effectiveDepth, numSamples, out, coeffScratch)
	}
	if err != nil {
		return err
	}

	if wasted > 0 {
		for i := 0; i < numSamples; i++ {
			out[i] <<= wasted
		}
	}
	return nil
}

func decodeConstant(br *bitio.Reader, depth uint, out []int32) error {
	s := br.ReadSignedInt(depth)
	if br.Underflow() {
		return errors.New("frame: bitreader underflow in CONSTANT subframe")
	}
	for i := range out {
		out[i] = s
	}
	return nil
}

func decodeVerbatim(br *bitio.Reader, depth uint, out []int32) error {
	for i := range out {
		out[i] = br.ReadSignedInt(depth)
	}
	if br.Underflow() {
		return errors.New("frame: bitreader underflow in VERBATIM subframe")
	}
	return nil
}

func decodeFixed(br *bitio.Reader, order int, depth uint, numSamples int, out []int32) error {
	for i := 0; i < order; i++ {
		out[i] = br.ReadSignedInt(depth)
	}
	if err := DecodeResidual(br, order, numSamples, out); err != nil {
		return err
	}
	restoreLinearPrediction(out[:numSamples], fixedCoeffs[order], 0)
	return nil
}

func decodeLPC(br *bitio.Reader, order int, depth uint, numSamples int, out []int32, coeffScratch *[32]int32) error {
	for i := 0; i < order; i++ {
		out[i] = br.ReadSignedInt(depth)
	}

	precisionCode := br.ReadUint(4)
	if precisionCode == 0xF {
		return errors.New("frame: invalid quantized LPC precision; reserved bit pattern 1111")
	}
	precision := uint(precisionCode) + 1
	shiftSigned := br.ReadSignedInt(5)
	if br.Underflow() {
		return errors.New("frame: bitreader underflow in LPC header")
	}

	coeffs := coeffScratch[:order]
	for i := 0; i < order; i++ {
		coeffs[i] = br.ReadSignedInt(precision)
	}
	if br.Underflow() {
		return errors.New("frame: bitreader underflow reading LPC coefficients")
	}

	if err := DecodeResidual(br, order, numSamples, out); err != nil {
		return err
	}
	// shiftSigned is specified as signed two's complement but is never
	// negative in a conforming stream; restoreLinearPrediction takes the
	// magnitude as an arithmetic right-shift amount.
	if shiftSigned < 0 {
		shiftSigned = -shiftSigned
	}
	restoreLinearPrediction(out[:numSamples], coeffs, uint(shiftSigned))
	return nil
}

// restoreLinearPrediction reconstructs out[order:] in place from the warm-up
// samples already in out[:order] and the residuals already in
// out[order:numSamples], applying the FIR recurrence
// out[i] += (sum_j coeffs[j]*out[i-1-j]) >> shift.
func restoreLinearPrediction(out []int32, coeffs []int32, shift uint) {
	order := len(coeffs)
	for i := order; i < len(out); i++ {
		var sum int64
		for j, c := range coeffs {
			sum += int64(c) * int64(out[i-1-j])
		}
		out[i] += int32(sum >> shift)
	}
}
