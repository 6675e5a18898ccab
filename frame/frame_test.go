package frame_test

import (
	"testing"

	"github.com/nsnikhil/flacstream/frame"
	"github.com/nsnikhil/flacstream/internal/bitio"
)

// bitWriter packs MSB-first bits, the write-side counterpart to
// bitio.Reader used only to build minimal subframe/residual bitstreams for
// these tests.
type bitWriter struct {
	buf   []byte
	cur   byte
	nbits uint
}

func (w *bitWriter) writeBits(v uint32, n uint) {
	for i := n; i > 0; i-- {
		bit := byte((v >> (i - 1)) & 1)
		w.cur = w.cur<<1 | bit
		w.nbits++
		if w.nbits == 8 {
			w.buf = append(w.buf, w.cur)
			w.cur, w.nbits = 0, 0
		}
	}
}

func (w *bitWriter) writeSigned(v int32, n uint) {
	w.writeBits(uint32(v)&((1<<n)-1), n)
}

func (w *bitWriter) flush() []byte {
	if w.nbits > 0 {
		w.cur <<= (8 - w.nbits)
		w.buf = append(w.buf, w.cur)
		w.cur, w.nbits = 0, 0
	}
	return append(w.buf, 0, 0, 0, 0, 0, 0, 0, 0) // trailing filler past the subframe
}

func newReader(buf []byte) *bitio.Reader {
	left := len(buf)
	return bitio.NewReader(buf, &left)
}

func TestDecodeSubframeConstant(t *testing.T) {
	w := &bitWriter{}
	w.writeBits(0, 1) // padding
	w.writeBits(0, 6) // CONSTANT
	w.writeBits(0, 1) // no wasted bits
	w.writeSigned(-42, 16)
	br := newReader(w.flush())

	out := make([]int32, 4)
	var scratch [32]int32
	if err := frame.DecodeSubframe(br, 16, 4, out, &scratch); err != nil {
		t.Fatalf("DecodeSubframe: %v", err)
	}
	for i, v := range out {
		if v != -42 {
			t.Fatalf("sample %d: got %d, want -42", i, v)
		}
	}
}

func TestDecodeSubframeVerbatim(t *testing.T) {
	want := []int32{100, -100, 32767, -32768}
	w := &bitWriter{}
	w.writeBits(0, 1)
	w.writeBits(1, 6) // VERBATIM
	w.writeBits(0, 1)
	for _, v := range want {
		w.writeSigned(v, 16)
	}
	br := newReader(w.flush())

	out := make([]int32, len(want))
	var scratch [32]int32
	if err := frame.DecodeSubframe(br, 16, len(want), out, &scratch); err != nil {
		t.Fatalf("DecodeSubframe: %v", err)
	}
	for i, v := range want {
		if out[i] != v {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], v)
		}
	}
}

func TestDecodeSubframeWastedBits(t *testing.T) {
	w := &bitWriter{}
	w.writeBits(0, 1)
	w.writeBits(0, 6) // CONSTANT
	w.writeBits(1, 1) // wasted bits present
	w.writeBits(0, 1) // unary: two 0 bits then a terminating 1 -> count 2
	w.writeBits(0, 1)
	w.writeBits(1, 1) // -> 3 wasted bits (unary value + 1)
	w.writeSigned(5, 13)
	br := newReader(w.flush())

	out := make([]int32, 2)
	var scratch [32]int32
	if err := frame.DecodeSubframe(br, 16, 2, out, &scratch); err != nil {
		t.Fatalf("DecodeSubframe: %v", err)
	}
	want := int32(5 << 3)
	for i, v := range out {
		if v != want {
			t.Fatalf("sample %d: got %d, want %d", i, v, want)
		}
	}
}

func TestDecodeResidualEscapeCode(t *testing.T) {
	w := &bitWriter{}
	w.writeBits(0, 2)  // method 0
	w.writeBits(0, 4)  // partition order 0
	w.writeBits(0xF, 4) // escape parameter
	w.writeBits(5, 5)   // escape bit width
	w.writeSigned(-7, 5)
	w.writeSigned(3, 5)
	br := newReader(w.flush())

	out := make([]int32, 3) // warmup=1
	if err := frame.DecodeResidual(br, 1, 3, out); err != nil {
		t.Fatalf("DecodeResidual: %v", err)
	}
	if out[1] != -7 || out[2] != 3 {
		t.Fatalf("got out[1]=%d out[2]=%d, want -7, 3", out[1], out[2])
	}
}

func TestChannelAssignmentChannelCount(t *testing.T) {
	cases := []struct {
		asgn frame.ChannelAssignment
		want int
	}{
		{0, 1}, {1, 2}, {3, 2}, {7, 2},
		{frame.LeftSide, 2}, {frame.RightSide, 2}, {frame.MidSide, 2},
	}
	for _, c := range cases {
		if got := c.asgn.ChannelCount(); got != c.want {
			t.Errorf("ChannelCount(%d): got %d, want %d", c.asgn, got, c.want)
		}
	}
}

func TestDecodeSubframesMidSide(t *testing.T) {
	w := &bitWriter{}
	mid := []int32{10, 10}
	side := []int32{0, 2}
	w.writeBits(0, 1)
	w.writeBits(1, 6) // VERBATIM
	w.writeBits(0, 1)
	for _, s := range mid {
		w.writeSigned(s, 16)
	}
	w.writeBits(0, 1)
	w.writeBits(1, 6)
	w.writeBits(0, 1)
	for _, s := range side {
		w.writeSigned(s, 17)
	}
	br := newReader(w.flush())

	hdr := &frame.Header{BlockSize: 2, ChannelAssignment: frame.MidSide}
	samples := [][]int32{make([]int32, 2), make([]int32, 2)}
	var scratch [32]int32
	if err := frame.DecodeSubframes(br, hdr, 16, samples, &scratch); err != nil {
		t.Fatalf("DecodeSubframes: %v", err)
	}
	wantL := []int32{10, 11}
	wantR := []int32{10, 9}
	for i := range wantL {
		if samples[0][i] != wantL[i] || samples[1][i] != wantR[i] {
			t.Fatalf("sample %d: got L=%d R=%d, want L=%d R=%d", i, samples[0][i], samples[1][i], wantL[i], wantR[i])
		}
	}
}

func TestDecodeHeaderRejectsBadSync(t *testing.T) {
	w := &bitWriter{}
	w.writeBits(0, 14) // not the sync code
	w.writeBits(0, 1)
	br := newReader(w.flush())
	if _, err := frame.DecodeHeader(br); err == nil {
		t.Fatal("expected error for invalid sync code")
	}
}
