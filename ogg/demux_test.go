package ogg

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"
)

func blockHeaderBytes(isLast bool, typ byte, length int) []byte {
	var b [4]byte
	b[0] = typ
	if isLast {
		b[0] |= 0x80
	}
	b[1] = byte(length >> 16)
	b[2] = byte(length >> 8)
	b[3] = byte(length)
	return b[:]
}

func streamInfoBody() []byte {
	var buf bytes.Buffer
	var word1 uint64
	word1 |= uint64(4096) << 48
	word1 |= uint64(4096) << 32
	word1 |= uint64(1000) << 8
	binary.Write(&buf, binary.BigEndian, word1)
	binary.Write(&buf, binary.BigEndian, uint16(2000))
	var word2 uint64
	word2 |= uint64(44100) << 44
	word2 |= uint64(1) << 41
	word2 |= uint64(15) << 36
	word2 |= uint64(1000)
	binary.Write(&buf, binary.BigEndian, word2)
	buf.Write(make([]byte, 16))
	return buf.Bytes()
}

func vorbisCommentBody(vendor string, entries map[string]string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(vendor)))
	buf.WriteString(vendor)
	binary.Write(&buf, binary.LittleEndian, uint32(len(entries)))
	for k, v := range entries {
		entry := k + "=" + v
		binary.Write(&buf, binary.LittleEndian, uint32(len(entry)))
		buf.WriteString(entry)
	}
	return buf.Bytes()
}

func TestDemuxerIdentificationThenMetadataToAudio(t *testing.T) {
	d := NewDemuxer(0)
	if d.PageNr() != PageIdentification {
		t.Fatal("expected initial PageIdentification")
	}
	if _, err := d.HandleSegment([]byte("fLaC")); err != nil {
		t.Fatalf("identification segment: %v", err)
	}
	if d.PageNr() != PageMetadata {
		t.Fatal("expected PageMetadata after fLaC")
	}

	si := streamInfoBody()
	vc := vorbisCommentBody("flacstream", map[string]string{"ARTIST": "A", "TITLE": "B"})
	var segment bytes.Buffer
	segment.Write(blockHeaderBytes(false, 0, len(si)))
	segment.Write(si)
	segment.Write(blockHeaderBytes(true, 4, len(vc)))
	segment.Write(vc)

	if _, err := d.HandleSegment(segment.Bytes()); err != nil {
		t.Fatalf("metadata segment: %v", err)
	}
	if d.PageNr() != PageAudio {
		t.Fatal("expected PageAudio after last metadata block")
	}
	if d.StreamInfo() == nil || d.StreamInfo().SampleRate != 44100 {
		t.Fatalf("stream info not captured correctly: %+v", d.StreamInfo())
	}
	title, ok := d.TakeStreamTitle()
	if !ok || title != "A - B" {
		t.Fatalf("stream title: got %q, ok=%v", title, ok)
	}
	if _, ok := d.TakeStreamTitle(); ok {
		t.Fatal("expected single-shot stream title to be consumed")
	}
}

func TestDemuxerHandleSegmentAudio(t *testing.T) {
	d := NewDemuxer(0)
	d.pageNr = PageAudio
	res, err := d.HandleSegment([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsAudio {
		t.Fatal("expected IsAudio true")
	}
}

func TestDemuxerRejectsMissingIdentification(t *testing.T) {
	d := NewDemuxer(0)
	if _, err := d.HandleSegment([]byte("nope")); err == nil {
		t.Fatal("expected error for missing fLaC signature")
	}
}

func smallPictureBytes(t *testing.T, dataLen int) []byte {
	t.Helper()
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(3)) // cover, front
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(0)) // width
	binary.Write(&buf, binary.BigEndian, uint32(0)) // height
	binary.Write(&buf, binary.BigEndian, uint32(0)) // depth
	binary.Write(&buf, binary.BigEndian, uint32(0)) // color count
	binary.Write(&buf, binary.BigEndian, uint32(dataLen))
	buf.Write(bytes.Repeat([]byte{0xAB}, dataLen))
	return buf.Bytes()
}

// TestDemuxerPictureSpansManyPages mirrors the "oversized picture across 13
// pages" scenario: a VORBIS_COMMENT block carrying an embedded
// METADATA_BLOCK_PICTURE tag whose value does not fit in the segment that
// introduces the block, requiring cross-page accumulation to complete.
func TestDemuxerPictureSpansManyPages(t *testing.T) {
	d := NewDemuxer(0)
	if _, err := d.HandleSegment([]byte("fLaC")); err != nil {
		t.Fatalf("identification: %v", err)
	}

	raw := smallPictureBytes(t, 3000)
	b64 := base64.StdEncoding.EncodeToString(raw)
	vcBody := vorbisCommentBody("flacstream", map[string]string{"METADATA_BLOCK_PICTURE": b64})

	var full bytes.Buffer
	full.Write(blockHeaderBytes(true, 4, len(vcBody)))
	full.Write(vcBody)
	fullBytes := full.Bytes()

	const numPages = 13
	chunkSize := (len(fullBytes) + numPages - 1) / numPages

	for i := 0; i < numPages; i++ {
		start := i * chunkSize
		if start >= len(fullBytes) {
			break
		}
		end := start + chunkSize
		if end > len(fullBytes) {
			end = len(fullBytes)
		}
		if _, err := d.HandleSegment(fullBytes[start:end]); err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		if d.PageNr() == PageAudio {
			break
		}
	}

	if d.PageNr() != PageAudio {
		t.Fatalf("expected PageAudio once the block completes, got %v", d.PageNr())
	}
	pic, ok := d.TakePicture()
	if !ok {
		t.Fatal("expected a completed picture")
	}
	if pic.MIME != "" || len(pic.Data) != 3000 {
		t.Fatalf("picture mismatch: mime=%q dataLen=%d", pic.MIME, len(pic.Data))
	}

	slices := d.TakeMetadataBlockPicture()
	if len(slices) == 0 {
		t.Fatal("expected at least one picture slice")
	}
	var total int
	for _, s := range slices {
		total += len(s.Data)
	}
	if total != len(b64) {
		t.Fatalf("slice lengths sum to %d, want %d (base64 descriptor length)", total, len(b64))
	}
	if got := d.TakeMetadataBlockPicture(); got != nil {
		t.Fatal("expected single-shot slice accessor to be consumed")
	}
}
