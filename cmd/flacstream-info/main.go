// flacstream-info decodes a FLAC (or Ogg FLAC) file through the incremental
// Decode API, printing the stream parameters it discovers and writing the
// decoded PCM to a sibling .wav file.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	flacstream "github.com/nsnikhil/flacstream"
	"github.com/mewkiz/pkg/pathutil"
)

var flagForce bool

func init() {
	flag.BoolVar(&flagForce, "f", false, "force overwrite of an existing .wav file")
}

func main() {
	flag.Parse()
	for _, path := range flag.Args() {
		if err := run(path); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

// inBufSize is the chunk size fed to Decode per call. It comfortably
// exceeds the decoder's default max block size so frame decoding isn't
// perpetually starved of input.
const inBufSize = 32 * 1024

func run(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	dec, err := flacstream.New()
	if err != nil {
		return errors.WithStack(err)
	}

	wavPath := pathutil.TrimExt(path) + ".wav"
	if !flagForce {
		if _, err := os.Stat(wavPath); err == nil {
			return errors.Errorf("the file %q exists already", wavPath)
		}
	}
	fw, err := os.Create(wavPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer fw.Close()

	var enc *wav.Encoder
	buf := make([]byte, inBufSize)
	out := make([]int16, inBufSize)

	filled := 0 // bytes of buf holding unconsumed, undecoded input
	eof := false
	for {
		if !eof && filled < len(buf) {
			n, readErr := f.Read(buf[filled:])
			filled += n
			if readErr == io.EOF {
				eof = true
			} else if readErr != nil {
				return errors.WithStack(readErr)
			}
		}
		if filled == 0 {
			break
		}

		bytesLeft := filled
		status, decErr := dec.Decode(buf[:filled], &bytesLeft, out)
		if decErr != nil {
			return errors.WithStack(decErr)
		}
		consumed := filled - bytesLeft
		if consumed > 0 {
			copy(buf, buf[consumed:filled])
			filled -= consumed
		}

		if valid := dec.OutputSamples(); valid > 0 {
			if enc == nil {
				enc = wav.NewEncoder(fw, int(dec.SampleRate()), dec.BitsPerSample(), dec.Channels(), 1)
			}
			if err := writePCM(enc, out[:valid], dec.Channels()); err != nil {
				return errors.WithStack(err)
			}
		}
		if status == flacstream.StatusErr || status == flacstream.StatusStop {
			return errors.Errorf("decode stopped: status %v", status)
		}
		if status == flacstream.StatusDecodeFramesLoop && eof && consumed == 0 {
			break // stream ended with a dangling partial frame
		}
	}

	if title, ok := dec.StreamTitle(); ok {
		fmt.Printf("%s: %s\n", path, title)
	}
	fmt.Printf("%s: %d ch, %d Hz, %d bps, %d samples, ~%d bps bitrate\n",
		path, dec.Channels(), dec.SampleRate(), dec.BitsPerSample(), dec.TotalSamples(), dec.Bitrate())

	if enc != nil {
		return errors.WithStack(enc.Close())
	}
	return nil
}

func writePCM(enc *wav.Encoder, samples []int16, channels int) error {
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels},
		Data:   data,
	}
	return enc.Write(buf)
}
