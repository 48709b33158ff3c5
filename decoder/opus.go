package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hraban/opus"
)

// OpusFormat is the layout of packet streams that carry no header of their own.
var OpusFormat = Format{SampleRate: 48000, Channels: 2}

// 120ms at 48kHz, the longest frame an opus packet can carry.
const maxOpusFrame = 5760

// DecodeOpusPackets reads a stream of opus packets, each prefixed by its
// size as a big-endian uint16, and decodes it entirely into memory.
func DecodeOpusPackets(r io.Reader, format Format) (*PCM, error) {
	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	out := make([]int16, maxOpusFrame*format.Channels)
	var samples []int16
	for packet := 0; ; packet++ {
		var sz uint16
		if err := binary.Read(r, binary.BigEndian, &sz); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("packet %d header: %w", packet, err)
		}

		enc := make([]byte, sz)
		if _, err := io.ReadFull(r, enc); err != nil {
			return nil, fmt.Errorf("packet %d: %w", packet, err)
		}

		n, err := dec.Decode(enc, out)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w", packet, err)
		}
		samples = append(samples, out[:n*format.Channels]...)
	}

	return PCMFromInt16(format, samples), nil
}

// EncodeOpusPackets is the inverse of DecodeOpusPackets. frameSize is the
// number of samples per channel in each packet; a trailing partial frame is
// padded with silence.
func EncodeOpusPackets(w io.Writer, format Format, interleaved []int16, frameSize int) error {
	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	step := frameSize * format.Channels
	pcm := make([]int16, step)
	buf := make([]byte, 1500)
	for i := 0; i < len(interleaved); i += step {
		clear(pcm)
		copy(pcm, interleaved[i:min(i+step, len(interleaved))])

		n, err := enc.Encode(pcm, buf)
		if err != nil {
			return fmt.Errorf("encode frame at %d: %w", i/format.Channels, err)
		}
		if err := binary.Write(w, binary.BigEndian, uint16(n)); err != nil {
			return err
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}
