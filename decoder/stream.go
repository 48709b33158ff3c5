package decoder

import (
	"errors"

	"github.com/gopxl/beep/v2"
)

var errShortStream = errors.New("stream ended before its declared length")

// streamDecoder adapts a seekable beep streamer to the Decoder contract.
type streamDecoder struct {
	id     string
	s      beep.StreamSeekCloser
	format Format
	pos    int
	done   bool
}

var _ Decoder = (*streamDecoder)(nil)

// NewStream wraps a beep streamer. The streamer is owned by the returned
// decoder and closed with it.
func NewStream(id string, s beep.StreamSeekCloser, format beep.Format) Decoder {
	return &streamDecoder{
		id: id,
		s:  s,
		format: Format{
			SampleRate: int(format.SampleRate),
			Channels:   format.NumChannels,
		},
	}
}

func (d *streamDecoder) Format() Format { return d.format }
func (d *streamDecoder) Len() int       { return d.s.Len() }
func (d *streamDecoder) Position() int  { return d.pos }

func (d *streamDecoder) Decode(samples [][2]float64) (int, bool, error) {
	if d.done {
		return 0, true, nil
	}

	want := min(len(samples), d.s.Len()-d.pos)
	n := 0
	for n < want {
		m, ok := d.s.Stream(samples[n:want])
		n += m
		if !ok || m == 0 {
			break
		}
	}
	d.pos += n

	if err := d.s.Err(); err != nil {
		d.done = true
		return n, true, &DecodeError{ID: d.id, Frame: d.pos, Err: err}
	}
	if n < want {
		d.done = true
		return n, true, &DecodeError{ID: d.id, Frame: d.pos, Err: errShortStream}
	}
	if d.pos >= d.s.Len() {
		d.done = true
		return n, true, nil
	}
	return n, false, nil
}

func (d *streamDecoder) Seek(frame int) error {
	frame = max(0, min(frame, d.s.Len()))
	if err := d.s.Seek(frame); err != nil {
		return &DecodeError{ID: d.id, Frame: frame, Err: err}
	}
	d.pos = frame
	d.done = false
	return nil
}

func (d *streamDecoder) Close() error {
	return d.s.Close()
}
