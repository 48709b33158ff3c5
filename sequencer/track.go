package sequencer

import (
	"musplay/decoder"
	"musplay/program"
)

// Track is one stream of a program together with its own read cursor.
type Track struct {
	stream *program.Stream
	dec    decoder.Decoder
}

func newTrack(p *program.Program, s *program.Stream) (*Track, error) {
	d, err := p.Open(s)
	if err != nil {
		return nil, err
	}
	return &Track{stream: s, dec: d}, nil
}

func (t *Track) Stream() *program.Stream { return t.stream }
func (t *Track) Name() string            { return t.stream.Name }
func (t *Track) Len() int                { return t.dec.Len() }
func (t *Track) Position() int           { return t.dec.Position() }

// Remaining is the number of frames left before the end of the stream.
func (t *Track) Remaining() int {
	return t.dec.Len() - t.dec.Position()
}

func (t *Track) decode(samples [][2]float64) (int, bool, error) {
	return t.dec.Decode(samples)
}

// SeekTo moves the cursor to frame.
func (t *Track) SeekTo(frame int) error {
	return t.dec.Seek(frame)
}

// Rewind moves the cursor back to the first frame.
func (t *Track) Rewind() error {
	return t.dec.Seek(0)
}

func (t *Track) Close() error {
	return t.dec.Close()
}
