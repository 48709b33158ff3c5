// Package decoder adapts compressed audio streams to a pull interface that
// produces stereo float frames, one block at a time.
package decoder

import (
	"fmt"

	"github.com/gopxl/beep/v2"
)

// Format describes the PCM layout a decoder produces.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameSize is the size in bytes of one 16-bit PCM frame.
func (f Format) FrameSize() int {
	return f.Channels * 2
}

// Beep returns the equivalent beep format.
func (f Format) Beep() beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(f.SampleRate),
		NumChannels: f.Channels,
		Precision:   2,
	}
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Decoder is a pull-style decoder over one stream.
//
// Decode fills at most len(samples) frames and reports end-of-stream on the
// call that exhausts the stream; that call may produce zero frames when the
// previous one consumed the last frame exactly. Mono streams fill both
// channels of a frame with the same value.
//
// A failure in the middle of the stream is returned as a *DecodeError and the
// decoder must then be considered exhausted.
type Decoder interface {
	Format() Format
	Len() int
	Position() int
	Decode(samples [][2]float64) (n int, eos bool, err error)
	Seek(frame int) error
	Close() error
}

// Opener resolves a stream identifier into a fresh Decoder.
type Opener interface {
	Open(id string) (Decoder, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(id string) (Decoder, error)

func (f OpenerFunc) Open(id string) (Decoder, error) {
	return f(id)
}
