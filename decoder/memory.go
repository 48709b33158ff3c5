package decoder

import "fmt"

// PCM is an immutable decoded stream kept in memory. Any number of decoders
// may read it concurrently, each with its own cursor.
type PCM struct {
	format Format
	frames [][2]float64
}

// NewPCM takes ownership of frames; callers must not modify them afterwards.
func NewPCM(format Format, frames [][2]float64) *PCM {
	return &PCM{format: format, frames: frames}
}

// PCMFromInt16 builds a PCM from interleaved 16-bit samples.
func PCMFromInt16(format Format, interleaved []int16) *PCM {
	ch := max(format.Channels, 1)
	frames := make([][2]float64, len(interleaved)/ch)
	for i := range frames {
		l := float64(interleaved[i*ch]) / 32768
		r := l
		if ch > 1 {
			r = float64(interleaved[i*ch+1]) / 32768
		}
		frames[i] = [2]float64{l, r}
	}
	return NewPCM(format, frames)
}

func (p *PCM) Format() Format { return p.format }
func (p *PCM) Len() int       { return len(p.frames) }

// Frames returns the shared frame slice. It must be treated as read-only.
func (p *PCM) Frames() [][2]float64 { return p.frames }

// NewDecoder returns a decoder with a fresh cursor over p.
func (p *PCM) NewDecoder(id string) Decoder {
	return &memoryDecoder{id: id, pcm: p}
}

type memoryDecoder struct {
	id   string
	pcm  *PCM
	pos  int
	done bool
}

func (d *memoryDecoder) Format() Format { return d.pcm.format }
func (d *memoryDecoder) Len() int       { return d.pcm.Len() }
func (d *memoryDecoder) Position() int  { return d.pos }

func (d *memoryDecoder) Decode(samples [][2]float64) (int, bool, error) {
	if d.done {
		return 0, true, nil
	}
	n := copy(samples, d.pcm.frames[d.pos:])
	d.pos += n
	if d.pos == len(d.pcm.frames) {
		d.done = true
		return n, true, nil
	}
	return n, false, nil
}

func (d *memoryDecoder) Seek(frame int) error {
	if frame < 0 || frame > d.pcm.Len() {
		return fmt.Errorf("seek %s: frame %d out of range [0, %d]", d.id, frame, d.pcm.Len())
	}
	d.pos = frame
	d.done = false
	return nil
}

func (d *memoryDecoder) Close() error { return nil }

// MemoryResolver opens in-memory streams by identifier.
type MemoryResolver map[string]*PCM

func (m MemoryResolver) Open(id string) (Decoder, error) {
	p, ok := m[id]
	if !ok {
		return nil, &StreamOpenError{ID: id, Err: fmt.Errorf("no such stream")}
	}
	return p.NewDecoder(id), nil
}
