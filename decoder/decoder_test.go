package decoder

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func ramp(n int) [][2]float64 {
	frames := make([][2]float64, n)
	for i := range frames {
		v := float64(i) / float64(n)
		frames[i] = [2]float64{v, -v}
	}
	return frames
}

func writeWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryDecoderSignalsEndOnExhaustingPull(t *testing.T) {
	pcm := NewPCM(Format{SampleRate: 8000, Channels: 1}, ramp(10))
	d := pcm.NewDecoder("a")
	buf := make([][2]float64, 4)

	tests := []struct {
		wantN   int
		wantEOS bool
	}{
		{4, false},
		{4, false},
		{2, true},
		{0, true},
	}
	for i, tt := range tests {
		n, eos, err := d.Decode(buf)
		if err != nil {
			t.Fatalf("pull %d: unexpected error %v", i, err)
		}
		if n != tt.wantN || eos != tt.wantEOS {
			t.Errorf("pull %d = (%d, %v), want (%d, %v)", i, n, eos, tt.wantN, tt.wantEOS)
		}
	}
	if d.Position() != 10 {
		t.Errorf("Position() = %d, want 10", d.Position())
	}
}

func TestMemoryDecoderExactExhaustion(t *testing.T) {
	d := NewPCM(Format{SampleRate: 8000, Channels: 2}, ramp(8)).NewDecoder("a")
	buf := make([][2]float64, 8)

	n, eos, _ := d.Decode(buf)
	if n != 8 || !eos {
		t.Fatalf("Decode() = (%d, %v), want (8, true)", n, eos)
	}
	if err := d.Seek(6); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	n, eos, _ = d.Decode(buf)
	if n != 2 || !eos {
		t.Errorf("after seek Decode() = (%d, %v), want (2, true)", n, eos)
	}
}

func TestMemoryDecodersAreIndependent(t *testing.T) {
	pcm := NewPCM(Format{SampleRate: 8000, Channels: 2}, ramp(100))
	a := pcm.NewDecoder("x")
	b := pcm.NewDecoder("x")
	buf := make([][2]float64, 30)

	a.Decode(buf)
	if b.Position() != 0 {
		t.Errorf("second decoder Position() = %d, want 0", b.Position())
	}
	b.Decode(buf[:5])
	if a.Position() != 30 || b.Position() != 5 {
		t.Errorf("positions = (%d, %d), want (30, 5)", a.Position(), b.Position())
	}
}

func TestMemorySeekOutOfRange(t *testing.T) {
	d := NewPCM(Format{SampleRate: 8000, Channels: 2}, ramp(10)).NewDecoder("a")
	if err := d.Seek(11); err == nil {
		t.Error("Seek(11) on 10 frames: want error")
	}
	if err := d.Seek(-1); err == nil {
		t.Error("Seek(-1): want error")
	}
}

func TestMemoryResolverUnknownID(t *testing.T) {
	_, err := MemoryResolver{}.Open("missing")
	var oe *StreamOpenError
	if !errors.As(err, &oe) {
		t.Fatalf("Open() error = %v, want *StreamOpenError", err)
	}
	if oe.ID != "missing" {
		t.Errorf("StreamOpenError.ID = %q, want missing", oe.ID)
	}
}

func TestPCMFromInt16Mono(t *testing.T) {
	pcm := PCMFromInt16(Format{SampleRate: 8000, Channels: 1}, []int16{16384, -16384})
	if pcm.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", pcm.Len())
	}
	got := pcm.Frames()
	if got[0] != [2]float64{0.5, 0.5} || got[1] != [2]float64{-0.5, -0.5} {
		t.Errorf("frames = %v, want mono duplicated to both channels", got)
	}
}

func TestFileResolverWAV(t *testing.T) {
	dir := t.TempDir()
	data := make([]int, 1000)
	for i := range data {
		data[i] = (i%200 - 100) * 100
	}
	writeWAV(t, filepath.Join(dir, "tone.wav"), 8000, 1, data)

	d, err := FileResolver{Root: dir}.Open("tone.wav")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if got := d.Format(); got.SampleRate != 8000 || got.Channels != 1 {
		t.Errorf("Format() = %v, want 8000Hz/1ch", got)
	}
	if d.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", d.Len())
	}

	buf := make([][2]float64, 300)
	total, pulls := 0, 0
	for {
		n, eos, err := d.Decode(buf)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if n > len(buf) {
			t.Fatalf("Decode() produced %d > %d frames", n, len(buf))
		}
		if total == 0 && n > 0 {
			want := float64(data[0]) / 32768
			if math.Abs(buf[0][0]-want) > 1e-3 || buf[0][0] != buf[0][1] {
				t.Errorf("first frame = %v, want ~%v on both channels", buf[0], want)
			}
		}
		total += n
		pulls++
		if eos {
			break
		}
		if pulls > 10 {
			t.Fatal("no end-of-stream after 10 pulls")
		}
	}
	if total != 1000 {
		t.Errorf("decoded %d frames, want 1000", total)
	}

	if err := d.Seek(900); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	n, eos, err := d.Decode(buf)
	if n != 100 || !eos || err != nil {
		t.Errorf("after Seek(900) Decode() = (%d, %v, %v), want (100, true, nil)", n, eos, err)
	}
}

func TestFileResolverErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.wav"), []byte("not a riff file"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		id          string
		unsupported bool
	}{
		{name: "missing file", id: "nope.wav"},
		{name: "unknown extension", id: "notes.txt", unsupported: true},
		{name: "corrupt header", id: "bad.wav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FileResolver{Root: dir}.Open(tt.id)
			var oe *StreamOpenError
			if !errors.As(err, &oe) {
				t.Fatalf("Open(%q) error = %v, want *StreamOpenError", tt.id, err)
			}
			if got := errors.Is(err, ErrUnsupportedFormat); got != tt.unsupported {
				t.Errorf("errors.Is(ErrUnsupportedFormat) = %v, want %v", got, tt.unsupported)
			}
		})
	}
}

func TestOpusPacketsRoundTrip(t *testing.T) {
	const frameSize = 960
	in := make([]int16, frameSize*5*OpusFormat.Channels)
	for i := range in {
		in[i] = int16((i % 97) * 50)
	}

	var buf bytes.Buffer
	if err := EncodeOpusPackets(&buf, OpusFormat, in, frameSize); err != nil {
		t.Fatalf("EncodeOpusPackets() error = %v", err)
	}
	pcm, err := DecodeOpusPackets(&buf, OpusFormat)
	if err != nil {
		t.Fatalf("DecodeOpusPackets() error = %v", err)
	}
	if pcm.Len() != frameSize*5 {
		t.Errorf("decoded %d frames, want %d", pcm.Len(), frameSize*5)
	}
}

func TestOpusPacketsTruncated(t *testing.T) {
	data := []byte{0x00, 0x10, 0x01, 0x02}
	if _, err := DecodeOpusPackets(bytes.NewReader(data), OpusFormat); err == nil {
		t.Error("DecodeOpusPackets() on truncated packet: want error")
	}
}

type countingOpener struct {
	base  Opener
	opens map[string]int
}

func (o *countingOpener) Open(id string) (Decoder, error) {
	o.opens[id]++
	return o.base.Open(id)
}

func TestCache(t *testing.T) {
	format := Format{SampleRate: 8000, Channels: 2}
	base := &countingOpener{
		base:  MemoryResolver{"a": NewPCM(format, ramp(5000))},
		opens: map[string]int{},
	}
	c := NewCache(base)

	for i := 0; i < 3; i++ {
		d, err := c.Open("a")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if d.Len() != 5000 || d.Format() != format {
			t.Errorf("cached decoder = %d frames %s", d.Len(), d.Format())
		}
		buf := make([][2]float64, 5000)
		if n, eos, err := d.Decode(buf); n != 5000 || !eos || err != nil {
			t.Errorf("Decode() = %d, %v, %v", n, eos, err)
		}
		if buf[4999] != ramp(5000)[4999] {
			t.Errorf("last frame = %v", buf[4999])
		}
		d.Close()
	}
	if base.opens["a"] != 1 || c.Len() != 1 {
		t.Errorf("base opened %d times, cache holds %d", base.opens["a"], c.Len())
	}

	var oe *StreamOpenError
	if _, err := c.Open("missing"); !errors.As(err, &oe) {
		t.Errorf("Open(missing) error = %v, want StreamOpenError", err)
	}
	if c.Len() != 1 {
		t.Errorf("failed open was cached")
	}
}
