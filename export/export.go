// Package export renders a sequencer to a 16-bit PCM WAV file as fast as
// decoding allows.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"musplay/logger"
	"musplay/sequencer"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	DefaultBlockFrames  = 4096
	DefaultProgressStep = 0.01

	wavPCM   = 1
	bitDepth = 16
)

// ExportIOError is returned when the destination cannot be written.
type ExportIOError struct {
	Path string
	Err  error
}

func (e *ExportIOError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportIOError) Unwrap() error {
	return e.Err
}

// tempError reports a failure on the temporary file under the destination
// the caller asked for.
func tempError(dest, tmpPath string, err error) *ExportIOError {
	return &ExportIOError{Path: dest, Err: fmt.Errorf("temporary file %s: %w", filepath.Base(tmpPath), err)}
}

// Options tunes an export. The zero value is usable.
type Options struct {
	// BlockFrames is the number of frames pulled per block.
	BlockFrames int
	// ProgressStep is the minimum fraction between two progress events.
	ProgressStep float64
	// Sink receives progress, decode error and completion events. It is
	// called from the exporting goroutine.
	Sink   func(sequencer.Event)
	Logger *slog.Logger
}

func (o *Options) normalize() {
	if o.BlockFrames <= 0 {
		o.BlockFrames = DefaultBlockFrames
	}
	if o.ProgressStep <= 0 {
		o.ProgressStep = DefaultProgressStep
	}
	if o.Logger == nil {
		o.Logger = logger.WithComponent("export")
	}
}

// Export writes one pass of src's program, followed by the final epilogue
// when it is armed, to dest. src itself is not touched: rendering happens on
// a clone, so a live render of src may continue meanwhile.
//
// dest is either complete or absent when Export returns. Cancelling ctx
// aborts the export and returns ctx.Err().
func Export(ctx context.Context, src *sequencer.Sequencer, dest string, opts Options) error {
	opts.normalize()
	log := opts.Logger.With(slog.String("path", dest))

	c, err := src.Clone(
		sequencer.WithLogger(log),
		sequencer.WithSink(func(e sequencer.Event) {
			if e.Kind == sequencer.EventDecodeError && opts.Sink != nil {
				opts.Sink(e)
			}
		}),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	// exactly one pass, plus the final epilogue when armed
	if err := c.Rewind(); err != nil {
		return err
	}
	c.SetLoop(false)
	_, final := c.EpilogueArmed()
	c.ArmEpilogue(final, true)

	prog := c.Program()
	expected := prog.TotalFrames()
	if f := prog.Final(); f != nil && final {
		expected += f.Frames
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".musplay-*.tmp")
	if err != nil {
		return &ExportIOError{Path: dest, Err: err}
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	format := prog.Format()
	enc := wav.NewEncoder(tmp, format.SampleRate, bitDepth, format.Channels, wavPCM)

	log.Info("Exporting",
		slog.String("format", format.String()),
		slog.Int("frames", expected))

	w := &writer{
		enc:      enc,
		channels: format.Channels,
		samples:  make([][2]float64, opts.BlockFrames),
		buf: &audio.IntBuffer{
			Data:           make([]int, opts.BlockFrames*format.Channels),
			Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: bitDepth,
		},
	}

	written, next := 0, opts.ProgressStep
	for {
		if err := ctx.Err(); err != nil {
			log.Info("Export cancelled", slog.Int("frames", written))
			return err
		}

		n, ok, err := w.block(c)
		if err != nil {
			return tempError(dest, tmpPath, err)
		}
		written += n

		if expected > 0 && opts.Sink != nil {
			if frac := min(float64(written)/float64(expected), 1); frac >= next {
				opts.Sink(sequencer.Event{Kind: sequencer.EventExportProgress, Fraction: frac, Path: dest})
				for next <= frac {
					next += opts.ProgressStep
				}
			}
		}
		if !ok {
			break
		}
	}

	if err := enc.Close(); err != nil {
		return tempError(dest, tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return tempError(dest, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return tempError(dest, tmpPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return &ExportIOError{Path: dest, Err: err}
	}
	success = true

	log.Info("Export finished", slog.Int("frames", written))
	if opts.Sink != nil {
		opts.Sink(sequencer.Event{Kind: sequencer.EventExportFinished, Fraction: 1, Path: dest})
	}
	return nil
}

type writer struct {
	enc      *wav.Encoder
	channels int
	samples  [][2]float64
	buf      *audio.IntBuffer
}

// block pulls one block from s and appends it to the file.
func (w *writer) block(s *sequencer.Sequencer) (int, bool, error) {
	n, ok := s.Stream(w.samples)
	if n == 0 {
		return 0, ok, nil
	}

	data := w.buf.Data[:cap(w.buf.Data)]
	j := 0
	for _, f := range w.samples[:n] {
		data[j] = toInt16(f[0])
		j++
		if w.channels > 1 {
			data[j] = toInt16(f[1])
			j++
		}
	}
	w.buf.Data = data[:j]
	return n, ok, w.enc.Write(w.buf)
}

func toInt16(v float64) int {
	v = min(max(v, -1), 1)
	return int(math.Round(v * math.MaxInt16))
}
