// Package program holds the immutable description of what is played: the
// ordered main sequence, the loop target and the optional epilogues.
package program

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"musplay/decoder"
	"musplay/logger"

	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyProgram  = errors.New("program has no tracks")
	ErrBadLoopIndex  = errors.New("loop index out of range")
	ErrUnknownFinal  = errors.New("final epilogue is not a known epilogue")
	ErrUnknownTag    = errors.New("track tag is not a known epilogue")
	ErrDuplicateName = errors.New("duplicate epilogue name")
	ErrEmptyEpilogue = errors.New("epilogue has no name")
)

// ChannelMismatchError is returned when tracks of one program disagree on
// mono vs. stereo.
type ChannelMismatchError struct {
	ID       string
	Channels int
	Want     int
}

func (e *ChannelMismatchError) Error() string {
	return fmt.Sprintf("stream %s has %d channels, program has %d", e.ID, e.Channels, e.Want)
}

// RateMismatchError is returned when tracks of one program disagree on the
// sample rate. Programs are never resampled.
type RateMismatchError struct {
	ID   string
	Rate int
	Want int
}

func (e *RateMismatchError) Error() string {
	return fmt.Sprintf("stream %s has sample rate %d, program has %d", e.ID, e.Rate, e.Want)
}

// Epilogue names one epilogue stream.
type Epilogue struct {
	Name string
	ID   string
}

// Definition is the construction input of a Program.
type Definition struct {
	Tracks    []string
	LoopIndex int
	Epilogues []Epilogue
	// Final names the epilogue played once before termination instead of
	// before a loop. Empty means none.
	Final string
	// Tags optionally binds an epilogue name to each track, by index. It is
	// informational: which epilogue plays is still chosen at run time.
	Tags []string
}

// Stream describes one opened and probed stream.
type Stream struct {
	ID     string
	Name   string
	Format decoder.Format
	Frames int
}

// Program is immutable once built and may be shared between any number of
// renders.
type Program struct {
	opener    decoder.Opener
	format    decoder.Format
	tracks    []*Stream
	offsets   []int // offsets[i] = frames before track i; offsets[len] = total
	loopIndex int
	epilogues []*Stream
	byName    map[string]*Stream
	final     *Stream
	tags      []string
}

type options struct {
	logger      *slog.Logger
	concurrency int
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger used while probing streams.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConcurrency limits how many streams are probed at once.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// New opens and probes every stream of def through opener. Nothing is kept
// open: each render obtains its own decoders through Open.
func New(ctx context.Context, def Definition, opener decoder.Opener, opts ...Option) (*Program, error) {
	o := options{
		logger:      logger.WithComponent("program"),
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(def.Tracks) == 0 {
		return nil, ErrEmptyProgram
	}
	if def.LoopIndex < 0 || def.LoopIndex >= len(def.Tracks) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrBadLoopIndex, def.LoopIndex, len(def.Tracks))
	}

	seen := make(map[string]bool, len(def.Epilogues))
	for _, e := range def.Epilogues {
		if e.Name == "" {
			return nil, ErrEmptyEpilogue
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, e.Name)
		}
		seen[e.Name] = true
	}
	if def.Final != "" && !seen[def.Final] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFinal, def.Final)
	}
	if len(def.Tags) > len(def.Tracks) {
		return nil, fmt.Errorf("%w: %d tags for %d tracks", ErrUnknownTag, len(def.Tags), len(def.Tracks))
	}
	for i, tag := range def.Tags {
		if tag != "" && !seen[tag] {
			return nil, fmt.Errorf("%w: track %d tagged %q", ErrUnknownTag, i, tag)
		}
	}

	names := make([]string, 0, len(def.Tracks)+len(def.Epilogues))
	ids := make([]string, 0, len(def.Tracks)+len(def.Epilogues))
	for i, id := range def.Tracks {
		names = append(names, fmt.Sprintf("track %d", i))
		ids = append(ids, id)
	}
	for _, e := range def.Epilogues {
		names = append(names, e.Name)
		ids = append(ids, e.ID)
	}

	streams, err := probeAll(ctx, opener, ids, o.concurrency)
	if err != nil {
		return nil, err
	}
	for i := range streams {
		streams[i].Name = names[i]
	}

	p := &Program{
		opener:    opener,
		format:    streams[0].Format,
		tracks:    streams[:len(def.Tracks)],
		loopIndex: def.LoopIndex,
		epilogues: streams[len(def.Tracks):],
		byName:    make(map[string]*Stream, len(def.Epilogues)),
		tags:      make([]string, len(def.Tracks)),
	}
	copy(p.tags, def.Tags)
	for _, s := range streams {
		if s.Format.Channels != p.format.Channels {
			return nil, &ChannelMismatchError{ID: s.ID, Channels: s.Format.Channels, Want: p.format.Channels}
		}
		if s.Format.SampleRate != p.format.SampleRate {
			return nil, &RateMismatchError{ID: s.ID, Rate: s.Format.SampleRate, Want: p.format.SampleRate}
		}
	}
	for _, s := range p.epilogues {
		p.byName[s.Name] = s
	}
	if def.Final != "" {
		p.final = p.byName[def.Final]
	}

	p.offsets = make([]int, len(p.tracks)+1)
	for i, s := range p.tracks {
		p.offsets[i+1] = p.offsets[i] + s.Frames
	}

	o.logger.Debug("Program ready",
		slog.Int("tracks", len(p.tracks)),
		slog.Int("epilogues", len(p.epilogues)),
		slog.String("format", p.format.String()),
		slog.Int("frames", p.TotalFrames()))

	return p, nil
}

func probeAll(ctx context.Context, opener decoder.Opener, ids []string, limit int) ([]*Stream, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))

	streams := make([]*Stream, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			d, err := opener.Open(id)
			if err != nil {
				var oe *decoder.StreamOpenError
				if errors.As(err, &oe) {
					return err
				}
				return &decoder.StreamOpenError{ID: id, Err: err}
			}
			defer d.Close()

			streams[i] = &Stream{ID: id, Format: d.Format(), Frames: d.Len()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return streams, nil
}

// Open returns a new decoder positioned at the start of s.
func (p *Program) Open(s *Stream) (decoder.Decoder, error) {
	d, err := p.opener.Open(s.ID)
	if err != nil {
		return nil, err
	}
	if d.Len() != s.Frames || d.Format() != s.Format {
		d.Close()
		return nil, &decoder.StreamOpenError{ID: s.ID, Err: errors.New("stream changed since the program was built")}
	}
	return d, nil
}

func (p *Program) Format() decoder.Format { return p.format }
func (p *Program) Channels() int          { return p.format.Channels }
func (p *Program) Mono() bool             { return p.format.Channels == 1 }
func (p *Program) Len() int               { return len(p.tracks) }
func (p *Program) Track(i int) *Stream    { return p.tracks[i] }
func (p *Program) LoopIndex() int         { return p.loopIndex }

// TotalFrames is the length of one full pass over the main sequence.
func (p *Program) TotalFrames() int { return p.offsets[len(p.tracks)] }

// Offset returns the number of main-sequence frames before track i.
func (p *Program) Offset(i int) int { return p.offsets[i] }

// Locate maps a main-sequence frame to a track index and an in-track offset.
// A frame at or past the end maps to the end of the last track.
func (p *Program) Locate(frame int) (index, offset int) {
	last := len(p.tracks) - 1
	if frame >= p.TotalFrames() {
		return last, p.tracks[last].Frames
	}
	if frame <= 0 {
		return 0, 0
	}
	// first track whose end is past frame
	i := sort.Search(len(p.tracks), func(i int) bool { return p.offsets[i+1] > frame })
	return i, frame - p.offsets[i]
}

// Fraction converts a main-sequence frame to a fraction of one pass.
func (p *Program) Fraction(frame int) float64 {
	total := p.TotalFrames()
	if total == 0 {
		return 0
	}
	return min(max(float64(frame)/float64(total), 0), 1)
}

// LoopFraction is the fraction at which a loop restarts for loop target i.
func (p *Program) LoopFraction(i int) float64 {
	return p.Fraction(p.offsets[i])
}

// Duration converts frames to wall time at the program's rate.
func (p *Program) Duration(frames int) time.Duration {
	if p.format.SampleRate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(p.format.SampleRate)
}

// Seconds is the length of one main pass in seconds.
func (p *Program) Seconds() float64 {
	return p.Duration(p.TotalFrames()).Seconds()
}

// HasEpilogues reports whether any epilogue is defined.
func (p *Program) HasEpilogues() bool { return len(p.epilogues) > 0 }

// Epilogues returns epilogue streams in definition order.
func (p *Program) Epilogues() []*Stream { return p.epilogues }

// Epilogue looks up an epilogue by name.
func (p *Program) Epilogue(name string) (*Stream, bool) {
	s, ok := p.byName[name]
	return s, ok
}

// Tag returns the epilogue name bound to track i, or "" when it has none.
func (p *Program) Tag(i int) string {
	if i < 0 || i >= len(p.tags) {
		return ""
	}
	return p.tags[i]
}

// Final returns the final epilogue, or nil.
func (p *Program) Final() *Stream { return p.final }

// DefaultEpilogue is the first epilogue that is not the final one, or nil.
func (p *Program) DefaultEpilogue() *Stream {
	for _, s := range p.epilogues {
		if s != p.final {
			return s
		}
	}
	return nil
}
