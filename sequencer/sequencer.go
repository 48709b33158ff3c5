// Package sequencer turns a program into one continuous stream of frames,
// moving across track boundaries, inserting epilogues and looping.
package sequencer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"musplay/decoder"
	"musplay/logger"
	"musplay/program"

	"github.com/gopxl/beep/v2"
)

var (
	ErrUnknownEpilogue = errors.New("unknown epilogue")
	ErrBadFraction     = errors.New("seek fraction is not a number")

	errStalled = errors.New("decoder produced no frames without ending")
)

// playbackState is owned by whichever goroutine renders the sequencer.
type playbackState struct {
	index     int
	epilogue  *Track // pending (WillDo*) or playing (Doing) epilogue
	final     bool   // epilogue is the final epilogue
	mode      EpilogueState
	played    int
	extra     int
	passes    int
	produced  int64
	finalDone bool
	finished  bool
}

// seekRequest is handed from control code to the render goroutine.
type seekRequest struct {
	frame    int
	fraction float64
	byFrac   bool
	rewind   bool
}

// Sequencer renders a Program. It implements beep.Streamer.
//
// Stream, Seek, Rewind and Drain must be called from one goroutine at a time
// (the render goroutine). Settings, RequestSeek/RequestRewind and every query
// are safe from any goroutine and never block the renderer.
type Sequencer struct {
	prog      *program.Program
	tracks    []*Track
	epilogues map[string]*Track
	logger    *slog.Logger
	sink      func(Event)

	amp        atomic.Uint64
	loop       atomic.Bool
	loopIndex  atomic.Int64
	epArmed    atomic.Bool
	finalArmed atomic.Bool
	epName     atomic.Pointer[string]
	pending    atomic.Pointer[seekRequest]
	status     atomic.Pointer[Status]

	st  playbackState
	err error
}

var _ beep.Streamer = (*Sequencer)(nil)

type options struct {
	logger *slog.Logger
	sink   func(Event)
}

// Option configures a Sequencer.
type Option func(*options)

// WithLogger sets the sequencer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSink registers the function that receives events. It is called from
// the render goroutine and must not block.
func WithSink(fn func(Event)) Option {
	return func(o *options) { o.sink = fn }
}

// New opens a private decoder for every stream of p.
func New(p *program.Program, opts ...Option) (*Sequencer, error) {
	o := options{logger: logger.WithComponent("sequencer")}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Sequencer{
		prog:      p,
		tracks:    make([]*Track, 0, p.Len()),
		epilogues: make(map[string]*Track, len(p.Epilogues())),
		logger:    o.logger,
		sink:      o.sink,
	}
	for i := 0; i < p.Len(); i++ {
		t, err := newTrack(p, p.Track(i))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	for _, e := range p.Epilogues() {
		t, err := newTrack(p, e)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.epilogues[e.Name] = t
	}

	s.amp.Store(math.Float64bits(1))
	s.loopIndex.Store(int64(p.LoopIndex()))
	if d := p.DefaultEpilogue(); d != nil {
		name := d.Name
		s.epName.Store(&name)
	}
	s.publish()
	return s, nil
}

// Program returns the shared program.
func (s *Sequencer) Program() *program.Program { return s.prog }

// Close releases every decoder.
func (s *Sequencer) Close() error {
	var errs []error
	for _, t := range s.tracks {
		errs = append(errs, t.Close())
	}
	for _, t := range s.epilogues {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

// Err returns the decode error met during the last Stream call, if any.
func (s *Sequencer) Err() error {
	return s.err
}

// Stream fills samples with the next frames of the program. A single call
// may cross track boundaries, enter an epilogue and loop back. It returns
// fewer frames than requested only when playback has terminated.
func (s *Sequencer) Stream(samples [][2]float64) (n int, ok bool) {
	s.err = nil
	if err := s.Drain(); err != nil {
		s.err = err
		s.logger.Error("Queued seek failed", slog.Any("error", err))
		s.emit(Event{Kind: EventDecodeError, Err: err})
	}

	// A program made only of empty streams would otherwise spin here.
	stalls, limit := 0, len(s.tracks)+2*len(s.epilogues)+2

	for n < len(samples) && !s.st.finished {
		if s.st.mode == WillDoEpilogue || s.st.mode == WillDoFinalEpilogue {
			s.enterEpilogue()
			continue
		}

		t := s.current()
		m, eos, err := t.decode(samples[n:])
		n += m
		if s.st.mode == DoingEpilogue {
			s.st.extra += m
		} else {
			s.st.played += m
		}

		if err == nil && !eos && m == 0 {
			err = &decoder.DecodeError{ID: t.stream.ID, Frame: t.Position(), Err: errStalled}
		}
		if err != nil {
			s.decodeFailed(t, err)
			eos = true
		}
		if !eos {
			continue
		}

		if m == 0 {
			stalls++
			if stalls > limit {
				s.logger.Warn("No audio left to play, stopping")
				s.finish()
				break
			}
		} else {
			stalls = 0
		}
		s.advance()
	}

	if amp := s.Amplitude(); amp != 1 {
		for i := range samples[:n] {
			samples[i][0] *= amp
			samples[i][1] *= amp
		}
	}

	s.st.produced += int64(n)
	s.publish()
	if n > 0 {
		s.emit(Event{Kind: EventProgress, Fraction: s.fraction()})
	}
	return n, n > 0 || !s.st.finished
}

func (s *Sequencer) current() *Track {
	if s.st.mode == DoingEpilogue {
		return s.st.epilogue
	}
	return s.tracks[s.st.index]
}

// advance applies the transition rules once the current track is exhausted.
func (s *Sequencer) advance() {
	if s.st.mode == DoingEpilogue {
		final := s.st.final
		s.st.epilogue = nil
		s.st.final = false
		s.setMode(NoEpilogue)
		if final {
			s.st.finalDone = true
			s.finish()
			return
		}
		s.loopBack()
		return
	}

	if s.st.index < len(s.tracks)-1 {
		s.st.index++
		s.enter(s.tracks[s.st.index])
		return
	}

	// end of the main sequence
	if f := s.prog.Final(); f != nil && s.finalArmed.Load() && !s.st.finalDone {
		s.st.epilogue = s.epilogues[f.Name]
		s.st.final = true
		s.setMode(WillDoFinalEpilogue)
		return
	}
	if s.epArmed.Load() {
		if t := s.selectedEpilogue(); t != nil {
			s.st.epilogue = t
			s.st.final = false
			s.setMode(WillDoEpilogue)
			return
		}
	}
	if s.loop.Load() {
		s.loopBack()
		return
	}
	s.finish()
}

func (s *Sequencer) enterEpilogue() {
	s.logger.Debug("Entering epilogue",
		slog.String("epilogue", s.st.epilogue.Name()),
		slog.Bool("final", s.st.final))
	s.enter(s.st.epilogue)
	s.setMode(DoingEpilogue)
}

func (s *Sequencer) loopBack() {
	li := s.LoopIndex()
	s.st.passes++
	s.st.index = li
	s.st.played = s.prog.Offset(li)
	s.st.extra = 0
	s.enter(s.tracks[li])
	s.logger.Debug("Looping", slog.Int("index", li), slog.Int("passes", s.st.passes))
}

func (s *Sequencer) finish() {
	s.st.finished = true
	s.logger.Debug("Playback finished", slog.Int64("produced", s.st.produced))
	s.emit(Event{Kind: EventFinished, Fraction: s.fraction()})
}

// enter positions t at its first frame. A track that cannot be rewound is
// treated like one that failed to decode: it will report end-of-stream.
func (s *Sequencer) enter(t *Track) {
	if err := t.Rewind(); err != nil {
		s.decodeFailed(t, err)
		t.SeekTo(t.Len())
	}
}

func (s *Sequencer) decodeFailed(t *Track, err error) {
	var de *decoder.DecodeError
	if !errors.As(err, &de) {
		err = &decoder.DecodeError{ID: t.stream.ID, Frame: t.Position(), Err: err}
	}
	if s.err == nil {
		s.err = err
	}
	s.logger.Error("Decode failed, skipping rest of track",
		slog.String("track", t.Name()), slog.Any("error", err))
	s.emit(Event{Kind: EventDecodeError, Err: err})
}

func (s *Sequencer) setMode(m EpilogueState) {
	if s.st.mode == m {
		return
	}
	s.st.mode = m
	s.emit(Event{Kind: EventEpilogueState, State: m})
}

func (s *Sequencer) selectedEpilogue() *Track {
	name := s.epName.Load()
	if name == nil {
		return nil
	}
	return s.epilogues[*name]
}

func (s *Sequencer) emit(e Event) {
	if s.sink != nil {
		s.sink(e)
	}
}

func (s *Sequencer) fraction() float64 {
	return s.prog.Fraction(s.st.played)
}

func (s *Sequencer) publish() {
	st := &Status{
		Index:     s.st.index,
		State:     s.st.mode,
		Final:     s.st.final,
		Played:    s.st.played,
		Extra:     s.st.extra,
		Passes:    s.st.passes,
		Produced:  s.st.produced,
		Fraction:  s.fraction(),
		Finished:  s.st.finished,
		FinalDone: s.st.finalDone,
	}
	if e := s.st.epilogue; e != nil {
		st.Epilogue = e.Name()
	}
	st.Offset = s.current().Position()
	s.status.Store(st)
}

// Seek moves playback to fraction of one main pass. Epilogue regions cannot
// be targeted: seeking always lands in the main sequence with no epilogue
// pending. A request still queued for the render goroutine is dropped.
func (s *Sequencer) Seek(fraction float64) error {
	frame, err := s.frameAt(fraction)
	if err != nil {
		return err
	}
	return s.SeekFrame(frame)
}

// SeekFrame moves playback to a main-sequence frame and drops any queued
// request.
func (s *Sequencer) SeekFrame(frame int) error {
	s.pending.Store(nil)
	return s.seekFrame(frame)
}

// Rewind restarts the program from its first frame and forgets completed
// passes and a consumed final epilogue. A queued request is dropped.
func (s *Sequencer) Rewind() error {
	s.pending.Store(nil)
	return s.rewind()
}

func (s *Sequencer) frameAt(fraction float64) (int, error) {
	if math.IsNaN(fraction) {
		return 0, ErrBadFraction
	}
	fraction = min(max(fraction, 0), 1)
	return int(math.Round(fraction * float64(s.prog.TotalFrames()))), nil
}

func (s *Sequencer) seekFrame(frame int) error {
	i, off := s.prog.Locate(frame)
	if err := s.tracks[i].SeekTo(off); err != nil {
		return fmt.Errorf("seek track %d to %d: %w", i, off, err)
	}
	s.st.index = i
	s.st.played = s.prog.Offset(i) + off
	s.st.extra = 0
	s.st.epilogue = nil
	s.st.final = false
	s.st.finished = false
	s.setMode(NoEpilogue)
	s.publish()
	return nil
}

func (s *Sequencer) rewind() error {
	if err := s.seekFrame(0); err != nil {
		return err
	}
	s.st.passes = 0
	s.st.produced = 0
	s.st.finalDone = false
	s.publish()
	return nil
}

// Finished reports whether playback has terminated. Only meaningful on the
// render goroutine; other goroutines should use Status.
func (s *Sequencer) Finished() bool {
	return s.st.finished
}
