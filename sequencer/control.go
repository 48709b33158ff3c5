package sequencer

import (
	"fmt"
	"math"
	"time"

	"musplay/program"
)

// SetAmplitude sets the linear gain applied to every produced sample. It
// takes effect from the next pull.
func (s *Sequencer) SetAmplitude(amp float64) {
	if math.IsNaN(amp) || amp < 0 {
		amp = 0
	}
	s.amp.Store(math.Float64bits(amp))
}

// Amplitude returns the current linear gain.
func (s *Sequencer) Amplitude() float64 {
	return math.Float64frombits(s.amp.Load())
}

// SetLoop enables or disables looping back to the loop target.
func (s *Sequencer) SetLoop(loop bool) { s.loop.Store(loop) }

// Loop reports whether looping is enabled.
func (s *Sequencer) Loop() bool { return s.loop.Load() }

// SetLoopIndex changes the track playback returns to when looping.
func (s *Sequencer) SetLoopIndex(i int) error {
	if i < 0 || i >= s.prog.Len() {
		return fmt.Errorf("%w: %d not in [0, %d)", program.ErrBadLoopIndex, i, s.prog.Len())
	}
	s.loopIndex.Store(int64(i))
	return nil
}

// LoopIndex returns the current loop target.
func (s *Sequencer) LoopIndex() int { return int(s.loopIndex.Load()) }

// ArmEpilogue controls epilogue insertion at the end of the main sequence.
// With final set, the final epilogue is played once and playback then
// terminates; otherwise the selected epilogue is played before each loop.
func (s *Sequencer) ArmEpilogue(armed, final bool) {
	s.epArmed.Store(armed && !final)
	s.finalArmed.Store(armed && final)
}

// EpilogueArmed reports the current arming.
func (s *Sequencer) EpilogueArmed() (armed, final bool) {
	e, f := s.epArmed.Load(), s.finalArmed.Load()
	return e || f, f
}

// SelectEpilogue chooses which non-final epilogue an armed sequencer plays.
func (s *Sequencer) SelectEpilogue(name string) error {
	e, ok := s.prog.Epilogue(name)
	if !ok || e == s.prog.Final() {
		return fmt.Errorf("%w: %q", ErrUnknownEpilogue, name)
	}
	s.epName.Store(&name)
	return nil
}

// SelectedEpilogue returns the name of the epilogue an armed sequencer
// plays, or "".
func (s *Sequencer) SelectedEpilogue() string {
	if name := s.epName.Load(); name != nil {
		return *name
	}
	return ""
}

// RequestSeek asks the render goroutine to seek before its next pull.
// Requests are coalesced: only the latest one is applied.
func (s *Sequencer) RequestSeek(fraction float64) error {
	if math.IsNaN(fraction) {
		return ErrBadFraction
	}
	s.pending.Store(&seekRequest{fraction: fraction, byFrac: true})
	return nil
}

// RequestSeekFrame is RequestSeek for a main-sequence frame.
func (s *Sequencer) RequestSeekFrame(frame int) {
	s.pending.Store(&seekRequest{frame: max(frame, 0)})
}

// RequestRewind asks the render goroutine to rewind before its next pull.
func (s *Sequencer) RequestRewind() {
	s.pending.Store(&seekRequest{rewind: true})
}

// Drain applies a pending request immediately. Call it from the render
// goroutine, or from control code while no render is running.
func (s *Sequencer) Drain() error {
	req := s.pending.Swap(nil)
	if req == nil {
		return nil
	}
	switch {
	case req.rewind:
		return s.rewind()
	case req.byFrac:
		frame, err := s.frameAt(req.fraction)
		if err != nil {
			return err
		}
		return s.seekFrame(frame)
	default:
		return s.seekFrame(req.frame)
	}
}

// Status returns the latest published snapshot.
func (s *Sequencer) Status() Status {
	return *s.status.Load()
}

// Fraction returns the position in [0, 1] within one main pass.
func (s *Sequencer) Fraction() float64 { return s.status.Load().Fraction }

// EpilogueState returns the latest published epilogue state.
func (s *Sequencer) EpilogueState() EpilogueState { return s.status.Load().State }

// Position returns the elapsed time within the current pass, epilogue
// included.
func (s *Sequencer) Position() time.Duration {
	st := s.status.Load()
	return s.prog.Duration(st.Played + st.Extra)
}

// Seconds is Position in seconds.
func (s *Sequencer) Seconds() float64 { return s.Position().Seconds() }

// TotalSeconds is the length of one main pass in seconds.
func (s *Sequencer) TotalSeconds() float64 { return s.prog.Seconds() }

// LoopFraction is the fraction playback returns to when it loops.
func (s *Sequencer) LoopFraction() float64 { return s.prog.LoopFraction(s.LoopIndex()) }

// Channels returns the program's channel count.
func (s *Sequencer) Channels() int { return s.prog.Channels() }

// Clone returns an independent sequencer over the same program. The clone
// opens its own decoders, copies every setting and resumes from the last
// published position. It is safe to call while s is being rendered; the
// clone reflects s as of its latest pull.
func (s *Sequencer) Clone(opts ...Option) (*Sequencer, error) {
	snap := s.Status()

	c, err := New(s.prog, opts...)
	if err != nil {
		return nil, err
	}
	c.amp.Store(s.amp.Load())
	c.loop.Store(s.loop.Load())
	c.loopIndex.Store(s.loopIndex.Load())
	c.epArmed.Store(s.epArmed.Load())
	c.finalArmed.Store(s.finalArmed.Load())
	c.epName.Store(s.epName.Load())

	if err := c.restore(snap); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (s *Sequencer) restore(snap Status) error {
	s.st = playbackState{
		index:     snap.Index,
		mode:      snap.State,
		final:     snap.Final,
		played:    snap.Played,
		extra:     snap.Extra,
		passes:    snap.Passes,
		produced:  snap.Produced,
		finalDone: snap.FinalDone,
		finished:  snap.Finished,
	}
	if snap.Epilogue != "" {
		t, ok := s.epilogues[snap.Epilogue]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEpilogue, snap.Epilogue)
		}
		s.st.epilogue = t
	}
	if err := s.current().SeekTo(snap.Offset); err != nil {
		return fmt.Errorf("restore position: %w", err)
	}
	s.publish()
	return nil
}
