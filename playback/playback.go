// Package playback plays a sequencer through an audio device in real time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"musplay/events"
	"musplay/export"
	"musplay/logger"
	"musplay/program"
	"musplay/sequencer"

	"github.com/gopxl/beep/v2"
)

var ErrClosed = errors.New("player is closed")

// NewPlayer creates a Player for p and initializes its device. Nothing is
// heard until Start.
func NewPlayer(p *program.Program, opts ...Option) (*Player, error) {
	o := options{
		device: SpeakerDevice{},
		buffer: 100 * time.Millisecond,
		logger: logger.WithComponent("playback"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	bus := events.NewBus[sequencer.Event]()
	seq, err := sequencer.New(p,
		sequencer.WithLogger(o.logger),
		sequencer.WithSink(bus.Publish))
	if err != nil {
		return nil, err
	}

	sampleRate := p.Format().Beep().SampleRate
	if err := o.device.Init(sampleRate, sampleRate.N(o.buffer)); err != nil {
		seq.Close()
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	player := &Player{
		seq:    seq,
		device: o.device,
		bus:    bus,
		logger: o.logger,
	}
	player.render = &renderStreamer{seq: seq, playing: &player.playing}
	player.ctrl = &beep.Ctrl{Streamer: player.render}

	return player, nil
}

// Sequencer exposes the underlying sequencer for settings and queries.
func (p *Player) Sequencer() *sequencer.Sequencer { return p.seq }

// Start plays the program from its first frame. A player that is already
// attached is restarted.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.attached {
		p.detach()
	}
	if err := p.seq.Rewind(); err != nil {
		return fmt.Errorf("failed to rewind: %w", err)
	}

	p.ctrl.Paused = false
	p.playing.Store(true)
	p.attached = true
	p.suspended = false
	p.device.Play(p.ctrl)

	p.logger.Info("Playback started",
		slog.String("format", p.seq.Program().Format().String()),
		slog.Float64("seconds", p.seq.TotalSeconds()))
	return nil
}

// Stop detaches the render callback and resets the position.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if !p.attached {
		return nil
	}
	p.detach()
	if err := p.seq.Rewind(); err != nil {
		return fmt.Errorf("failed to rewind: %w", err)
	}
	p.logger.Info("Playback stopped")
	return nil
}

// detach removes the render callback from the device. Once it returns the
// callback is not running and the sequencer may be used directly.
func (p *Player) detach() {
	p.device.Clear()
	p.attached = false
	p.suspended = false
	p.playing.Store(false)
}

// Suspend pauses output without touching the position.
func (p *Player) Suspend() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.attached || p.suspended {
		return
	}
	p.device.Lock()
	p.ctrl.Paused = true
	p.device.Unlock()
	p.suspended = true
}

// Resume continues after Suspend.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.attached || !p.suspended {
		return
	}
	p.device.Lock()
	p.ctrl.Paused = false
	p.device.Unlock()
	p.suspended = false
}

// IsPlaying reports whether the program is audibly playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached && !p.suspended && p.playing.Load()
}

// IsSuspended reports whether playback is suspended.
func (p *Player) IsSuspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached && p.suspended
}

// Seek moves playback to fraction of one pass. While the render callback
// runs, the seek is handed over and applied at its next pull; otherwise it
// is applied immediately.
func (p *Player) Seek(fraction float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attached && !p.suspended {
		if err := p.seq.RequestSeek(fraction); err != nil {
			return err
		}
		p.playing.Store(true)
		return nil
	}
	if err := p.seq.Seek(fraction); err != nil {
		return err
	}
	if p.attached {
		p.playing.Store(true)
	}
	return nil
}

func (p *Player) SetAmplitude(amp float64)         { p.seq.SetAmplitude(amp) }
func (p *Player) SetLoop(loop bool)                { p.seq.SetLoop(loop) }
func (p *Player) SetLoopIndex(i int) error         { return p.seq.SetLoopIndex(i) }
func (p *Player) ArmEpilogue(armed, final bool)    { p.seq.ArmEpilogue(armed, final) }
func (p *Player) SelectEpilogue(name string) error { return p.seq.SelectEpilogue(name) }

func (p *Player) Status() sequencer.Status               { return p.seq.Status() }
func (p *Player) Fraction() float64                      { return p.seq.Fraction() }
func (p *Player) Seconds() float64                       { return p.seq.Seconds() }
func (p *Player) TotalSeconds() float64                  { return p.seq.TotalSeconds() }
func (p *Player) Channels() int                          { return p.seq.Channels() }
func (p *Player) EpilogueState() sequencer.EpilogueState { return p.seq.EpilogueState() }
func (p *Player) LoopFraction() float64                  { return p.seq.LoopFraction() }

// ErroredBlocks is the number of blocks muted because of a decode error.
func (p *Player) ErroredBlocks() uint64 { return p.render.errored.Load() }

// Events subscribes to the player's notifications. Call Unsubscribe when
// done.
func (p *Player) Events(buffer int) *events.Listener[sequencer.Event] {
	return p.bus.Subscribe(buffer)
}

// Unsubscribe stops delivery to l.
func (p *Player) Unsubscribe(l *events.Listener[sequencer.Event]) {
	p.bus.Unsubscribe(l)
}

// Export writes the program to dest in the background, from a copy of the
// player's current settings. Playback is not affected. The returned channel
// yields the result once and is then closed.
func (p *Player) Export(ctx context.Context, dest string, opts export.Options) (<-chan error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if opts.Sink == nil {
		opts.Sink = p.bus.Publish
	}

	done := make(chan error, 1)
	p.exports.Add(1)
	go func() {
		defer p.exports.Done()
		defer close(done)

		err := export.Export(ctx, p.seq, dest, opts)
		if err != nil {
			p.logger.Error("Export failed", slog.String("path", dest), slog.Any("error", err))
		}
		done <- err
	}()
	return done, nil
}

// Close stops playback, waits for running exports and releases the device.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.attached {
		p.detach()
	}
	p.mu.Unlock()

	p.exports.Wait()
	err := p.seq.Close()
	p.device.Close()
	return err
}
