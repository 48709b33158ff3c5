package playback

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"musplay/events"
	"musplay/sequencer"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Device is the audio output a Player attaches its render callback to. The
// speaker package satisfies it through SpeakerDevice.
type Device interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	// Lock and Unlock exclude the device's render callback.
	Lock()
	Unlock()
	// Clear detaches every streamer.
	Clear()
	Close()
}

// SpeakerDevice plays through the system's default output.
type SpeakerDevice struct{}

func (SpeakerDevice) Init(sr beep.SampleRate, n int) error { return speaker.Init(sr, n) }
func (SpeakerDevice) Play(s ...beep.Streamer)              { speaker.Play(s...) }
func (SpeakerDevice) Lock()                                { speaker.Lock() }
func (SpeakerDevice) Unlock()                              { speaker.Unlock() }
func (SpeakerDevice) Clear()                               { speaker.Clear() }
func (SpeakerDevice) Close()                               { speaker.Close() }

// Player drives one sequencer through a Device
type Player struct {
	mu     sync.Mutex // serializes control calls, never taken by the render callback
	seq    *sequencer.Sequencer
	device Device
	ctrl   *beep.Ctrl
	render *renderStreamer
	bus    *events.Bus[sequencer.Event]
	logger *slog.Logger

	attached  bool
	suspended bool
	closed    bool
	playing   atomic.Bool
	exports   sync.WaitGroup
}

type options struct {
	device Device
	buffer time.Duration
	logger *slog.Logger
}

// Option configures a Player.
type Option func(*options)

// WithDevice replaces the default speaker output.
func WithDevice(d Device) Option {
	return func(o *options) { o.device = d }
}

// WithBuffer sets the device buffer length.
func WithBuffer(d time.Duration) Option {
	return func(o *options) { o.buffer = d }
}

// WithLogger sets the player's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
