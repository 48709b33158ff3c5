package playback

import (
	"sync/atomic"

	"musplay/sequencer"

	"github.com/gopxl/beep/v2"
)

// renderStreamer is what the device pulls. It never fails and never ends:
// blocks containing a decode error and everything after the end of the
// program are rendered as silence.
type renderStreamer struct {
	seq     *sequencer.Sequencer
	playing *atomic.Bool
	errored atomic.Uint64
}

var _ beep.Streamer = (*renderStreamer)(nil)

func (r *renderStreamer) Err() error {
	return nil
}

func (r *renderStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := r.seq.Stream(samples)

	if r.seq.Err() != nil {
		r.errored.Add(1)
		n = 0
	}
	clear(samples[n:])

	if !ok || r.seq.Finished() {
		r.playing.Store(false)
	}
	return len(samples), true
}
