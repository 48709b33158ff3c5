package decoder

import (
	"log/slog"
	"sync"

	"musplay/logger"
)

// Cache is an Opener that decodes each stream of an underlying Opener into
// memory the first time it is opened. Later opens are served from memory,
// so a render never waits on disk or a codec.
type Cache struct {
	base   Opener
	block  int
	logger *slog.Logger

	mu  sync.RWMutex
	pcm map[string]*PCM
}

var _ Opener = (*Cache)(nil)

// NewCache wraps base.
func NewCache(base Opener) *Cache {
	return &Cache{
		base:   base,
		block:  4096,
		logger: logger.WithComponent("decoder"),
		pcm:    make(map[string]*PCM),
	}
}

func (c *Cache) Open(id string) (Decoder, error) {
	c.mu.RLock()
	p, ok := c.pcm[id]
	c.mu.RUnlock()
	if ok {
		return p.NewDecoder(id), nil
	}

	p, err := c.load(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// a concurrent open may have won
	if cur, ok := c.pcm[id]; ok {
		p = cur
	} else {
		c.pcm[id] = p
	}
	c.mu.Unlock()
	return p.NewDecoder(id), nil
}

// Len returns the number of cached streams.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pcm)
}

func (c *Cache) load(id string) (*PCM, error) {
	d, err := c.base.Open(id)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	frames := make([][2]float64, d.Len())
	n := 0
	for n < len(frames) {
		m, eos, err := d.Decode(frames[n:])
		n += m
		if err != nil {
			return nil, err
		}
		if eos {
			break
		}
		if m == 0 {
			return nil, &DecodeError{ID: id, Frame: n, Err: errShortStream}
		}
	}
	if n < len(frames) {
		return nil, &DecodeError{ID: id, Frame: n, Err: errShortStream}
	}

	c.logger.Debug("Preloaded stream",
		slog.String("id", id),
		slog.Int("frames", n),
		slog.String("format", d.Format().String()))
	return NewPCM(d.Format(), frames), nil
}
