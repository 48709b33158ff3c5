package decoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// FileResolver opens streams stored as files. Relative identifiers are
// resolved against Root.
type FileResolver struct {
	Root string
}

var _ Opener = FileResolver{}

// Extensions lists the file extensions FileResolver can open.
var Extensions = []string{".mp3", ".wav", ".flac", ".ogg", ".oga", ".opk"}

func (r FileResolver) path(id string) string {
	if r.Root == "" || filepath.IsAbs(id) {
		return id
	}
	return filepath.Join(r.Root, id)
}

func (r FileResolver) Open(id string) (Decoder, error) {
	path := r.path(id)
	f, err := os.Open(path)
	if err != nil {
		return nil, &StreamOpenError{ID: id, Err: err}
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".flac":
		s, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		s, format, err = vorbis.Decode(f)
	case ".opk":
		defer f.Close()
		pcm, err := DecodeOpusPackets(f, OpusFormat)
		if err != nil {
			return nil, &StreamOpenError{ID: id, Err: err}
		}
		return pcm.NewDecoder(id), nil
	default:
		f.Close()
		return nil, &StreamOpenError{ID: id, Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)}
	}
	if err != nil {
		f.Close()
		return nil, &StreamOpenError{ID: id, Err: err}
	}

	return NewStream(id, s, format), nil
}
