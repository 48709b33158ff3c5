// Package playlist reads MUS playlists, the text format that describes a
// looping game soundtrack as a list of segments with a loop target and
// optional epilogue segments.
//
//	BD1
//	4
//	BD1A
//	BD1B          @TAG BD1Z
//	SPC1          BD1
//	BD1C   BD1B   @TAG END    # loop back to BD1B
//
// The first line names the subdirectory holding the segments, which are
// also prefixed with it. The second line is the declared entry count.
package playlist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"musplay/program"

	"golang.org/x/text/encoding/charmap"
)

// DefaultExtension is appended to segment names when none is configured.
const DefaultExtension = ".wav"

// SyntaxError reports a malformed playlist line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("playlist line %d: %s", e.Line, e.Msg)
}

// Entry is one played segment.
type Entry struct {
	Name     string
	Path     string
	Epilogue string // tag played after this segment, if any
}

// Playlist is a parsed MUS file.
type Playlist struct {
	Prefix    string
	Count     int // as declared; may disagree with len(Entries)
	Entries   []Entry
	LoopIndex int
	Loop      string // loop target as written, if any
	Epilogues []program.Epilogue
}

// Load parses the playlist at path. Segment files are looked up next to it.
func Load(path, ext string) (*Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()
	return Parse(f, filepath.Dir(path), ext)
}

// Parse reads a playlist whose segments live under dir. Input that is not
// valid UTF-8 is read as Windows-1252.
func Parse(r io.Reader, dir, ext string) (*Playlist, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	if !utf8.Valid(data) {
		if data, err = charmap.Windows1252.NewDecoder().Bytes(data); err != nil {
			return nil, fmt.Errorf("decode playlist: %w", err)
		}
	}

	p := &Playlist{}
	seen := map[string]bool{}
	path := func(name string) string {
		return filepath.Join(dir, p.Prefix, p.Prefix+name+ext)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo, header := 0, 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch header {
		case 0:
			p.Prefix = fields[0]
			header++
			continue
		case 1:
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("entry count %q is not a number", fields[0])}
			}
			p.Count = n
			header++
			continue
		}

		name := fields[0]
		// silence segments live outside the prefix directory
		if strings.HasPrefix(strings.ToLower(name), "spc") {
			continue
		}
		e := Entry{Name: name, Path: path(name)}

		for rest := fields[1:]; len(rest) > 0; rest = rest[1:] {
			tag := rest[0]
			switch {
			case strings.EqualFold(tag, p.Prefix):
				// directory reminder after a silence segment
			case strings.EqualFold(tag, "@TAG"):
				if len(rest) < 2 {
					return nil, &SyntaxError{Line: lineNo, Msg: "@TAG without a segment"}
				}
				rest = rest[1:]
				if !strings.EqualFold(rest[0], "END") {
					e.Epilogue = rest[0]
					if !seen[rest[0]] {
						seen[rest[0]] = true
						p.Epilogues = append(p.Epilogues, program.Epilogue{Name: rest[0], ID: path(rest[0])})
					}
				}
			default:
				p.Loop = tag
			}
		}
		p.Entries = append(p.Entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read playlist: %w", err)
	}

	if header < 2 {
		return nil, &SyntaxError{Line: lineNo, Msg: "missing prefix or entry count"}
	}
	if len(p.Entries) == 0 {
		return nil, program.ErrEmptyProgram
	}

	if p.Loop != "" {
		found := false
		for i, e := range p.Entries {
			if strings.EqualFold(e.Name, p.Loop) {
				p.LoopIndex, found = i, true
				break
			}
		}
		if !found {
			slog.Warn("Loop target is not a playlist entry, looping to the start",
				slog.String("target", p.Loop))
		}
	}
	return p, nil
}

// Definition turns the playlist into a program definition. The epilogue of
// the last entry, when it has one, comes first so that it is the default.
func (p *Playlist) Definition() program.Definition {
	def := program.Definition{
		Tracks:    make([]string, len(p.Entries)),
		LoopIndex: p.LoopIndex,
		Tags:      make([]string, len(p.Entries)),
	}
	for i, e := range p.Entries {
		def.Tracks[i] = e.Path
		def.Tags[i] = e.Epilogue
	}

	last := p.Entries[len(p.Entries)-1].Epilogue
	for _, e := range p.Epilogues {
		if e.Name == last {
			def.Epilogues = append(def.Epilogues, e)
		}
	}
	for _, e := range p.Epilogues {
		if e.Name != last {
			def.Epilogues = append(def.Epilogues, e)
		}
	}
	return def
}
