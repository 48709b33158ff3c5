package playlist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"musplay/program"
)

const sample = `BD1
5
# opening
BD1A
BD1B          @TAG BD1Z
SPC1          BD1
BD1C   BD1B   @TAG END
BD1D          @TAG BD1Y   # last
`

func TestParse(t *testing.T) {
	p, err := Parse(strings.NewReader(sample), "music", ".ogg")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if p.Prefix != "BD1" || p.Count != 5 {
		t.Errorf("header = %q %d", p.Prefix, p.Count)
	}
	names := []string{"BD1A", "BD1B", "BD1C", "BD1D"}
	if len(p.Entries) != len(names) {
		t.Fatalf("entries = %+v", p.Entries)
	}
	for i, n := range names {
		if p.Entries[i].Name != n {
			t.Errorf("entry %d = %q, want %q", i, p.Entries[i].Name, n)
		}
	}
	if want := filepath.Join("music", "BD1", "BD1BD1A.ogg"); p.Entries[0].Path != want {
		t.Errorf("path = %q, want %q", p.Entries[0].Path, want)
	}
	if p.Entries[1].Epilogue != "BD1Z" || p.Entries[2].Epilogue != "" {
		t.Errorf("epilogues = %q %q", p.Entries[1].Epilogue, p.Entries[2].Epilogue)
	}
	if p.Loop != "BD1B" || p.LoopIndex != 1 {
		t.Errorf("loop = %q %d, want BD1B 1", p.Loop, p.LoopIndex)
	}

	def := p.Definition()
	if len(def.Tracks) != 4 || def.LoopIndex != 1 {
		t.Errorf("definition = %+v", def)
	}
	tags := []string{"", "BD1Z", "", "BD1Y"}
	for i, tag := range tags {
		if def.Tags[i] != tag {
			t.Errorf("tag %d = %q, want %q", i, def.Tags[i], tag)
		}
	}
	want := []program.Epilogue{
		{Name: "BD1Y", ID: filepath.Join("music", "BD1", "BD1BD1Y.ogg")},
		{Name: "BD1Z", ID: filepath.Join("music", "BD1", "BD1BD1Z.ogg")},
	}
	if len(def.Epilogues) != len(want) {
		t.Fatalf("epilogues = %+v", def.Epilogues)
	}
	for i := range want {
		if def.Epilogues[i] != want[i] {
			t.Errorf("epilogue %d = %+v, want %+v", i, def.Epilogues[i], want[i])
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", &SyntaxError{}},
		{"no count", "BD1\n", &SyntaxError{}},
		{"bad count", "BD1\nmany\nBD1A\n", &SyntaxError{}},
		{"dangling tag", "BD1\n1\nBD1A @TAG\n", &SyntaxError{}},
		{"only silence", "BD1\n1\nSPC1\n", program.ErrEmptyProgram},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), "", "")
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			var se *SyntaxError
			if _, ok := tt.want.(*SyntaxError); ok {
				if !errors.As(err, &se) {
					t.Errorf("Parse() error = %v, want SyntaxError", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseUnknownLoopTarget(t *testing.T) {
	p, err := Parse(strings.NewReader("BD1\n2\nBD1A\nBD1B BD1Q\n"), "", "")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.LoopIndex != 0 {
		t.Errorf("LoopIndex = %d, want 0", p.LoopIndex)
	}
	if !strings.HasSuffix(p.Entries[0].Path, "BD1A"+DefaultExtension) {
		t.Errorf("path = %q, want default extension", p.Entries[0].Path)
	}
}

func TestParseWindows1252(t *testing.T) {
	// "Th\xe9me" is not valid UTF-8
	input := []byte("TH\r\n1\r\nTh\xe9me\r\n")
	p, err := Parse(strings.NewReader(string(input)), "", "wav")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := p.Entries[0].Name; got != "Théme" {
		t.Errorf("name = %q, want Théme", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bd1.mus")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path, ".wav")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(dir, "BD1", "BD1BD1A.wav"); p.Entries[0].Path != want {
		t.Errorf("path = %q, want %q", p.Entries[0].Path, want)
	}

	if _, err := Load(filepath.Join(dir, "missing.mus"), ""); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() missing error = %v", err)
	}
}
