package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"musplay/config"
	"musplay/decoder"
	"musplay/playback"
	"musplay/program"

	"github.com/gopxl/beep/v2"
)

type nullDevice struct{ mu sync.Mutex }

func (d *nullDevice) Init(beep.SampleRate, int) error { return nil }
func (d *nullDevice) Play(...beep.Streamer)           {}
func (d *nullDevice) Lock()                           { d.mu.Lock() }
func (d *nullDevice) Unlock()                         { d.mu.Unlock() }
func (d *nullDevice) Clear()                          {}
func (d *nullDevice) Close()                          {}

func silence(frames int) *decoder.PCM {
	return decoder.NewPCM(decoder.Format{SampleRate: 8000, Channels: 2}, make([][2]float64, frames))
}

func newTestConsole(t *testing.T) (*console, *bytes.Buffer) {
	t.Helper()
	res := decoder.MemoryResolver{
		"a":   silence(1000),
		"b":   silence(3000),
		"end": silence(200),
	}
	prog, err := program.New(context.Background(), program.Definition{
		Tracks:    []string{"a", "b"},
		Epilogues: []program.Epilogue{{Name: "tag", ID: "end"}, {Name: "fin", ID: "end"}},
		Final:     "fin",
		Tags:      []string{"", "tag"},
	}, res)
	if err != nil {
		t.Fatalf("program.New() error = %v", err)
	}
	player, err := playback.NewPlayer(prog, playback.WithDevice(&nullDevice{}))
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	t.Cleanup(func() { player.Close() })

	cfg := &config.Config{Export: config.ExportConfig{BlockFrames: 1024, ProgressStep: 0.1}}
	out := &bytes.Buffer{}
	return newConsole(player, cfg, out), out
}

func TestConsoleSettings(t *testing.T) {
	c, _ := newTestConsole(t)
	ctx := context.Background()
	seq := c.player.Sequencer()

	for _, line := range []string{"amp 0.5", "loop off", "looptarget 1", "epilogue final"} {
		if _, err := c.exec(ctx, line); err != nil {
			t.Fatalf("exec(%q) error = %v", line, err)
		}
	}
	if seq.Amplitude() != 0.5 || seq.Loop() || seq.LoopIndex() != 1 {
		t.Errorf("settings = %v %v %d", seq.Amplitude(), seq.Loop(), seq.LoopIndex())
	}
	if armed, final := seq.EpilogueArmed(); !armed || !final {
		t.Errorf("EpilogueArmed() = %v, %v", armed, final)
	}

	if _, err := c.exec(ctx, "epilogue tag"); err != nil {
		t.Fatalf("exec(epilogue tag) error = %v", err)
	}
	if armed, final := seq.EpilogueArmed(); !armed || final || seq.SelectedEpilogue() != "tag" {
		t.Errorf("after select: armed=%v final=%v selected=%q", armed, final, seq.SelectedEpilogue())
	}
}

func TestConsoleCurrentEpilogue(t *testing.T) {
	c, _ := newTestConsole(t)
	ctx := context.Background()
	seq := c.player.Sequencer()

	if _, err := c.exec(ctx, "epilogue current"); !errors.Is(err, errNoTag) {
		t.Fatalf("exec(epilogue current) on untagged track error = %v, want errNoTag", err)
	}
	if armed, _ := seq.EpilogueArmed(); armed {
		t.Errorf("epilogue armed after failed selection")
	}

	if _, err := c.exec(ctx, "seek 0.5"); err != nil {
		t.Fatalf("exec(seek) error = %v", err)
	}
	if _, err := c.exec(ctx, "epilogue current"); err != nil {
		t.Fatalf("exec(epilogue current) error = %v", err)
	}
	if armed, final := seq.EpilogueArmed(); !armed || final || seq.SelectedEpilogue() != "tag" {
		t.Errorf("armed=%v final=%v selected=%q, want tag armed", armed, final, seq.SelectedEpilogue())
	}
}

func TestConsoleErrors(t *testing.T) {
	c, _ := newTestConsole(t)
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"bogus", "unknown command"},
		{"amp", "usage"},
		{"amp loud", "usage"},
		{"loop maybe", "neither on nor off"},
		{"looptarget 9", "loop index out of range"},
		{"epilogue nope", "unknown epilogue"},
		{"seek", "usage"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := c.exec(ctx, tt.line)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("exec(%q) error = %v, want %q", tt.line, err, tt.want)
			}
		})
	}

	if _, err := c.exec(ctx, "bogus"); !errors.Is(err, errUnknownCommand) {
		t.Errorf("exec(bogus) error = %v, want errUnknownCommand", err)
	}
}

func TestConsoleSeekAndStatus(t *testing.T) {
	c, out := newTestConsole(t)
	ctx := context.Background()

	if _, err := c.exec(ctx, "seek 0.5"); err != nil {
		t.Fatalf("exec(seek) error = %v", err)
	}
	if _, err := c.exec(ctx, "status"); err != nil {
		t.Fatalf("exec(status) error = %v", err)
	}
	if got := out.String(); !strings.Contains(got, "(50.0%)") || !strings.Contains(got, "track 1") {
		t.Errorf("status = %q", got)
	}
}

func TestConsoleExportAndQuit(t *testing.T) {
	c, out := newTestConsole(t)
	ctx := context.Background()

	dest := filepath.Join(t.TempDir(), "out.wav")
	if _, err := c.exec(ctx, "export "+dest); err != nil {
		t.Fatalf("exec(export) error = %v", err)
	}
	c.exports.Wait()
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("export missing: %v", err)
	}
	if strings.Contains(out.String(), "export failed") {
		t.Errorf("output = %q", out.String())
	}

	quit, err := c.exec(ctx, "quit")
	if !quit || err != nil {
		t.Errorf("exec(quit) = %v, %v", quit, err)
	}
	if quit, _ := c.exec(ctx, "   "); quit {
		t.Errorf("blank line quits")
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00.0"},
		{9.3, "0:09.3"},
		{75.5, "1:15.5"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.in); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
