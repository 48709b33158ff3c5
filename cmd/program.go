package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"musplay/config"
	"musplay/decoder"
	"musplay/events"
	"musplay/logger"
	"musplay/playback"
	"musplay/playlist"
	"musplay/program"
	"musplay/sequencer"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// addProgramFlags registers the flags shared by every command that builds a
// program.
func addProgramFlags(c *cobra.Command) {
	f := c.PersistentFlags()
	f.String("root", "", "directory track paths are relative to")
	f.Int("loop-index", 0, "track to loop back to (0-based); overrides the playlist")
	f.StringArray("epilogue", nil, "epilogue as name=path (repeatable)")
	f.String("final", "", "name of the epilogue played once before the end")
	f.String("select", "", "name of the epilogue played before each loop")
	f.Float64("amp", 1.0, "linear amplitude")
	f.Bool("loop", true, "loop back to the loop target at the end")
	f.Bool("arm", false, "play the selected epilogue before each loop")
	f.Bool("arm-final", false, "play the final epilogue and stop")
	f.String("extension", ".wav", "extension of playlist segment files")
	f.Bool("preload", false, "decode every stream into memory before playing")

	viper.BindPFlag("playback.amplitude", f.Lookup("amp"))
	viper.BindPFlag("playback.loop", f.Lookup("loop"))
	viper.BindPFlag("playback.epilogue", f.Lookup("arm"))
	viper.BindPFlag("playback.final", f.Lookup("arm-final"))
	viper.BindPFlag("playlist.extension", f.Lookup("extension"))
	viper.BindPFlag("audio.preload", f.Lookup("preload"))
}

// buildProgram resolves args, either one MUS playlist or a list of tracks,
// into a program.
func buildProgram(ctx context.Context, cmd *cobra.Command, cfg *config.Config, args []string) (*program.Program, error) {
	flags := cmd.Flags()

	var (
		def    program.Definition
		opener decoder.Opener
	)
	if len(args) == 1 && strings.EqualFold(filepath.Ext(args[0]), ".mus") {
		pl, err := playlist.Load(args[0], cfg.Playlist.Extension)
		if err != nil {
			return nil, fmt.Errorf("failed to load playlist: %w", err)
		}
		def = pl.Definition()
		opener = decoder.FileResolver{}
		slog.Debug("Loaded playlist",
			slog.String("path", args[0]),
			slog.Int("entries", len(pl.Entries)),
			slog.Int("loop_index", pl.LoopIndex))
	} else {
		root, _ := flags.GetString("root")
		def.Tracks = args
		opener = decoder.FileResolver{Root: root}
	}

	if cfg.Audio.Preload {
		opener = decoder.NewCache(opener)
	}

	if flags.Changed("loop-index") {
		def.LoopIndex, _ = flags.GetInt("loop-index")
	}
	epilogues, _ := flags.GetStringArray("epilogue")
	for _, arg := range epilogues {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid epilogue %q, want name=path", arg)
		}
		def.Epilogues = append(def.Epilogues, program.Epilogue{Name: name, ID: path})
	}
	def.Final, _ = flags.GetString("final")

	prog, err := program.New(ctx, def, opener)
	if err != nil {
		return nil, fmt.Errorf("failed to build program: %w", err)
	}
	return prog, nil
}

// controls is satisfied by both a Player and a bare Sequencer.
type controls interface {
	SetAmplitude(amp float64)
	SetLoop(loop bool)
	ArmEpilogue(armed, final bool)
	SelectEpilogue(name string) error
}

var (
	_ controls = (*playback.Player)(nil)
	_ controls = (*sequencer.Sequencer)(nil)
)

// applySettings copies the configured playback settings onto c.
func applySettings(cmd *cobra.Command, c controls, cfg *config.Config) error {
	c.SetAmplitude(cfg.Playback.Amplitude)
	c.SetLoop(cfg.Playback.Loop)
	c.ArmEpilogue(cfg.Playback.Epilogue || cfg.Playback.Final, cfg.Playback.Final)

	if name, _ := cmd.Flags().GetString("select"); name != "" {
		if err := c.SelectEpilogue(name); err != nil {
			return err
		}
	}
	return nil
}

// logEvents logs player notifications until l is unsubscribed. finished is
// signalled, without blocking, when playback ends.
func logEvents(l *events.Listener[sequencer.Event], finished chan<- struct{}) {
	log := logger.WithComponent("player")
	for {
		select {
		case e := <-l.C:
			switch e.Kind {
			case sequencer.EventFinished:
				log.Info("Playback finished")
				select {
				case finished <- struct{}{}:
				default:
				}
			case sequencer.EventEpilogueState:
				log.Debug("Epilogue state changed", slog.String("state", e.State.String()))
			case sequencer.EventDecodeError:
				log.Warn("Decode error, track skipped", slog.Any("error", e.Err))
			case sequencer.EventExportProgress:
				log.Debug("Export progress", slog.String("path", e.Path), slog.Float64("fraction", e.Fraction))
			case sequencer.EventExportFinished:
				log.Info("Export finished", slog.String("path", e.Path))
			}
		case <-l.Done():
			return
		}
	}
}

// logProgress periodically logs the playing position.
func logProgress(ctx context.Context, p *playback.Player, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.IsPlaying() {
				continue
			}
			st := p.Status()
			slog.Info("Playing",
				slog.Int("track", st.Index),
				slog.String("position", formatSeconds(p.Seconds())),
				slog.String("total", formatSeconds(p.TotalSeconds())),
				slog.Float64("fraction", st.Fraction),
				slog.Int("passes", st.Passes),
				slog.String("epilogue", st.State.String()))
		}
	}
}
