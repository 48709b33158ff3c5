package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"musplay/config"
	"musplay/export"
	"musplay/playback"

	"github.com/chzyer/readline"
)

var (
	errUnknownCommand = errors.New("unknown command, type help")
	errNoTag          = errors.New("no epilogue tagged on this track")
)

const consoleHelp = `Commands:
  start                 play from the beginning
  stop                  stop and rewind
  suspend | resume      pause and continue
  seek <fraction>       jump to a fraction of one pass (0 to 1)
  amp <gain>            set the linear amplitude
  loop on|off           enable or disable looping
  looptarget <index>    set the track looped back to
  epilogue on|off|final arm the epilogue, disarm it or arm the final one
  epilogue <name>       select and arm an epilogue
  epilogue current      select and arm the epilogue tagged on the playing track
  status                show the position
  export <file.wav>     write one pass to a file in the background
  quit                  leave`

// console is the interactive control surface of a player.
type console struct {
	player  *playback.Player
	cfg     *config.Config
	out     io.Writer
	exports sync.WaitGroup
}

func newConsole(p *playback.Player, cfg *config.Config, out io.Writer) *console {
	return &console{player: p, cfg: cfg, out: out}
}

// run reads commands until quit, end of input or ctx is done.
func (c *console) run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "musplay> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("start"),
			readline.PcItem("stop"),
			readline.PcItem("suspend"),
			readline.PcItem("resume"),
			readline.PcItem("seek"),
			readline.PcItem("amp"),
			readline.PcItem("loop", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("looptarget"),
			readline.PcItem("epilogue", readline.PcItem("on"), readline.PcItem("off"), readline.PcItem("final"), readline.PcItem("current")),
			readline.PcItem("status"),
			readline.PcItem("export"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to start console: %w", err)
	}
	defer rl.Close()
	c.out = rl.Stdout()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if err != nil {
			break
		}

		quit, err := c.exec(ctx, line)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if quit {
			break
		}
	}

	c.exports.Wait()
	return c.player.Stop()
}

// exec runs one console command.
func (c *console) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "start":
		return false, c.player.Start()
	case "stop":
		return false, c.player.Stop()
	case "suspend", "pause":
		c.player.Suspend()
	case "resume":
		c.player.Resume()
	case "seek":
		f, err := floatArg(args, "seek <fraction>")
		if err != nil {
			return false, err
		}
		return false, c.player.Seek(f)
	case "amp":
		f, err := floatArg(args, "amp <gain>")
		if err != nil {
			return false, err
		}
		c.player.SetAmplitude(f)
	case "loop":
		if len(args) != 1 {
			return false, usage("loop on|off")
		}
		on, err := parseSwitch(args[0])
		if err != nil {
			return false, err
		}
		c.player.SetLoop(on)
	case "looptarget":
		if len(args) != 1 {
			return false, usage("looptarget <index>")
		}
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return false, usage("looptarget <index>")
		}
		return false, c.player.SetLoopIndex(i)
	case "epilogue":
		if len(args) != 1 {
			return false, usage("epilogue on|off|final|<name>")
		}
		return false, c.epilogue(args[0])
	case "status":
		fmt.Fprintln(c.out, c.status())
	case "export":
		if len(args) != 1 {
			return false, usage("export <file.wav>")
		}
		return false, c.export(ctx, args[0])
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("%q: %w", name, errUnknownCommand)
	}
	return false, nil
}

func (c *console) epilogue(arg string) error {
	switch strings.ToLower(arg) {
	case "off":
		c.player.ArmEpilogue(false, false)
	case "on":
		c.player.ArmEpilogue(true, false)
	case "final":
		c.player.ArmEpilogue(true, true)
	case "current":
		idx := c.player.Status().Index
		name := c.player.Sequencer().Program().Tag(idx)
		if name == "" {
			return fmt.Errorf("track %d: %w", idx, errNoTag)
		}
		if err := c.player.SelectEpilogue(name); err != nil {
			return err
		}
		c.player.ArmEpilogue(true, false)
	default:
		if err := c.player.SelectEpilogue(arg); err != nil {
			return err
		}
		c.player.ArmEpilogue(true, false)
	}
	return nil
}

func (c *console) export(ctx context.Context, path string) error {
	done, err := c.player.Export(ctx, path, export.Options{
		BlockFrames:  c.cfg.Export.BlockFrames,
		ProgressStep: c.cfg.Export.ProgressStep,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "exporting to %s\n", path)

	c.exports.Add(1)
	go func() {
		defer c.exports.Done()
		if err := <-done; err != nil {
			fmt.Fprintf(c.out, "export failed: %v\n", err)
			return
		}
		slog.Debug("Console export done", slog.String("path", path))
	}()
	return nil
}

func (c *console) status() string {
	st := c.player.Status()
	state := "stopped"
	switch {
	case c.player.IsSuspended():
		state = "suspended"
	case c.player.IsPlaying():
		state = "playing"
	case st.Finished:
		state = "finished"
	}
	return fmt.Sprintf("%s track %d %s/%s (%.1f%%) loop to %.1f%% passes %d %s",
		state, st.Index,
		formatSeconds(c.player.Seconds()), formatSeconds(c.player.TotalSeconds()),
		st.Fraction*100, c.player.LoopFraction()*100, st.Passes, st.State)
}

func usage(u string) error {
	return fmt.Errorf("usage: %s", u)
}

func floatArg(args []string, u string) (float64, error) {
	if len(args) != 1 {
		return 0, usage(u)
	}
	f, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, usage(u)
	}
	return f, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is neither on nor off", s)
}

// formatSeconds renders seconds as m:ss.s
func formatSeconds(s float64) string {
	m := int(s) / 60
	return fmt.Sprintf("%d:%04.1f", m, s-float64(m*60))
}
