package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"musplay/export"
	"musplay/sequencer"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exportCmd renders a program to a WAV file without playing it
var exportCmd = &cobra.Command{
	Use:   "export -o <file.wav> <playlist.mus | track...>",
	Short: "Write one pass of a program to a WAV file",
	Long: `Export renders the program once from the beginning, without looping and
without the per-loop epilogue, to a 16-bit PCM WAV file. When the final
epilogue is armed it is appended. The output file is only created once the
export has succeeded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "destination WAV file")
	exportCmd.Flags().Int("block-frames", 4096, "frames rendered per block")
	exportCmd.MarkFlagRequired("output")

	viper.BindPFlag("export.block_frames", exportCmd.Flags().Lookup("block-frames"))
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prog, err := buildProgram(ctx, cmd, cfg, args)
	if err != nil {
		return err
	}

	seq, err := sequencer.New(prog)
	if err != nil {
		return fmt.Errorf("failed to open program: %w", err)
	}
	defer seq.Close()

	if err := applySettings(cmd, seq, cfg); err != nil {
		return err
	}

	dest, _ := cmd.Flags().GetString("output")
	err = export.Export(ctx, seq, dest, export.Options{
		BlockFrames:  cfg.Export.BlockFrames,
		ProgressStep: cfg.Export.ProgressStep,
		Sink: func(e sequencer.Event) {
			switch e.Kind {
			case sequencer.EventExportProgress:
				slog.Debug("Export progress", slog.Float64("fraction", e.Fraction))
			case sequencer.EventDecodeError:
				slog.Warn("Decode error, track skipped", slog.Any("error", e.Err))
			}
		},
	})
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		fmt.Println("\nInterrupted, export discarded")
		return err
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("Exported %s (%.1fs)\n", dest, prog.Seconds())
	return nil
}
