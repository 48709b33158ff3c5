package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"musplay/config"
	"musplay/logger"
	"musplay/playback"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	verbose   bool
	noConsole bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "musplay [flags] <playlist.mus | track...>",
	Short: "A looping soundtrack player",
	Long: `Musplay plays a sequence of audio tracks as one continuous stream, looping
back to a chosen track and optionally inserting an epilogue before each loop
or once before the end.

Tracks are given either as a MUS playlist or as a list of files. While playing,
an interactive console controls the player; type "help" for its commands.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlay,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	addProgramFlags(rootCmd)

	// Local flags for playback
	rootCmd.Flags().Duration("buffer", 100*time.Millisecond, "audio device buffer length")
	rootCmd.Flags().BoolVar(&noConsole, "no-console", false, "play without the interactive console")

	// Bind flags to viper
	viper.BindPFlag("audio.buffer", rootCmd.Flags().Lookup("buffer"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if verbose {
		viper.Set("logging.level", "debug")
	}
}

// setup loads and validates configuration and configures logging.
func setup() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return cfg, nil
}

// runPlay plays the program through the default output device
func runPlay(cmd *cobra.Command, args []string) error {
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

	player, err := playback.NewPlayer(prog, playback.WithBuffer(cfg.Audio.Buffer))
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	defer player.Close()

	if err := applySettings(cmd, player, cfg); err != nil {
		return err
	}

	events := player.Events(64)
	defer player.Unsubscribe(events)
	finished := make(chan struct{}, 1)
	go logEvents(events, finished)
	go logProgress(ctx, player, cfg.Audio.ProgressLog)

	if err := player.Start(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	if noConsole {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted, stopping playback...")
		case <-finished:
		}
		return player.Stop()
	}

	c := newConsole(player, cfg, os.Stdout)
	return c.run(ctx)
}
