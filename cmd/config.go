package cmd

import (
	"fmt"
	"log/slog"

	"musplay/config"
	"musplay/logger"

	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for managing and validating musplay configuration.",
}

// configValidateCmd validates the current configuration
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the current configuration file and environment variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup basic logging for validation
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			slog.Error("Configuration validation failed", slog.Any("error", err))
			return err
		}

		slog.Info("Configuration is valid")
		fmt.Println("✅ Configuration is valid")
		return nil
	},
}

// configShowCmd shows the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration values from file and environment variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Current Configuration:")
		fmt.Printf("  Audio:\n")
		fmt.Printf("    Buffer: %s\n", cfg.Audio.Buffer)
		fmt.Printf("    Progress log: %s\n", onOff(cfg.Audio.ProgressLog > 0, cfg.Audio.ProgressLog.String()))
		fmt.Printf("  Playback:\n")
		fmt.Printf("    Amplitude: %.2f\n", cfg.Playback.Amplitude)
		fmt.Printf("    Loop: %t\n", cfg.Playback.Loop)
		fmt.Printf("    Epilogue armed: %t\n", cfg.Playback.Epilogue)
		fmt.Printf("    Final epilogue armed: %t\n", cfg.Playback.Final)
		fmt.Printf("  Export:\n")
		fmt.Printf("    Block frames: %d\n", cfg.Export.BlockFrames)
		fmt.Printf("    Progress step: %.3f\n", cfg.Export.ProgressStep)
		fmt.Printf("  Playlist:\n")
		fmt.Printf("    Extension: %s\n", cfg.Playlist.Extension)
		fmt.Printf("  Logging:\n")
		fmt.Printf("    Level: %s\n", cfg.Logging.Level)
		fmt.Printf("    Format: %s\n", cfg.Logging.Format)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}

// onOff returns value, or "off" when the setting is disabled
func onOff(enabled bool, value string) string {
	if !enabled {
		return "off"
	}
	return value
}
