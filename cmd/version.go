package cmd

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"musplay/decoder"

	"github.com/spf13/cobra"
)

var (
	// Version information, set during build
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the musplay version together with the commit and date it was built
from, the Go runtime and the stream formats the decoder recognises.

With --short only the version number is printed.`,
	Run: func(cmd *cobra.Command, args []string) {
		short, _ := cmd.Flags().GetBool("short")
		writeVersion(cmd.OutOrStdout(), short)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("short", false, "print only the version number")
}

func writeVersion(w io.Writer, short bool) {
	if short {
		fmt.Fprintln(w, Version)
		return
	}
	fmt.Fprintf(w, "musplay %s (%s, built %s)\n", Version, GitCommit, BuildDate)
	fmt.Fprintf(w, "runtime:  %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "formats:  %s\n", strings.Join(decoder.Extensions, " "))
}
