package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

const chromedpModule = "github.com/chromedp/chromedp"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pdf-harvester version and its browser engine",
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		printVersion(cmd.OutOrStdout(), verbose)
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "also print the Go and chromedp versions")
	rootCmd.AddCommand(versionCmd)
}

func printVersion(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "pdf-harvester %s\n", version)
	if !verbose {
		return
	}
	fmt.Fprintf(w, "go       %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "chromedp %s\n", depVersion(chromedpModule))
}

// depVersion reports the linked version of module, or "unknown" when the
// binary carries no build info.
func depVersion(module string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == module {
			return dep.Version
		}
	}
	return "unknown"
}
