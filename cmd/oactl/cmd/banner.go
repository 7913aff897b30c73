package cmd

import (
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=v1.2.3".
var Version = "dev"

const banner = `
   ___   _   ___ _   _
  / _ \ /_\ / __| |_| |
 | (_) / _ \ (__|  _| |
  \___/_/ \_\___|\__|_|
`

func printBanner(w io.Writer) {
	color.New(color.FgBlue).Fprint(w, banner)
	color.New(color.FgGreen).Fprintf(w, "  OA command-line client - Version %s (%s)\n", Version, runtime.Version())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the oactl version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSession: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			printBanner(cmd.OutOrStdout())
		},
	}
}
