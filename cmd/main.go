package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/vn-script-translator/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		service.NewDefaultErrorHandler().Handle(err)
		os.Exit(1)
	}
}

type rootOptions struct {
	envFile string
	logFile string
	debug   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "vnst",
		Short:        "Translate the dialogue of Ren'Py visual novel scripts in place",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Load environment variables from this file if it exists")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stdout")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newTranslateCmd(opts),
		newServeCmd(opts),
		newScanCmd(opts),
	)
	return cmd
}
