package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/vn-script-translator/internal/service"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	var (
		exts  []string
		since time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "List the script files detected in a game folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ext") {
				exts = cfg.Scripts.Exts
			}
			var after time.Time
			if since > 0 {
				after = time.Now().Add(-since)
			}

			paths, err := service.FindScripts(args[0], exts, after)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&exts, "ext", nil, "Script extensions (overrides SCRIPT_EXTS)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only list scripts modified within this duration")
	return cmd
}
