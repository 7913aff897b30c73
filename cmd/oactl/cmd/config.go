package cmd

import (
	"github.com/spf13/cobra"
)

// skipSession marks commands that need configuration but no session.
const skipSession = "oactl/skip-session"

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect oactl configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration as TOML",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSession: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *a.cfg
			if cfg.RedisPassword != "" {
				cfg.RedisPassword = "********"
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}
