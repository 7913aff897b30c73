package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

func newDashboardCmd(a *app) *cobra.Command {
	return protected(&cobra.Command{
		Use:   "dashboard",
		Short: "Show the dashboard summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := a.client.GetDashboardData(cmd.Context())
			if err != nil {
				return err
			}
			return a.show(cmd, data, func(w io.Writer) error {
				fmt.Fprintf(w, "Welcome, %s\n", a.session.Username())
				tw := newTable(w)
				for _, k := range slices.Sorted(maps.Keys(data)) {
					fmt.Fprintf(tw, "%s:\t%v\n", k, data[k])
				}
				return tw.Flush()
			})
		},
	})
}

func newManagersCmd(a *app) *cobra.Command {
	return protected(&cobra.Command{
		Use:   "managers",
		Short: "List users who can manage a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			managers, err := a.client.ListManagers(cmd.Context())
			if err != nil {
				return err
			}
			return a.show(cmd, managers, func(w io.Writer) error {
				tw := newTable(w)
				fmt.Fprintln(tw, "UID\tNAME")
				for _, m := range managers {
					fmt.Fprintf(tw, "%s\t%s\n", m.UID, m.Realname)
				}
				return tw.Flush()
			})
		},
	})
}
