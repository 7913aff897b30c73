package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmcleod/oaclient/api"
)

func newDepartmentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "departments",
		Aliases: []string{"department", "dept"},
		Short:   "Manage departments",
	}
	cmd.AddCommand(
		newDepartmentsListCmd(a),
		newDepartmentsCreateCmd(a),
		newDepartmentsUpdateCmd(a),
		newDepartmentsDeleteCmd(a),
	)
	return cmd
}

func newDepartmentsListCmd(a *app) *cobra.Command {
	return protected(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List departments",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			depts, err := a.client.ListDepartments(cmd.Context())
			if err != nil {
				return err
			}
			return a.show(cmd, depts, func(w io.Writer) error {
				tw := newTable(w)
				fmt.Fprintln(tw, "ID\tNAME\tLEADER\tMANAGER\tINTRO")
				for _, d := range depts {
					manager := "-"
					if d.Manager != nil {
						manager = d.Manager.Realname
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", d.ID, d.Name, orDash(d.Leader), manager, orDash(d.Intro))
				}
				return tw.Flush()
			})
		},
	})
}

// departmentFlags binds the writable department fields.
type departmentFlags struct {
	name, intro, leader, manager string
}

func (f *departmentFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Department name")
	cmd.Flags().StringVar(&f.intro, "intro", "", "Short description")
	cmd.Flags().StringVar(&f.leader, "leader", "", "Leader's name")
	cmd.Flags().StringVar(&f.manager, "manager", "", "UID of the managing user")
	_ = cmd.MarkFlagRequired("name")
}

func (f *departmentFlags) input() api.DepartmentInput {
	in := api.DepartmentInput{Name: f.name, Intro: f.intro, Leader: f.leader}
	if f.manager != "" {
		in.Manager = &f.manager
	}
	return in
}

func newDepartmentsCreateCmd(a *app) *cobra.Command {
	var f departmentFlags
	cmd := protected(&cobra.Command{
		Use:   "create",
		Short: "Create a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.client.CreateDepartment(cmd.Context(), f.input())
			if err != nil {
				return err
			}
			return a.show(cmd, d, func(w io.Writer) error {
				done(w, "Created department %d (%s)", d.ID, d.Name)
				return nil
			})
		},
	})
	f.bind(cmd)
	return cmd
}

func newDepartmentsUpdateCmd(a *app) *cobra.Command {
	var f departmentFlags
	cmd := protected(&cobra.Command{
		Use:   "update <id>",
		Short: "Replace a department's fields",
		Long:  "Replace every writable field of a department. Fields not given are reset to empty.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDepartmentID(args[0])
			if err != nil {
				return err
			}
			d, err := a.client.UpdateDepartment(cmd.Context(), id, f.input())
			if err != nil {
				return err
			}
			return a.show(cmd, d, func(w io.Writer) error {
				done(w, "Updated department %d (%s)", d.ID, d.Name)
				return nil
			})
		},
	})
	f.bind(cmd)
	return cmd
}

func newDepartmentsDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := protected(&cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a department",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDepartmentID(args[0])
			if err != nil {
				return err
			}
			ok, err := a.confirm(fmt.Sprintf("Delete department %d?", id), yes)
			if err != nil || !ok {
				return err
			}
			if err := a.client.DeleteDepartment(cmd.Context(), id); err != nil {
				return err
			}
			done(cmd.ErrOrStderr(), "Deleted department %d", id)
			return nil
		},
	})
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func parseDepartmentID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("department id must be a positive integer")
	}
	return id, nil
}
