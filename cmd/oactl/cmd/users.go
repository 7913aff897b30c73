package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jmcleod/oaclient/api"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Manage users",
	}
	cmd.AddCommand(
		newUsersListCmd(a),
		newUsersCreateCmd(a),
		newUsersUpdateCmd(a),
		newUsersDeleteCmd(a),
	)
	return cmd
}

func newUsersListCmd(a *app) *cobra.Command {
	var (
		page, pageSize int
		filters        map[string]string
		all            bool
	)
	cmd := protected(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List users",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := &api.UserQuery{Page: page, PageSize: pageSize}
			if len(filters) > 0 {
				q.Extra = url.Values{}
				for k, v := range filters {
					q.Extra.Set(k, v)
				}
			}

			var users []api.User
			var count int
			for {
				p, err := a.client.ListUsers(cmd.Context(), q)
				if err != nil {
					return err
				}
				users = append(users, p.Results...)
				count = p.Count
				if !all || !p.HasMore() {
					break
				}
				q.Page = max(q.Page, 1) + 1
			}

			return a.show(cmd, users, func(w io.Writer) error {
				tw := newTable(w)
				fmt.Fprintln(tw, "UID\tNAME\tEMAIL\tDEPARTMENT\tSTAFF\tACTIVE")
				for _, u := range users {
					dept := "-"
					if u.Department != nil {
						dept = u.Department.Name
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						u.UID, u.Realname, orDash(u.Email), dept, yesNo(u.IsStaff), yesNo(u.IsActive))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				if count > len(users) {
					dimColor.Fprintf(w, "showing %d of %d, use --page or --all\n", len(users), count)
				}
				return nil
			})
		},
	})
	cmd.Flags().IntVar(&page, "page", 0, "Page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Results per page")
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "Extra query filters, e.g. --filter realname=Alice")
	cmd.Flags().BoolVar(&all, "all", false, "Follow pagination and list every user")
	return cmd
}

// userFlags binds the writable user fields. Only flags that were given
// are sent.
type userFlags struct {
	realname, email, password, telephone string
	department                           int64
	noDepartment, staff, active          bool
	status                               int
}

func (f *userFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.realname, "realname", "", "Full name")
	fl.StringVar(&f.email, "email", "", "Email address, used to sign in")
	fl.StringVar(&f.password, "password", "", "Initial or new password")
	fl.StringVar(&f.telephone, "telephone", "", "Telephone number")
	fl.Int64Var(&f.department, "department", 0, "Department id")
	fl.BoolVar(&f.noDepartment, "no-department", false, "Remove the user from their department")
	fl.BoolVar(&f.staff, "staff", false, "Grant staff rights")
	fl.BoolVar(&f.active, "active", true, "Whether the account may sign in")
	fl.IntVar(&f.status, "status", 0, "Service-defined status code")
	cmd.MarkFlagsMutuallyExclusive("department", "no-department")
}

func (f *userFlags) input(cmd *cobra.Command) api.UserInput {
	changed := cmd.Flags().Changed
	var in api.UserInput
	if changed("realname") {
		in.Realname = &f.realname
	}
	if changed("email") {
		in.Email = &f.email
	}
	if changed("password") {
		in.Password = &f.password
	}
	if changed("telephone") {
		in.Telephone = &f.telephone
	}
	if changed("department") {
		in.DepartmentID = &f.department
	}
	in.ClearDepartment = f.noDepartment
	if changed("staff") {
		in.IsStaff = &f.staff
	}
	if changed("active") {
		in.IsActive = &f.active
	}
	if changed("status") {
		in.Status = &f.status
	}
	return in
}

var userFieldFlags = []string{
	"realname", "email", "password", "telephone",
	"department", "no-department", "staff", "active", "status",
}

func (f *userFlags) anyChanged(cmd *cobra.Command) bool {
	for _, name := range userFieldFlags {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func newUsersCreateCmd(a *app) *cobra.Command {
	var f userFlags
	cmd := protected(&cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := a.client.CreateUser(cmd.Context(), f.input(cmd))
			if err != nil {
				return err
			}
			return a.show(cmd, u, func(w io.Writer) error {
				done(w, "Created user %s (%s)", u.UID, u.Realname)
				return nil
			})
		},
	})
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("realname")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newUsersUpdateCmd(a *app) *cobra.Command {
	var f userFlags
	cmd := protected(&cobra.Command{
		Use:   "update <uid>",
		Short: "Change some fields of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !f.anyChanged(cmd) {
				return errors.New("nothing to update, pass at least one field flag")
			}
			u, err := a.client.UpdateUser(cmd.Context(), args[0], f.input(cmd))
			if err != nil {
				return err
			}
			return a.show(cmd, u, func(w io.Writer) error {
				done(w, "Updated user %s (%s)", u.UID, u.Realname)
				return nil
			})
		},
	})
	f.bind(cmd)
	return cmd
}

func newUsersDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := protected(&cobra.Command{
		Use:     "delete <uid>",
		Aliases: []string{"rm"},
		Short:   "Delete a user",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := args[0]
			ok, err := a.confirm(fmt.Sprintf("Delete user %s?", uid), yes)
			if err != nil || !ok {
				return err
			}
			if err := a.client.DeleteUser(cmd.Context(), uid); err != nil {
				return err
			}
			done(cmd.ErrOrStderr(), "Deleted user %s", uid)
			return nil
		},
	})
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
