package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/oaclient/api"
	"github.com/jmcleod/oaclient/session"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		password      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login [email]",
		Short: "Sign in and store the session",
		Long: `Exchange an email and password for an access token, store it and load
the user's profile. Missing values are prompted for interactively.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var creds api.Credentials
			var err error
			if len(args) == 1 {
				creds.Email = args[0]
			} else if creds.Email, err = a.askInput("Email:"); err != nil {
				return err
			}

			switch {
			case passwordStdin:
				creds.Password, err = readSecret(cmd.InOrStdin())
			case password != "":
				creds.Password = password
			default:
				creds.Password, err = a.askPassword("Password:")
			}
			if err != nil {
				return err
			}

			route, err := a.session.Login(cmd.Context(), creds)
			if err != nil {
				if api.IsUnauthorized(err) {
					return fmt.Errorf("login failed: %w", err)
				}
				return err
			}

			w := cmd.ErrOrStderr()
			if a.session.UserInfo() == nil {
				warn(w, "Signed in, but the profile could not be loaded; the session was cleared.")
			} else {
				done(w, "Signed in as %s", a.session.Username())
			}
			a.navigate(cmd, route)
			return a.show(cmd, a.session.Snapshot().UserInfo, func(io.Writer) error { return nil })
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prefer the prompt or --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wasLoggedIn := a.session.IsLoggedIn()
			route, err := a.session.Logout(cmd.Context())
			if err != nil {
				return fmt.Errorf("clearing stored session: %w", err)
			}
			if wasLoggedIn {
				done(cmd.ErrOrStderr(), "Signed out")
			}
			a.navigate(cmd, route)
			return nil
		},
	}
}

// whoami is the --json shape of the whoami command.
type whoami struct {
	LoggedIn  bool       `json:"logged_in"`
	Username  string     `json:"username"`
	User      *api.User  `json:"user,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newWhoamiCmd(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refresh && a.session.IsLoggedIn() {
				if err := a.session.FetchProfile(cmd.Context()); err != nil {
					if errors.Is(err, session.ErrProfileUnavailable) {
						a.navigate(cmd, session.RouteLogin)
					}
					return err
				}
			}

			out := whoami{
				LoggedIn: a.session.IsLoggedIn(),
				Username: a.session.Username(),
				User:     a.session.UserInfo(),
			}
			if exp, ok := a.session.TokenExpiry(); ok {
				out.ExpiresAt = &exp
			}

			return a.show(cmd, out, func(w io.Writer) error {
				if !out.LoggedIn {
					fmt.Fprintf(w, "%s (not signed in)\n", out.Username)
					return nil
				}
				fmt.Fprintln(w, out.Username)
				if u := out.User; u != nil {
					tw := newTable(w)
					fmt.Fprintf(tw, "  uid:\t%s\n", u.UID)
					fmt.Fprintf(tw, "  email:\t%s\n", orDash(u.Email))
					fmt.Fprintf(tw, "  telephone:\t%s\n", orDash(u.Telephone))
					if u.Department != nil {
						fmt.Fprintf(tw, "  department:\t%s\n", u.Department.Name)
					}
					fmt.Fprintf(tw, "  staff:\t%s\n", yesNo(u.IsStaff))
					if err := tw.Flush(); err != nil {
						return err
					}
				}
				switch {
				case out.ExpiresAt == nil:
				case a.session.TokenExpired():
					warn(w, "  token expired at %s", out.ExpiresAt.Local().Format(time.RFC3339))
				default:
					fmt.Fprintf(w, "  token valid for %s\n", a.session.TokenTTL().Round(time.Second))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Reload the profile from the service first")
	return cmd
}
