package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jmcleod/oaclient/session"
)

var (
	routeColor = color.New(color.FgCyan)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	dimColor   = color.New(color.Faint)
)

// navigate applies a navigation intent. A terminal has no pages, so the
// intent is reported on stderr and the next step is suggested.
func (a *app) navigate(cmd *cobra.Command, route session.Route) {
	if route == session.RouteNone || a.jsonOutput {
		return
	}
	w := cmd.ErrOrStderr()
	switch route {
	case session.RouteLogin:
		routeColor.Fprintf(w, "→ %s", route)
		dimColor.Fprintln(w, "  (run 'oactl login' to sign in)")
	case session.RouteHome:
		routeColor.Fprintf(w, "→ %s", route)
		dimColor.Fprintln(w, "  (try 'oactl dashboard')")
	default:
		routeColor.Fprintf(w, "→ %s\n", route)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func done(w io.Writer, format string, args ...any) {
	okColor.Fprintf(w, "✓ "+format+"\n", args...)
}

func warn(w io.Writer, format string, args ...any) {
	warnColor.Fprintf(w, format+"\n", args...)
}

// show prints v as JSON when --json is set, otherwise calls human.
func (a *app) show(cmd *cobra.Command, v any, human func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	if a.jsonOutput {
		return writeJSON(w, v)
	}
	if err := human(w); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
