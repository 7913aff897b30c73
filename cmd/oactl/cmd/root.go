package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jmcleod/oaclient/api"
	"github.com/jmcleod/oaclient/internal/config"
	"github.com/jmcleod/oaclient/internal/logging"
	"github.com/jmcleod/oaclient/session"
)

// requiresLogin marks commands that refuse to run without a token.
const requiresLogin = "oactl/requires-login"

var (
	errNotLoggedIn    = errors.New("not logged in, run 'oactl login' first")
	errSessionExpired = errors.New("session expired, run 'oactl login' again")
)

// app is the per-invocation context shared by every command: the loaded
// configuration, the gateway and the session store on top of it.
type app struct {
	configPath string
	flags      config.Config
	jsonOutput bool
	noColor    bool
	stdin      io.Reader

	cfg     *config.Config
	logger  *slog.Logger
	client  *api.Client
	session *session.Store
	closer  io.Closer
}

func (a *app) close() {
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.logger.Warn("closing session storage", "error", err)
		}
		a.closer = nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "oactl",
		Short: "oactl is a command-line client for the OA service",
		Long: `Manage departments and users of the OA service from the terminal.

Log in once with 'oactl login'; the session is kept in local storage and
reused by later commands until 'oactl logout'.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", config.DefaultPath(), "Path to the TOML config file")
	f.StringVar(&a.flags.Server, "server", "", "OA service URL, without the /api suffix")
	f.DurationVar(&a.flags.Timeout.Duration, "timeout", 0, "Per-request timeout")
	f.StringVar(&a.flags.Store, "store", "", "Session storage backend: bbolt, file, memory or redis")
	f.StringVar(&a.flags.DataDir, "data-dir", "", "Directory for persisted session data")
	f.StringVar(&a.flags.Namespace, "namespace", "", "Session namespace, one per account profile")
	f.StringVar(&a.flags.RedisAddr, "redis-addr", "", "Redis address for the redis store")
	f.StringVar(&a.flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.StringVar(&a.flags.LogFormat, "log-format", "", "Log format: text or json")
	f.BoolVar(&a.jsonOutput, "json", false, "Output results as JSON")
	f.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newDashboardCmd(a),
		newManagersCmd(a),
		newDepartmentsCmd(a),
		newUsersCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs oactl with the process arguments.
func Execute() {
	a := &app{stdin: os.Stdin}
	rootCmd := newRootCmd(a)
	err := rootCmd.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and opens the session. It runs before every
// command.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.noColor {
		color.NoColor = true
	}

	cfg, err := config.Load(a.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	a.mergeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.logger = logger

	if cmd.Annotations[skipSession] != "" {
		return nil
	}

	mirror, closer, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	a.closer = closer

	client, err := api.NewClient(cfg.Server,
		api.WithTimeout(cfg.Timeout.Duration),
		api.WithLogger(logger),
		api.WithUserAgent("oactl/"+Version),
	)
	if err != nil {
		return err
	}
	sess, err := session.Open(cmd.Context(), mirror, client,
		session.WithLogger(logger),
		session.WithGuestName(cfg.GuestName),
	)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	client.SetTokenSource(sess)
	a.client = client
	a.session = sess

	if cmd.Annotations[requiresLogin] == "" {
		return nil
	}
	if sess.IsLoggedIn() && sess.TokenExpired() {
		a.logger.Info("stored token has expired, clearing session")
		route, err := sess.Logout(cmd.Context())
		if err != nil {
			return err
		}
		a.navigate(cmd, route)
		return errSessionExpired
	}
	if !sess.IsLoggedIn() {
		a.navigate(cmd, session.RouteLogin)
		return errNotLoggedIn
	}
	return nil
}

func (a *app) mergeFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("server") {
		cfg.Server = a.flags.Server
	}
	if changed("timeout") {
		cfg.Timeout = a.flags.Timeout
	}
	if changed("store") {
		cfg.Store = a.flags.Store
	}
	if changed("data-dir") {
		cfg.DataDir = a.flags.DataDir
	}
	if changed("namespace") {
		cfg.Namespace = a.flags.Namespace
	}
	if changed("redis-addr") {
		cfg.RedisAddr = a.flags.RedisAddr
	}
	if changed("log-level") {
		cfg.LogLevel = a.flags.LogLevel
	}
	if changed("log-format") {
		cfg.LogFormat = a.flags.LogFormat
	}
}

func protected(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[requiresLogin] = "true"
	return cmd
}
