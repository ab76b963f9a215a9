// Package cli implements the automarket CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rcliao/automarket/internal/config"
	"github.com/rcliao/automarket/internal/gateway"
	"github.com/rcliao/automarket/internal/observability"
	"github.com/rcliao/automarket/internal/session"
	"github.com/rcliao/automarket/internal/store"
)

// Version is stamped at build time.
var Version = "dev"

var (
	dbPath     string
	apiURL     string
	formatFlag string

	cfg         config.Config
	logger      = zerolog.Nop()
	metrics     = observability.NewMetrics()
	otelCleanup = func(context.Context) error { return nil }
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "automarket",
	Short: "Marketing automation from the terminal",
	Long:  "Log in, browse products, and rewrite marketing messages with a streaming assistant.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		shutdown, err := observability.SetupOTel(cmd.Context(), cfg.OTEL, Version)
		if err != nil {
			logger.Warn().Err(err).Msg("tracing disabled")
			return
		}
		otelCleanup = shutdown
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		flushTelemetry()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $AUTOMARKET_DB or ~/.automarket/automarket.db)")
	RootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default: $AUTOMARKET_API_URL)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// Configure installs the loaded configuration and logger. main calls it
// before Execute.
func Configure(c config.Config, l zerolog.Logger) {
	cfg = c
	logger = l
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.DBPath
}

func getAPIURL() string {
	if apiURL != "" {
		return strings.TrimRight(apiURL, "/")
	}
	return cfg.APIBaseURL
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

// env bundles what most commands need: local storage, the session and the
// API client.
type env struct {
	store   *store.SQLiteStore
	session *session.Session
	api     *gateway.API
}

func openEnv(ctx context.Context) (*env, error) {
	s, err := openStore()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sess := session.New(s, logger)
	if err := sess.Restore(ctx); err != nil {
		s.Close()
		return nil, err
	}
	client, err := gateway.New(getAPIURL(), sess,
		gateway.WithTimeout(cfg.HTTPTimeout),
		gateway.WithStreamTimeout(cfg.StreamTimeout),
		gateway.WithRateLimit(cfg.RateRPS, cfg.RateBurst),
		gateway.WithMetrics(metrics),
		gateway.WithLogger(logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	return &env{store: s, session: sess, api: gateway.NewAPI(client)}, nil
}

func (e *env) Close() {
	e.store.Close()
}

// requireLogin stops the command when there is no credential.
func (e *env) requireLogin(ctx context.Context, op string) {
	if !e.session.LoggedIn(ctx) {
		exitErr(op, errNotLoggedIn)
	}
}

var errNotLoggedIn = fmt.Errorf("not logged in (run `automarket login`)")

func textOutput() bool { return formatFlag == "text" }

// output prints v as indented JSON, or calls text in text mode.
func output(w io.Writer, v any, text func(io.Writer)) {
	if textOutput() && text != nil {
		text(w)
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func flushTelemetry() {
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("writing metrics failed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := otelCleanup(ctx); err != nil {
		logger.Debug().Err(err).Msg("tracing shutdown")
	}
}

func exitErr(msg string, err error) {
	logger.Debug().Err(err).Str("op", msg).Msg("command failed")
	fmt.Fprintf(os.Stderr, "error: %s: %s\n", msg, userMessage(err))
	flushTelemetry()
	os.Exit(1)
}

// userMessage maps gateway and validation errors to their notice and keeps
// other errors as they are.
func userMessage(err error) string {
	if notice := gateway.Notice(err); notice != gateway.NoticeGeneric {
		return notice
	}
	return err.Error()
}
