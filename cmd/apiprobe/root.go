package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/y0f/apiprobe/internal/config"
	"github.com/y0f/apiprobe/internal/storage"
)

const defaultConfigPath = "apiprobe.yaml"

var errNoHistory = errors.New("run history is disabled (database.dsn is empty)")

// app carries state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "apiprobe",
		Short: "Contract-driven API test synthesis and execution",
		Long: `apiprobe reads an OpenAPI contract, synthesizes happy-path, boundary and
violation test cases, runs them against a live target and reports every
verdict as JSON, JUnit XML or XLSX. Runs can be kept in a history database
for trends, flaky detection and coverage.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetVersionTemplate(`{{printf "apiprobe version %s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", defaultConfigPath, "path to configuration file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newRunCmd(a),
		newSynthCmd(a),
		newJUnitCmd(a),
		newHistoryCmd(a),
		newMetricsCmd(a),
		newDiffCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if a.noColor || os.Getenv("NO_COLOR") != "" {
		text.DisableColors()
	}

	a.cfg = cfg
	a.logger = setupLogger(cfg.Logging, cmd.ErrOrStderr())
	return nil
}

// loadConfig falls back to defaults when the default config file is absent;
// an explicitly named file must exist.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

// setupLogger writes to w (stderr) so reports on stdout stay clean.
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	if a.cfg.Database.DSN == "" {
		return nil, errNoHistory
	}
	store, err := storage.Open(ctx, a.cfg.Database.DSN, a.cfg.Database.MaxReadConns)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	a.logger.Debug("history opened", "dsn", redactDSN(a.cfg.Database.DSN))
	return store, nil
}

// redactDSN hides the password of a URL-style DSN.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if user, _, ok := strings.Cut(creds, ":"); ok {
		return dsn[:scheme+3] + user + ":***" + dsn[at:]
	}
	return dsn
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of apiprobe",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "apiprobe version %s\n", cmd.Root().Version)
		},
	}
}
