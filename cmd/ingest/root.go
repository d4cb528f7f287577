package main

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/walteh/ingest/cmd/ingest/commands"
	"github.com/walteh/ingest/cmd/ingest/opts"
	"github.com/walteh/ingest/pkg/config"
	"github.com/walteh/ingest/pkg/log"
	"github.com/walteh/ingest/pkg/state"
)

// commands carrying this annotation run without config or database
const annotationStandalone = "ingest/standalone"

// newRootCmd builds the command tree around one set of options. The caller
// closes the options once the command returns.
func newRootCmd() (*cobra.Command, *opts.RootOpts) {
	o := opts.New()

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Copy media into a templated directory layout, exactly once",
		Long: `ingest matches files with source patterns, renders a destination path for
each from its metadata (stat, regex captures, EXIF, ffprobe) and copies it
there. A sqlite database remembers what was copied so files are never
ingested twice. Running ingest without a subcommand is the same as "ingest run".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if standalone(cmd) {
				return nil
			}
			ctx, err := setup(cmd, o)
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			return nil
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := commands.RunIngest(cmd.Context(), o)
			return err
		},
	}

	addRootFlags(cmd, o)

	cmd.AddCommand(
		commands.NewRunCmd(o),
		commands.NewRenderCmd(o),
		commands.NewStatusCmd(o),
		commands.NewWatchCmd(o),
		newVersionCmd(),
	)

	return cmd, o
}

// standalone reports whether cmd runs without config or database
func standalone(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationStandalone] != "" {
			return true
		}
		switch c.Name() {
		case "help", "completion":
			return true
		}
	}
	return false
}

// addRootFlags adds shared flags to the root command and binds them, along
// with INGEST_* environment variables, to viper
func addRootFlags(cmd *cobra.Command, o *opts.RootOpts) {
	flags := cmd.PersistentFlags()
	flags.StringP(opts.KeyConfig, "c", config.DefaultFile, "config file path")
	flags.String(opts.KeyDatabase, "", "idempotency database path (overrides the config)")
	flags.BoolP(opts.KeyDebug, "d", false, "enable debug logging")
	flags.String(opts.KeyLogFile, "", "also write JSON logs to this rotated file")
	flags.BoolP(opts.KeyDryRun, "n", false, "render destinations without copying")
	flags.IntP(opts.KeyJobs, "j", 0, "blocks to process concurrently (overrides the config)")
	flags.Bool(opts.KeyProgress, true, "show a progress bar while copying")

	o.Viper.SetEnvPrefix("INGEST")
	o.Viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.Viper.AutomaticEnv()
	_ = o.Viper.BindPFlags(flags)
}

// setup configures logging, loads the config and opens the database
func setup(cmd *cobra.Command, o *opts.RootOpts) (context.Context, error) {
	v := o.Viper

	level := zerolog.InfoLevel
	if v.GetBool(opts.KeyDebug) {
		level = zerolog.DebugLevel
	}

	o.Stderr = cmd.ErrOrStderr()
	writers := []io.Writer{zerolog.ConsoleWriter{Out: o.Stderr, TimeFormat: time.Kitchen}}
	fileLog := zerolog.Nop()
	if path := v.GetString(opts.KeyLogFile); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		o.AddCloser(rotating)
		writers = append(writers, rotating)
		fileLog = zerolog.New(rotating).Level(level).With().Timestamp().Logger()
	}

	runID := uuid.NewString()
	o.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("run_id", runID).
		Logger()

	o.Console = log.New(cmd.OutOrStdout(), fileLog.With().Str("run_id", runID).Logger())

	ctx := o.Logger.WithContext(cmd.Context())
	ctx = log.NewContext(ctx, o.Console)

	cfg, err := config.Load(ctx, v.GetString(opts.KeyConfig))
	if err != nil {
		return nil, errors.Errorf("loading config: %w", err)
	}
	if db := v.GetString(opts.KeyDatabase); db != "" {
		cfg.Database = db
	}
	o.Config = cfg

	store, err := state.Open(ctx, cfg.Database)
	if err != nil {
		return nil, errors.Errorf("opening database: %w", err)
	}
	o.AddCloser(store)
	o.Store = store

	o.Logger.Debug().Str("config", cfg.Location()).Str("database", cfg.Database).Msg("ready")
	return ctx, nil
}
