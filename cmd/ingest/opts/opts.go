package opts

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/pkg/config"
	"github.com/walteh/ingest/pkg/log"
	"github.com/walteh/ingest/pkg/metadata"
	"github.com/walteh/ingest/pkg/operation"
	"github.com/walteh/ingest/pkg/state"
	"github.com/walteh/ingest/pkg/status"
)

// Setting keys shared by flags, environment variables and viper lookups
const (
	KeyConfig   = "config"
	KeyDatabase = "db"
	KeyDebug    = "debug"
	KeyLogFile  = "log-file"
	KeyDryRun   = "dry-run"
	KeyJobs     = "jobs"
	KeyProgress = "progress"
	KeyDebounce = "debounce"
)

// RootOpts contains shared options used by all commands
type RootOpts struct {
	Viper *viper.Viper

	Config  *config.Config
	Store   *state.Store
	Logger  zerolog.Logger
	Console *log.Logger
	Stderr  io.Writer

	closers []io.Closer
}

// New returns options backed by a fresh viper instance
func New() *RootOpts {
	return &RootOpts{
		Viper:  viper.New(),
		Logger: zerolog.Nop(),
		Stderr: os.Stderr,
	}
}

// AddCloser registers c to be closed by Close
func (o *RootOpts) AddCloser(c io.Closer) {
	o.closers = append(o.closers, c)
}

// Close releases everything registered with AddCloser, newest first
func (o *RootOpts) Close() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}

// NewOperator builds an operator over the loaded config and store
func (o *RootOpts) NewOperator(ctx context.Context, dryRun bool) (*operation.Operator, error) {
	var progress status.Progress
	if !dryRun && o.Viper.GetBool(KeyProgress) && !o.Viper.GetBool(KeyDebug) {
		progress = status.NewBarProgress("copying", o.Stderr)
	}

	logger := o.Logger
	op, err := operation.New(operation.Options{
		Config: o.Config,
		Store:  o.Store,
		Prober: &metadata.FFProbe{
			Command: o.Config.ProbeCommand,
			Timeout: o.Config.ProbeTimeoutDuration(),
		},
		Status: status.New(&logger, progress),
		DryRun: dryRun,
		Jobs:   o.Viper.GetInt(KeyJobs),
	})
	if err != nil {
		return nil, errors.Errorf("creating operator: %w", err)
	}
	return op, nil
}
