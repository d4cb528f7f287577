package commands

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/cmd/ingest/opts"
	"github.com/walteh/ingest/pkg/watch"
)

// NewWatchCmd creates the watch command
func NewWatchCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest once, then again whenever a source directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			op, err := o.NewOperator(ctx, true)
			if err != nil {
				return err
			}
			roots, err := op.Roots(ctx)
			if err != nil {
				return errors.Errorf("resolving watch roots: %w", err)
			}

			if _, err := RunIngest(ctx, o); err != nil {
				return err
			}

			db, err := filepath.Abs(o.Store.Path())
			if err != nil {
				return errors.Errorf("resolving database path: %w", err)
			}

			w := &watch.Watcher{
				Roots:    roots,
				Debounce: o.Viper.GetDuration(opts.KeyDebounce),
				Ignore: func(path string) bool {
					if strings.Contains(filepath.Base(path), ".ingest-") {
						return true
					}
					abs, err := filepath.Abs(path)
					return err == nil && strings.HasPrefix(abs, db)
				},
				Run: func(ctx context.Context) error {
					_, err := RunIngest(ctx, o)
					return err
				},
			}
			return w.Watch(ctx)
		},
	}

	cmd.Flags().Duration(opts.KeyDebounce, watch.DefaultDebounce, "wait this long for changes to settle before running")
	_ = o.Viper.BindPFlag(opts.KeyDebounce, cmd.Flags().Lookup(opts.KeyDebounce))

	return cmd
}
