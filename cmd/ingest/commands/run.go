package commands

import (
	"context"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/cmd/ingest/opts"
	"github.com/walteh/ingest/pkg/status"
)

// NewRunCmd creates the run command
func NewRunCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Copy every new matching file to its rendered destination",
		Long: `Run ingests files once.
It will:
1. Match every block's source pattern
2. Skip files already recorded in the database
3. Render each destination from the file's metadata
4. Copy new files and record them`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := RunIngest(cmd.Context(), o)
			return err
		},
	}

	return cmd
}

// RunIngest runs the pipeline once and prints its summary
func RunIngest(ctx context.Context, o *opts.RootOpts) (status.Summary, error) {
	dryRun := o.Viper.GetBool(opts.KeyDryRun)

	op, err := o.NewOperator(ctx, dryRun)
	if err != nil {
		return status.Summary{}, err
	}

	if dryRun {
		o.Console.Header("planning " + o.Config.String())
	} else {
		o.Console.Header("ingesting " + o.Config.String())
	}

	summary, err := op.Run(ctx)
	o.Console.LogNewline()

	line := status.FormatSummary(summary)
	switch {
	case err != nil:
		o.Console.Error(line)
		return summary, errors.Errorf("running ingest: %w", err)
	case summary.Failed > 0 || summary.Conflict > 0:
		o.Console.Warning(line)
	default:
		o.Console.Success(line)
	}
	return summary, nil
}
