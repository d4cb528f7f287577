package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/cmd/ingest/opts"
	"github.com/walteh/ingest/pkg/config"
)

// NewRenderCmd creates the render command
func NewRenderCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <block> <path>",
		Short: "Show the destination a file would be copied to",
		Long: `Render evaluates a block's destination template for one file without
copying anything. Failed template nodes are listed as warnings.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			op, err := o.NewOperator(ctx, true)
			if err != nil {
				return err
			}

			res, err := op.Render(ctx, args[0], args[1])
			if err != nil {
				return errors.Errorf("rendering: %w", err)
			}

			for _, d := range res.Dropped {
				o.Console.Warningf("node %d %s: %v", d.Index, d.Segment(), d.Err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)

			if !res.OK() && o.Config.OnRenderError != config.PolicyDrop {
				return errors.Errorf("%d template nodes failed", len(res.Dropped))
			}
			return nil
		},
	}

	return cmd
}
