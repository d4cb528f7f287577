package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/cmd/ingest/opts"
	"github.com/walteh/ingest/pkg/status"
)

// NewStatusCmd creates the status command
func NewStatusCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [block]",
		Short: "List the files recorded as ingested",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			block := ""
			if len(args) == 1 {
				block = args[0]
				if _, ok := o.Config.Block(block); !ok {
					return errors.Errorf("unknown block %q", block)
				}
			}

			records, err := o.Store.List(ctx, block)
			if err != nil {
				return errors.Errorf("listing records: %w", err)
			}

			counts := map[string]int{}
			for _, rec := range records {
				counts[rec.Block]++
			}

			out := cmd.OutOrStdout()
			current := ""
			for _, rec := range records {
				if rec.Block != current {
					if current != "" {
						fmt.Fprintln(out)
					}
					current = rec.Block
					fmt.Fprintln(out, status.FormatBlockHeader(current, counts[current]))
				}
				fmt.Fprintln(out, status.FormatFileLine(status.FileInfo{
					Block:       rec.Block,
					Source:      rec.Source,
					Destination: rec.Destination,
					Size:        rec.Size,
					Status:      status.StatusCopied,
				}))
			}

			o.Console.LogNewline()
			o.Console.Infof("%d files recorded in %s", len(records), o.Store.Path())
			return nil
		},
	}

	return cmd
}
