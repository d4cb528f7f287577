// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package operation

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/ingest/pkg/config"
	"github.com/walteh/ingest/pkg/log"
	"github.com/walteh/ingest/pkg/status"
)

// 🏃 Run gathers, filters and ingests every pending file. Blocks run
// concurrently up to the configured job count; files within a block are
// processed in match order. The first aborting error cancels the rest.
func (o *Operator) Run(ctx context.Context) (status.Summary, error) {
	logger := zerolog.Ctx(ctx)

	pending, err := o.Gather(ctx)
	if err != nil {
		return status.Summary{}, errors.Errorf("gathering files: %w", err)
	}

	pending, err = o.Filter(ctx, pending)
	if err != nil {
		return status.Summary{}, errors.Errorf("filtering files: %w", err)
	}

	var total int64
	if !o.dryRun {
		for _, p := range pending {
			total += p.File.Stat.Size
		}
	}

	logger.Debug().Int("pending", len(pending)).Int64("bytes", total).Int("jobs", o.jobs).Bool("dry_run", o.dryRun).Msg("starting ingest")

	o.status.StartOperation(ctx, total)
	err = o.runBlocks(ctx, groupByBlock(pending))
	return o.status.FinishOperation(ctx), err
}

type blockRun struct {
	block *config.Block
	files []*Pending
}

// groupByBlock splits pending files per block, keeping first-seen block order
func groupByBlock(pending []*Pending) []*blockRun {
	var runs []*blockRun
	index := make(map[*config.Block]int)
	for _, p := range pending {
		i, ok := index[p.Block]
		if !ok {
			i = len(runs)
			index[p.Block] = i
			runs = append(runs, &blockRun{block: p.Block})
		}
		runs[i].files = append(runs[i].files, p)
	}
	return runs
}

func (o *Operator) runBlocks(ctx context.Context, runs []*blockRun) error {
	if o.jobs <= 1 {
		for _, r := range runs {
			if err := o.runBlock(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.jobs)
	for _, r := range runs {
		g.Go(func() error {
			return o.runBlock(gctx, r)
		})
	}
	return g.Wait()
}

func (o *Operator) runBlock(ctx context.Context, r *blockRun) error {
	console := log.FromContext(ctx)
	console.StartBlock(ctx, log.BlockOperation{
		Name:        r.block.Name,
		Source:      r.block.Source,
		Destination: r.block.Destination,
		DryRun:      o.dryRun,
	})
	defer console.EndBlock(ctx, r.block.Name)

	for _, p := range r.files {
		if err := o.process(ctx, p); err != nil {
			return errors.Errorf("block %s: %w", r.block.Name, err)
		}
	}
	return nil
}
