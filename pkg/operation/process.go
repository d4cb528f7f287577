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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/pkg/config"
	"github.com/walteh/ingest/pkg/log"
	"github.com/walteh/ingest/pkg/match"
	"github.com/walteh/ingest/pkg/metadata"
	"github.com/walteh/ingest/pkg/status"
	"github.com/walteh/ingest/pkg/template"
)

// ErrEmptyDestination is recorded when a destination renders to nothing
var ErrEmptyDestination = errors.Base("destination rendered empty")

// 📄 process renders, checks and copies one pending file. Per-file problems
// are tracked and swallowed; the returned error aborts the run.
func (o *Operator) process(ctx context.Context, p *Pending) error {
	logger := zerolog.Ctx(ctx).With().Str("block", p.Block.Name).Str("file", p.File.AbsPath).Logger()
	ctx = logger.WithContext(ctx)

	src, err := os.Open(p.File.AbsPath)
	if err != nil {
		return errors.Errorf("opening %s: %w", p.File.AbsPath, err)
	}
	defer src.Close()

	meta := metadata.New(ctx, p.File, src, o.prober)

	res, err := p.Destination.Render(ctx, o.scope(meta))
	if err != nil {
		return errors.Errorf("rendering destination of %s: %w", p.File.AbsPath, err)
	}

	if !res.OK() {
		if o.cfg.OnRenderError != config.PolicyDrop {
			o.fail(ctx, p, len(res.Dropped), errors.Errorf("rendering destination: %w", res.Err()))
			return nil
		}
		for _, d := range res.Dropped {
			logger.Warn().Err(d.Err).Int("node", d.Index).Str("expression", d.Source).Msg("dropping failed template node")
		}
	}
	if res.Text == "" {
		o.fail(ctx, p, len(res.Dropped), ErrEmptyDestination)
		return nil
	}
	p.DestinationPath = res.Text

	info := status.FileInfo{
		Block:       p.Block.Name,
		Source:      p.File.AbsPath,
		Destination: p.DestinationPath,
		Size:        p.File.Stat.Size,
		Dropped:     len(res.Dropped),
	}

	if o.dryRun {
		info.Status = status.StatusPlanned
		o.track(ctx, info)
		return nil
	}

	dst, err := filepath.Abs(p.DestinationPath)
	if err != nil {
		return errors.Errorf("resolving destination %s: %w", p.DestinationPath, err)
	}
	release := o.claims.claim(dst)
	defer release()

	existing, err := os.Stat(dst)
	switch {
	case err == nil:
		o.status.ShrinkTotal(p.File.Stat.Size)
		if existing.Size() == p.File.Stat.Size {
			logger.Debug().Str("destination", p.DestinationPath).Msg("destination already exists")
			info.Status = status.StatusExists
		} else {
			logger.Warn().
				Str("destination", p.DestinationPath).
				Int64("source_size", p.File.Stat.Size).
				Int64("destination_size", existing.Size()).
				Msg("destination exists with a different size, skipping")
			info.Status = status.StatusConflict
		}
		o.track(ctx, info)
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return errors.Errorf("checking destination %s: %w", p.DestinationPath, err)
	}

	if err := o.copy(ctx, src, p); err != nil {
		return err
	}

	info.Status = status.StatusCopied
	o.track(ctx, info)
	return nil
}

func (o *Operator) fail(ctx context.Context, p *Pending, dropped int, err error) {
	o.status.ShrinkTotal(p.File.Stat.Size)
	o.track(ctx, status.FileInfo{
		Block:   p.Block.Name,
		Source:  p.File.AbsPath,
		Size:    p.File.Stat.Size,
		Status:  status.StatusFailed,
		Dropped: dropped,
		Error:   err,
	})
}

func (o *Operator) track(ctx context.Context, info status.FileInfo) {
	o.status.TrackFile(ctx, info)
	log.FromContext(ctx).LogFile(ctx, info)
}

// 🎨 Render renders the destination of blockName for a single path without
// touching the store or the destination. The path must satisfy the block's
// source pattern.
func (o *Operator) Render(ctx context.Context, blockName, path string) (*template.Result, error) {
	b, ok := o.lookupBlock(blockName)
	if !ok {
		return nil, errors.Errorf("unknown block %q", blockName)
	}

	pattern, err := o.renderSource(ctx, b)
	if err != nil {
		return nil, err
	}

	file, err := match.MatchPath(ctx, pattern, path)
	if err != nil {
		return nil, errors.Errorf("matching %s against block %s: %w", path, blockName, err)
	}

	src, err := os.Open(file.AbsPath)
	if err != nil {
		return nil, errors.Errorf("opening %s: %w", file.AbsPath, err)
	}
	defer src.Close()

	return b.destination.Render(ctx, o.scope(metadata.New(ctx, file, src, o.prober)))
}
