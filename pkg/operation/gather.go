package operation

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/pkg/match"
)

// 🔍 Gather expands every block's source pattern and pairs each matched
// file with its block. A file matched by several blocks belongs to the last
// of them. Missing sources and empty matches are logged, not returned.
func (o *Operator) Gather(ctx context.Context) ([]*Pending, error) {
	logger := zerolog.Ctx(ctx)

	var pending []*Pending
	seen := make(map[string]int)

	for _, b := range o.blocks {
		pattern, err := o.renderSource(ctx, b)
		if err != nil {
			return nil, err
		}

		files, err := match.Glob(ctx, pattern, match.Options{Exclude: b.cfg.Exclude})
		if err != nil {
			if errors.Is(err, match.ErrSourceNotFound) {
				logger.Warn().Str("block", b.cfg.Name).Str("source", pattern).Msg("source directory does not exist")
				continue
			}
			return nil, errors.Errorf("matching block %s: %w", b.cfg.Name, err)
		}

		if len(files) == 0 {
			logger.Warn().Str("block", b.cfg.Name).Str("source", pattern).Msg("no files matched source pattern")
			continue
		}
		logger.Info().Str("block", b.cfg.Name).Int("files", len(files)).Msgf("Found %d files", len(files))

		for _, f := range files {
			p := &Pending{Block: b.cfg, File: f, Destination: b.destination}
			if i, ok := seen[f.AbsPath]; ok {
				logger.Debug().
					Str("file", f.AbsPath).
					Str("previous_block", pending[i].Block.Name).
					Str("block", b.cfg.Name).
					Msg("file matched by a later block, replacing")
				pending[i] = p
				continue
			}
			seen[f.AbsPath] = len(pending)
			pending = append(pending, p)
		}
	}

	return pending, nil
}

// Filter drops the files the store already holds
func (o *Operator) Filter(ctx context.Context, pending []*Pending) ([]*Pending, error) {
	logger := zerolog.Ctx(ctx)

	out := pending[:0:0]
	for _, p := range pending {
		exists, err := o.store.Exists(ctx, p.Key())
		if err != nil {
			return nil, errors.Errorf("checking %s: %w", p.File.AbsPath, err)
		}
		if exists {
			logger.Debug().Str("block", p.Block.Name).Str("file", p.File.AbsPath).Msg("already ingested")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// renderSource expands variables in a block's source pattern
func (o *Operator) renderSource(ctx context.Context, b *block) (string, error) {
	res, err := b.source.Render(ctx, o.scope(nil))
	if err != nil {
		return "", errors.Errorf("rendering source of block %s: %w", b.cfg.Name, err)
	}
	if !res.OK() {
		return "", errors.Errorf("rendering source of block %s: %w", b.cfg.Name, res.Err())
	}
	if res.Text == "" {
		return "", errors.Errorf("source of block %s rendered empty", b.cfg.Name)
	}
	return res.Text, nil
}

// Roots returns the directory each block's source walks, in block order
// without duplicates
func (o *Operator) Roots(ctx context.Context) ([]string, error) {
	var roots []string
	seen := make(map[string]bool)
	for _, b := range o.blocks {
		pattern, err := o.renderSource(ctx, b)
		if err != nil {
			return nil, err
		}
		root := match.Root(pattern)
		if seen[root] {
			continue
		}
		seen[root] = true
		roots = append(roots, root)
	}
	return roots, nil
}
