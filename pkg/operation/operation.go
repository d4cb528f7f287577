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
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/pkg/config"
	"github.com/walteh/ingest/pkg/match"
	"github.com/walteh/ingest/pkg/metadata"
	"github.com/walteh/ingest/pkg/state"
	"github.com/walteh/ingest/pkg/status"
	"github.com/walteh/ingest/pkg/template"
)

// 🗄️ Store is the idempotency store the operator consults and updates
type Store interface {
	Exists(ctx context.Context, key state.Key) (bool, error)
	Record(ctx context.Context, rec state.Record) error
}

// 🔧 Options contains configuration for the operator
type Options struct {
	// Config holds the validated ingest blocks and variables
	Config *config.Config
	// Store records what has been ingested
	Store Store
	// Prober backs the probe metadata key; nil disables it
	Prober metadata.Prober
	// Status tracks outcomes and progress; a quiet manager is used when nil
	Status *status.Manager
	// DryRun renders destinations without copying or recording
	DryRun bool
	// Jobs overrides Config.Jobs when positive
	Jobs int
}

// 📦 Pending is a matched file that still has to be ingested
type Pending struct {
	Block       *config.Block
	File        *match.File
	Destination *template.Template

	// DestinationPath is filled in once the destination has rendered
	DestinationPath string
}

// Key is the idempotency key of the pending file
func (p *Pending) Key() state.Key {
	return state.Key{
		Block:   p.Block.Name,
		Source:  p.File.AbsPath,
		Size:    p.File.Stat.Size,
		ModTime: p.File.Stat.ModTime,
	}
}

// block is a config block with its templates compiled
type block struct {
	cfg         *config.Block
	source      *template.Template
	destination *template.Template
}

// 🎮 Operator runs the ingest pipeline
type Operator struct {
	cfg    *config.Config
	store  Store
	prober metadata.Prober
	status *status.Manager
	dryRun bool
	jobs   int

	blocks []*block
	vars   template.Vars

	claims claims
}

// claims serializes work on each destination path, so blocks running in
// parallel never both find a destination missing and both commit to it
type claims struct {
	mu    sync.Mutex
	paths map[string]*sync.Mutex
}

// claim blocks until path is free and returns the release function
func (c *claims) claim(path string) func() {
	c.mu.Lock()
	if c.paths == nil {
		c.paths = make(map[string]*sync.Mutex)
	}
	l, ok := c.paths[path]
	if !ok {
		l = &sync.Mutex{}
		c.paths[path] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// 🏭 New creates an operator and compiles every template up front, so a
// syntax error fails before any file is touched
func New(opts Options) (*Operator, error) {
	if opts.Config == nil {
		return nil, errors.Errorf("config is required")
	}
	if opts.Store == nil {
		return nil, errors.Errorf("store is required")
	}

	op := &Operator{
		cfg:    opts.Config,
		store:  opts.Store,
		prober: opts.Prober,
		status: opts.Status,
		dryRun: opts.DryRun,
		jobs:   opts.Jobs,
	}
	if op.jobs <= 0 {
		op.jobs = max(opts.Config.Jobs, 1)
	}
	if op.status == nil {
		nop := zerolog.Nop()
		op.status = status.New(&nop, nil)
	}

	vars := make(map[string]*template.Template, len(opts.Config.Var))
	for name, src := range opts.Config.Var {
		t, err := template.New(src)
		if err != nil {
			return nil, errors.Errorf("compiling var.%s: %w", name, err)
		}
		vars[name] = t
	}
	op.vars = template.Vars{"var": template.ValueMap(vars)}

	for i := range opts.Config.Ingest {
		b := &opts.Config.Ingest[i]
		source, err := template.New(b.Source)
		if err != nil {
			return nil, errors.Errorf("compiling source of block %s: %w", b.Name, err)
		}
		destination, err := template.New(b.Destination)
		if err != nil {
			return nil, errors.Errorf("compiling destination of block %s: %w", b.Name, err)
		}
		op.blocks = append(op.blocks, &block{cfg: b, source: source, destination: destination})
	}

	return op, nil
}

// Status returns the manager tracking this operator's outcomes
func (o *Operator) Status() *status.Manager {
	return o.status
}

// scope builds the render scope for one file: variables outermost, file
// metadata innermost
func (o *Operator) scope(meta *metadata.Context) *template.Scope {
	if meta == nil {
		return template.NewScope(o.vars)
	}
	return template.NewScope(o.vars, meta)
}

func (o *Operator) lookupBlock(name string) (*block, bool) {
	for _, b := range o.blocks {
		if b.cfg.Name == name {
			return b, true
		}
	}
	return nil, false
}
