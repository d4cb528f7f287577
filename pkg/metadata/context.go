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

package metadata

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/walteh/ingest/pkg/match"
	"github.com/walteh/ingest/pkg/template"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

// Well-known names a Context resolves
const (
	KeyStat  = "stat"
	KeyMatch = "match"
	KeyExt   = "ext"
	KeyExif  = "exif"
	KeyProbe = "probe"
)

// 🗂️ Context exposes per-file metadata to templates.
//
// Every getter computes its value at most once. Failures are cached too,
// so a broken file is decoded or probed only once per render.
type Context struct {
	file *match.File

	stat  func() cty.Value
	match func() cty.Value
	ext   func() cty.Value
	exif  func() (cty.Value, error)
	probe func() (cty.Value, error)
}

// New builds the metadata context for file. src must read the file's bytes;
// it is only used through ReadAt so callers may share the handle.
func New(ctx context.Context, file *match.File, src io.ReaderAt, prober Prober) *Context {
	c := &Context{file: file}

	c.stat = sync.OnceValue(func() cty.Value { return statValue(file) })
	c.match = sync.OnceValue(func() cty.Value { return matchValue(file) })
	c.ext = sync.OnceValue(func() cty.Value {
		return cty.StringVal(strings.ToLower(filepath.Ext(file.Path)))
	})
	c.exif = sync.OnceValues(func() (cty.Value, error) {
		v, err := decodeExif(ctx, io.NewSectionReader(src, 0, file.Stat.Size))
		if err != nil {
			return cty.NilVal, errors.Errorf("reading exif of %s: %w", file.Path, err)
		}
		return v, nil
	})
	c.probe = sync.OnceValues(func() (cty.Value, error) {
		if prober == nil {
			return cty.NilVal, errors.New("no media prober configured")
		}
		return prober.Probe(ctx, file.Path)
	})

	return c
}

func (c *Context) File() *match.File         { return c.file }
func (c *Context) Stat() cty.Value           { return c.stat() }
func (c *Context) Match() cty.Value          { return c.match() }
func (c *Context) Ext() cty.Value            { return c.ext() }
func (c *Context) Exif() (cty.Value, error)  { return c.exif() }
func (c *Context) Probe() (cty.Value, error) { return c.probe() }

// Resolve implements template.Resolver. Names outside the fixed set fall
// through to the enclosing frame.
func (c *Context) Resolve(name string) (cty.Value, error) {
	switch name {
	case KeyStat:
		return c.Stat(), nil
	case KeyMatch:
		return c.Match(), nil
	case KeyExt:
		return c.Ext(), nil
	case KeyExif:
		return c.Exif()
	case KeyProbe:
		return c.Probe()
	default:
		return cty.NilVal, template.ErrUnknownName
	}
}

var _ template.Resolver = (*Context)(nil)

func statValue(f *match.File) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"size":       cty.NumberIntVal(f.Stat.Size),
		"mtime":      cty.StringVal(f.Stat.ModTime.UTC().Format(time.RFC3339)),
		"mtime_unix": cty.NumberIntVal(f.Stat.ModTime.Unix()),
		"mode":       cty.StringVal(f.Stat.Mode.String()),
		"blksize":    cty.NumberIntVal(f.Stat.BlockSize),
		"name":       cty.StringVal(filepath.Base(f.Path)),
		"dir":        cty.StringVal(filepath.ToSlash(filepath.Dir(f.Path))),
		"path":       cty.StringVal(filepath.ToSlash(f.Path)),
	})
}

func matchValue(f *match.File) cty.Value {
	caps := f.Captures()
	if len(caps) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	vals := make(map[string]cty.Value, len(caps))
	for k, v := range caps {
		vals[k] = cty.StringVal(v)
	}
	return cty.MapVal(vals)
}
