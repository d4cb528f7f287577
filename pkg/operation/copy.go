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
	"crypto/sha1"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/pkg/state"
)

// DefaultChunkSize is used when the filesystem reports no preferred block size
const DefaultChunkSize = 4 << 20

// 📦 copy streams src into p.DestinationPath through a temporary file in the
// destination directory, then records the ingest. Nothing is recorded unless
// the destination is fully in place.
func (o *Operator) copy(ctx context.Context, src *os.File, p *Pending) error {
	logger := zerolog.Ctx(ctx)

	dst, err := filepath.Abs(p.DestinationPath)
	if err != nil {
		return errors.Errorf("resolving destination %s: %w", p.DestinationPath, err)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Errorf("creating destination directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".ingest-*")
	if err != nil {
		return errors.Errorf("creating temporary file in %s: %w", dir, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", tmp.Name()).Msg("removing temporary file")
		}
	}()

	chunk := p.File.Stat.BlockSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	hash, err := o.stream(ctx, tmp, src, chunk)
	if err != nil {
		return errors.Errorf("copying %s to %s: %w", p.File.AbsPath, dst, err)
	}

	if err := tmp.Sync(); err != nil {
		return errors.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), p.File.Stat.Mode.Perm()); err != nil {
		return errors.Errorf("setting mode of %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Errorf("moving %s into place: %w", dst, err)
	}
	committed = true

	mtime := p.File.Stat.ModTime
	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		return errors.Errorf("setting modification time of %s: %w", dst, err)
	}

	err = o.store.Record(ctx, state.Record{
		Key:         p.Key(),
		ContentHash: hash,
		Destination: dst,
	})
	if err != nil {
		return errors.Errorf("recording %s: %w", p.File.AbsPath, err)
	}

	logger.Debug().Str("destination", dst).Hex("sha1", hash).Msg("file copied")
	return nil
}

// stream copies src to dst in chunks, hashing and reporting progress as it goes
func (o *Operator) stream(ctx context.Context, dst io.Writer, src io.Reader, chunk int64) ([]byte, error) {
	h := sha1.New()
	w := io.MultiWriter(dst, h)
	buf := make([]byte, chunk)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return nil, err
			}
			o.status.AddBytes(int64(n))
		}
		if rerr == io.EOF {
			return h.Sum(nil), nil
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}
