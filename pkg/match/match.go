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

package match

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// ErrSourceNotFound is returned when the literal prefix of a pattern does not exist
var ErrSourceNotFound = errors.Base("source not found")

// ErrNoMatch is returned by MatchPath when a path does not satisfy a pattern
var ErrNoMatch = errors.Base("path does not match source pattern")

// metachars marks a path segment as part of the regex remainder
var metachars = regexp.MustCompile(`[\[\]\(\)\.\*\+\?\{\}\^\$\|\\#]`)

// Stat is the subset of file information the pipeline needs
type Stat struct {
	Size      int64
	ModTime   time.Time
	Mode      fs.FileMode
	BlockSize int64 // preferred I/O size, 0 when unknown
}

// 📄 File is a regular file matched by a source pattern
type File struct {
	Path    string // path as walked, rooted at the pattern prefix
	AbsPath string

	// Groups holds the submatches, Groups[0] being the whole match.
	// GroupNames lines up with Groups; unnamed groups have "".
	Groups     []string
	GroupNames []string

	Stat Stat
}

// Captures returns the submatches keyed by index ("0", "1", ...) and by name
func (f *File) Captures() map[string]string {
	out := make(map[string]string, len(f.Groups)*2)
	for i, g := range f.Groups {
		out[strconv.Itoa(i)] = g
		if i < len(f.GroupNames) && f.GroupNames[i] != "" {
			out[f.GroupNames[i]] = g
		}
	}
	return out
}

// Options tune a Glob call
type Options struct {
	// Exclude holds doublestar globs matched against the path relative
	// to the pattern prefix
	Exclude []string
}

func (o Options) excluded(ctx context.Context, rel string) bool {
	for _, pattern := range o.Exclude {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Str("path", rel).Err(err).Msg("error matching exclude pattern")
			continue
		}
		if matched {
			zerolog.Ctx(ctx).Debug().Str("file", rel).Str("pattern", pattern).Msg("file excluded by pattern")
			return true
		}
	}
	return false
}

// ✂️ Split separates the literal directory prefix of pattern from its regex
// remainder. Every prefix segment keeps its trailing slash. A pattern with no
// metacharacters is returned whole as the prefix.
func Split(pattern string) (prefix, rest string) {
	segments := strings.Split(pattern, "/")
	for i, seg := range segments {
		if metachars.MatchString(seg) {
			if i == 0 {
				return "", pattern
			}
			return strings.Join(segments[:i], "/") + "/", strings.Join(segments[i:], "/")
		}
	}
	return pattern, ""
}

// 🔍 Glob returns the regular files matching pattern, in lexical walk order.
//
// Symlinks are never followed and never matched. A missing prefix yields an
// error wrapping ErrSourceNotFound.
func Glob(ctx context.Context, pattern string, opts Options) ([]*File, error) {
	prefix, rest := Split(pattern)
	if rest == "" {
		return globLiteral(ctx, prefix)
	}

	re, err := compile(pattern, prefix, rest)
	if err != nil {
		return nil, err
	}

	root := rootOf(prefix)

	info, err := os.Lstat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Errorf("%w: %s", ErrSourceNotFound, root)
		}
		return nil, errors.Errorf("checking source prefix: %w", err)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%w: %s is not a directory", ErrSourceNotFound, root)
	}

	logger := zerolog.Ctx(ctx)
	names := re.SubexpNames()
	var files []*File

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.Warn().Err(walkErr).Str("path", path).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Errorf("relativizing %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		groups := re.FindStringSubmatch(prefix + rel)
		if groups == nil {
			return nil
		}
		if opts.excluded(ctx, rel) {
			return nil
		}

		f, err := newFile(path, d, groups, names)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("skipping file")
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", root, err)
	}

	return files, nil
}

// 🎯 MatchPath matches a single path against pattern the way Glob would
// during a walk. It returns ErrNoMatch when path is outside the pattern or
// does not satisfy it, and never applies excludes.
func MatchPath(ctx context.Context, pattern, path string) (*File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, errors.Errorf("checking path: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Errorf("%w: %s is not a regular file", ErrNoMatch, path)
	}

	prefix, rest := Split(pattern)
	if rest == "" {
		if filepath.Clean(prefix) != filepath.Clean(path) {
			return nil, errors.Errorf("%w: %s", ErrNoMatch, path)
		}
		return newFile(path, fs.FileInfoToDirEntry(info), []string{path}, []string{""})
	}

	re, err := compile(pattern, prefix, rest)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(rootOf(prefix), path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, errors.Errorf("%w: %s is outside %s", ErrNoMatch, path, rootOf(prefix))
	}

	groups := re.FindStringSubmatch(prefix + filepath.ToSlash(rel))
	if groups == nil {
		return nil, errors.Errorf("%w: %s", ErrNoMatch, path)
	}
	return newFile(path, fs.FileInfoToDirEntry(info), groups, re.SubexpNames())
}

// Root returns the directory a pattern walks, or the parent directory of a
// literal pattern
func Root(pattern string) string {
	prefix, rest := Split(pattern)
	if rest == "" {
		return filepath.Dir(prefix)
	}
	return rootOf(prefix)
}

func compile(pattern, prefix, rest string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + rest + "$")
	if err != nil {
		return nil, errors.Errorf("compiling source pattern %q: %w", pattern, err)
	}
	return re, nil
}

// rootOf turns a literal prefix into the directory to walk
func rootOf(prefix string) string {
	if prefix == "" {
		return "."
	}
	if root := strings.TrimSuffix(prefix, "/"); root != "" {
		return root
	}
	return "/"
}

// globLiteral matches a pattern without metacharacters against one path
func globLiteral(ctx context.Context, path string) ([]*File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, errors.Errorf("checking source: %w", err)
	}
	if !info.Mode().IsRegular() {
		zerolog.Ctx(ctx).Debug().Str("path", path).Str("mode", info.Mode().String()).Msg("literal source is not a regular file")
		return nil, nil
	}

	f, err := newFile(path, fs.FileInfoToDirEntry(info), []string{path}, []string{""})
	if err != nil {
		return nil, err
	}
	return []*File{f}, nil
}

func newFile(path string, d fs.DirEntry, groups, names []string) (*File, error) {
	info, err := d.Info()
	if err != nil {
		return nil, errors.Errorf("reading file info: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Errorf("resolving absolute path: %w", err)
	}
	return &File{
		Path:       path,
		AbsPath:    abs,
		Groups:     groups,
		GroupNames: names,
		Stat:       StatOf(info),
	}, nil
}

// StatOf extracts a Stat from info
func StatOf(info fs.FileInfo) Stat {
	return Stat{
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Mode:      info.Mode(),
		BlockSize: blockSize(info),
	}
}
