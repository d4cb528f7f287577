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

package status

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// 📊 FileStatus is the outcome of processing one pending file
type FileStatus int

const (
	StatusUnknown  FileStatus = iota
	StatusCopied              // copied and recorded
	StatusExists              // destination already present with the same size
	StatusConflict            // destination present with a different size
	StatusFailed              // destination could not be rendered or copied
	StatusPlanned             // dry run, nothing written
)

// String returns a string representation of FileStatus
func (s FileStatus) String() string {
	switch s {
	case StatusCopied:
		return "copied"
	case StatusExists:
		return "exists"
	case StatusConflict:
		return "conflict"
	case StatusFailed:
		return "failed"
	case StatusPlanned:
		return "planned"
	default:
		return "unknown"
	}
}

// 📄 FileInfo describes what happened to one source file
type FileInfo struct {
	Block       string
	Source      string
	Destination string
	Status      FileStatus
	Size        int64
	Dropped     int   // template nodes that failed but were tolerated
	Error       error // set for StatusFailed
}

// Summary counts outcomes of a run
type Summary struct {
	Copied   int
	Exists   int
	Conflict int
	Failed   int
	Planned  int
	Bytes    int64 // bytes copied
}

// Total is the number of files tracked
func (s Summary) Total() int {
	return s.Copied + s.Exists + s.Conflict + s.Failed + s.Planned
}

// 🔧 Manager tracks per-file outcomes and byte progress. It is safe for
// concurrent use.
type Manager struct {
	logger    *zerolog.Logger
	formatter FileFormatter
	progress  Progress

	mu    sync.Mutex
	files []FileInfo
	index map[string]int

	total  int64
	copied int64
}

// 🏭 New creates a new status manager. progress may be nil.
func New(logger *zerolog.Logger, progress Progress) *Manager {
	if progress == nil {
		progress = NopProgress{}
	}
	return &Manager{
		logger:    logger,
		formatter: NewDefaultFileFormatter(),
		progress:  progress,
		index:     make(map[string]int),
	}
}

// StartOperation resets the byte counters and starts the progress display
func (m *Manager) StartOperation(ctx context.Context, totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = totalBytes
	m.copied = 0
	m.progress.Start(totalBytes)
	m.logger.Debug().Int64("total_bytes", totalBytes).Msg(m.formatter.FormatProgress(0, totalBytes))
}

// AddBytes advances the progress by n copied bytes
func (m *Manager) AddBytes(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.copied += n
	m.progress.Add(n)
}

// ShrinkTotal removes n bytes from the planned total, used when a file
// turns out not to need copying
func (m *Manager) ShrinkTotal(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total -= n
	if m.total < m.copied {
		m.total = m.copied
	}
	m.progress.SetTotal(m.total)
}

// Progress returns copied and planned byte counts
func (m *Manager) Progress() (copied, total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copied, m.total
}

// TrackFile records the outcome for info.Source. Tracking the same source
// again replaces the earlier outcome.
func (m *Manager) TrackFile(ctx context.Context, info FileInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.index[info.Source]; ok {
		m.files[i] = info
	} else {
		m.index[info.Source] = len(m.files)
		m.files = append(m.files, info)
	}

	msg := m.formatter.FormatFileOperation(info)
	if info.Status == StatusFailed {
		m.logger.Error().Err(info.Error).Str("block", info.Block).Str("source", info.Source).Msg(msg)
		return
	}
	m.logger.Debug().
		Str("block", info.Block).
		Str("source", info.Source).
		Str("destination", info.Destination).
		Str("status", info.Status.String()).
		Msg(msg)
}

// ListFiles returns tracked outcomes in the order they were first tracked
func (m *Manager) ListFiles() []FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]FileInfo, len(m.files))
	copy(out, m.files)
	return out
}

// Summary counts the tracked outcomes
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Summary
	for _, f := range m.files {
		switch f.Status {
		case StatusCopied:
			s.Copied++
		case StatusExists:
			s.Exists++
		case StatusConflict:
			s.Conflict++
		case StatusFailed:
			s.Failed++
		case StatusPlanned:
			s.Planned++
		}
	}
	s.Bytes = m.copied
	return s
}

// FinishOperation stops the progress display and logs the summary
func (m *Manager) FinishOperation(ctx context.Context) Summary {
	m.mu.Lock()
	m.progress.Stop()
	copied, total := m.copied, m.total
	m.mu.Unlock()

	s := m.Summary()
	m.logger.Info().
		Int("copied", s.Copied).
		Int("exists", s.Exists).
		Int("conflict", s.Conflict).
		Int("failed", s.Failed).
		Int("planned", s.Planned).
		Int64("bytes", copied).
		Msg(m.formatter.FormatProgress(copied, total))
	return s
}
