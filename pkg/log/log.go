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

package log

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/walteh/ingest/pkg/status"
)

// 📦 BlockOperation describes the ingest block being processed
type BlockOperation struct {
	Name        string // block name
	Source      string // source pattern
	Destination string // destination template
	DryRun      bool
}

// 🎯 Logger writes human oriented lines to a console and mirrors them to
// a structured zerolog logger.
//
// Lines of one block are never interleaved with another's: the oldest open
// block prints as it goes, later blocks are held back until every block
// opened before them has ended.
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
	blocks  map[string]*blockLog
	order   []string
}

type blockLog struct {
	op    BlockOperation
	lines []string
	files int
	done  bool
}

// 🏭 New creates a new logger
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
		blocks:  make(map[string]*blockLog),
	}
}

// Discard returns a logger that writes nowhere
func Discard() *Logger {
	return New(io.Discard, zerolog.Nop())
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context, or a discarding logger when
// none was attached
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		return Discard()
	}
	return logger
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// 📝 LogFile prints one file outcome under its block
func (l *Logger) LogFile(ctx context.Context, info status.FileInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := status.FormatFileLine(info)
	if b, ok := l.blocks[info.Block]; ok {
		b.files++
		b.lines = append(b.lines, line)
		l.flush()
	} else {
		fmt.Fprintln(l.console, line)
	}

	l.zlog.Debug().
		Err(info.Error).
		Str("block", info.Block).
		Str("source", info.Source).
		Str("destination", info.Destination).
		Str("status", info.Status.String()).
		Int64("size", info.Size).
		Int("dropped_nodes", info.Dropped).
		Msg("file line printed")
}

// 📝 StartBlock opens a block and queues its heading
func (l *Logger) StartBlock(ctx context.Context, op BlockOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	verb := "ingesting"
	if op.DryRun {
		verb = "planning"
	}

	b := &blockLog{op: op}
	b.lines = append(b.lines,
		fmt.Sprintf("[%s %s]", verb, color.New(color.FgCyan).Sprint(op.Name)),
		fmt.Sprintf("%s %s %s %s",
			color.New(color.FgMagenta).Sprint("◆"),
			color.New(color.Bold).Sprint(op.Source),
			color.New(color.Faint).Sprint("→"),
			color.New(color.FgYellow).Sprint(op.Destination)),
	)
	if _, ok := l.blocks[op.Name]; !ok {
		l.order = append(l.order, op.Name)
	}
	l.blocks[op.Name] = b
	l.flush()

	l.zlog.Info().
		Str("block", op.Name).
		Str("source", op.Source).
		Str("destination", op.Destination).
		Bool("dry_run", op.DryRun).
		Msg("starting block")
}

// 📝 EndBlock closes the named block
func (l *Logger) EndBlock(ctx context.Context, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.blocks[name]
	if !ok || b.done {
		return
	}
	b.done = true
	l.flush()

	l.zlog.Info().
		Str("block", name).
		Int("files", b.files).
		Msg("block complete")
}

// flush writes the queued lines of the oldest open blocks
func (l *Logger) flush() {
	for len(l.order) > 0 {
		name := l.order[0]
		b := l.blocks[name]
		for _, line := range b.lines {
			fmt.Fprintln(l.console, line)
		}
		b.lines = nil
		if !b.done {
			return
		}
		delete(l.blocks, name)
		l.order = l.order[1:]
	}
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("ingest")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}
