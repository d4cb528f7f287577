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

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

const (
	// DefaultFile is the configuration read when none is given
	DefaultFile = "ingest.toml"

	// DefaultDatabase is the idempotency store path when none is configured
	DefaultDatabase = "ingest.db"

	// DefaultProbeCommand is the media probe binary when none is configured
	DefaultProbeCommand = "ffprobe"
)

// RenderErrorPolicy decides what happens to a file whose destination
// template has failing nodes
type RenderErrorPolicy string

const (
	// PolicyFail skips the file and marks it failed. It is the default.
	PolicyFail RenderErrorPolicy = "fail"
	// PolicyDrop logs the failing nodes and uses the partial path
	PolicyDrop RenderErrorPolicy = "drop"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// 📦 Block is one ingest source with its destination template
type Block struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Source      string   `json:"source" yaml:"source" toml:"source"`
	Destination string   `json:"destination" yaml:"destination" toml:"destination"`
	Exclude     []string `json:"exclude,omitempty" yaml:"exclude,omitempty" toml:"exclude,omitempty"`
}

// 📚 Config represents the complete configuration
type Config struct {
	Database      string            `json:"database,omitempty" yaml:"database,omitempty" toml:"database,omitempty"`
	OnRenderError RenderErrorPolicy `json:"on_render_error,omitempty" yaml:"on_render_error,omitempty" toml:"on_render_error,omitempty"`
	ProbeCommand  string            `json:"probe_command,omitempty" yaml:"probe_command,omitempty" toml:"probe_command,omitempty"`
	ProbeTimeout  string            `json:"probe_timeout,omitempty" yaml:"probe_timeout,omitempty" toml:"probe_timeout,omitempty"`
	Jobs          int               `json:"jobs,omitempty" yaml:"jobs,omitempty" toml:"jobs,omitempty"`
	Var           map[string]string `json:"var,omitempty" yaml:"var,omitempty" toml:"var,omitempty"`
	Ingest        []Block           `json:"ingest" yaml:"ingest" toml:"ingest"`

	location     string
	probeTimeout time.Duration
}

// 🎯 Load loads the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}
	cfg.location = path

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	logger.Debug().Int("blocks", len(cfg.Ingest)).Int("vars", len(cfg.Var)).Msg("configuration loaded")
	return cfg, nil
}

// 🔍 Validate checks the configuration and fills in defaults
func (cfg *Config) Validate() error {
	if len(cfg.Ingest) == 0 {
		return errors.New("at least one ingest block is required")
	}

	seen := make(map[string]bool, len(cfg.Ingest))
	for i, b := range cfg.Ingest {
		if b.Name == "" {
			return errors.Errorf("ingest[%d]: name is required", i)
		}
		if seen[b.Name] {
			return errors.Errorf("ingest[%d]: duplicate block name %q", i, b.Name)
		}
		seen[b.Name] = true

		if b.Source == "" {
			return errors.Errorf("ingest %q: source is required", b.Name)
		}
		if b.Destination == "" {
			return errors.Errorf("ingest %q: destination is required", b.Name)
		}
		for _, pattern := range b.Exclude {
			if !doublestar.ValidatePattern(pattern) {
				return errors.Errorf("ingest %q: invalid exclude pattern %q", b.Name, pattern)
			}
		}
	}

	switch cfg.OnRenderError {
	case "":
		cfg.OnRenderError = PolicyFail
	case PolicyFail, PolicyDrop:
	default:
		return errors.Errorf("on_render_error must be %q or %q, got %q", PolicyFail, PolicyDrop, cfg.OnRenderError)
	}

	if cfg.ProbeTimeout != "" {
		d, err := time.ParseDuration(cfg.ProbeTimeout)
		if err != nil {
			return errors.Errorf("probe_timeout: %w", err)
		}
		if d < 0 {
			return errors.Errorf("probe_timeout must not be negative, got %s", d)
		}
		cfg.probeTimeout = d
	}

	if cfg.Jobs < 0 {
		return errors.Errorf("jobs must not be negative, got %d", cfg.Jobs)
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = 1
	}

	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.ProbeCommand == "" {
		cfg.ProbeCommand = DefaultProbeCommand
	}
	if cfg.Var == nil {
		cfg.Var = map[string]string{}
	}

	return nil
}

// Location is the file the config was loaded from
func (cfg *Config) Location() string {
	return cfg.location
}

// ProbeTimeoutDuration returns the parsed probe timeout, zero for none
func (cfg *Config) ProbeTimeoutDuration() time.Duration {
	return cfg.probeTimeout
}

// Block returns the ingest block called name
func (cfg *Config) Block(name string) (*Block, bool) {
	for i := range cfg.Ingest {
		if cfg.Ingest[i].Name == name {
			return &cfg.Ingest[i], true
		}
	}
	return nil, false
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	names := make([]string, 0, len(cfg.Ingest))
	for _, b := range cfg.Ingest {
		names = append(names, b.Name)
	}
	return fmt.Sprintf("[%s] -> %s", strings.Join(names, ", "), cfg.Database)
}
