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
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gitlab.com/tozd/go/errors"
)

// DefaultProbeCommand is the media probe used when none is configured
const DefaultProbeCommand = "ffprobe"

// probeArgs request every section ffprobe can report, as JSON
var probeArgs = []string{
	"-hide_banner",
	"-loglevel", "fatal",
	"-show_error",
	"-show_format",
	"-show_streams",
	"-show_programs",
	"-show_chapters",
	"-show_private_data",
	"-print_format", "json",
}

// Prober extracts structured media metadata from a file
type Prober interface {
	Probe(ctx context.Context, path string) (cty.Value, error)
}

// 🎬 FFProbe runs an ffprobe-compatible binary and converts its JSON output
type FFProbe struct {
	Command string
	Timeout time.Duration // zero means no timeout
}

func (p *FFProbe) Probe(ctx context.Context, path string) (cty.Value, error) {
	command := p.Command
	if command == "" {
		command = DefaultProbeCommand
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, probeArgs...), path)
	cmd := exec.CommandContext(ctx, command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	zerolog.Ctx(ctx).Debug().Str("command", command).Str("path", path).Msg("probing media")

	out, err := cmd.Output()
	if err != nil {
		return cty.NilVal, errors.Errorf("%s %s failed: %w\n%s", command, path, err, strings.TrimSpace(stderr.String()))
	}

	return parseProbe(out)
}

// parseProbe converts probe JSON to a cty value with an implied type
func parseProbe(out []byte) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType(out)
	if err != nil {
		return cty.NilVal, errors.Errorf("inferring probe output type: %w", err)
	}
	v, err := ctyjson.Unmarshal(out, ty)
	if err != nil {
		return cty.NilVal, errors.Errorf("decoding probe output: %w", err)
	}
	return v, nil
}
