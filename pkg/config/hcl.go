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

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(&HCLParser{})
}

// 🔧 HCLParser implements the Parser interface for HCL files
type HCLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *HCLParser) CanParse(filename string) bool {
	return hasExt(filename, ".hcl")
}

// 📝 Parse parses the config from HCL. Ingest blocks are labelled with
// their name: `ingest "photos" { ... }`.
func (p *HCLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "ingest.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	// no variables: `${}` interpolation in the document itself is not supported
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	type hclBlock struct {
		Name        string   `hcl:"name,label"`
		Source      string   `hcl:"source"`
		Destination string   `hcl:"destination"`
		Exclude     []string `hcl:"exclude,optional"`
	}

	type hclConfig struct {
		Database      string            `hcl:"database,optional"`
		OnRenderError string            `hcl:"on_render_error,optional"`
		ProbeCommand  string            `hcl:"probe_command,optional"`
		ProbeTimeout  string            `hcl:"probe_timeout,optional"`
		Jobs          int               `hcl:"jobs,optional"`
		Var           map[string]string `hcl:"var,optional"`
		Ingest        []hclBlock        `hcl:"ingest,block"`
	}

	var hclCfg hclConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &hclCfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	cfg := &Config{
		Database:      hclCfg.Database,
		OnRenderError: RenderErrorPolicy(hclCfg.OnRenderError),
		ProbeCommand:  hclCfg.ProbeCommand,
		ProbeTimeout:  hclCfg.ProbeTimeout,
		Jobs:          hclCfg.Jobs,
		Var:           hclCfg.Var,
	}
	for _, b := range hclCfg.Ingest {
		cfg.Ingest = append(cfg.Ingest, Block{
			Name:        b.Name,
			Source:      b.Source,
			Destination: b.Destination,
			Exclude:     b.Exclude,
		})
	}

	return cfg, nil
}
