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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 🧪 TestParserRegistration tests the parser registration system
func TestParserRegistration(t *testing.T) {
	originalParsers := parsers
	defer func() {
		parsers = originalParsers
	}()

	parsers = nil

	mockParser := &struct {
		Parser
		canParse bool
	}{
		canParse: true,
	}

	Register(mockParser)
	assert.Len(t, parsers, 1, "should have 1 parser registered")
	assert.Equal(t, mockParser, parsers[0], "registered parser should match")
}

// 🧪 TestParserSelection tests parser selection by file extension
func TestParserSelection(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     Parser
	}{
		{name: "toml_file", filename: "ingest.toml", want: &TOMLParser{}},
		{name: "yaml_file", filename: "ingest.yaml", want: &YAMLParser{}},
		{name: "yml_file", filename: "INGEST.YML", want: &YAMLParser{}},
		{name: "json_file", filename: "conf/ingest.json", want: &JSONParser{}},
		{name: "hcl_file", filename: "ingest.hcl", want: &HCLParser{}},
		{name: "unknown_extension", filename: "ingest.txt", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetParser(tt.filename)
			if tt.want == nil {
				assert.Nil(t, got, "should return nil for unknown extension")
				return
			}
			require.NotNil(t, got, "should return a parser")
			assert.IsType(t, tt.want, got, "should return correct parser type")
		})
	}
}

// 🧪 TestHCLParsing tests HCL config parsing
func TestHCLParsing(t *testing.T) {
	tests := []struct {
		name        string
		config      string
		wantErr     bool
		errContains string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "multiple_blocks",
			config: `
database = "ingest.db"
jobs     = 4

ingest "photos" {
  source      = "/card/.*\\.jpg"
  destination = "photos/{{ stat.name }}"
}

ingest "videos" {
  source      = "/card/.*\\.mp4"
  destination = "videos/{{ stat.name }}"
}
`,
			check: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.Ingest, 2)
				assert.Equal(t, "photos", cfg.Ingest[0].Name)
				assert.Equal(t, "videos", cfg.Ingest[1].Name)
				assert.Equal(t, 4, cfg.Jobs)
			},
		},
		{
			name: "invalid_hcl_syntax",
			config: `
ingest "photos" {
  source =
}`,
			wantErr:     true,
			errContains: "parsing HCL",
		},
		{
			name: "invalid_block_type",
			config: `
unknown_block {
  foo = "bar"
}`,
			wantErr:     true,
			errContains: "decoding HCL",
		},
		{
			name: "missing_label",
			config: `
ingest {
  source      = "a"
  destination = "b"
}`,
			wantErr:     true,
			errContains: "decoding HCL",
		},
	}

	parser := &HCLParser{}
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parser.Parse(ctx, []byte(tt.config))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}

			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
