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

package template

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// NodeKind identifies the kind of a compiled template node
type NodeKind int

const (
	NodeText NodeKind = iota
	NodeExpr
	NodeExec
)

func (k NodeKind) String() string {
	switch k {
	case NodeExpr:
		return "expression"
	case NodeExec:
		return "statement"
	default:
		return "text"
	}
}

// node is one compiled segment. Nodes are never mutated after New returns.
type node struct {
	kind   NodeKind
	text   string // literal text, or the raw segment source for expr/exec
	offset int

	// literal marks text that came from template source rather than
	// from an evaluated expression; only literal text is normalised
	literal bool

	expr  hcl.Expression
	stmts []*hclsyntax.Attribute
}

// 🚨 SyntaxError reports a malformed template at construction time
type SyntaxError struct {
	Offset int
	Msg    string
	Diags  hcl.Diagnostics
}

func (e *SyntaxError) Error() string {
	if len(e.Diags) > 0 {
		return fmt.Sprintf("template syntax error at offset %d: %s: %s", e.Offset, e.Msg, e.Diags.Error())
	}
	return fmt.Sprintf("template syntax error at offset %d: %s", e.Offset, e.Msg)
}

// 🏗️ parse converts tokens into compiled nodes
func parse(tokens []token) ([]node, error) {
	nodes := make([]node, 0, len(tokens))

	for i := 0; i < len(tokens); {
		tok := tokens[i]

		switch tok.kind {
		case tokenText:
			nodes = append(nodes, node{kind: NodeText, text: tok.value, offset: tok.offset, literal: true})
			i++

		case tokenExprOpen, tokenStmtOpen:
			want := tok.kind.closer()
			if i+1 >= len(tokens) {
				return nil, &SyntaxError{Offset: tok.offset, Msg: fmt.Sprintf("unterminated %q", tok.value)}
			}
			content := tokens[i+1]
			if content.kind == want {
				return nil, &SyntaxError{Offset: tok.offset, Msg: fmt.Sprintf("empty %q segment", tok.value)}
			}
			if content.kind != tokenText {
				return nil, &SyntaxError{Offset: content.offset, Msg: fmt.Sprintf("expected content after %q, found %q", tok.value, content.value)}
			}
			if i+2 >= len(tokens) {
				return nil, &SyntaxError{Offset: tok.offset, Msg: fmt.Sprintf("unterminated %q, expected %q", tok.value, want)}
			}
			if closing := tokens[i+2]; closing.kind != want {
				return nil, &SyntaxError{Offset: closing.offset, Msg: fmt.Sprintf("expected %q, found %q", want, closing.value)}
			}

			n, err := compileSegment(tok, content)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
			i += 3

		default:
			return nil, &SyntaxError{Offset: tok.offset, Msg: fmt.Sprintf("unexpected %q without opening delimiter", tok.value)}
		}
	}

	return nodes, nil
}

// compileSegment hands the inner text of a segment to the expression engine
func compileSegment(open, content token) (node, error) {
	src := strings.TrimSpace(content.value)
	if src == "" {
		return node{}, &SyntaxError{Offset: open.offset, Msg: fmt.Sprintf("empty %q segment", open.value)}
	}

	if open.kind == tokenExprOpen {
		expr, diags := hclsyntax.ParseExpression([]byte(src), "template", hcl.InitialPos)
		if diags.HasErrors() {
			return node{}, &SyntaxError{Offset: content.offset, Msg: "invalid expression", Diags: diags}
		}
		return node{kind: NodeExpr, text: src, offset: open.offset, expr: expr}, nil
	}

	stmts, err := compileStatements(src, content.offset)
	if err != nil {
		return node{}, err
	}
	return node{kind: NodeExec, text: src, offset: open.offset, stmts: stmts}, nil
}

// compileStatements parses `name = expr` lines, ordered as written
func compileStatements(src string, offset int) ([]*hclsyntax.Attribute, error) {
	file, diags := hclsyntax.ParseConfig([]byte(src), "template", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &SyntaxError{Offset: offset, Msg: "invalid statement", Diags: diags}
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, &SyntaxError{Offset: offset, Msg: "invalid statement body"}
	}
	if len(body.Blocks) > 0 {
		return nil, &SyntaxError{Offset: offset, Msg: fmt.Sprintf("statements may only assign names, found block %q", body.Blocks[0].Type)}
	}
	if len(body.Attributes) == 0 {
		return nil, &SyntaxError{Offset: offset, Msg: "statement segment assigns nothing"}
	}

	stmts := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		stmts = append(stmts, attr)
	}
	sort.Slice(stmts, func(i, j int) bool {
		return stmts[i].SrcRange.Start.Byte < stmts[j].SrcRange.Start.Byte
	})

	return stmts, nil
}
