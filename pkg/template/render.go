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
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// MaxDepth bounds recursive expansion of nested templates
const MaxDepth = 32

// 📄 Template is a compiled, immutable template
type Template struct {
	source string
	nodes  []node
}

// New compiles src. Syntax and expression errors are returned here, never
// at render time.
func New(src string) (*Template, error) {
	nodes, err := parse(lex(src))
	if err != nil {
		return nil, err
	}
	return &Template{source: src, nodes: nodes}, nil
}

// MustNew is like New but panics on error
func MustNew(src string) *Template {
	t, err := New(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Source returns the text the template was compiled from
func (t *Template) Source() string {
	return t.source
}

func (t *Template) String() string {
	return t.source
}

// NodeError describes a node that failed to evaluate and contributed no text
type NodeError struct {
	Index  int
	Kind   NodeKind
	Source string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s node %d (%s): %v", e.Kind, e.Index, e.Source, e.Err)
}

// Segment returns the failed node as it is written in a template
func (e *NodeError) Segment() string {
	left, right := ExprOpen, ExprClose
	if e.Kind == NodeExec {
		left, right = StmtOpen, StmtClose
	}
	return fmt.Sprintf("%s %s %s", left, strings.TrimSpace(e.Source), right)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a render
type Result struct {
	Text    string
	Dropped []*NodeError
}

// OK reports whether every node rendered
func (r *Result) OK() bool {
	return len(r.Dropped) == 0
}

// Err joins the dropped node errors, or returns nil
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Dropped))
	for _, d := range r.Dropped {
		errs = append(errs, d)
	}
	return errors.Join(errs...)
}

// 🎨 Render evaluates the template against scope.
//
// Failed nodes are reported in Result.Dropped and leave no text behind; the
// caller decides whether a partial result is usable. The returned error is
// reserved for cancellation and broken invariants.
func (t *Template) Render(ctx context.Context, scope *Scope) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	pieces, dropped, err := t.expand(ctx, scope, 0)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, p := range pieces {
		if p.kind != NodeText {
			return nil, errors.Errorf("%s node survived expansion at offset %d", p.kind, p.offset)
		}
		if p.literal {
			sb.WriteString(normalize(p.text))
		} else {
			sb.WriteString(p.text)
		}
	}

	for _, d := range dropped {
		logger.Debug().Err(d.Err).Int("node", d.Index).Str("source", d.Source).Msg("template node failed")
	}

	return &Result{Text: sb.String(), Dropped: dropped}, nil
}

// expand runs phase one, turning every node into text pieces. Nodes evaluate
// against outer and a local frame that each statement segment replaces.
func (t *Template) expand(ctx context.Context, outer *Scope, depth int) ([]node, []*NodeError, error) {
	pieces := make([]node, 0, len(t.nodes))
	var dropped []*NodeError
	var local Vars

	for i, n := range t.nodes {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		switch n.kind {
		case NodeText:
			pieces = append(pieces, n)

		case NodeExpr:
			out, err := evalExpr(ctx, n, withLocal(outer, local), depth)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, nil, err
				}
				dropped = append(dropped, &NodeError{Index: i, Kind: n.kind, Source: n.text, Err: err})
				continue
			}
			pieces = append(pieces, out...)

		case NodeExec:
			next, err := execStatements(n, withLocal(outer, local))
			if err != nil {
				dropped = append(dropped, &NodeError{Index: i, Kind: n.kind, Source: n.text, Err: err})
				continue
			}
			local = next

		default:
			return nil, nil, errors.Errorf("unknown node kind %d", n.kind)
		}
	}

	return pieces, dropped, nil
}

// evalExpr evaluates one expression node, expanding a template result in place
func evalExpr(ctx context.Context, n node, scope *Scope, depth int) ([]node, error) {
	ectx, err := scope.evalContext(n.expr.Variables())
	if err != nil {
		return nil, err
	}

	val, diags := n.expr.Value(ectx)
	if diags.HasErrors() {
		return nil, errors.Errorf("evaluating %q: %w", n.text, diags)
	}

	if sub, ok := FromValue(val); ok {
		if depth+1 >= MaxDepth {
			return nil, errors.Errorf("template nesting exceeds %d levels", MaxDepth)
		}
		pieces, dropped, err := sub.expand(ctx, scope, depth+1)
		if err != nil {
			return nil, err
		}
		if len(dropped) > 0 {
			return nil, errors.Errorf("expanding %q: %w", sub.source, dropped[0])
		}
		return pieces, nil
	}

	text, err := toText(val)
	if err != nil {
		return nil, errors.Errorf("evaluating %q: %w", n.text, err)
	}
	return []node{{kind: NodeText, text: text, offset: n.offset}}, nil
}

// execStatements evaluates each assignment in order against scope plus the
// assignments before it in the same segment. The returned frame holds only
// this segment's names; on error nothing is returned.
func execStatements(n node, scope *Scope) (Vars, error) {
	bound := make(Vars, len(n.stmts))
	next := scope
	for _, attr := range n.stmts {
		ectx, err := next.evalContext(attr.Expr.Variables())
		if err != nil {
			return nil, errors.Errorf("assigning %q: %w", attr.Name, err)
		}
		val, diags := attr.Expr.Value(ectx)
		if diags.HasErrors() {
			return nil, errors.Errorf("assigning %q: %w", attr.Name, diags)
		}
		bound[attr.Name] = val
		next = next.With(Vars{attr.Name: val})
	}
	return bound, nil
}

// normalize drops newlines and unescaped spaces, then unescapes `\ `
func normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && s[i+1] == ' ':
			sb.WriteByte(' ')
			i++
		case c == ' ', c == '\n', c == '\r':
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
