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

import "strings"

// 🔖 Delimiters recognised by the lexer
const (
	ExprOpen  = "{{"
	ExprClose = "}}"
	StmtOpen  = "{%"
	StmtClose = "%}"
)

type tokenKind int

const (
	tokenText tokenKind = iota
	tokenExprOpen
	tokenExprClose
	tokenStmtOpen
	tokenStmtClose
)

func (k tokenKind) String() string {
	switch k {
	case tokenExprOpen:
		return ExprOpen
	case tokenExprClose:
		return ExprClose
	case tokenStmtOpen:
		return StmtOpen
	case tokenStmtClose:
		return StmtClose
	default:
		return "text"
	}
}

// closer returns the token that terminates an open token
func (k tokenKind) closer() tokenKind {
	switch k {
	case tokenExprOpen:
		return tokenExprClose
	case tokenStmtOpen:
		return tokenStmtClose
	default:
		return tokenText
	}
}

type token struct {
	kind   tokenKind
	value  string
	offset int // byte offset in the template source
}

// delimiters are tried in this order at every position
var delimiters = []struct {
	text string
	kind tokenKind
}{
	{ExprOpen, tokenExprOpen},
	{ExprClose, tokenExprClose},
	{StmtOpen, tokenStmtOpen},
	{StmtClose, tokenStmtClose},
}

// 🔍 lex splits src into delimiter tokens and the text between them
func lex(src string) []token {
	var tokens []token
	var current strings.Builder
	start := 0

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, token{kind: tokenText, value: current.String(), offset: start})
			current.Reset()
		}
	}

	cursor := 0
outer:
	for cursor < len(src) {
		for _, d := range delimiters {
			if strings.HasPrefix(src[cursor:], d.text) {
				flush()
				tokens = append(tokens, token{kind: d.kind, value: d.text, offset: cursor})
				cursor += len(d.text)
				start = cursor
				continue outer
			}
		}
		if current.Len() == 0 {
			start = cursor
		}
		current.WriteByte(src[cursor])
		cursor++
	}
	flush()

	return tokens
}
