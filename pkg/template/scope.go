package template

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

// ErrUnknownName is returned when no scope frame defines a name
var ErrUnknownName = errors.Base("unknown name")

// 🔎 Resolver is a single scope frame.
//
// Resolve returns an error wrapping ErrUnknownName when the frame does not
// define name, which lets lookup continue to the next frame out. Any other
// error stops the lookup.
type Resolver interface {
	Resolve(name string) (cty.Value, error)
}

// Vars is a frame backed by a plain map
type Vars map[string]cty.Value

func (v Vars) Resolve(name string) (cty.Value, error) {
	val, ok := v[name]
	if !ok {
		return cty.NilVal, ErrUnknownName
	}
	return val, nil
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(name string) (cty.Value, error)

func (f ResolverFunc) Resolve(name string) (cty.Value, error) {
	return f(name)
}

// 📚 Scope is an immutable chain of frames, searched innermost-first.
//
// Names bound by statement segments during a render sit behind every frame
// of the scope passed to Render.
type Scope struct {
	parent *Scope
	frame  Resolver
}

// NewScope builds a scope from frames ordered outermost first
func NewScope(frames ...Resolver) *Scope {
	var s *Scope
	for _, f := range frames {
		s = s.With(f)
	}
	return s
}

// With returns a new scope with frame pushed on top. s is left unchanged.
func (s *Scope) With(frame Resolver) *Scope {
	if frame == nil {
		return s
	}
	return &Scope{parent: s, frame: frame}
}

// Lookup resolves name against each frame from the innermost outwards
func (s *Scope) Lookup(name string) (cty.Value, error) {
	v, err := s.resolve(name)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, ErrUnknownName):
		return cty.NilVal, errors.Errorf("%w: %q", ErrUnknownName, name)
	default:
		return cty.NilVal, errors.Errorf("resolving %q: %w", name, err)
	}
}

func (s *Scope) resolve(name string) (cty.Value, error) {
	for f := s; f != nil; f = f.parent {
		v, err := f.frame.Resolve(name)
		if err == nil || !errors.Is(err, ErrUnknownName) {
			return v, err
		}
	}
	return cty.NilVal, ErrUnknownName
}

// withLocal returns a scope that searches every frame of outer before local
func withLocal(outer *Scope, local Vars) *Scope {
	if len(local) == 0 {
		return outer
	}
	return &Scope{frame: localFrame{outer: outer, local: local}}
}

type localFrame struct {
	outer *Scope
	local Vars
}

func (f localFrame) Resolve(name string) (cty.Value, error) {
	v, err := f.outer.resolve(name)
	if err == nil || !errors.Is(err, ErrUnknownName) {
		return v, err
	}
	return f.local.Resolve(name)
}

// evalContext resolves only the root names referenced by traversals
func (s *Scope) evalContext(traversals []hcl.Traversal) (*hcl.EvalContext, error) {
	vars := make(map[string]cty.Value, len(traversals))
	for _, tr := range traversals {
		name := tr.RootName()
		if _, ok := vars[name]; ok {
			continue
		}
		v, err := s.Lookup(name)
		if err != nil {
			return nil, err
		}
		vars[name] = v
	}

	return &hcl.EvalContext{
		Variables: vars,
		Functions: Functions(),
	}, nil
}
