// Package template compiles and renders destination path templates.
//
// A template is literal text with two kinds of segments: `{{ expr }}`
// splices the value of an HCL expression, `{% name = expr %}` binds names
// for the rest of the template. Names resolve against the Scope passed to
// Render first, then against the bindings of the latest statement segment,
// which replace those of any segment before it.
//
//	t := template.MustNew(`out/{{ match.y }}/{% base = stat.name %}{{ base }}`)
//	res, err := t.Render(ctx, template.NewScope(globals, meta))
//
// Literal text is whitespace-normalised after expansion: newlines and
// bare spaces are dropped and `\ ` yields a single space.
package template
