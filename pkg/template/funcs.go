package template

import (
	"fmt"
	"path"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Functions returns the fixed function registry available to every
// expression. Callers get a fresh map and may not extend the registry.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"lower":         stdlib.LowerFunc,
		"upper":         stdlib.UpperFunc,
		"title":         stdlib.TitleFunc,
		"trimspace":     stdlib.TrimSpaceFunc,
		"replace":       stdlib.ReplaceFunc,
		"regex":         stdlib.RegexFunc,
		"regex_replace": stdlib.RegexReplaceFunc,
		"substr":        stdlib.SubstrFunc,
		"format":        stdlib.FormatFunc,
		"join":          stdlib.JoinFunc,
		"split":         stdlib.SplitFunc,
		"formatdate":    stdlib.FormatDateFunc,
		"timeadd":       stdlib.TimeAddFunc,
		"coalesce":      stdlib.CoalesceFunc,
		"lookup":        stdlib.LookupFunc,
		"min":           stdlib.MinFunc,
		"max":           stdlib.MaxFunc,
		"abs":           stdlib.AbsoluteFunc,
		"floor":         stdlib.FloorFunc,
		"ceil":          stdlib.CeilFunc,
		"length":        stdlib.LengthFunc,
		"basename":      basenameFunc,
		"dirname":       dirnameFunc,
		"pathext":       pathextFunc,
		"zeropad":       zeropadFunc,
	}
}

func stringFunc(param string, impl func(string) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: param, Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return cty.StringVal(impl(args[0].AsString())), nil
		},
	})
}

var basenameFunc = stringFunc("path", path.Base)

var dirnameFunc = stringFunc("path", path.Dir)

var pathextFunc = stringFunc("path", func(p string) string {
	return strings.ToLower(path.Ext(p))
})

// MaxPadWidth bounds the width accepted by zeropad
const MaxPadWidth = 64

// zeropad(7, 3) == "007"
var zeropadFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "num", Type: cty.Number},
		{Name: "width", Type: cty.Number},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		var num, width int64
		if err := gocty.FromCtyValue(args[0], &num); err != nil {
			return cty.NilVal, function.NewArgError(0, err)
		}
		if err := gocty.FromCtyValue(args[1], &width); err != nil {
			return cty.NilVal, function.NewArgError(1, err)
		}
		if width < 0 || width > MaxPadWidth {
			return cty.NilVal, function.NewArgErrorf(1, "width must be between 0 and %d, got %d", MaxPadWidth, width)
		}
		return cty.StringVal(fmt.Sprintf("%0*d", int(width), num)), nil
	},
})
