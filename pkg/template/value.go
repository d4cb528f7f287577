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
	"reflect"
	"strconv"

	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

// templateType carries compiled templates through cty values so an
// expression can return a fragment to be expanded in place
var templateType = cty.Capsule("template", reflect.TypeOf(Template{}))

// Value wraps t so it can be bound in a scope
func Value(t *Template) cty.Value {
	return cty.CapsuleVal(templateType, t)
}

// FromValue unwraps a template bound with Value
func FromValue(v cty.Value) (*Template, bool) {
	if v.IsNull() || !v.IsKnown() || !v.Type().Equals(templateType) {
		return nil, false
	}
	t, ok := v.EncapsulatedValue().(*Template)
	return t, ok
}

// ValueMap wraps every template of m into an object value
func ValueMap(m map[string]*Template) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(m))
	for k, t := range m {
		attrs[k] = Value(t)
	}
	return cty.ObjectVal(attrs)
}

// 📝 toText converts an evaluated value to the text spliced into output
func toText(v cty.Value) (string, error) {
	if !v.IsKnown() {
		return "", errors.New("value is unknown")
	}
	if v.IsNull() {
		return "", errors.New("value is null")
	}
	v, _ = v.Unmark()

	switch ty := v.Type(); {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int(nil)
			return i.String(), nil
		}
		f, _ := bf.Float64()
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case ty == cty.Bool:
		return strconv.FormatBool(v.True()), nil
	default:
		return "", errors.Errorf("cannot render %s as text", ty.FriendlyName())
	}
}
