package interpolate

import (
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Value is a resolved input: the document node it came from and its cty form.
type Value struct {
	Node *document.Node
	Cty  cty.Value
}

func newValue(n *document.Node) Value {
	return Value{Node: n, Cty: toCty(n)}
}

func stringValue(s string) Value {
	return Value{Node: document.NewString(s), Cty: cty.StringVal(s)}
}

// toCty converts a document node. Nulls become null strings so collections
// keep a concrete element type.
func toCty(n *document.Node) cty.Value {
	if n.IsNull() {
		return cty.NullVal(cty.String)
	}
	switch n.Kind {
	case document.KindInt, document.KindFloat:
		v, err := cty.ParseNumberVal(n.Value)
		if err != nil {
			return cty.StringVal(n.Value)
		}
		return v
	case document.KindBool:
		return cty.BoolVal(n.Value == "true")
	case document.KindSequence:
		if len(n.Items) == 0 {
			return cty.EmptyTupleVal
		}
		vals := make([]cty.Value, len(n.Items))
		for i, item := range n.Items {
			vals[i] = toCty(item)
		}
		return cty.TupleVal(vals)
	case document.KindMapping:
		if len(n.Pairs) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(n.Pairs))
		for _, p := range n.Pairs {
			attrs[p.Key] = toCty(p.Value)
		}
		return cty.ObjectVal(attrs)
	default:
		return cty.StringVal(n.Value)
	}
}

// typeName describes a cty type in the vocabulary of input specs.
func typeName(t cty.Type) string {
	switch {
	case t.Equals(cty.String):
		return "string"
	case t.Equals(cty.Number):
		return "number"
	case t.Equals(cty.Bool):
		return "boolean"
	case t.IsTupleType() || t.IsListType():
		return "array"
	case t.IsObjectType() || t.IsMapType():
		return "hash"
	default:
		return t.FriendlyName()
	}
}

// text renders v for textual substitution. Scalars keep their source form;
// collections are written as JSON.
func (v Value) text() (string, error) {
	if v.Node != nil && v.Node.IsScalar() {
		s, _ := v.Node.Scalar()
		return s, nil
	}
	if v.Cty.IsNull() {
		return "", nil
	}
	if v.Cty.Type().IsPrimitiveType() {
		s, err := convert.Convert(v.Cty, cty.String)
		if err != nil {
			return "", err
		}
		return s.AsString(), nil
	}
	b, err := ctyjson.Marshal(v.Cty, v.Cty.Type())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
