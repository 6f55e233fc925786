package interpolate

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/ciforge/internal/cierr"
	"github.com/specialistvlad/ciforge/internal/document"
	"github.com/specialistvlad/ciforge/internal/variables"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// DefaultMaxBlocks bounds the number of blocks processed in one document.
const DefaultMaxBlocks = 10_000

// Component describes the component an included file was loaded as.
type Component struct {
	Name    string
	SHA     string
	Version string
	// Reference is the locator as written by the includer.
	Reference string
}

// Context holds the bindings available to blocks.
type Context struct {
	// Inputs are the resolved inputs of the file.
	Inputs map[string]Value
	// Component is set only for component includes.
	Component *Component
	// Matrix binds `matrix.*`. While nil, matrix blocks are left untouched
	// so they can be resolved once a job instance is known.
	Matrix map[string]string
	// Variables backs `expand_vars`.
	Variables variables.Lookup
	// MaxBlocks defaults to DefaultMaxBlocks.
	MaxBlocks int
}

// Interpolate resolves the header's inputs against given and substitutes
// every block of body. body is never modified. A file without a header is
// returned as is, unless inputs were given.
func Interpolate(body *document.Node, h *Header, given *document.Node, ctx Context) (*document.Node, error) {
	inputs, errs := ResolveInputs(h, given)
	if len(errs) > 0 {
		return nil, cierr.Join(errs)
	}
	if h == nil {
		return body, nil
	}
	ctx.Inputs = inputs
	return Apply(body, ctx)
}

// Apply substitutes every block of n using ctx.
func Apply(n *document.Node, ctx Context) (*document.Node, error) {
	w := &walker{ctx: ctx, funcs: functions(ctx), max: ctx.MaxBlocks}
	if w.max <= 0 {
		w.max = DefaultMaxBlocks
	}
	out := w.node(n)
	if len(w.errs) > 0 {
		return nil, cierr.Join(w.errs)
	}
	return out, nil
}

// Text substitutes the blocks of a single string.
func Text(s string, ctx Context) (string, error) {
	w := &walker{ctx: ctx, funcs: functions(ctx), max: ctx.MaxBlocks}
	if w.max <= 0 {
		w.max = DefaultMaxBlocks
	}
	out := w.text(s, hcl.Range{})
	return out, cierr.Join(w.errs)
}

type walker struct {
	ctx      Context
	funcs    map[string]function.Function
	max      int
	count    int
	errs     []error
	exceeded bool
}

func (w *walker) node(n *document.Node) *document.Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case document.KindString:
		return w.scalar(n)
	case document.KindSequence:
		out := &document.Node{Kind: n.Kind, Tag: n.Tag, Range: n.Range, Items: make([]*document.Node, len(n.Items))}
		for i, item := range n.Items {
			out.Items[i] = w.node(item)
		}
		return out
	case document.KindMapping:
		out := &document.Node{Kind: n.Kind, Tag: n.Tag, Range: n.Range, Pairs: make([]*document.Pair, len(n.Pairs))}
		for i, p := range n.Pairs {
			out.Pairs[i] = &document.Pair{Key: w.text(p.Key, p.KeyRange), KeyRange: p.KeyRange, Value: w.node(p.Value)}
		}
		return out
	default:
		return n.Clone()
	}
}

// scalar replaces a string that is exactly one block with the block's value.
func (w *walker) scalar(n *document.Node) *document.Node {
	blocks := scan(n.Value)
	if len(blocks) == 1 && blocks[0].start == 0 && blocks[0].end == len(n.Value) {
		v, ok := w.eval(blocks[0], n.Range)
		if !ok {
			return n.Clone()
		}
		out := v.Node.Clone()
		if out == nil {
			out = document.NewNull()
		}
		out.Range = n.Range
		return out
	}
	out := n.Clone()
	out.Value = w.textBlocks(n.Value, blocks, n.Range)
	return out
}

func (w *walker) text(s string, rng hcl.Range) string {
	return w.textBlocks(s, scan(s), rng)
}

func (w *walker) textBlocks(s string, blocks []block, rng hcl.Range) string {
	if len(blocks) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, bl := range blocks {
		b.WriteString(s[last:bl.start])
		last = bl.end
		v, ok := w.eval(bl, rng)
		if !ok {
			b.WriteString(s[bl.start:bl.end])
			continue
		}
		txt, err := v.text()
		if err != nil {
			w.errs = append(w.errs, cierr.At(cierr.KindInterpolation, rng, "`%s`: %s", strings.TrimSpace(bl.expr), err))
			continue
		}
		b.WriteString(txt)
	}
	b.WriteString(s[last:])
	return b.String()
}

// eval returns the value of a block. ok is false when the block must stay as
// written, either because it failed or because it refers to a deferred
// matrix binding.
func (w *walker) eval(bl block, rng hcl.Range) (Value, bool) {
	w.count++
	if w.count > w.max {
		if !w.exceeded {
			w.exceeded = true
			w.errs = append(w.errs, cierr.At(cierr.KindInterpolation, rng, "too many interpolation blocks, the maximum is %d", w.max))
		}
		return Value{}, false
	}

	e, err := parseExpression(bl.expr)
	if err != nil {
		w.errs = append(w.errs, cierr.At(cierr.KindInterpolation, rng, "%s", err))
		return Value{}, false
	}
	if e.head.namespace == "matrix" && w.ctx.Matrix == nil {
		return Value{}, false
	}

	v, err := w.lookup(e.head)
	if err != nil {
		w.errs = append(w.errs, cierr.At(cierr.KindInterpolation, rng, "%s", err))
		return Value{}, false
	}

	for _, c := range e.calls {
		fn, ok := w.funcs[c.name]
		if !ok {
			w.errs = append(w.errs, cierr.At(cierr.KindInterpolation, rng,
				"no function matching `%s`: check that the function name, arguments, and types are correct", c.name))
			return Value{}, false
		}
		res, err := fn.Call(append([]cty.Value{v.Cty}, c.args...))
		if err != nil {
			w.errs = append(w.errs, cierr.At(cierr.KindInterpolation, rng, "`%s` function: %s", c.name, err))
			return Value{}, false
		}
		v = stringValue(res.AsString())
	}
	return v, true
}

func (w *walker) lookup(a access) (Value, error) {
	switch a.namespace {
	case "inputs":
		v, ok := w.ctx.Inputs[a.key]
		if !ok {
			return Value{}, fmt.Errorf("unknown interpolation key: `%s`", a.key)
		}
		return v, nil
	case "component":
		c := w.ctx.Component
		if c == nil {
			return Value{}, fmt.Errorf("unknown interpolation key: `component`")
		}
		switch a.key {
		case "name":
			return stringValue(c.Name), nil
		case "sha":
			return stringValue(c.SHA), nil
		case "version":
			return stringValue(c.Version), nil
		case "reference":
			return stringValue(c.Reference), nil
		}
		return Value{}, fmt.Errorf("unknown interpolation key: `%s`", a)
	case "matrix":
		v, ok := w.ctx.Matrix[a.key]
		if !ok {
			return Value{}, fmt.Errorf("unknown interpolation key: `%s`", a)
		}
		return stringValue(v), nil
	default:
		return Value{}, fmt.Errorf("unknown interpolation key: `%s`", a.namespace)
	}
}
