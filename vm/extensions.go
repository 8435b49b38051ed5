package vm

import (
	"strings"

	"github.com/nihei9/ppeg/ptree"
)

// builtinExtensions holds the three extensions every engine provides
// out of the box. A grammar's own extensions (passed to Parse) are
// consulted first; these are the fallback.
var builtinExtensions = map[string]Extension{
	"?":     extTrace,
	"same":  extSame,
	"infix": extInfix,
}

// extTrace implements <?>: turn on step-trace for the enclosing rule
// invocation. Turning it on twice is a no-op.
func extTrace(e *Env, args []string) bool {
	e.enableTrace()
	return true
}

// extSame implements <same NAME>: the input ahead of the cursor must
// equal the text of the nearest previously matched sibling ptree node
// named NAME within the current rule invocation.
func extSame(e *Env, args []string) bool {
	if len(args) < 2 {
		return false
	}
	name := args[1]
	siblings := e.Children(e.CurrentRuleMark())
	var wantText string
	found := false
	for i := len(siblings) - 1; i >= 0; i-- {
		if siblings[i].Name == name {
			wantText = nodeText(siblings[i])
			found = true
			break
		}
	}
	if !found {
		return false
	}
	start := e.pos
	for _, want := range wantText {
		c, ok := e.Peek()
		if !ok || c != want {
			e.pos = start
			return false
		}
		e.Advance(1)
	}
	return true
}

// nodeText flattens a ptree node to the text it covers: its own text
// if a leaf, or the concatenation of its children's text if a branch.
func nodeText(n ptree.Node) string {
	if n.IsLeaf {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

// extInfix implements <infix>: fold the flat `operand (op operand)*`
// children accumulated since the enclosing rule's entry mark into a
// precedence tree, using the binding powers derived from each
// operator child's name by bindingPower. Always succeeds; this is a
// tree rewrite, not a match.
func extInfix(e *Env, args []string) bool {
	mark := e.CurrentRuleMark()
	items := e.Children(mark)
	if len(items) < 3 {
		// Already reduced (or trivially short): nothing to fold. This
		// is what makes a second <infix> pass over the same slot a
		// no-op.
		return true
	}
	p := &prattFold{items: append([]ptree.Node{}, items...)}
	result := p.parse(0)
	e.ReplaceSince(mark, result)
	return true
}

// prattFold runs precedence climbing over a flat operand/operator
// list.
type prattFold struct {
	items []ptree.Node
	i     int
}

func (p *prattFold) parse(minBp int) ptree.Node {
	lhs := p.items[p.i]
	p.i++
	for p.i < len(p.items) {
		opNode := p.items[p.i]
		lbp, rbp, isOp := bindingPower(opNode.Name)
		if !isOp || lbp < minBp {
			break
		}
		p.i++
		rhs := p.parse(rbp)
		label := opLabel(opNode.Name)
		// A right-associative chain of the same operator recurses into
		// another fold already labelled label (rbp < lbp lets the
		// recursive call keep consuming further instances of this same
		// operator). Splice its children into this node instead of
		// nesting a second level, so e.g. a^b^c folds to one 3-child
		// "pow" branch rather than pow-of-pow.
		if !rhs.IsLeaf && rhs.Name == label {
			lhs = ptree.Branch(label, append([]ptree.Node{lhs}, rhs.Children...))
		} else {
			lhs = ptree.Branch(label, []ptree.Node{lhs, rhs})
		}
	}
	return lhs
}

// bindingPower derives an operator's left/right binding powers from
// the last four characters of its rule name: `_d__` is
// left-associative with powers (2d+1, 2d+2); `__d_` is
// right-associative with powers (2d+2, 2d+1). Any other name (or one
// shorter than four characters) is an operand, binding power 0, and
// is reported as isOp=false.
func bindingPower(name string) (lbp, rbp int, isOp bool) {
	r := []rune(name)
	if len(r) < 4 {
		return 0, 0, false
	}
	tail := r[len(r)-4:]
	switch {
	case tail[0] == '_' && isDigit(tail[1]) && tail[2] == '_' && tail[3] == '_':
		d := int(tail[1] - '0')
		return 2*d + 1, 2*d + 2, true
	case tail[0] == '_' && tail[1] == '_' && isDigit(tail[2]) && tail[3] == '_':
		d := int(tail[2] - '0')
		return 2*d + 2, 2*d + 1, true
	default:
		return 0, 0, false
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// opLabel derives an infix fold's result label from a matched
// operator child's rule name, stripping the four-character
// binding-power suffix bindingPower reads (e.g. "add_1__" labels its
// fold "add"). A name no longer than the suffix itself is used as-is.
func opLabel(name string) string {
	if len(name) > 4 {
		return name[:len(name)-4]
	}
	return name
}
