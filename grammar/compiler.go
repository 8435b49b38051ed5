// Package grammar compiles a parsed grammar ptree into an executable
// instruction program.
package grammar

import (
	"fmt"
	"strconv"
	"strings"

	verr "github.com/nihei9/ppeg/error"
	"github.com/nihei9/ppeg/escape"
	"github.com/nihei9/ppeg/inst"
	"github.com/nihei9/ppeg/ptree"
)

// Rule is one named entry of a compiled program.
type Rule struct {
	Name string
	Body inst.Instruction
}

// Program is the compiler's output: an immutable, shareable grammar
// program.
type Program struct {
	Rules []Rule
	Names map[string]int
	Start int
	Space *int
}

// RuleIndex reports the index of the rule named name, if any.
func (p *Program) RuleIndex(name string) (int, bool) {
	i, ok := p.Names[name]
	return i, ok
}

const spaceRuleName = "_space_"

// Known reports whether an extension name is registered, used to
// validate EXTN nodes at compile time rather than discovering a
// missing extension mid-parse. Passing nil skips this validation
// (callers that want the stricter check supply ppeg's registry).
type Known func(name string) bool

// Compile consumes a grammar ptree (a "Grammar" branch of "rule"
// branches, each holding an id leaf and an expression subtree) and
// emits a Program. Grammar errors (duplicate rule names, undefined
// rule references, missing extensions) are returned as
// *verr.GrammarError.
func Compile(g ptree.Node, known Known) (*Program, error) {
	if g.IsLeaf || g.Name != "Grammar" {
		return nil, &verr.GrammarError{Cause: fmt.Errorf("malformed grammar ptree: expected a Grammar branch, got %s", g.Name)}
	}

	c := &compiler{
		names:     map[string]int{},
		ruleNodes: make([]ptree.Node, 0, len(g.Children)),
		known:     known,
	}

	for _, r := range g.Children {
		if r.IsLeaf || r.Name != "rule" || len(r.Children) != 2 {
			return nil, &verr.GrammarError{Cause: fmt.Errorf("malformed grammar ptree: expected a rule(id, expr) pair")}
		}
		idNode := r.Children[0]
		name := idNode.Text
		if _, dup := c.names[name]; dup {
			return nil, &verr.GrammarError{Cause: fmt.Errorf("duplicate rule name: %s", name), Rule: name}
		}
		c.names[name] = len(c.ruleNodes)
		c.ruleNodes = append(c.ruleNodes, r.Children[1])
		c.ruleOrder = append(c.ruleOrder, name)
	}
	if len(c.ruleOrder) == 0 {
		return nil, &verr.GrammarError{Cause: fmt.Errorf("grammar has no rules")}
	}

	rules := make([]Rule, len(c.ruleOrder))
	for i, name := range c.ruleOrder {
		body, err := c.emit(c.ruleNodes[i], name)
		if err != nil {
			return nil, err
		}
		rules[i] = Rule{Name: name, Body: body}
	}

	p := &Program{
		Rules: rules,
		Names: c.names,
		Start: 0,
	}
	if idx, ok := p.Names[spaceRuleName]; ok {
		p.Space = &idx
	}

	for i := range rules {
		rules[i].Body = attachGuards(rules[i].Body, p)
	}

	return p, nil
}

type compiler struct {
	names     map[string]int
	ruleOrder []string
	ruleNodes []ptree.Node
	known     Known
}

func (c *compiler) emit(n ptree.Node, rule string) (inst.Instruction, error) {
	switch n.Name {
	case "id":
		idx, ok := c.names[n.Text]
		if !ok {
			return nil, &verr.GrammarError{Cause: fmt.Errorf("undefined rule: %s", n.Text), Rule: rule}
		}
		return &inst.ID{Idx: idx, Name: n.Text}, nil

	case "alt":
		children := make([]inst.Instruction, len(n.Children))
		for i, ch := range n.Children {
			in, err := c.emit(ch, rule)
			if err != nil {
				return nil, err
			}
			children[i] = in
		}
		return &inst.Alt{Children: children}, nil

	case "seq":
		children := make([]inst.Instruction, len(n.Children))
		for i, ch := range n.Children {
			in, err := c.emit(ch, rule)
			if err != nil {
				return nil, err
			}
			children[i] = in
		}
		return &inst.Seq{Min: 1, Max: 1, Children: children}, nil

	case "rep":
		if len(n.Children) != 2 {
			return nil, &verr.GrammarError{Cause: fmt.Errorf("malformed rep node"), Rule: rule}
		}
		inner, err := c.emit(n.Children[0], rule)
		if err != nil {
			return nil, err
		}
		min, max, err := decodeSuffix(n.Children[1].Text)
		if err != nil {
			return nil, &verr.GrammarError{Cause: err, Rule: rule}
		}
		return collapseRep(min, max, inner), nil

	case "pre":
		if len(n.Children) != 2 {
			return nil, &verr.GrammarError{Cause: fmt.Errorf("malformed pre node"), Rule: rule}
		}
		sign := n.Children[0].Text
		inner, err := c.emit(n.Children[1], rule)
		if err != nil {
			return nil, err
		}
		return collapsePre(sign[0], inner), nil

	case "sq":
		icase, lit := decodeQuoted(n.Text, '\'')
		return &inst.Sq{ICase: icase, Literal: escape.Decode(lit)}, nil

	case "dq":
		icase, lit := decodeQuoted(n.Text, '"')
		return &inst.Dq{ICase: icase, Literal: escape.Decode(lit)}, nil

	case "chs":
		ranges, err := decodeClass(n.Text)
		if err != nil {
			return nil, &verr.GrammarError{Cause: err, Rule: rule}
		}
		return &inst.Chs{Min: 1, Max: 1, Ranges: ranges}, nil

	case "primary":
		// "primary" only ever reaches the compiler for its '.' (any
		// codepoint) alternative: every other primary alternative
		// (extn, a parenthesised alt, sq, dq, chs, id) contributes
		// exactly one ptree child and so elides through to that
		// child's own tag: see bootstrap's grammar-of-grammars.
		return &inst.Chs{Min: 1, Max: 1, Ranges: []inst.Range{{Lo: 0, Hi: '\U0010FFFF'}}}, nil

	case "extn":
		body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(n.Text, "<"), ">"))
		name := body
		if i := strings.IndexByte(body, ' '); i >= 0 {
			name = body[:i]
		}
		if c.known != nil && !c.known(name) && name != "?" && name != "same" && name != "infix" {
			return nil, &verr.GrammarError{Cause: fmt.Errorf("undefined extension: %s", name), Rule: rule}
		}
		return &inst.Extn{Spec: body}, nil

	default:
		return nil, &verr.GrammarError{Cause: fmt.Errorf("unrecognised grammar node: %s", n.Name), Rule: rule}
	}
}

// decodeSuffix decodes a rep suffix's raw text into a min/max bound:
// "+" is (1,0), "?" is (0,1), "*" is (0,0), "*N" is (N,N), "*N.." is
// (N,0), and "*N..M" is (N,M). A max of 0 means unbounded.
func decodeSuffix(s string) (min, max int, err error) {
	switch {
	case s == "+":
		return 1, 0, nil
	case s == "?":
		return 0, 1, nil
	case s == "*":
		return 0, 0, nil
	case strings.HasPrefix(s, "*"):
		body := s[1:]
		if i := strings.Index(body, ".."); i >= 0 {
			lo, err := strconv.Atoi(body[:i])
			if err != nil {
				return 0, 0, fmt.Errorf("malformed repeat count: %s", s)
			}
			hiStr := body[i+2:]
			if hiStr == "" {
				return lo, 0, nil
			}
			hi, err := strconv.Atoi(hiStr)
			if err != nil {
				return 0, 0, fmt.Errorf("malformed repeat count: %s", s)
			}
			return lo, hi, nil
		}
		n, err := strconv.Atoi(body)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed repeat count: %s", s)
		}
		return n, n, nil
	default:
		return 0, 0, fmt.Errorf("malformed repeat suffix: %s", s)
	}
}

// collapseRep collapses a rep wrapping another instruction where
// possible: a repeated sequence collapses into a bounded SEQ, a
// repeated character set collapses into a bounded CHS, and a repeated
// single-codepoint literal collapses into a bounded CHS singleton.
func collapseRep(min, max int, inner inst.Instruction) inst.Instruction {
	switch x := inner.(type) {
	case *inst.Seq:
		return &inst.Seq{Min: min, Max: max, Children: x.Children}
	case *inst.Chs:
		return &inst.Chs{Neg: x.Neg, Min: min, Max: max, Ranges: x.Ranges}
	case *inst.Sq:
		if r := []rune(x.Literal); len(r) == 1 {
			return &inst.Chs{Min: min, Max: max, Ranges: []inst.Range{{Lo: r[0], Hi: r[0]}}}
		}
	}
	return &inst.Rep{Min: min, Max: max, Child: inner}
}

// collapsePre collapses a negated pre wrapping a single-codepoint
// literal or a character set: `~'x'` and `~[...]` collapse into a
// negated CHS instead of a runtime lookahead.
func collapsePre(sign byte, inner inst.Instruction) inst.Instruction {
	if sign == '~' {
		switch x := inner.(type) {
		case *inst.Sq:
			if r := []rune(x.Literal); len(r) == 1 && !x.ICase {
				return &inst.Chs{Neg: true, Min: 1, Max: 1, Ranges: []inst.Range{{Lo: r[0], Hi: r[0]}}}
			}
		case *inst.Chs:
			if !x.Neg {
				return &inst.Chs{Neg: true, Min: x.Min, Max: x.Max, Ranges: x.Ranges}
			}
		}
	}
	return &inst.Pre{Sign: sign, Child: inner}
}

// decodeQuoted strips the surrounding quote character from a raw
// sq/dq token and reports whether a trailing 'i' case-insensitivity
// marker was present.
func decodeQuoted(raw string, quote byte) (icase bool, literal string) {
	s := raw
	if len(s) > 0 && s[len(s)-1] == 'i' && len(s) >= 2 && s[len(s)-2] == quote {
		icase = true
		s = s[:len(s)-1]
	}
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	if icase {
		s = strings.ToUpper(s)
	}
	return icase, s
}

// decodeClass strips the surrounding brackets from a raw chs token,
// decodes escapes, and splits the body into singletons and a-b
// ranges. Negation is not part of chs syntax: it is applied at the
// pre level via the `~` prefix operator, handled by collapsePre.
func decodeClass(raw string) ([]inst.Range, error) {
	s := raw
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	s = escape.Decode(s)
	r := []rune(s)
	var ranges []inst.Range
	for i := 0; i < len(r); i++ {
		if i+2 < len(r) && r[i+1] == '-' {
			if r[i] > r[i+2] {
				return nil, fmt.Errorf("invalid character range: %c-%c", r[i], r[i+2])
			}
			ranges = append(ranges, inst.Range{Lo: r[i], Hi: r[i+2]})
			i += 2
			continue
		}
		ranges = append(ranges, inst.Range{Lo: r[i], Hi: r[i]})
	}
	return ranges, nil
}

// attachGuards computes a first-codepoint skip hint for every ALT
// alternative in the tree rooted at n.
func attachGuards(n inst.Instruction, p *Program) inst.Instruction {
	switch x := n.(type) {
	case *inst.Alt:
		x.Guards = make([]inst.Guard, len(x.Children))
		for i, ch := range x.Children {
			x.Guards[i] = firstCharGuard(ch, p, map[int]bool{})
			x.Children[i] = attachGuards(ch, p)
		}
		return x
	case *inst.Seq:
		for i, ch := range x.Children {
			x.Children[i] = attachGuards(ch, p)
		}
		return x
	case *inst.Rep:
		x.Child = attachGuards(x.Child, p)
		return x
	case *inst.Pre:
		x.Child = attachGuards(x.Child, p)
		return x
	default:
		return n
	}
}

func firstCharGuard(n inst.Instruction, p *Program, visiting map[int]bool) inst.Guard {
	switch x := n.(type) {
	case *inst.ID:
		if visiting[x.Idx] {
			return inst.Guard{}
		}
		visiting[x.Idx] = true
		return firstCharGuard(p.Rules[x.Idx].Body, p, visiting)
	case *inst.Seq:
		if len(x.Children) == 0 || x.Min == 0 {
			return inst.Guard{}
		}
		return firstCharGuard(x.Children[0], p, visiting)
	case *inst.Sq:
		r := []rune(x.Literal)
		if len(r) == 0 {
			return inst.Guard{}
		}
		return inst.Guard{Active: true, Char: r[0], ICase: x.ICase}
	case *inst.Dq:
		r := []rune(x.Literal)
		if len(r) == 0 || r[0] == ' ' {
			return inst.Guard{}
		}
		return inst.Guard{Active: true, Char: r[0], ICase: x.ICase}
	default:
		return inst.Guard{}
	}
}
