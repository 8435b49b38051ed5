// Package inst defines the instruction model: a tagged-variant tree
// of compiled grammar expressions, produced by package grammar and
// interpreted by package vm. Each concrete type below corresponds to
// one kind of compiled expression: ID, ALT, SEQ, REP, PRE, SQ, DQ,
// CHS, EXTN.
//
// Instructions carry no evaluation logic of their own (package vm
// dispatches on concrete type with a type switch) so that this
// package can be imported by both the compiler and the VM without a
// cycle.
package inst

import (
	"fmt"
	"strings"
)

// Instruction is the sealed tag every compiled node satisfies.
type Instruction interface {
	fmt.Stringer
	instruction()
}

// Guard is a precomputed first-codepoint hint attached to an ALT
// alternative, letting the VM skip alternatives that provably cannot
// match at the current input position. A zero Guard (Active == false)
// means "no guard, always try this alternative."
type Guard struct {
	Active bool
	Char   rune
	ICase  bool
}

// Range is one member of a CHS character set: a singleton when Lo ==
// Hi, otherwise an inclusive a-b range.
type Range struct {
	Lo, Hi rune
}

func (r Range) String() string {
	if r.Lo == r.Hi {
		return string(r.Lo)
	}
	return fmt.Sprintf("%c-%c", r.Lo, r.Hi)
}

// ID invokes the rule at Idx, labelling its product with Name (which
// is usually, but not always, the referenced rule's own name — a
// grammar may call a rule under an alias in a future extension, so
// the two are kept distinct even though today's compiler always sets
// Name to the referenced rule's name).
type ID struct {
	Idx  int
	Name string
}

func (*ID) instruction()      {}
func (n *ID) String() string { return n.Name }

// Alt is ordered choice over Children, with an optional Guards entry
// per child computed by the compiler's guard pass.
type Alt struct {
	Children []Instruction
	Guards   []Guard
}

func (*Alt) instruction() {}
func (n *Alt) String() string {
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " / ") + ")"
}

// Seq matches Children, in order, Min..Max times as a unit (the
// classic PEG sequence is Seq{Min:1,Max:1}; repeated sequences arise
// from collapsing a rep over a parenthesised sequence). Max == 0
// means unbounded.
type Seq struct {
	Min, Max int
	Children []Instruction
}

func (*Seq) instruction() {}
func (n *Seq) String() string {
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	body := strings.Join(parts, " ")
	if n.Min == 1 && n.Max == 1 {
		return body
	}
	if len(n.Children) > 1 {
		body = "(" + body + ")"
	}
	return body + repSuffix(n.Min, n.Max)
}

// Rep repeats Child Min..Max times. Max == 0 means unbounded.
type Rep struct {
	Min, Max int
	Child    Instruction
}

func (*Rep) instruction() {}
func (n *Rep) String() string {
	return parenIfNeeded(n.Child) + repSuffix(n.Min, n.Max)
}

func repSuffix(min, max int) string {
	switch {
	case min == 1 && max == 1:
		return ""
	case min == 0 && max == 0:
		return "*"
	case min == 1 && max == 0:
		return "+"
	case min == 0 && max == 1:
		return "?"
	case min == max:
		return fmt.Sprintf("*%d", min)
	case max == 0:
		return fmt.Sprintf("*%d..", min)
	default:
		return fmt.Sprintf("*%d..%d", min, max)
	}
}

// Pre is a lookahead prefix: &child (positive), !child (negative), or
// ~child (negate-and-consume-one).
type Pre struct {
	Sign  byte // '&', '!', or '~'
	Child Instruction
}

func (*Pre) instruction() {}
func (n *Pre) String() string {
	return string(n.Sign) + parenIfNeeded(n.Child)
}

func parenIfNeeded(n Instruction) string {
	switch n.(type) {
	case *Seq:
		return "(" + n.String() + ")"
	default:
		return n.String()
	}
}

// Sq matches Literal exactly, codepoint by codepoint; no implicit
// whitespace. ICase folds both sides to upper case before comparing.
type Sq struct {
	ICase   bool
	Literal string
}

func (*Sq) instruction() {}
func (n *Sq) String() string {
	if n.ICase {
		return fmt.Sprintf("'%s'i", n.Literal)
	}
	return fmt.Sprintf("'%s'", n.Literal)
}

// Dq is like Sq, but every space codepoint in Literal matches zero or
// more whitespace codepoints in the input.
type Dq struct {
	ICase   bool
	Literal string
}

func (*Dq) instruction() {}
func (n *Dq) String() string {
	if n.ICase {
		return fmt.Sprintf("%q i", n.Literal)
	}
	return fmt.Sprintf("%q", n.Literal)
}

// Chs matches Min..Max codepoints from Ranges (singletons and a-b
// ranges); Neg flips membership. Max == 0 means unbounded.
type Chs struct {
	Neg      bool
	Min, Max int
	Ranges   []Range
}

func (*Chs) instruction() {}
func (n *Chs) String() string {
	parts := make([]string, len(n.Ranges))
	for i, r := range n.Ranges {
		parts[i] = r.String()
	}
	body := "[" + strings.Join(parts, "") + "]"
	if n.Neg {
		body = "~" + body
	}
	return body + repSuffix(n.Min, n.Max)
}

// Extn invokes a host extension. Spec is the raw text between the
// angle brackets, e.g. "infix" or "same NAME".
type Extn struct {
	Spec string
}

func (*Extn) instruction() {}
func (n *Extn) String() string { return "<" + n.Spec + ">" }
