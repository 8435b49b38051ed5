// Package vm is the parser virtual machine: a recursive interpreter
// over a compiled instruction program that implements PEG semantics
// and produces a ptree.
package vm

import (
	"github.com/nihei9/ppeg/grammar"
	"github.com/nihei9/ppeg/inst"
	"github.com/nihei9/ppeg/ptree"
)

// DefaultMaxDepth is the recursion bound applied when Options.MaxDepth
// is zero.
const DefaultMaxDepth = 100

// Options controls a single Parse call. The zero value parses with
// tracing off, no short-circuit on partial consumption, and the
// default recursion bound.
type Options struct {
	// Trace enables a step trace for every rule invocation.
	Trace bool
	// TraceRule, if non-empty, restricts tracing to invocations of
	// the named rule (and anything it calls), instead of the whole
	// parse.
	TraceRule string
	// Short returns the root ptree on partial consumption instead of
	// reporting "fell short".
	Short bool
	// MaxDepth overrides DefaultMaxDepth when non-zero.
	MaxDepth int
}

// Extension is a host-callable invoked by a grammar's <name args...>
// instruction. It receives the live environment and the payload split
// on ASCII spaces (args[0] is the extension's own name). A truthy
// return is success, matching the surrounding PEG success/failure
// convention.
type Extension func(e *Env, args []string) bool

// Env is the mutable environment threaded by pointer through a
// parse. One Env exists per Parse call and is never shared.
type Env struct {
	Program *grammar.Program
	Exts    map[string]Extension
	Opts    Options

	input []rune
	pos   int
	peak  int

	stack     []ptree.Node
	ruleStack []string
	ruleMarks []int
	traceOn   []bool

	depth    int
	maxDepth int

	faultPos  int
	faultRule string
	faultExp  inst.Instruction

	trace *traceWriter
}

// NewEnv builds a fresh environment for a single parse: cursor at 0,
// peak 0, depth -1, empty stacks, fault trackers reset.
func NewEnv(p *grammar.Program, exts map[string]Extension, input string, opts Options) *Env {
	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Env{
		Program:   p,
		Exts:      exts,
		Opts:      opts,
		input:     []rune(input),
		pos:       0,
		peak:      0,
		depth:     -1,
		maxDepth:  maxDepth,
		faultPos:  -1,
		faultRule: "",
		trace:     newTraceWriter(),
	}
}

// Pos returns the current cursor position, in codepoints.
func (e *Env) Pos() int { return e.pos }

// Len returns the input length, in codepoints.
func (e *Env) Len() int { return len(e.input) }

// AtEnd reports whether the cursor has reached the end of input.
func (e *Env) AtEnd() bool { return e.pos >= len(e.input) }

// Peek returns the codepoint at the cursor, or ok=false at end of input.
func (e *Env) Peek() (rune, bool) {
	if e.pos >= len(e.input) {
		return 0, false
	}
	return e.input[e.pos], true
}

// Advance consumes n codepoints and updates peak.
func (e *Env) Advance(n int) {
	e.pos += n
	if e.pos > e.peak {
		e.peak = e.pos
	}
}

// Slice returns the input text between two cursor positions.
func (e *Env) Slice(from, to int) string {
	return string(e.input[from:to])
}

// Mark returns the current ptree-stack depth, to be passed to
// Truncate on failure or rule exit.
func (e *Env) Mark() int { return len(e.stack) }

// Truncate drops every ptree node pushed since mark.
func (e *Env) Truncate(mark int) {
	e.stack = e.stack[:mark]
}

// Children returns the ptree nodes pushed since mark, in order.
func (e *Env) Children(mark int) []ptree.Node {
	return e.stack[mark:]
}

// Push appends a ptree node to the builder stack.
func (e *Env) Push(n ptree.Node) {
	e.stack = append(e.stack, n)
}

// ReplaceSince overwrites the children pushed since mark with a
// single node, used by the infix extension to fold a flat operand
// list into a precedence tree.
func (e *Env) ReplaceSince(mark int, n ptree.Node) {
	e.stack = append(e.stack[:mark], n)
}

// CurrentRule returns the name of the innermost rule currently being
// evaluated, or "" if none (only possible before the start rule is
// invoked).
func (e *Env) CurrentRule() string {
	if len(e.ruleStack) == 0 {
		return ""
	}
	return e.ruleStack[len(e.ruleStack)-1]
}

// Peak returns the high-water cursor position reached so far.
func (e *Env) Peak() int { return e.peak }

// RecordFault records a terminal failure at pos if it is the deepest
// one seen so far. rule and exp describe the expectation that was
// violated: the terminal matchers (evalSq, evalDq, evalChs) pass the
// innermost active rule and themselves, so the report names the
// terminal that actually failed (e.g. "month"/"[0-9]*2") rather than
// the call site of the rule.
func (e *Env) RecordFault(pos int, rule string, exp inst.Instruction) {
	if pos > e.faultPos {
		e.faultPos = pos
		e.faultRule = rule
		e.faultExp = exp
	}
}

// enterRule pushes depth/rule-name/mark bookkeeping for an ID
// invocation. It returns false when the recursion bound is exceeded;
// depth has then been incremented and nothing else pushed.
func (e *Env) enterRule(name string, mark int) bool {
	e.depth++
	if e.depth >= e.maxDepth {
		return false
	}
	e.ruleStack = append(e.ruleStack, name)
	e.ruleMarks = append(e.ruleMarks, mark)
	traceActive := e.Opts.Trace && (e.Opts.TraceRule == "" || e.Opts.TraceRule == name)
	if len(e.traceOn) > 0 && e.traceOn[len(e.traceOn)-1] {
		traceActive = true
	}
	e.traceOn = append(e.traceOn, traceActive)
	return true
}

func (e *Env) exitRule() {
	e.depth--
	e.ruleStack = e.ruleStack[:len(e.ruleStack)-1]
	e.ruleMarks = e.ruleMarks[:len(e.ruleMarks)-1]
	e.traceOn = e.traceOn[:len(e.traceOn)-1]
}

// CurrentRuleMark returns the ptree-stack mark recorded when the
// innermost active rule was entered, for extensions (same, infix)
// that operate on "the children added since this rule's entry".
func (e *Env) CurrentRuleMark() int {
	if len(e.ruleMarks) == 0 {
		return 0
	}
	return e.ruleMarks[len(e.ruleMarks)-1]
}

// lastRuleFrames returns up to n innermost rule names, outermost
// first, for recursion-bound diagnostics.
func (e *Env) lastRuleFrames(n int) []string {
	if len(e.ruleStack) <= n {
		return append([]string{}, e.ruleStack...)
	}
	return append([]string{}, e.ruleStack[len(e.ruleStack)-n:]...)
}

// tracing reports whether the current rule invocation has step trace
// active.
func (e *Env) tracing() bool {
	return len(e.traceOn) > 0 && e.traceOn[len(e.traceOn)-1]
}

// enableTrace turns on tracing for the current rule invocation; it is
// a no-op if already on, per the <?> extension's contract.
func (e *Env) enableTrace() {
	if len(e.traceOn) > 0 {
		e.traceOn[len(e.traceOn)-1] = true
	}
}
