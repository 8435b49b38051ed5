package vm

import (
	"fmt"
	"strings"
	"unicode"

	verr "github.com/nihei9/ppeg/error"
	"github.com/nihei9/ppeg/inst"
	"github.com/nihei9/ppeg/ptree"
)

// Eval dispatches on instr's concrete type and evaluates it against e.
// It returns whether instr matched. Every instruction that fails
// restores e's cursor and ptree stack to their pre-call state, except
// DQ (see evalDq), which leaves already-skipped whitespace in place.
func Eval(instr inst.Instruction, e *Env) bool {
	pos0 := e.pos
	ok := evalDispatch(instr, e)
	if e.tracing() {
		e.trace.emit(e, instr, pos0, ok)
	}
	return ok
}

func evalDispatch(instr inst.Instruction, e *Env) bool {
	switch x := instr.(type) {
	case *inst.ID:
		return evalID(x, e)
	case *inst.Alt:
		return evalAlt(x, e)
	case *inst.Seq:
		return evalSeq(x, e)
	case *inst.Rep:
		return evalRep(x, e)
	case *inst.Pre:
		return evalPre(x, e)
	case *inst.Sq:
		return evalSq(x, e)
	case *inst.Dq:
		return evalDq(x, e)
	case *inst.Chs:
		return evalChs(x, e)
	case *inst.Extn:
		return evalExtn(x, e)
	default:
		panic(fmt.Sprintf("vm: unrecognised instruction %T", instr))
	}
}

func isCapital(name string) bool {
	r := []rune(name)
	return len(r) > 0 && r[0] >= 'A' && r[0] <= 'Z'
}

// evalID implements the ID contract: invoke the referenced rule,
// label its product, and guarantee the invariant that a failing call
// leaves cursor and stack exactly as they were on entry.
func evalID(x *inst.ID, e *Env) bool {
	entryPos := e.pos
	entryMark := e.Mark()

	if !e.enterRule(x.Name, entryMark) {
		frames := e.lastRuleFrames(5)
		e.depth--
		panic(&verr.GrammarError{
			Cause: fmt.Errorf("recursion depth exceeded (last rules: %s)", strings.Join(append(frames, x.Name), " > ")),
			Rule:  x.Name,
		})
	}

	rule := e.Program.Rules[x.Idx]
	ok := Eval(rule.Body, e)

	if !ok {
		e.pos = entryPos
		e.Truncate(entryMark)
		e.exitRule()
		return false
	}

	if strings.HasPrefix(x.Name, "_") {
		e.Truncate(entryMark)
		e.exitRule()
		return true
	}

	children := e.Children(entryMark)
	switch {
	case len(children) == 0 && isCapital(x.Name):
		e.Push(ptree.Branch(x.Name, []ptree.Node{}))
	case len(children) == 0:
		e.Push(ptree.Leaf(x.Name, e.Slice(entryPos, e.pos)))
	case len(children) > 1 || isCapital(x.Name):
		copied := append([]ptree.Node{}, children...)
		e.ReplaceSince(entryMark, ptree.Branch(x.Name, copied))
	default:
		// single child, lowercase name: elide, leaving the child as-is.
	}

	e.exitRule()
	return true
}

// evalAlt implements ordered choice: the first alternative whose
// guard (if any) doesn't rule it out and which itself succeeds wins.
func evalAlt(x *inst.Alt, e *Env) bool {
	entryPos := e.pos
	entryMark := e.Mark()
	for i, ch := range x.Children {
		if i < len(x.Guards) {
			if g := x.Guards[i]; g.Active {
				c, ok := e.Peek()
				if !ok {
					continue
				}
				if g.ICase {
					c = unicode.ToUpper(c)
				}
				if c != g.Char {
					continue
				}
			}
		}
		if Eval(ch, e) {
			return true
		}
		e.pos = entryPos
		e.Truncate(entryMark)
	}
	return false
}

// evalSeq implements SEQ(min,max,children): children matched in
// order form one iteration, repeated min..max times. A failing child
// rolls back only the current (incomplete) iteration; the outcome
// then depends on how many whole iterations already succeeded. The
// "deepest attempted position" fault used by diagnostics is recorded
// by the terminal matchers themselves (evalChs, evalSq) rather than
// here: by the time a failing child's Eval call returns, any position
// it reached has already been rolled back, so the only place that
// still sees the furthest attempted codepoint is the terminal that
// actually rejected it.
func evalSeq(x *inst.Seq, e *Env) bool {
	entryPos := e.pos
	entryMark := e.Mark()
	count := 0
	for x.Max == 0 || count < x.Max {
		iterPos := e.pos
		iterMark := e.Mark()
		failed := false
		for _, ch := range x.Children {
			if !Eval(ch, e) {
				failed = true
				break
			}
		}
		if failed {
			e.pos = iterPos
			e.Truncate(iterMark)
			break
		}
		count++
		if e.pos == iterPos {
			break // progress guard: a zero-length iteration never repeats
		}
	}
	if count < x.Min {
		e.pos = entryPos
		e.Truncate(entryMark)
		return false
	}
	return true
}

// evalRep implements REP(min,max,child): child repeated as a unit,
// min..max times.
func evalRep(x *inst.Rep, e *Env) bool {
	entryPos := e.pos
	entryMark := e.Mark()
	count := 0
	for x.Max == 0 || count < x.Max {
		before := e.pos
		if !Eval(x.Child, e) {
			break
		}
		count++
		if e.pos == before {
			break
		}
	}
	if count < x.Min {
		e.pos = entryPos
		e.Truncate(entryMark)
		return false
	}
	return true
}

// evalPre implements lookahead: child is evaluated with tracing
// suppressed and peak frozen, then cursor and stack are unconditionally
// restored before the sign is applied.
func evalPre(x *inst.Pre, e *Env) bool {
	entryPos := e.pos
	entryMark := e.Mark()
	entryPeak := e.peak

	var savedTrace bool
	hasFrame := len(e.traceOn) > 0
	if hasFrame {
		savedTrace = e.traceOn[len(e.traceOn)-1]
		e.traceOn[len(e.traceOn)-1] = false
	}
	savedOptTrace := e.Opts.Trace
	e.Opts.Trace = false
	inner := Eval(x.Child, e)
	e.Opts.Trace = savedOptTrace
	if hasFrame {
		e.traceOn[len(e.traceOn)-1] = savedTrace
	}

	e.pos = entryPos
	e.Truncate(entryMark)
	e.peak = entryPeak

	switch x.Sign {
	case '&':
		return inner
	case '!':
		return !inner
	case '~':
		if inner || e.AtEnd() {
			return false
		}
		e.Advance(1)
		return true
	default:
		return false
	}
}

// evalSq implements SQ(icase,literal): exact codepoint-by-codepoint
// match, no implicit whitespace. Failure restores the cursor.
//
// The fault is recorded at e.pos as it stands right before the
// restore, i.e. the entry position plus whatever this literal itself
// matched before rejecting. Recording unconditionally (rather than
// only when this call made progress of its own) also captures the
// case where earlier siblings in the enclosing SEQ's current
// iteration already advanced the cursor before this literal was even
// attempted: that progress is already baked into entryPos, so the
// RecordFault call below reports it even on an immediate mismatch.
// RecordFault's own "deepest so far" guard makes this safe to call on
// every failure, including a zero-progress one.
func evalSq(x *inst.Sq, e *Env) bool {
	entryPos := e.pos
	for _, want := range x.Literal {
		c, ok := e.Peek()
		if !ok {
			e.RecordFault(e.pos, e.CurrentRule(), x)
			e.pos = entryPos
			return false
		}
		if x.ICase {
			c = unicode.ToUpper(c)
		}
		if c != want {
			e.RecordFault(e.pos, e.CurrentRule(), x)
			e.pos = entryPos
			return false
		}
		e.Advance(1)
	}
	return true
}

// evalDq implements DQ(icase,literal): like SQ, but every space
// codepoint in literal skips zero or more input whitespace codepoints
// rather than matching itself. A failure on a non-space literal
// codepoint does NOT restore the cursor: whitespace already skipped
// stays skipped. The fault is still recorded, same as every other
// terminal, so a grammar that fails inside a "..." literal still gets
// an accurate "expected" report.
func evalDq(x *inst.Dq, e *Env) bool {
	for _, want := range x.Literal {
		if want == ' ' {
			skipSpace(e)
			continue
		}
		c, ok := e.Peek()
		if !ok {
			e.RecordFault(e.pos, e.CurrentRule(), x)
			return false
		}
		if x.ICase {
			c = unicode.ToUpper(c)
		}
		if c != want {
			e.RecordFault(e.pos, e.CurrentRule(), x)
			return false
		}
		e.Advance(1)
	}
	return true
}

// skipSpace consumes whitespace ahead of the cursor: the user's
// _space_ rule if the grammar defines one, else the ASCII set
// {space, tab, CR, LF}, zero or more occurrences.
func skipSpace(e *Env) {
	if e.Program.Space != nil {
		Eval(&inst.ID{Idx: *e.Program.Space, Name: e.Program.Rules[*e.Program.Space].Name}, e)
		return
	}
	for {
		c, ok := e.Peek()
		if !ok || !isASCIISpace(c) {
			return
		}
		e.Advance(1)
	}
}

func isASCIISpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// evalChs implements CHS(neg,min,max,ranges): up to max codepoints
// matched against the range set (negated by neg), one per iteration.
// Failure (fewer than min matched) restores the cursor, same as every
// other terminal. The fault is recorded unconditionally, not just
// when this call consumed something of its own: entryPos already
// carries whatever progress earlier SEQ siblings made this iteration,
// so e.pos still reports the deepest point reached even when this
// call itself matched zero codepoints.
func evalChs(x *inst.Chs, e *Env) bool {
	entryPos := e.pos
	count := 0
	for x.Max == 0 || count < x.Max {
		c, ok := e.Peek()
		if !ok {
			break
		}
		if inRanges(c, x.Ranges) == x.Neg {
			break
		}
		e.Advance(1)
		count++
	}
	if count < x.Min {
		e.RecordFault(e.pos, e.CurrentRule(), x)
		e.pos = entryPos
		return false
	}
	return true
}

func inRanges(c rune, ranges []inst.Range) bool {
	for _, r := range ranges {
		if c >= r.Lo && c <= r.Hi {
			return true
		}
	}
	return false
}

// evalExtn implements EXTN(spec): tokenise on ASCII spaces, look the
// first token up in the user table and then the built-ins, and
// invoke it.
func evalExtn(x *inst.Extn, e *Env) bool {
	args := splitSpec(x.Spec)
	if len(args) == 0 {
		return false
	}
	name := args[0]
	if fn, ok := e.Exts[name]; ok {
		return fn(e, args)
	}
	if fn, ok := builtinExtensions[name]; ok {
		return fn(e, args)
	}
	return false
}

func splitSpec(s string) []string {
	var out []string
	for _, f := range strings.Split(s, " ") {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
