package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	verr "github.com/nihei9/ppeg/error"
	"github.com/nihei9/ppeg/grammar"
	"github.com/nihei9/ppeg/inst"
	"github.com/nihei9/ppeg/ptree"
)

func newProgram(rules ...grammar.Rule) *grammar.Program {
	names := map[string]int{}
	for i, r := range rules {
		names[r.Name] = i
	}
	p := &grammar.Program{Rules: rules, Names: names, Start: 0}
	if idx, ok := names["_space_"]; ok {
		p.Space = &idx
	}
	return p
}

func runEval(instr inst.Instruction, p *grammar.Program, input string) (*Env, bool) {
	e := NewEnv(p, nil, input, Options{})
	ok := Eval(instr, e)
	return e, ok
}

func TestEvalSq(t *testing.T) {
	p := newProgram()
	e, ok := runEval(&inst.Sq{Literal: "abc"}, p, "abcdef")
	if !ok || e.Pos() != 3 {
		t.Fatalf("want match consuming 3, got ok=%v pos=%d", ok, e.Pos())
	}

	e, ok = runEval(&inst.Sq{Literal: "abc"}, p, "abz")
	if ok || e.Pos() != 0 {
		t.Fatalf("want failure restoring cursor to 0, got ok=%v pos=%d", ok, e.Pos())
	}

	e, ok = runEval(&inst.Sq{ICase: true, Literal: "ABC"}, p, "aBc")
	if !ok || e.Pos() != 3 {
		t.Fatalf("want case-insensitive match, got ok=%v pos=%d", ok, e.Pos())
	}
}

func TestEvalChs(t *testing.T) {
	digits := &inst.Chs{Min: 1, Max: 4, Ranges: []inst.Range{{Lo: '0', Hi: '9'}}}
	e, ok := runEval(digits, newProgram(), "123abc")
	if !ok || e.Pos() != 3 {
		t.Fatalf("want 3 digits consumed, got ok=%v pos=%d", ok, e.Pos())
	}

	e, ok = runEval(digits, newProgram(), "abc")
	if ok || e.Pos() != 0 {
		t.Fatalf("want failure, cursor restored, got ok=%v pos=%d", ok, e.Pos())
	}

	neg := &inst.Chs{Neg: true, Min: 1, Max: 0, Ranges: []inst.Range{{Lo: ',', Hi: ','}, {Lo: '\n', Hi: '\n'}}}
	e, ok = runEval(neg, newProgram(), "hello, world")
	if !ok || e.Pos() != 5 {
		t.Fatalf("want negated class stopping before comma, got ok=%v pos=%d", ok, e.Pos())
	}
}

func TestEvalRepProgressGuard(t *testing.T) {
	// A rep over a zero-length-matching child must stop after one
	// iteration rather than loop forever.
	zeroLen := &inst.Chs{Min: 0, Max: 0, Ranges: []inst.Range{{Lo: 'z', Hi: 'z'}}}
	rep := &inst.Rep{Min: 0, Max: 0, Child: zeroLen}
	e, ok := runEval(rep, newProgram(), "abc")
	if !ok || e.Pos() != 0 {
		t.Fatalf("want success at pos 0, got ok=%v pos=%d", ok, e.Pos())
	}
}

func TestEvalPre(t *testing.T) {
	abc := &inst.Sq{Literal: "a"}

	e, ok := runEval(&inst.Pre{Sign: '&', Child: abc}, newProgram(), "abc")
	if !ok || e.Pos() != 0 {
		t.Fatalf("&a on 'abc': want success, cursor unmoved, got ok=%v pos=%d", ok, e.Pos())
	}

	e, ok = runEval(&inst.Pre{Sign: '!', Child: abc}, newProgram(), "zzz")
	if !ok || e.Pos() != 0 {
		t.Fatalf("!a on 'zzz': want success, cursor unmoved, got ok=%v pos=%d", ok, e.Pos())
	}

	e, ok = runEval(&inst.Pre{Sign: '~', Child: abc}, newProgram(), "zzz")
	if !ok || e.Pos() != 1 {
		t.Fatalf("~a on 'zzz': want success consuming one codepoint, got ok=%v pos=%d", ok, e.Pos())
	}

	e, ok = runEval(&inst.Pre{Sign: '~', Child: abc}, newProgram(), "abc")
	if ok || e.Pos() != 0 {
		t.Fatalf("~a on 'abc': want failure, got ok=%v pos=%d", ok, e.Pos())
	}
}

func TestEvalSeqFaultTracking(t *testing.T) {
	// month = [0-9]*2: a partial single-digit match records a fault at
	// the point the second digit was expected, since it is the
	// terminal matcher itself (not the enclosing SEQ) that still has
	// the pre-rollback position in hand.
	month := &inst.Chs{Min: 2, Max: 2, Ranges: []inst.Range{{Lo: '0', Hi: '9'}}}
	dash := &inst.Sq{Literal: "-"}
	seq := &inst.Seq{Min: 1, Max: 1, Children: []inst.Instruction{month, dash}}

	e, ok := runEval(seq, newProgram(), "4-")
	if ok {
		t.Fatalf("want failure: month needs two digits")
	}
	if e.faultPos != 1 {
		t.Fatalf("want fault recorded at pos 1 (one digit matched before failing), got faultPos=%d", e.faultPos)
	}

	seq2 := &inst.Seq{Min: 1, Max: 1, Children: []inst.Instruction{
		&inst.Sq{Literal: "x"}, month, dash,
	}}
	e, ok = runEval(seq2, newProgram(), "x4-")
	if ok {
		t.Fatalf("want failure: month still needs two digits")
	}
	if e.faultPos != 2 {
		t.Fatalf("want fault recorded at pos 2 (after 'x' and one digit consumed), got %d", e.faultPos)
	}
}

// TestEvalSeqFaultTrackingOnImmediateMismatch covers the case the
// above test doesn't: a terminal that fails on its very first
// codepoint (no progress of its own) after earlier siblings in the
// same SEQ iteration already advanced the cursor. The fault must
// still land at the post-sibling position, not at 0.
func TestEvalSeqFaultTrackingOnImmediateMismatch(t *testing.T) {
	seq := &inst.Seq{Min: 1, Max: 1, Children: []inst.Instruction{
		&inst.Sq{Literal: "x"}, &inst.Sq{Literal: "y"},
	}}
	e, ok := runEval(seq, newProgram(), "xz")
	if ok {
		t.Fatalf("want failure: 'z' != 'y'")
	}
	if e.faultPos != 1 {
		t.Fatalf("want fault recorded at pos 1 (after 'x' consumed, before the mismatched 'y'), got %d", e.faultPos)
	}
	if e.faultExp.String() != "'y'" {
		t.Fatalf("want fault_exp 'y', got %s", e.faultExp.String())
	}
}

// TestEvalDqRecordsFault exercises the same contract for DQ, which
// previously never called RecordFault at all.
func TestEvalDqRecordsFault(t *testing.T) {
	e, ok := runEval(&inst.Dq{Literal: "a b"}, newProgram(), "a   z")
	if ok {
		t.Fatalf("want failure: 'z' != 'b'")
	}
	if e.faultPos != e.Pos() {
		t.Fatalf("want fault recorded at the post-whitespace-skip position %d, got %d", e.Pos(), e.faultPos)
	}
}

func TestEvalAltGuardSkipsWrongFirstChar(t *testing.T) {
	alt := &inst.Alt{
		Children: []inst.Instruction{
			&inst.Sq{Literal: "cat"},
			&inst.Sq{Literal: "dog"},
		},
		Guards: []inst.Guard{
			{Active: true, Char: 'c'},
			{Active: true, Char: 'd'},
		},
	}
	e, ok := runEval(alt, newProgram(), "dog")
	if !ok || e.Pos() != 3 {
		t.Fatalf("want 'dog' branch to match via guard, got ok=%v pos=%d", ok, e.Pos())
	}
}

func TestEvalDqSkipsWhitespaceAndKeepsProgressOnFailure(t *testing.T) {
	dq := &inst.Dq{Literal: "a b"}
	e, ok := runEval(dq, newProgram(), "a   bc")
	if !ok || e.Pos() != 5 {
		t.Fatalf("want 'a   b' consumed (5 codepoints), got ok=%v pos=%d", ok, e.Pos())
	}

	dq2 := &inst.Dq{Literal: "a b"}
	e, ok = runEval(dq2, newProgram(), "a   z")
	if ok {
		t.Fatalf("want failure: 'z' != 'b'")
	}
	if e.Pos() == 0 {
		t.Fatalf("want the whitespace skip before the failing literal to survive, cursor should be > 0, got %d", e.Pos())
	}
}

func TestIDLeafBranchElision(t *testing.T) {
	// lowercase rule, single letter match: elided into a Leaf by the
	// zero-children path.
	letter := grammar.Rule{Name: "letter", Body: &inst.Chs{Min: 1, Max: 1, Ranges: []inst.Range{{Lo: 'a', Hi: 'z'}}}}
	p := newProgram(letter)
	e, ok := runEval(&inst.ID{Idx: 0, Name: "letter"}, p, "x")
	if !ok || len(e.stack) != 1 {
		t.Fatalf("want a single ptree node, got ok=%v stack=%v", ok, e.stack)
	}
	if diff := cmp.Diff(ptree.Leaf("letter", "x"), e.stack[0]); diff != "" {
		t.Fatalf("leaf mismatch (-want +got):\n%s", diff)
	}

	// underscore-prefixed rule: never appears in the tree.
	hidden := grammar.Rule{Name: "_skip", Body: &inst.Chs{Min: 1, Max: 1, Ranges: []inst.Range{{Lo: 'a', Hi: 'z'}}}}
	p2 := newProgram(hidden)
	e, ok = runEval(&inst.ID{Idx: 0, Name: "_skip"}, p2, "x")
	if !ok || len(e.stack) != 0 {
		t.Fatalf("want no ptree node for an underscore rule, got ok=%v stack=%v", ok, e.stack)
	}

	// capital rule name: always a Branch, even with a single child.
	inner := grammar.Rule{Name: "item", Body: &inst.Chs{Min: 1, Max: 1, Ranges: []inst.Range{{Lo: 'a', Hi: 'z'}}}}
	outer := grammar.Rule{Name: "Row", Body: &inst.ID{Idx: 0, Name: "item"}}
	p3 := newProgram(inner, outer)
	e, ok = runEval(&inst.ID{Idx: 1, Name: "Row"}, p3, "x")
	if !ok || len(e.stack) != 1 {
		t.Fatalf("want exactly one node on stack, got ok=%v stack=%v", ok, e.stack)
	}
	want := ptree.Branch("Row", []ptree.Node{ptree.Leaf("item", "x")})
	if diff := cmp.Diff(want, e.stack[0]); diff != "" {
		t.Fatalf("Row ptree mismatch (-want +got):\n%s", diff)
	}

	// capital rule name whose body matches without pushing any child
	// of its own (no nested ID call): still a Branch, with empty
	// children, never collapsed into a Leaf.
	direct := grammar.Rule{Name: "Row", Body: &inst.Chs{Min: 1, Max: 1, Ranges: []inst.Range{{Lo: 'a', Hi: 'z'}}}}
	p4 := newProgram(direct)
	e, ok = runEval(&inst.ID{Idx: 0, Name: "Row"}, p4, "x")
	if !ok || len(e.stack) != 1 {
		t.Fatalf("want exactly one node on stack, got ok=%v stack=%v", ok, e.stack)
	}
	wantEmptyBranch := ptree.Branch("Row", []ptree.Node{})
	if diff := cmp.Diff(wantEmptyBranch, e.stack[0]); diff != "" {
		t.Fatalf("capital zero-children ptree mismatch (-want +got):\n%s", diff)
	}
}

func TestExtSame(t *testing.T) {
	// fence = open close <same open> — a minimal matched-delimiter
	// grammar expressed directly as instructions.
	open := &inst.Chs{Min: 1, Max: 1, Ranges: []inst.Range{{Lo: 'a', Hi: 'z'}}}
	body := &inst.Seq{Min: 1, Max: 1, Children: []inst.Instruction{
		&inst.ID{Idx: 1, Name: "open"},
		&inst.Extn{Spec: "same open"},
	}}
	openRule := grammar.Rule{Name: "fence", Body: body}
	innerOpen := grammar.Rule{Name: "open", Body: open}
	p := newProgram(openRule, innerOpen)

	e, ok := runEval(&inst.ID{Idx: 0, Name: "fence"}, p, "aa")
	if !ok || e.Pos() != 2 {
		t.Fatalf("want 'aa' to satisfy <same open>, got ok=%v pos=%d", ok, e.Pos())
	}

	e, ok = runEval(&inst.ID{Idx: 0, Name: "fence"}, p, "ab")
	if ok {
		t.Fatalf("want 'ab' to fail <same open>")
	}
}

func TestExtInfix(t *testing.T) {
	// Flat operand/operator list: num "add_1__"(+) num "mul_2__"(*) num,
	// folded by binding power into (add num (mul num num)); the fold
	// label is the operator rule's name with its binding-power suffix
	// stripped.
	num := func(text string) ptree.Node { return ptree.Leaf("num", text) }
	plus := ptree.Leaf("add_1__", "+")
	star := ptree.Leaf("mul_2__", "*")

	e := NewEnv(newProgram(), nil, "", Options{})
	mark := e.Mark()
	e.Push(num("1"))
	e.Push(plus)
	e.Push(num("2"))
	e.Push(star)
	e.Push(num("3"))
	e.ruleMarks = append(e.ruleMarks, mark)

	if !extInfix(e, []string{"infix"}) {
		t.Fatalf("infix extension should always succeed")
	}
	if len(e.stack) != 1 {
		t.Fatalf("want one folded node, got %d", len(e.stack))
	}
	want := ptree.Branch("add", []ptree.Node{
		num("1"),
		ptree.Branch("mul", []ptree.Node{num("2"), num("3")}),
	})
	if diff := cmp.Diff(want, e.stack[0]); diff != "" {
		t.Fatalf("infix fold mismatch (-want +got):\n%s", diff)
	}

	// A second pass over the now-single-child slot is a no-op.
	mark2 := e.Mark() - 1
	if !extInfix(&Env{Program: newProgram(), stack: e.stack, ruleMarks: []int{mark2}}, []string{"infix"}) {
		t.Fatalf("idempotent infix pass should still report success")
	}
}

func TestParseEndToEnd(t *testing.T) {
	// Date = year '-' month '-' day; year=[0-9]*4; month=[0-9]*2; day=[0-9]*2
	digits := func(n int) inst.Instruction {
		return &inst.Chs{Min: n, Max: n, Ranges: []inst.Range{{Lo: '0', Hi: '9'}}}
	}
	year := grammar.Rule{Name: "year", Body: digits(4)}
	month := grammar.Rule{Name: "month", Body: digits(2)}
	day := grammar.Rule{Name: "day", Body: digits(2)}
	date := grammar.Rule{Name: "Date", Body: &inst.Seq{Min: 1, Max: 1, Children: []inst.Instruction{
		&inst.ID{Idx: 1, Name: "year"},
		&inst.Sq{Literal: "-"},
		&inst.ID{Idx: 2, Name: "month"},
		&inst.Sq{Literal: "-"},
		&inst.ID{Idx: 3, Name: "day"},
	}}}
	p := newProgram(date, year, month, day)

	result, _, err := Parse(p, nil, "2021-04-05", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ptree.Branch("Date", []ptree.Node{
		ptree.Leaf("year", "2021"),
		ptree.Leaf("month", "04"),
		ptree.Leaf("day", "05"),
	})
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("Date ptree mismatch (-want +got):\n%s", diff)
	}

	_, _, err = Parse(p, nil, "2021-4-05 xxx", Options{})
	if err == nil {
		t.Fatalf("want a reported failure for a single-digit month")
	}
	pf, ok := err.(*verr.ParseFailure)
	if !ok {
		t.Fatalf("want a *error.ParseFailure, got %T", err)
	}
	if pf.Rule != "month" {
		t.Fatalf("want fault rule 'month', got %q", pf.Rule)
	}
}
