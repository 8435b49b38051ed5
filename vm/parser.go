package vm

import (
	"fmt"

	verr "github.com/nihei9/ppeg/error"
	"github.com/nihei9/ppeg/grammar"
	"github.com/nihei9/ppeg/inst"
	"github.com/nihei9/ppeg/ptree"
)

// Parse evaluates program's start rule against input and returns the
// resulting ptree, the accumulated step-trace text (empty unless
// opts requested one), and an error: *error.GrammarError for a
// recursion-depth abort, or *error.ParseFailure for a reported parse
// failure.
func Parse(program *grammar.Program, exts map[string]Extension, input string, opts Options) (result ptree.Node, trace string, err error) {
	e := NewEnv(program, exts, input, opts)

	defer func() {
		if r := recover(); r != nil {
			ge, ok := r.(*verr.GrammarError)
			if !ok {
				panic(r)
			}
			err = ge
		}
	}()

	start := program.Rules[program.Start]
	ok := Eval(&inst.ID{Idx: program.Start, Name: start.Name}, e)
	trace = e.Output()

	if len(e.input) == 0 {
		if ok && len(e.stack) == 1 {
			result = e.stack[0]
			return
		}
		err = &verr.ParseFailure{Kind: verr.EmptyInput, Report: "empty input string"}
		return
	}

	if !ok {
		fp := e.faultPos
		if fp < 0 {
			fp = 0
		}
		line, col := lineCol(e.input, fp)
		expected := ""
		if e.faultExp != nil {
			expected = e.faultExp.String()
		}
		report := fmt.Sprintf("In rule: %s, expected: %s, failed at line: %d.%d\n%s\n%s",
			e.faultRule, expected, line, col, lineText(e.input, fp), caretLine(col))
		err = &verr.ParseFailure{
			Kind:     verr.Failed,
			Rule:     e.faultRule,
			Expected: expected,
			Line:     line,
			Col:      col,
			Report:   report,
		}
		return
	}

	if len(e.stack) != 1 {
		err = &verr.ParseFailure{Report: fmt.Sprintf("bad tree: parse produced %d ptree roots, expected exactly 1", len(e.stack))}
		return
	}

	if e.pos < len(e.input) {
		if opts.Short {
			result = e.stack[0]
			return
		}
		line, col := lineCol(e.input, e.peak)
		report := fmt.Sprintf("Fell short at line: %d.%d\n%s\n%s",
			line, col, lineText(e.input, e.peak), caretLine(col))
		err = &verr.ParseFailure{Kind: verr.FellShort, Line: line, Col: col, Report: report}
		return
	}

	result = e.stack[0]
	return
}
