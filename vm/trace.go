package vm

import (
	"fmt"
	"strings"

	"github.com/nihei9/ppeg/inst"
)

// traceWriter accumulates step-trace lines for a single parse.
type traceWriter struct {
	b strings.Builder
}

func newTraceWriter() *traceWriter { return &traceWriter{} }

const traceRemainderWidth = 24

// emit writes one trace line for an instruction's evaluation:
// line.column, indented by depth, the instruction's rendering, and
// its outcome.
func (t *traceWriter) emit(e *Env, instr inst.Instruction, pos0 int, ok bool) {
	line, col := lineCol(e.input, pos0)
	indent := strings.Repeat("  ", len(e.ruleStack))
	switch {
	case !ok:
		fmt.Fprintf(&t.b, "%s%d.%d %s != %s\n", indent, line, col, instr.String(), previewFrom(e, pos0))
	case e.pos > pos0:
		fmt.Fprintf(&t.b, "%s%d.%d %s == %q\n", indent, line, col, instr.String(), e.Slice(pos0, e.pos))
	default:
		fmt.Fprintf(&t.b, "%s%d.%d %s => ptree\n", indent, line, col, instr.String())
	}
}

func previewFrom(e *Env, pos int) string {
	end := pos + traceRemainderWidth
	if end > e.Len() {
		end = e.Len()
	}
	if pos > end {
		return ""
	}
	return e.Slice(pos, end)
}

// Output returns the accumulated trace text.
func (e *Env) Output() string { return e.trace.b.String() }
