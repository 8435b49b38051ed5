// Package ppeg compiles pPEG grammar text into a reusable Parser and
// runs it against input to produce a ptree: a portable, self-hosting
// PEG grammar compiler and parser VM. A caller normally only needs
// this package; grammar, vm, inst, ptree and bootstrap exist as
// separate packages so the compiler, VM and instruction model can
// each be tested and reused independently.
package ppeg

import (
	"github.com/nihei9/ppeg/bootstrap"
	verr "github.com/nihei9/ppeg/error"
	"github.com/nihei9/ppeg/grammar"
	"github.com/nihei9/ppeg/ptree"
	"github.com/nihei9/ppeg/vm"
)

// Extension is a host-callable a grammar invokes with a <name args...>
// instruction.
type Extension = vm.Extension

// Options controls a single Parse call. The zero value parses with
// tracing off, no short-circuit on partial consumption, and the
// default recursion bound (vm.DefaultMaxDepth).
type Options struct {
	// Trace enables a step trace for every rule invocation, retrieved
	// afterwards with Parser.LastTrace.
	Trace bool
	// TraceRule, if non-empty, restricts tracing to invocations of the
	// named rule and anything it calls.
	TraceRule string
	// Short returns the root ptree on partial consumption instead of a
	// "fell short" *error.ParseFailure.
	Short bool
	// MaxDepth overrides vm.DefaultMaxDepth when non-zero.
	MaxDepth int
}

func (o *Options) toVM() vm.Options {
	if o == nil {
		return vm.Options{}
	}
	return vm.Options{
		Trace:     o.Trace,
		TraceRule: o.TraceRule,
		Short:     o.Short,
		MaxDepth:  o.MaxDepth,
	}
}

// Parser is a compiled grammar. Its grammar.Program is immutable and
// each Parse call runs its own vm.Env, but Parse also stores its trace
// on the Parser for LastTrace, so concurrent Parse calls on one Parser
// are not synchronised.
type Parser struct {
	program *grammar.Program
	exts    map[string]Extension
	lastTr  string
}

// Compile parses grammarText against the pPEG grammar-of-grammars
// (bootstrap.Grammar), compiles the result with grammar.Compile, and
// returns a Parser for it. exts registers the extension names the
// grammar is allowed to invoke via <name ...>; a nil map allows only
// the built-ins (?, same, infix).
func Compile(grammarText string, exts map[string]Extension, opts *Options) (*Parser, error) {
	known := func(name string) bool {
		_, ok := exts[name]
		return ok
	}

	bg, err := bootstrap.Grammar()
	if err != nil {
		return nil, err
	}

	tree, _, err := vm.Parse(bg, nil, grammarText, vm.Options{})
	if err != nil {
		return nil, &verr.GrammarError{Cause: err}
	}

	program, err := grammar.Compile(tree, known)
	if err != nil {
		return nil, err
	}

	return &Parser{program: program, exts: exts}, nil
}

// Parse runs p against input and returns the resulting ptree. A parse
// failure is returned as *error.ParseFailure; a recursion-depth abort
// is returned as *error.GrammarError.
func (p *Parser) Parse(input string, opts *Options) (ptree.Node, error) {
	result, trace, err := vm.Parse(p.program, p.exts, input, opts.toVM())
	p.lastTr = trace
	if err != nil {
		return ptree.Node{}, err
	}
	return result, nil
}

// LastTrace returns the step trace accumulated by the most recent
// Parse call; it is empty when that call traced nothing (neither
// Options.Trace nor a <?> extension was active).
func (p *Parser) LastTrace() string {
	return p.lastTr
}

// RuleNames returns every rule name p's grammar defines, in
// declaration order.
func (p *Parser) RuleNames() []string {
	names := make([]string, len(p.program.Rules))
	for i, r := range p.program.Rules {
		names[i] = r.Name
	}
	return names
}
