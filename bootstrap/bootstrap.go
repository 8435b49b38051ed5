// Package bootstrap hand-builds the pPEG grammar-of-grammars: the
// program that lets Compile turn grammar source text into a Program
// for any other grammar, including grammar source text itself (a
// grammar compiles grammar text the same way it compiles any other
// text).
//
// Grammar is not parsed from Source at package-init time: walking
// Source through the VM would require a working compiled grammar to
// do the walking, which is exactly what this package produces. Grammar
// instead builds the ptree Source would parse into by hand, the same
// shape grammar.Compile expects from any other grammar, and compiles
// that. TestBootstrapIsSelfHosting (bootstrap_test.go) then parses
// Source through Grammar() and checks the result reproduces Grammar()
// itself, which is the actual self-hosting property.
package bootstrap

import (
	"github.com/nihei9/ppeg/grammar"
	"github.com/nihei9/ppeg/ptree"
)

// Source is the grammar-of-grammars written in its own surface
// syntax, for documentation and for the self-hosting test.
const Source = `Grammar = _ (rule _)+
rule    = id _ '=' _ alt
alt     = seq (_ '/' _ seq)*
seq     = pre (_ pre)*
pre     = prefix? rep
rep     = primary suffix?
primary = extn / '(' _ alt _ ')' / sq / dq / chs / '.' / id !(_ '=')
prefix  = [&!~]
suffix  = '*' ([0-9]+ ('..' [0-9]*)?)? / '+' / '?'
sq      = "'" (!"'" .)* "'" 'i'?
dq      = '"' (!'"' .)* '"' 'i'?
chs     = '[' (!']' .)* ']'
extn    = '<' (!'>' .)* '>'
id      = [a-zA-Z_] [a-zA-Z0-9_]*
_       = ([ \t\n\r] / '#' (![\n] .)*)*
`

func leaf(name, text string) ptree.Node { return ptree.Leaf(name, text) }

func branch(name string, children ...ptree.Node) ptree.Node {
	return ptree.Branch(name, children)
}

// id builds a reference to another rule: a zero-child call, which at
// parse time elides to Leaf("id", name) exactly as a real id token
// would.
func id(name string) ptree.Node { return leaf("id", name) }

func sq(rawWithQuotes string) ptree.Node { return leaf("sq", rawWithQuotes) }
func dq(rawWithQuotes string) ptree.Node { return leaf("dq", rawWithQuotes) }
func chs(rawWithBrackets string) ptree.Node { return leaf("chs", rawWithBrackets) }

// dot builds the '.' (any codepoint) primary: the one primary
// alternative that contributes zero ptree children of its own, so it
// surfaces to the compiler as Leaf("primary", ".") rather than eliding.
func dot() ptree.Node { return leaf("primary", ".") }

func seqOf(items ...ptree.Node) ptree.Node {
	if len(items) == 1 {
		return items[0]
	}
	return branch("seq", items...)
}

func altOf(items ...ptree.Node) ptree.Node {
	if len(items) == 1 {
		return items[0]
	}
	return branch("alt", items...)
}

func repOf(inner ptree.Node, suffix string) ptree.Node {
	if suffix == "" {
		return inner
	}
	return branch("rep", inner, leaf("suffix", suffix))
}

func preOf(sign string, inner ptree.Node) ptree.Node {
	if sign == "" {
		return inner
	}
	return branch("pre", leaf("prefix", sign), inner)
}

func ruleOf(name string, expr ptree.Node) ptree.Node {
	return branch("rule", leaf("id", name), expr)
}

// notDot builds the common "(!delim .)*" body shared by sq, dq, chs
// and extn: zero or more codepoints that aren't delim.
func notDot(delim ptree.Node) ptree.Node {
	return repOf(seqOf(preOf("!", delim), dot()), "*")
}

// grammarPtree builds the ptree Compile expects for Source: a
// "Grammar" branch of "rule" branches, each holding an id leaf naming
// the rule and the compiled expression for its body.
func grammarPtree() ptree.Node {
	// Grammar = _ (rule _)+
	grammarRule := ruleOf("Grammar", seqOf(id("_"), repOf(seqOf(id("rule"), id("_")), "+")))

	// rule = id _ '=' _ alt
	ruleRule := ruleOf("rule", seqOf(id("id"), id("_"), sq("'='"), id("_"), id("alt")))

	// alt = seq (_ '/' _ seq)*
	altRule := ruleOf("alt", seqOf(id("seq"), repOf(seqOf(id("_"), sq("'/'"), id("_"), id("seq")), "*")))

	// seq = pre (_ pre)*
	seqRule := ruleOf("seq", seqOf(id("pre"), repOf(seqOf(id("_"), id("pre")), "*")))

	// pre = prefix? rep
	preRule := ruleOf("pre", seqOf(repOf(id("prefix"), "?"), id("rep")))

	// rep = primary suffix?
	repRule := ruleOf("rep", seqOf(id("primary"), repOf(id("suffix"), "?")))

	// primary = extn / '(' _ alt _ ')' / sq / dq / chs / '.' / id !(_ '=')
	primaryRule := ruleOf("primary", altOf(
		id("extn"),
		seqOf(sq("'('"), id("_"), id("alt"), id("_"), sq("')'")),
		id("sq"),
		id("dq"),
		id("chs"),
		sq("'.'"),
		seqOf(id("id"), preOf("!", seqOf(id("_"), sq("'='")))),
	))

	// prefix = [&!~]
	prefixRule := ruleOf("prefix", chs("[&!~]"))

	// suffix = '*' ([0-9]+ ('..' [0-9]*)?)? / '+' / '?'
	countRange := seqOf(sq("'..'"), repOf(chs("[0-9]"), "*"))
	countBody := seqOf(repOf(chs("[0-9]"), "+"), repOf(countRange, "?"))
	starBranch := seqOf(sq("'*'"), repOf(countBody, "?"))
	suffixRule := ruleOf("suffix", altOf(starBranch, sq("'+'"), sq("'?'")))

	// sq = "'" (!"'" .)* "'" 'i'?
	sqRule := ruleOf("sq", seqOf(dq(`"'"`), notDot(dq(`"'"`)), dq(`"'"`), repOf(sq("'i'"), "?")))

	// dq = '"' (!'"' .)* '"' 'i'?
	dqRule := ruleOf("dq", seqOf(sq(`'"'`), notDot(sq(`'"'`)), sq(`'"'`), repOf(sq("'i'"), "?")))

	// chs = '[' (!']' .)* ']'
	chsRule := ruleOf("chs", seqOf(sq("'['"), notDot(sq("']'")), sq("']'")))

	// extn = '<' (!'>' .)* '>'
	extnRule := ruleOf("extn", seqOf(sq("'<'"), notDot(sq("'>'")), sq("'>'")))

	// id = [a-zA-Z_] [a-zA-Z0-9_]*
	idRule := ruleOf("id", seqOf(chs("[a-zA-Z_]"), repOf(chs("[a-zA-Z0-9_]"), "*")))

	// _ = ([ \t\n\r] / '#' (![\n] .)*)*
	comment := seqOf(sq("'#'"), notDot(chs(`[\n]`)))
	spaceRule := ruleOf("_", repOf(altOf(chs(`[ \t\n\r]`), comment), "*"))

	return branch("Grammar",
		grammarRule, ruleRule, altRule, seqRule, preRule, repRule, primaryRule,
		prefixRule, suffixRule, sqRule, dqRule, chsRule, extnRule, idRule, spaceRule,
	)
}

// Grammar returns the compiled grammar-of-grammars: the Program that
// turns any pPEG grammar's source text, including Source itself, into
// a Program for that grammar.
func Grammar() (*grammar.Program, error) {
	return grammar.Compile(grammarPtree(), nil)
}
