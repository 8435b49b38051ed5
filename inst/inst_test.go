package inst

import "testing"

func TestSqString(t *testing.T) {
	if got, want := (&Sq{Literal: "abc"}).String(), `'abc'`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if got, want := (&Sq{Literal: "abc", ICase: true}).String(), `'abc'i`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestChsString(t *testing.T) {
	c := &Chs{Min: 1, Max: 1, Ranges: []Range{{Lo: '0', Hi: '9'}}}
	if got, want := c.String(), `[0-9]`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	c.Min, c.Max = 2, 2
	if got, want := c.String(), `[0-9]*2`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	c.Neg = true
	if got, want := c.String(), `~[0-9]*2`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestRepSuffixVariants(t *testing.T) {
	cases := []struct {
		min, max int
		want     string
	}{
		{0, 0, "*"},
		{1, 0, "+"},
		{0, 1, "?"},
		{3, 3, "*3"},
		{2, 0, "*2.."},
		{2, 5, "*2..5"},
	}
	for _, c := range cases {
		rep := &Rep{Min: c.min, Max: c.max, Child: &Sq{Literal: "x"}}
		if got := rep.String(); got != "'x'"+c.want {
			t.Fatalf("Rep{%d,%d}.String() = %s, want 'x'%s", c.min, c.max, got, c.want)
		}
	}
}

func TestPreStringParenthesisesAltAndSeq(t *testing.T) {
	alt := &Alt{Children: []Instruction{&Sq{Literal: "a"}, &Sq{Literal: "b"}}}
	pre := &Pre{Sign: '!', Child: alt}
	if got, want := pre.String(), `!('a' / 'b')`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	id := &ID{Name: "x"}
	if got, want := (&Pre{Sign: '&', Child: id}).String(), `&x`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestAltString(t *testing.T) {
	alt := &Alt{Children: []Instruction{&ID{Name: "a"}, &ID{Name: "b"}}}
	if got, want := alt.String(), `(a / b)`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestExtnString(t *testing.T) {
	if got, want := (&Extn{Spec: "same open"}).String(), `<same open>`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
