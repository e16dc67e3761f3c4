// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package expr

import "testing"

func TestIPMatching(t *testing.T) {
	cases := []struct {
		expr, value string
		want        bool
	}{
		{"any", "10.0.0.1", true},
		{"ANY", "10.0.0.1", true},
		{"10.0.0.1", "10.0.0.1", true},
		{"10.0.0.1", "10.0.0.2", false},
		{"10.0.0.1 OR 10.0.0.2", "10.0.0.2", true},
		{"10.0.0.1 OR 10.0.0.2", "10.0.0.3", false},
		{"NOT 10.0.0.1", "10.0.0.2", true},
		{"NOT NOT 10.0.0.1", "10.0.0.1", true},
	}
	for _, c := range cases {
		got := Compile(c.expr).Evaluate(c.value, FieldIP)
		if got != c.want {
			t.Errorf("Compile(%q).Evaluate(%q, ip) = %v, want %v", c.expr, c.value, got, c.want)
		}
	}
}

func TestPortMatching(t *testing.T) {
	cases := []struct {
		expr, value string
		want        bool
	}{
		{"any", "80", true},
		{"80", "80", true},
		{"80", "443", false},
		{"80 OR 443", "443", true},
		{"80 OR 443", "22", false},
		{"not-a-number", "80", false},
		{"80", "not-a-number", false},
	}
	for _, c := range cases {
		got := Compile(c.expr).Evaluate(c.value, FieldPort)
		if got != c.want {
			t.Errorf("Compile(%q).Evaluate(%q, port) = %v, want %v", c.expr, c.value, got, c.want)
		}
	}
}

func TestStringMatching(t *testing.T) {
	cases := []struct {
		expr, value string
		want        bool
	}{
		{"", "anything", true},
		{"admin", "user=ADMIN&pass=x", true},
		{"(admin AND password) OR root", "user=admin&pass=password", true},
		{"(admin AND password) OR root", "user=guest", false},
		{"root", "user=admin&pass=password", false},
	}
	for _, c := range cases {
		got := Compile(c.expr).Evaluate(c.value, FieldString)
		if got != c.want {
			t.Errorf("Compile(%q).Evaluate(%q, string) = %v, want %v", c.expr, c.value, got, c.want)
		}
	}
}

func TestPrecedenceNotAndOr(t *testing.T) {
	// NOT binds tighter than AND, which binds tighter than OR:
	// "NOT 1.1.1.1 AND 2.2.2.2 OR 3.3.3.3" == (NOT 1.1.1.1 AND 2.2.2.2) OR 3.3.3.3
	e := Compile("NOT 1.1.1.1 AND 2.2.2.2 OR 3.3.3.3")

	if !e.Evaluate("2.2.2.2", FieldIP) {
		t.Error("expected true: NOT 1.1.1.1 is true, AND 2.2.2.2 matches")
	}
	if !e.Evaluate("3.3.3.3", FieldIP) {
		t.Error("expected true via the OR branch")
	}
	if e.Evaluate("1.1.1.1", FieldIP) {
		t.Error("expected false: NOT 1.1.1.1 is false, and 1.1.1.1 doesn't match the OR branch")
	}
}

func TestUnbalancedParenEvaluatesFalse(t *testing.T) {
	e := Compile("(admin AND password")
	if e.Evaluate("admin password", FieldString) {
		t.Error("expected unbalanced parenthesis to evaluate to false")
	}
}

func TestKeywordAbsorbedIntoLiteral(t *testing.T) {
	// "ANDROID" starts with AND but isn't delimited, so it's one literal.
	e := Compile("ANDROID")
	if !e.Evaluate("ANDROID", FieldIP) {
		t.Error("expected ANDROID to be treated as a single literal, not keyword AND + ROID")
	}
}

func TestCommutativity(t *testing.T) {
	a := Compile("1.1.1.1 AND 2.2.2.2")
	b := Compile("2.2.2.2 AND 1.1.1.1")
	if a.Evaluate("x", FieldIP) != b.Evaluate("x", FieldIP) {
		t.Error("AND should be commutative")
	}

	c := Compile("1.1.1.1 OR 2.2.2.2")
	d := Compile("2.2.2.2 OR 1.1.1.1")
	if c.Evaluate("1.1.1.1", FieldIP) != d.Evaluate("1.1.1.1", FieldIP) {
		t.Error("OR should be commutative")
	}
}

func TestCompiledExprIsReentrant(t *testing.T) {
	e := Compile("80 OR 443")
	if !e.Evaluate("80", FieldPort) {
		t.Error("first evaluation failed")
	}
	if e.Evaluate("22", FieldPort) {
		t.Error("second evaluation on the same compiled Expr should be independent")
	}
	if !e.Evaluate("443", FieldPort) {
		t.Error("third evaluation on the same compiled Expr should be independent")
	}
}

func TestString(t *testing.T) {
	e := Compile("80 OR 443")
	if e.String() != "80 OR 443" {
		t.Errorf("String() = %q, want %q", e.String(), "80 OR 443")
	}
}
