package forge

import (
	"testing"
)

func mustParseFormula(t *testing.T, text string) Expr {
	t.Helper()
	expr, err := ParseFormula(text)
	if err != nil {
		t.Fatalf("ParseFormula(%q) failed: %v", text, err)
	}
	return expr
}

func TestParseCanonicalRendering(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"=1+2*3", "1+2*3"},
		{"1+2*3", "1+2*3"},
		{"(1+2)*3", "(1+2)*3"},
		{"2^3^2", "2^3^2"},
		{"a.b+c", "a.b+c"},
		{"SUM(x,y)", "SUM(x,y)"},
		{"sum( x , y )", "SUM(x,y)"},
		{"x[3]", "x[3]"},
		{"orders.amount[0]", "orders.amount[0]"},
		{"[1,2,3]", "[1,2,3]"},
		{"10%", "10%"},
		{"-x^2", "-x^2"},
		{"a==b", "a=b"},
		{"a!=b", "a<>b"},
		{"x <> y", "x<>y"},
		{"TRUE", "TRUE"},
		{"true", "TRUE"},
		{"1e3", "1000"},
		{"\"a\"&\"b\"", "\"a\"&\"b\""},
		{"\"say \"\"hi\"\"\"", "\"say \"\"hi\"\"\""},
		{"IF(a>b,a,b)", "IF(a>b,a,b)"},
		{"PI()", "PI()"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr := mustParseFormula(t, tt.input)
			if got := expr.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseReparseStable(t *testing.T) {
	// parsing the canonical rendering must yield the same rendering
	formulas := []string{
		"=base*(1-rate)",
		"=SUM(orders.amount)/COUNT(orders.amount)",
		"=[1,2,3]",
		"=a.b[2]+10%",
	}
	for _, f := range formulas {
		first := mustParseFormula(t, f).String()
		second := mustParseFormula(t, first).String()
		if first != second {
			t.Errorf("%q: rendering not stable: %q then %q", f, first, second)
		}
	}
}

func TestParsePrecedence(t *testing.T) {
	// + binds looser than *
	expr := mustParseFormula(t, "1+2*3")
	bin, ok := expr.(*BinaryNode)
	if !ok || bin.Op != BinOpAdd {
		t.Fatalf("expected + at the top of 1+2*3, got %T", expr)
	}
	if right, ok := bin.Right.(*BinaryNode); !ok || right.Op != BinOpMultiply {
		t.Errorf("expected * on the right of +")
	}

	// comparison binds loosest
	expr = mustParseFormula(t, "a&b=c")
	bin, ok = expr.(*BinaryNode)
	if !ok || bin.Op != BinOpEqual {
		t.Fatalf("expected = at the top of a&b=c, got %T", expr)
	}
	if left, ok := bin.Left.(*BinaryNode); !ok || left.Op != BinOpConcat {
		t.Errorf("expected & on the left of =")
	}

	// ^ binds tighter than *
	expr = mustParseFormula(t, "2*3^2")
	bin, ok = expr.(*BinaryNode)
	if !ok || bin.Op != BinOpMultiply {
		t.Fatalf("expected * at the top of 2*3^2, got %T", expr)
	}
}

func TestParsePowerRightAssociative(t *testing.T) {
	expr := mustParseFormula(t, "2^3^2")
	bin, ok := expr.(*BinaryNode)
	if !ok || bin.Op != BinOpPower {
		t.Fatalf("expected ^ at the top, got %T", expr)
	}
	if _, ok := bin.Right.(*BinaryNode); !ok {
		t.Errorf("expected the right operand to be the nested power")
	}
	if _, ok := bin.Left.(*NumberNode); !ok {
		t.Errorf("expected the left operand to be a number")
	}
}

func TestParseReferenceForms(t *testing.T) {
	expr := mustParseFormula(t, "orders.amount")
	ref, ok := expr.(*ReferenceNode)
	if !ok {
		t.Fatalf("expected a reference, got %T", expr)
	}
	if ref.Table != "orders" || ref.Name != "amount" {
		t.Errorf("got %q.%q, want orders.amount", ref.Table, ref.Name)
	}

	expr = mustParseFormula(t, "amount")
	ref, ok = expr.(*ReferenceNode)
	if !ok {
		t.Fatalf("expected a reference, got %T", expr)
	}
	if ref.Table != "" || ref.Name != "amount" {
		t.Errorf("got %q.%q, want bare amount", ref.Table, ref.Name)
	}
}

func TestParseInvalidFormulas(t *testing.T) {
	invalidFormulas := []string{
		"=",
		"SUM(1,",
		"x[",
		"x[1",
		"1+(2",
		"1,2",
		"5[1]",
		"(a)[1]",
		"SUM 1",
	}

	for _, formula := range invalidFormulas {
		t.Run(formula, func(t *testing.T) {
			if _, err := ParseFormula(formula); err == nil {
				t.Errorf("expected a parse error for %q", formula)
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := ParseFormula("=1+@")
	if err == nil {
		t.Fatal("expected an error")
	}
	// the '=' marker is stripped before lexing, positions are body-relative
	if err.Pos != 2 {
		t.Errorf("got pos %d, want 2", err.Pos)
	}
}
