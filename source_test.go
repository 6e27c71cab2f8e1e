package forge

import (
	"strings"
	"testing"
)

func mustModel(t *testing.T, src string) *Model {
	t.Helper()
	m, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return m
}

func TestParseModelBasics(t *testing.T) {
	m := mustModel(t, `
_version: 1
sales:
  region: [North, South, North]
  amount: [100, 50, 120]
  double: "=amount*2"
rate:
  value: 0.25
  unit: ratio
summary:
  total:
    formula: "=SUM(sales.amount)"
  label:
    value: big
`)

	if len(m.Tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(m.Tables))
	}
	sales := m.Tables[0]
	if sales.Name != "sales" {
		t.Errorf("got table %q, want sales", sales.Name)
	}
	wantCols := []string{"region", "amount", "double"}
	for i, name := range wantCols {
		if sales.Columns[i].Name != name {
			t.Errorf("column %d: got %q, want %q", i, sales.Columns[i].Name, name)
		}
	}

	region, _ := sales.Column("region")
	if region.Data.Type != TypeText || region.Data.Len() != 3 {
		t.Errorf("region: got type %v len %d", region.Data.Type, region.Data.Len())
	}
	amount, _ := sales.Column("amount")
	if amount.Data.Type != TypeNumber {
		t.Errorf("amount: got type %v, want Number", amount.Data.Type)
	}
	if amount.Data.Values[2] != 120.0 {
		t.Errorf("amount[2]: got %v, want 120", amount.Data.Values[2])
	}

	double, _ := sales.Column("double")
	if !double.IsFormula() || double.Expr == nil {
		t.Errorf("double should be a parsed formula column")
	}
	if double.Formula != "=amount*2" {
		t.Errorf("double formula: got %q", double.Formula)
	}

	rate, ok := m.Scalar("rate")
	if !ok || rate.Value != 0.25 || rate.Unit != "ratio" {
		t.Errorf("rate: got %+v", rate)
	}

	total, ok := m.Scalar("summary.total")
	if !ok || !total.IsFormula() {
		t.Errorf("summary.total should be a formula scalar")
	}
	label, ok := m.Scalar("summary.label")
	if !ok || label.Value != "big" {
		t.Errorf("summary.label: got %+v", label)
	}
}

func TestParseRichColumn(t *testing.T) {
	m := mustModel(t, `
costs:
  monthly:
    value: [10, 20]
    unit: USD
    notes: per seat
  yearly:
    formula: "=monthly*12"
    unit: USD
`)
	costs := m.Tables[0]
	monthly, _ := costs.Column("monthly")
	if monthly.Unit != "USD" || monthly.Notes != "per seat" {
		t.Errorf("monthly metadata: got unit %q notes %q", monthly.Unit, monthly.Notes)
	}
	if monthly.Data == nil || monthly.Data.Values[1] != 20.0 {
		t.Errorf("monthly data not parsed")
	}
	yearly, _ := costs.Column("yearly")
	if !yearly.IsFormula() || yearly.Unit != "USD" {
		t.Errorf("yearly: got %+v", yearly)
	}
}

func TestParseDateColumn(t *testing.T) {
	m := mustModel(t, `
periods:
  start: ["2025-01-15", "2025-02"]
`)
	start, _ := m.Tables[0].Column("start")
	if start.Data.Type != TypeDate {
		t.Fatalf("got type %v, want Date", start.Data.Type)
	}
	// day serials on the 1899-12-30 epoch
	if start.Data.Values[0] != 45672.0 {
		t.Errorf("2025-01-15: got %v, want 45672", start.Data.Values[0])
	}
	if start.Data.Values[1] != 45689.0 {
		t.Errorf("2025-02: got %v, want 45689", start.Data.Values[1])
	}
}

func TestParseTypeMismatch(t *testing.T) {
	_, err := Parse([]byte(`
bad:
  mixed: [100, "x", true]
`))
	if err == nil {
		t.Fatal("expected a type mismatch error")
	}
	if !strings.Contains(err.Error(), "row 1") || !strings.Contains(err.Error(), "expected Number, found Text") {
		t.Errorf("got %q", err.Error())
	}
}

func TestParseNullRejected(t *testing.T) {
	_, err := Parse([]byte(`
bad:
  values: [1, null, 3]
`))
	if err == nil {
		t.Fatal("expected an error for a null element")
	}
	if !strings.Contains(err.Error(), "null values not allowed") {
		t.Errorf("got %q", err.Error())
	}
}

func TestParseCollectsAllErrors(t *testing.T) {
	_, err := Parse([]byte(`
one:
  a: [1, "x"]
two:
  b: hello
`))
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "one.a") || !strings.Contains(msg, "two.b") {
		t.Errorf("expected both errors reported, got %q", msg)
	}
}

func TestParseFormulaWithoutMarker(t *testing.T) {
	_, err := Parse([]byte(`
s:
  formula: "SUM(x)"
  value: null
`))
	if err == nil || !strings.Contains(err.Error(), "must start with '='") {
		t.Errorf("got %v", err)
	}
}

func TestParseSkipsUnderscoreKeys(t *testing.T) {
	m := mustModel(t, `
_meta:
  author: someone
t:
  x: [1]
  _metadata:
    source: somewhere
`)
	if len(m.Tables) != 1 || len(m.Scalars) != 0 {
		t.Fatalf("got %d tables, %d scalars", len(m.Tables), len(m.Scalars))
	}
	if _, ok := m.Tables[0].Column("_metadata"); ok {
		t.Error("_metadata should not become a column")
	}
}

func TestParseDeclarationOrderKept(t *testing.T) {
	m := mustModel(t, `
z:
  c: [1]
a:
  b: [2]
`)
	if m.Tables[0].Name != "z" || m.Tables[1].Name != "a" {
		t.Errorf("declaration order not kept: %q, %q", m.Tables[0].Name, m.Tables[1].Name)
	}
}
