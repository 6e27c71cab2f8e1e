package forge

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"
)

func mustEvaluate(t *testing.T, src string) *Model {
	t.Helper()
	m := mustModel(t, src)
	if _, err := Evaluate(m); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return m
}

func columnData(t *testing.T, m *Model, table, column string) *TypedArray {
	t.Helper()
	tab, ok := m.Table(table)
	if !ok {
		t.Fatalf("no table %q", table)
	}
	col, ok := tab.Column(column)
	if !ok {
		t.Fatalf("no column %q.%q", table, column)
	}
	if col.Data == nil {
		t.Fatalf("column %q.%q not computed", table, column)
	}
	return col.Data
}

func wantNumbers(t *testing.T, got *TypedArray, want []float64) {
	t.Helper()
	if got.Len() != len(want) {
		t.Fatalf("got %d values, want %d", got.Len(), len(want))
	}
	for i, w := range want {
		n, ok := got.Values[i].(float64)
		if !ok || math.Abs(n-w) > 1e-9 {
			t.Errorf("value %d: got %v, want %v", i, got.Values[i], w)
		}
	}
}

func TestEvaluateRowWise(t *testing.T) {
	m := mustEvaluate(t, `
products:
  base_price: [100, 150, 200]
  discount_rate: [0.1, 0.15, 0.2]
  final_price: "=base_price*(1-discount_rate)"
`)
	wantNumbers(t, columnData(t, m, "products", "final_price"), []float64{90, 127.5, 160})
}

func TestEvaluateAggregateColumn(t *testing.T) {
	m := mustEvaluate(t, `
sales:
  amount: [100, 50, 120]
  total: "=SUM(amount)"
  mean: "=AVERAGE(amount)"
`)
	total, _ := m.Tables[0].Column("total")
	if !total.Aggregate {
		t.Error("total should be classified aggregate")
	}
	wantNumbers(t, total.Data, []float64{270})
	wantNumbers(t, columnData(t, m, "sales", "mean"), []float64{90})

	final, _ := m.Tables[0].Column("amount")
	if final.Aggregate {
		t.Error("literal columns are row-wise")
	}
}

func TestEvaluateScalarBroadcast(t *testing.T) {
	m := mustEvaluate(t, `
price:
  value: 10
orders:
  qty: [2, 3]
  cost: "=qty*price"
`)
	cost, _ := m.Tables[0].Column("cost")
	if cost.Aggregate {
		t.Error("cost should be row-wise")
	}
	wantNumbers(t, cost.Data, []float64{20, 30})
}

func TestEvaluateAggregateBroadcast(t *testing.T) {
	// an aggregate column broadcasts into row-wise dependents
	m := mustEvaluate(t, `
sales:
  amount: [100, 50, 150]
  total: "=SUM(amount)"
  share: "=amount/total"
`)
	wantNumbers(t, columnData(t, m, "sales", "share"), []float64{100.0 / 300, 50.0 / 300, 150.0 / 300})
}

func TestEvaluateCrossTable(t *testing.T) {
	m := mustEvaluate(t, `
orders:
  amount: [400, 600]
tax:
  due: "=SUM(orders.amount)*0.25"
`)
	wantNumbers(t, columnData(t, m, "tax", "due"), []float64{250})
}

func TestEvaluateCrossTableRowWise(t *testing.T) {
	m := mustEvaluate(t, `
a:
  x: [1, 2, 3]
b:
  y: [10, 20, 30]
  z: "=a.x+y"
`)
	wantNumbers(t, columnData(t, m, "b", "z"), []float64{11, 22, 33})
}

func TestEvaluateScalarChain(t *testing.T) {
	m := mustEvaluate(t, `
base:
  value: 5
next:
  value: null
  formula: "=base+1"
last:
  value: null
  formula: "=next*2"
`)
	last, _ := m.Scalar("last")
	if last.Value != 12.0 {
		t.Errorf("got %v, want 12", last.Value)
	}
}

func TestEvaluateDivisionByZero(t *testing.T) {
	m := mustEvaluate(t, `
t:
  num: [10, 20]
  den: [2, 0]
  ratio: "=num/den"
  other: "=num*1"
`)
	ratio := columnData(t, m, "t", "ratio")
	if ratio.Values[0] != 5.0 {
		t.Errorf("ratio[0]: got %v, want 5", ratio.Values[0])
	}
	cellErr, ok := ratio.Values[1].(*CellError)
	if !ok || cellErr.Code != ErrorCodeDiv0 {
		t.Errorf("ratio[1]: got %v, want #DIV/0!", ratio.Values[1])
	}
	// the failure is contained, the rest of the model still computes
	wantNumbers(t, columnData(t, m, "t", "other"), []float64{10, 20})
}

func TestEvaluateErrorPropagation(t *testing.T) {
	m := mustEvaluate(t, `
t:
  den: [0]
  bad: "=1/den"
  worse: "=bad+1"
`)
	worse := columnData(t, m, "t", "worse")
	cellErr, ok := worse.Values[0].(*CellError)
	if !ok || cellErr.Code != ErrorCodeDiv0 {
		t.Errorf("got %v, want the propagated #DIV/0!", worse.Values[0])
	}
}

func TestEvaluatePercentOperator(t *testing.T) {
	m := mustEvaluate(t, `
s:
  value: null
  formula: "=200*10%"
`)
	s, _ := m.Scalar("s")
	if s.Value != 20.0 {
		t.Errorf("got %v, want 20", s.Value)
	}
}

func TestEvaluateTextConcat(t *testing.T) {
	m := mustEvaluate(t, `
t:
  code: [a1, b2]
  amp: "=\"id-\"&code"
  plus: "=\"id-\"+code"
`)
	amp := columnData(t, m, "t", "amp")
	if amp.Values[0] != "id-a1" || amp.Values[1] != "id-b2" {
		t.Errorf("& concat: got %v", amp.Values)
	}
	// + concatenates when an operand is non-date text
	plus := columnData(t, m, "t", "plus")
	if plus.Values[0] != "id-a1" {
		t.Errorf("+ concat: got %v", plus.Values[0])
	}
}

func TestEvaluateCaseInsensitiveEquality(t *testing.T) {
	m := mustEvaluate(t, `
s:
  value: null
  formula: "=\"Apple\"=\"APPLE\""
`)
	s, _ := m.Scalar("s")
	if s.Value != true {
		t.Errorf("got %v, want true", s.Value)
	}
}

func TestEvaluateArrayLiteralColumn(t *testing.T) {
	m := mustEvaluate(t, `
growth:
  rates: "=[0.1, 0.2, 0.3]"
  scaled: "=rates*100"
`)
	wantNumbers(t, columnData(t, m, "growth", "rates"), []float64{0.1, 0.2, 0.3})
	wantNumbers(t, columnData(t, m, "growth", "scaled"), []float64{10, 20, 30})
}

func TestEvaluateDerivedTable(t *testing.T) {
	// a table of only formula columns takes its row count from what
	// the formulas reference
	m := mustEvaluate(t, `
base:
  x: [1, 2, 3]
derived:
  copy: "=base.x"
  scaled: "=base.x*10"
`)
	wantNumbers(t, columnData(t, m, "derived", "copy"), []float64{1, 2, 3})
	wantNumbers(t, columnData(t, m, "derived", "scaled"), []float64{10, 20, 30})
}

func TestEvaluateDerivedTableRowMismatch(t *testing.T) {
	m := mustModel(t, `
base:
  x: [1, 2, 3]
other:
  y: [1, 2]
derived:
  copy: "=base.x"
  bad: "=other.y"
`)
	errs := Validate(m)
	if len(errs) != 1 {
		t.Fatalf("got %v, want one error", errs)
	}
	me, ok := errs[0].(*ModelError)
	if !ok || me.Kind != KindShape {
		t.Errorf("got %v, want a shape error", errs[0])
	}
	if _, err := Evaluate(m); err == nil {
		t.Fatal("expected Evaluate to refuse the misaligned table")
	}
}

func TestEvaluateBracketIndex(t *testing.T) {
	m := mustEvaluate(t, `
sales:
  amount: [400, 600]
first:
  value: null
  formula: "=sales.amount[0]"
oob:
  value: null
  formula: "=sales.amount[5]"
`)
	first, _ := m.Scalar("first")
	if first.Value != 400.0 {
		t.Errorf("got %v, want 400", first.Value)
	}
	oob, _ := m.Scalar("oob")
	cellErr, ok := oob.Value.(*CellError)
	if !ok || cellErr.Code != ErrorCodeRef {
		t.Errorf("got %v, want #REF!", oob.Value)
	}
}

func TestEvaluateConditionalAggregation(t *testing.T) {
	m := mustEvaluate(t, `
sales:
  region: [North, South, North]
  amount: [100, 50, 120]
north:
  value: null
  formula: "=SUMIF(sales.region, \"North\", sales.amount)"
big:
  value: null
  formula: "=COUNTIF(sales.amount, \">=100\")"
`)
	north, _ := m.Scalar("north")
	if north.Value != 220.0 {
		t.Errorf("SUMIF: got %v, want 220", north.Value)
	}
	big, _ := m.Scalar("big")
	if big.Value != 2.0 {
		t.Errorf("COUNTIF: got %v, want 2", big.Value)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	src := `
sales:
  amount: [3, 1, 4, 1, 5]
  running: "=amount*2"
  total: "=SUM(running)"
summary:
  top:
    formula: "=MAX(sales.amount)"
`
	m1 := mustEvaluate(t, src)
	m2 := mustEvaluate(t, src)

	for _, tab := range m1.Tables {
		for _, col := range tab.Columns {
			other := columnData(t, m2, tab.Name, col.Name)
			if !reflect.DeepEqual(col.Data.Values, other.Values) {
				t.Errorf("%s.%s differs between runs", tab.Name, col.Name)
			}
		}
	}
	s1, _ := m1.Scalar("summary.top")
	s2, _ := m2.Scalar("summary.top")
	if s1.Value != s2.Value {
		t.Errorf("scalar differs between runs: %v vs %v", s1.Value, s2.Value)
	}
}

func TestEvaluateRejectsCycle(t *testing.T) {
	m := mustModel(t, `
a:
  value: null
  formula: "=b+1"
b:
  value: null
  formula: "=a+1"
`)
	if _, err := Evaluate(m); err == nil {
		t.Fatal("expected a cycle error")
	} else if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("got %q", err.Error())
	}
}

func TestEvaluateDateArithmetic(t *testing.T) {
	m := mustEvaluate(t, `
periods:
  start: ["2025-01-15"]
  next_month: "=EDATE(start, 1)"
days:
  value: null
  formula: "=DATE(2025, 3, 1)-DATE(2025, 2, 1)"
`)
	next := columnData(t, m, "periods", "next_month")
	if next.Values[0] != 45703.0 { // 2025-02-15
		t.Errorf("EDATE: got %v, want 45703", next.Values[0])
	}
	days, _ := m.Scalar("days")
	if days.Value != 28.0 {
		t.Errorf("got %v, want 28", days.Value)
	}
}

func BenchmarkEvaluate(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("sales:\n  amount: [")
	for i := 0; i < 200; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", i+1)
	}
	sb.WriteString("]\n")
	sb.WriteString("  double: \"=amount*2\"\n")
	sb.WriteString("  shifted: \"=double+amount\"\n")
	sb.WriteString("  total: \"=SUM(shifted)\"\n")
	src := []byte(sb.String())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m, err := Parse(src)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Evaluate(m); err != nil {
			b.Fatal(err)
		}
	}
}
