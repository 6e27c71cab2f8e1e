package forge

import (
	"strings"
	"testing"
)

func TestValidateCleanModel(t *testing.T) {
	m := mustModel(t, `
sales:
  amount: [1, 2]
  double: "=amount*2"
`)
	if errs := Validate(m); len(errs) != 0 {
		t.Errorf("got %v, want no errors", errs)
	}
}

func TestValidateUnresolvedReference(t *testing.T) {
	m := mustModel(t, `
t:
  a: "=nope+1"
`)
	errs := Validate(m)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	if !strings.Contains(errs[0].Error(), "unknown reference") {
		t.Errorf("got %q", errs[0].Error())
	}
}

func TestValidateCyclePath(t *testing.T) {
	m := mustModel(t, `
a:
  value: null
  formula: "=b+1"
b:
  value: null
  formula: "=c+1"
c:
  value: null
  formula: "=a+1"
`)
	errs := Validate(m)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	me, ok := errs[0].(*ModelError)
	if !ok || me.Kind != KindCircularDependency {
		t.Fatalf("got %v", errs[0])
	}
	if len(me.Cycle) != 4 || me.Cycle[0] != me.Cycle[3] {
		t.Errorf("cycle path: got %v", me.Cycle)
	}
	// the reported path is an actual cycle: each node feeds the next
	g, _ := BuildGraph(m)
	for i := 0; i+1 < len(me.Cycle); i++ {
		if !contains(g.nodes[me.Cycle[i]].Precedents, me.Cycle[i+1]) {
			t.Errorf("%s does not depend on %s", me.Cycle[i], me.Cycle[i+1])
		}
	}
}

func TestValidateShapeMismatch(t *testing.T) {
	m := mustModel(t, `
t:
  a: [1, 2, 3]
  b: [1, 2]
`)
	errs := Validate(m)
	if len(errs) != 1 {
		t.Fatalf("got %v", errs)
	}
	me, ok := errs[0].(*ModelError)
	if !ok || me.Kind != KindShape {
		t.Errorf("got %v", errs[0])
	}
}

func TestValidateRowAlignment(t *testing.T) {
	m := mustModel(t, `
a:
  x: [1, 2, 3]
b:
  y: [1, 2]
  bad: "=a.x+y"
`)
	errs := Validate(m)
	if len(errs) != 1 {
		t.Fatalf("got %v", errs)
	}
	me, ok := errs[0].(*ModelError)
	if !ok || me.Kind != KindShape || !strings.Contains(me.Message, "rows") {
		t.Errorf("got %v", errs[0])
	}
}

func TestValidateLiteralCriteria(t *testing.T) {
	m := mustModel(t, `
sales:
  amount: [1, 2]
bad:
  value: null
  formula: "=SUMIF(sales.amount, \">>5\")"
`)
	errs := Validate(m)
	if len(errs) != 1 {
		t.Fatalf("got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "malformed relational prefix") {
		t.Errorf("got %q", errs[0].Error())
	}
}

func TestEvaluateAbortsOnStructuralErrors(t *testing.T) {
	m := mustModel(t, `
t:
  a: [1, 2, 3]
  b: [1, 2]
`)
	if _, err := Evaluate(m); err == nil {
		t.Fatal("expected Evaluate to refuse a misshapen model")
	}
}

func TestAuditTrace(t *testing.T) {
	m := mustEvaluate(t, `
a:
  value: 5
b:
  value: null
  formula: "=a+1"
c:
  value: null
  formula: "=b*2"
`)
	steps, err := Audit(m, "c")
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Node != "b" || steps[1].Node != "c" {
		t.Errorf("got order %s, %s", steps[0].Node, steps[1].Node)
	}
	if steps[0].Value != "6" || steps[1].Value != "12" {
		t.Errorf("got values %q, %q", steps[0].Value, steps[1].Value)
	}
	if steps[1].Formula != "=b*2" {
		t.Errorf("got formula %q", steps[1].Formula)
	}
}

func TestAuditColumnTrace(t *testing.T) {
	m := mustEvaluate(t, `
sales:
  amount: [1, 2]
  double: "=amount*2"
  total: "=SUM(double)"
`)
	steps, err := Audit(m, "sales.total")
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(steps) != 2 || steps[0].Node != "sales.double" {
		t.Fatalf("got %+v", steps)
	}
	if steps[0].Value != "[2, 4]" {
		t.Errorf("got %q, want [2, 4]", steps[0].Value)
	}
}

func TestAuditLiteralNode(t *testing.T) {
	m := mustEvaluate(t, `
r:
  value: 0.25
`)
	steps, err := Audit(m, "r")
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	if len(steps) != 1 || steps[0].Formula != "" || steps[0].Value != "0.25" {
		t.Errorf("got %+v", steps)
	}
}

func TestAuditUnknownNode(t *testing.T) {
	m := mustModel(t, `
r:
  value: 1
`)
	if _, err := Audit(m, "missing"); err == nil {
		t.Fatal("expected an error for an unknown node")
	}
}
