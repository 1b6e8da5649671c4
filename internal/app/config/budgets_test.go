package config

import (
	"testing"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

var testNodes = []domain.NodeID{
	"m3-1.grenoble.iot-lab.info",
	"m3-2.grenoble.iot-lab.info",
	"m3-3.grenoble.iot-lab.info",
	"m3-7.grenoble.iot-lab.info",
	"a8-1.grenoble.iot-lab.info",
	"node-a8-2.grenoble.iot-lab.info",
}

func TestParseBudgets(t *testing.T) {
	entries, err := ParseBudgets(" m3,1-2+7:100 ; m3-3.grenoble.iot-lab.info:12.5;;")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Group != "m3,1-2+7" || entries[0].BudgetWs != 100 {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Group != "m3-3.grenoble.iot-lab.info" || entries[1].BudgetWs != 12.5 {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}

	for _, bad := range []string{"m3-1", ":5", "m3-1:-1", "m3-1:x"} {
		if _, err := ParseBudgets(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if entries, err := ParseBudgets(""); err != nil || len(entries) != 0 {
		t.Fatalf("empty string must parse to nothing, got %v %v", entries, err)
	}
}

func TestResolveBudgets(t *testing.T) {
	entries, _ := ParseBudgets("m3,1-2+7:100;m3-2:40;a8,1-2:5")
	budgets, err := ResolveBudgets(entries, testNodes)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := map[domain.NodeID]float64{
		"m3-1.grenoble.iot-lab.info":      100,
		"m3-2.grenoble.iot-lab.info":      40,
		"m3-7.grenoble.iot-lab.info":      100,
		"a8-1.grenoble.iot-lab.info":      5,
		"node-a8-2.grenoble.iot-lab.info": 5,
	}
	if len(budgets) != len(want) {
		t.Fatalf("unexpected budgets %v", budgets)
	}
	for n, b := range want {
		if budgets[n] != b {
			t.Fatalf("budget for %s = %f, want %f", n, budgets[n], b)
		}
	}
	if _, ok := budgets["m3-3.grenoble.iot-lab.info"]; ok {
		t.Fatalf("m3-3 has no budget")
	}
}

func TestResolveBudgetsUnknownGroup(t *testing.T) {
	entries, _ := ParseBudgets("m3,40:1")
	if _, err := ResolveBudgets(entries, testNodes); err == nil {
		t.Fatalf("expected unmatched group error")
	}
	entries, _ = ParseBudgets("m3,5-2:1")
	if _, err := ResolveBudgets(entries, testNodes); err == nil {
		t.Fatalf("expected invalid range error")
	}
}

func TestFilterNodes(t *testing.T) {
	got := FilterNodes(testNodes, []string{"a8"})
	if len(got) != 4 {
		t.Fatalf("expected A8 nodes dropped, got %v", got)
	}
	if len(FilterNodes(testNodes, nil)) != len(testNodes) {
		t.Fatalf("no prefixes must keep every node")
	}
}
