package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

// BudgetEntry is one `group:budget` pair, in configuration order.
type BudgetEntry struct {
	Group    string
	BudgetWs float64
}

// ParseBudgets splits `group:budget;group:budget`. Empty entries are
// ignored.
func ParseBudgets(s string) ([]BudgetEntry, error) {
	var out []BudgetEntry
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.LastIndexByte(part, ':')
		if i <= 0 {
			return nil, fmt.Errorf("entry %q: expected group:budget", part)
		}
		group := strings.TrimSpace(part[:i])
		budget, err := strconv.ParseFloat(strings.TrimSpace(part[i+1:]), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", part, err)
		}
		if budget < 0 {
			return nil, fmt.Errorf("entry %q: budget must not be negative", part)
		}
		out = append(out, BudgetEntry{Group: group, BudgetWs: budget})
	}
	return out, nil
}

// ResolveBudgets expands each group against the experiment's nodes. A group
// is a node id, a short name (m3-1) or an `archi,range` selector
// (m3,1-5+7). Later entries override earlier ones.
func ResolveBudgets(entries []BudgetEntry, nodes []domain.NodeID) (map[domain.NodeID]float64, error) {
	out := make(map[domain.NodeID]float64)
	for _, e := range entries {
		matched, err := expandGroup(e.Group, nodes)
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("budget group %q matches no experiment node", e.Group)
		}
		for _, n := range matched {
			out[n] = e.BudgetWs
		}
	}
	return out, nil
}

func expandGroup(group string, nodes []domain.NodeID) ([]domain.NodeID, error) {
	shorts := make(map[string]bool)
	if archi, ranges, ok := strings.Cut(group, ","); ok {
		ids, err := parseRange(ranges)
		if err != nil {
			return nil, fmt.Errorf("budget group %q: %w", group, err)
		}
		archi = normalizeArchi(archi)
		for _, id := range ids {
			shorts[fmt.Sprintf("%s-%d", archi, id)] = true
		}
	} else if archi, num, ok := cutLast(group, "-"); ok {
		if _, err := strconv.Atoi(num); err == nil {
			shorts[normalizeArchi(archi)+"-"+num] = true
		}
	}

	var out []domain.NodeID
	for _, n := range nodes {
		if string(n) == group || shorts[canonical(n.Short())] {
			out = append(out, n)
		}
	}
	return out, nil
}

// parseRange reads `1-5+7` into 1,2,3,4,5,7.
func parseRange(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, "+") {
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid node range %q", part)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || b < a {
				return nil, fmt.Errorf("invalid node range %q", part)
			}
		}
		for i := a; i <= b; i++ {
			out = append(out, i)
		}
	}
	return out, nil
}

// Older sites name A8 nodes node-a8-N, newer ones a8-N.
func normalizeArchi(archi string) string {
	return canonical(strings.TrimSpace(archi))
}

func canonical(short string) string {
	return strings.TrimPrefix(strings.ToLower(short), "node-")
}

func cutLast(s, sep string) (string, string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// FilterNodes drops nodes whose short name starts with one of prefixes.
func FilterNodes(nodes []domain.NodeID, prefixes []string) []domain.NodeID {
	out := make([]domain.NodeID, 0, len(nodes))
next:
	for _, n := range nodes {
		short := canonical(n.Short())
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(short, p) {
				continue next
			}
		}
		out = append(out, n)
	}
	return out
}
