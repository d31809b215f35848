package rules

import "sort"

// categoryGeneral collects rules that carry no category.
const categoryGeneral Category = "general"

// Group is a run of rules that share a category.
type Group struct {
	Category Category `json:"category" yaml:"category"`
	Rules    []Rule   `json:"rules" yaml:"rules"`
}

// SortByPriority returns a copy of rs ordered by descending priority.
// Rules with equal priority keep their input order.
func SortByPriority(rs []Rule) []Rule {
	out := append([]Rule(nil), rs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// MergeRules sorts rs by priority and groups the result by category. Groups
// appear in the order their first (highest priority) rule does.
func MergeRules(rs []Rule) []Group {
	var groups []Group
	index := make(map[Category]int)
	for _, r := range SortByPriority(rs) {
		cat := r.Category
		if cat == "" {
			cat = categoryGeneral
		}
		i, ok := index[cat]
		if !ok {
			i = len(groups)
			index[cat] = i
			groups = append(groups, Group{Category: cat})
		}
		groups[i].Rules = append(groups[i].Rules, r)
	}
	return groups
}
