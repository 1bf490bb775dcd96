package catalog

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

const maxSuggestions = 3

// suggest ranks candidates by edit distance to name, ignoring case. Candidates
// further away than half the query length are dropped.
func suggest(name string, candidates []string) []string {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return nil
	}
	limit := len(query)/2 + 1

	type scored struct {
		name string
		dist int
	}
	hits := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		dist := levenshtein.ComputeDistance(query, strings.ToLower(cand))
		if dist > limit {
			continue
		}
		hits = append(hits, scored{name: cand, dist: dist})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	if len(hits) > maxSuggestions {
		hits = hits[:maxSuggestions]
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.name)
	}
	return out
}
