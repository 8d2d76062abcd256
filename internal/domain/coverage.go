package domain

// MissingCategories is the single coverage predicate: it computes the
// visible set with the proposed removals applied and returns the required
// categories that would become empty, or nil if coverage holds. Every
// mutating path that can shrink a tenant's visible set must call it
// immediately before commit, inside the same transaction.
func MissingCategories(visible []Stage, removeIDs ...string) []Category {
	removed := make(map[string]bool, len(removeIDs))
	for _, id := range removeIDs {
		removed[id] = true
	}

	covered := make(map[Category]bool, len(RequiredCategories))
	for _, s := range visible {
		if !removed[s.ID] {
			covered[s.Category] = true
		}
	}

	var missing []Category
	for _, c := range RequiredCategories {
		if !covered[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
