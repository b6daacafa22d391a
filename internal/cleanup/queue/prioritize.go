// Package queue holds the pure admission rules of the cleanup loop: which
// paused scans go first and how many of them may be resumed in a cycle.
package queue

import (
	"cmp"
	"slices"

	"ScanCleanup/internal/cleanup/domain"
)

// Prioritize orders paused scans cheapest first: ascending discovered asset
// count, ties broken by ascending scan id. The input slice is left untouched.
func Prioritize(paused []domain.ScanRecord) []domain.ScanRecord {
	ordered := slices.Clone(paused)
	slices.SortFunc(ordered, func(a, b domain.ScanRecord) int {
		if c := cmp.Compare(a.DiscoveredAssets, b.DiscoveredAssets); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return ordered
}

// Admit returns the first slots scans of an already prioritized list.
func Admit(prioritized []domain.ScanRecord, slots int) []domain.ScanRecord {
	if slots <= 0 {
		return nil
	}
	if slots > len(prioritized) {
		slots = len(prioritized)
	}
	return prioritized[:slots]
}
