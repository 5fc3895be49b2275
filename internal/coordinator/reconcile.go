package coordinator

import "sort"

// Diff computes membership changes between the previous and current ICCID
// sets: added = current minus previous, removed = previous minus current. Both come
// back sorted ascending; consumers handle added before removed. A removed
// ICCID's record is dropped, never archived.
func Diff(previous, current []string) (added, removed []string) {
	prev := make(map[string]struct{}, len(previous))
	for _, id := range previous {
		prev[id] = struct{}{}
	}
	curr := make(map[string]struct{}, len(current))
	for _, id := range current {
		curr[id] = struct{}{}
	}

	for id := range curr {
		if _, ok := prev[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range prev {
		if _, ok := curr[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
