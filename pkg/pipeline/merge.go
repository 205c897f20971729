package pipeline

import "github.com/platinummonkey/trellis/pkg/extension"

// Merge concatenates lists in submission order and removes duplicate identities.
// Within a group the lowest provenance wins, then the earliest list. Failed
// results that carry an id are grouped like any other; only results without an
// identity, such as unparseable descriptors, are always kept.
func Merge(lists ...[]extension.Result) []extension.Result {
	total := 0
	for _, list := range lists {
		total += len(list)
	}

	merged := make([]extension.Result, 0, total)
	slot := make(map[extension.Key]int, total)

	for _, list := range lists {
		for _, r := range list {
			if r.Metadata.ID == "" {
				merged = append(merged, r)
				continue
			}

			key := r.Metadata.Key()
			i, seen := slot[key]
			if !seen {
				slot[key] = len(merged)
				merged = append(merged, r)
				continue
			}
			if r.Metadata.Provenance < merged[i].Metadata.Provenance {
				merged[i] = r
			}
		}
	}

	return merged
}
