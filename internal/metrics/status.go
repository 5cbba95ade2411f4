package metrics

import "sort"

// FailureBucket is the number of failed attempts for a phase and failure kind.
type FailureBucket struct {
	Phase string
	Kind  string
	Count int
}

// FlattenFailureBuckets converts a nested phase->kind map into sorted rows.
// Rows are sorted by descending count, then by phase/kind for stability.
func FlattenFailureBuckets(buckets map[string]map[string]int) []FailureBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]FailureBucket, 0)
	for phase, kinds := range buckets {
		for kind, count := range kinds {
			rows = append(rows, FailureBucket{Phase: phase, Kind: kind, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Phase == rows[j].Phase {
				return rows[i].Kind < rows[j].Kind
			}
			return rows[i].Phase < rows[j].Phase
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
