package normalize

import "slices"

// SortByTime returns a copy of msgs ordered by timestamp ascending.
// Messages without a timestamp go last in their input order. Equal
// timestamps keep their input order, so sorting is idempotent.
func SortByTime(msgs []CanonicalMessage) []CanonicalMessage {
	out := slices.Clone(msgs)
	slices.SortStableFunc(out, compareTime)
	return out
}

func compareTime(a, b CanonicalMessage) int {
	switch {
	case a.Timestamp == nil && b.Timestamp == nil:
		return 0
	case a.Timestamp == nil:
		return 1
	case b.Timestamp == nil:
		return -1
	case *a.Timestamp < *b.Timestamp:
		return -1
	case *a.Timestamp > *b.Timestamp:
		return 1
	default:
		return 0
	}
}
