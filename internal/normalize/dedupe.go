package normalize

// Identified is anything with a message id: RawMessage and CanonicalMessage
type Identified interface {
	MessageID() string
}

// Dedupe returns the items of incoming whose id is not in existing. A
// repeated id within incoming keeps its first occurrence. Items without an
// id cannot be matched and are always kept.
func Dedupe[T Identified](existing, incoming []T) []T {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, item := range existing {
		if id := item.MessageID(); id != "" {
			seen[id] = struct{}{}
		}
	}

	out := make([]T, 0, len(incoming))
	for _, item := range incoming {
		id := item.MessageID()
		if id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, item)
	}
	return out
}

// Merge appends the new items of incoming to existing
func Merge[T Identified](existing, incoming []T) []T {
	return append(existing, Dedupe(existing, incoming)...)
}
