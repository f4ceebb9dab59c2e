package chain

import "sort"

// Spec is the configured shape of one provider slot.
type Spec struct {
	Name     string
	Enabled  bool
	Priority int
}

// Order returns the enabled specs sorted by ascending priority.
// Equal priorities keep their declaration order.
func Order(specs []Spec) []Spec {
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		if s.Enabled {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Names returns the names of specs in order.
func Names(specs []Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
