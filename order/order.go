// Package order implements the presentation-ordering engine: it
// re-orders lists of elections, contests or candidates according to the
// configured policy. The random policy is driven by an explicit seed so
// that a ballot's presentation order can be replayed during an audit.
package order

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sequentech/strand/lib"
)

// ErrMissingSeed is returned when the random policy is requested
// without a seed. There is no silent fallback to system entropy: a
// caller wanting fresh randomness derives a seed from a fresh nonce,
// which keeps even that ordering reproducible.
var ErrMissingSeed = errors.New("random ordering requires a seed")

// Item is one orderable entry of a presentation list. The same shape
// serves elections, contests and candidates.
type Item struct {
	ID        string
	Name      string
	Alias     string
	SortOrder *int64 // used by the custom policy; nil sorts first
	Category  string // grouping key, candidates only
}

// Policy selects the comparator or seed path used to order a list.
// Immutable once attached to a presentation config.
type Policy uint32

const (
	// Random shuffles with the seeded stream.
	Random Policy = iota + 1
	// Custom sorts by the explicit SortOrder field.
	Custom
	// Alphabetical sorts by the lowercased alias, falling back to the
	// name.
	Alphabetical
)

var policyNames = map[Policy]string{
	Random:       "random",
	Custom:       "custom",
	Alphabetical: "alphabetical",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", uint32(p))
}

// ParsePolicy converts a policy's configuration string.
func ParsePolicy(s string) (Policy, error) {
	for policy, name := range policyNames {
		if name == s {
			return policy, nil
		}
	}
	return 0, fmt.Errorf("unknown ordering policy %q", s)
}

// Order returns a new list holding the given items in the order the
// policy dictates. The input list is never mutated, so callers keep the
// pre-shuffle order for their audit logs. The output is always a
// permutation of the input; empty and single-item lists pass through
// unchanged.
func Order(items []Item, policy Policy, seed *lib.Seed) ([]Item, error) {
	ordered := append([]Item(nil), items...)
	if len(ordered) < 2 {
		return ordered, nil
	}

	switch policy {
	case Random:
		if seed == nil {
			return nil, ErrMissingSeed
		}
		// Fisher-Yates over the seeded stream: same seed, same order.
		stream := seed.Stream()
		for i := len(ordered) - 1; i > 0; i-- {
			j := lib.Intn(stream, i+1)
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	case Custom:
		sort.SliceStable(ordered, func(i, j int) bool {
			return sortOrder(ordered[i]) < sortOrder(ordered[j])
		})
	case Alphabetical:
		sort.SliceStable(ordered, func(i, j int) bool {
			return sortKey(ordered[i]) < sortKey(ordered[j])
		})
	default:
		return nil, fmt.Errorf("unknown ordering policy %v", policy)
	}
	return ordered, nil
}

// sortOrder treats an absent SortOrder as -1 so unordered items sort
// first, matching the configured behavior of the admin portal.
func sortOrder(item Item) int64 {
	if item.SortOrder == nil {
		return -1
	}
	return *item.SortOrder
}

// sortKey is the lowercased alias, else the lowercased name, else the
// empty string. Plain codepoint comparison; locale collation is
// deliberately out of scope.
func sortKey(item Item) string {
	if item.Alias != "" {
		return strings.ToLower(item.Alias)
	}
	if item.Name != "" {
		return strings.ToLower(item.Name)
	}
	return ""
}
