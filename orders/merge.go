package orders

import (
	"slices"
	"strings"
)

// Merge combines incoming ahead of existing, keeps the first record seen for
// each order id, drops records without an id and sorts newest CreatedAt first.
// Records without a CreatedAt sort last. Neither input is modified.
func Merge(incoming, existing []Order) []Order {
	merged := make([]Order, 0, len(incoming)+len(existing))
	seen := make(map[int64]struct{}, len(incoming)+len(existing))
	for _, o := range slices.Concat(incoming, existing) {
		if o.OrderID == 0 {
			continue
		}
		if _, dup := seen[o.OrderID]; dup {
			continue
		}
		seen[o.OrderID] = struct{}{}
		merged = append(merged, o.clone())
	}

	slices.SortStableFunc(merged, func(a, b Order) int {
		return strings.Compare(b.CreatedAt, a.CreatedAt)
	})
	return merged
}
