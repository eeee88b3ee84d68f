package schedule

import (
	"container/heap"

	"call-ath-tracker/internal/domain"
)

// Item is one queued asset with its priority key.
type Item struct {
	Asset *domain.Asset
	Tier  domain.LiquidityTier
	Since *int64 // staleness timestamp; nil sorts first
}

// Backlog is a priority queue over (lifecycleState, tier, since, id).
// Alive sorts before dead and high before low; within those the stalest
// asset comes first.
type Backlog struct {
	items itemHeap
}

// NewBacklog creates an empty backlog.
func NewBacklog() *Backlog {
	return &Backlog{}
}

// Push adds an item.
func (b *Backlog) Push(it Item) {
	heap.Push(&b.items, it)
}

// Pop removes and returns the highest-priority item.
func (b *Backlog) Pop() (Item, bool) {
	if len(b.items) == 0 {
		return Item{}, false
	}
	return heap.Pop(&b.items).(Item), true
}

// Len returns the number of queued items.
func (b *Backlog) Len() int {
	return len(b.items)
}

// Drain pops up to n assets in priority order. n <= 0 drains everything.
func (b *Backlog) Drain(n int) []*domain.Asset {
	if n <= 0 || n > b.Len() {
		n = b.Len()
	}
	out := make([]*domain.Asset, 0, n)
	for i := 0; i < n; i++ {
		it, _ := b.Pop()
		out = append(out, it.Asset)
	}
	return out
}

type itemHeap []Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if ra, rb := stateRank(a.Asset.LifecycleState), stateRank(b.Asset.LifecycleState); ra != rb {
		return ra < rb
	}
	if ra, rb := tierRank(a.Tier), tierRank(b.Tier); ra != rb {
		return ra < rb
	}
	switch {
	case a.Since == nil && b.Since != nil:
		return true
	case a.Since != nil && b.Since == nil:
		return false
	case a.Since != nil && *a.Since != *b.Since:
		return *a.Since < *b.Since
	}
	return a.Asset.ID < b.Asset.ID
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(Item))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func stateRank(s domain.LifecycleState) int {
	if s == domain.LifecycleDead {
		return 1
	}
	return 0
}

func tierRank(t domain.LiquidityTier) int {
	if t == domain.TierLow {
		return 1
	}
	return 0
}
