package haul

import (
	"container/heap"

	"colonysim/internal/sim/grid"
	"colonysim/internal/sim/world"
)

// Query is a live, priority-ordered view over floor items matching a filter.
// Items with nothing left to claim sit in a separate set and move back into
// the queue when their stack changes.
type Query struct {
	filter    func(it *world.Item) bool
	heuristic func(p grid.Vec2i) float64
	requested int

	avail   entryQueue
	unavail map[uint64]*entry
	byID    map[uint64]*entry

	unsubscribe func()
}

type entry struct {
	item  *world.Item
	prio  float64
	index int
}

// NewQuery tracks items of w accepted by filter. heuristic estimates the
// cost of hauling from an item's cell and may be nil.
func NewQuery(w *world.World, filter func(it *world.Item) bool, heuristic func(grid.Vec2i) float64, requested int) *Query {
	q := &Query{
		filter:    filter,
		heuristic: heuristic,
		requested: requested,
		unavail:   map[uint64]*entry{},
		byID:      map[uint64]*entry{},
	}
	for _, it := range w.Items() {
		q.ItemAdded(it)
	}
	q.unsubscribe = w.SubscribeItems(q)
	return q
}

// Close stops tracking world changes.
func (q *Query) Close() {
	if q.unsubscribe != nil {
		q.unsubscribe()
		q.unsubscribe = nil
	}
}

func (q *Query) Requested() int { return q.requested }

// SetRequested changes how many units a haul wants and reorders the queue.
func (q *Query) SetRequested(n int) {
	if n == q.requested {
		return
	}
	q.requested = n
	q.Reprioritize()
}

// Reprioritize recomputes every priority and re-buckets every item.
func (q *Query) Reprioritize() {
	for _, e := range q.byID {
		q.place(e)
	}
}

func (q *Query) priority(it *world.Item) float64 {
	per := it.Available()
	if q.requested > 0 && q.requested < per {
		per = q.requested
	}
	h := 0.0
	if q.heuristic != nil {
		h = q.heuristic(it.Pos)
	}
	return h / float64(per)
}

// place puts e into the bucket its stack belongs to.
func (q *Query) place(e *entry) {
	if e.item.Available() <= 0 {
		if e.index >= 0 {
			heap.Remove(&q.avail, e.index)
		}
		q.unavail[e.item.ID] = e
		return
	}
	delete(q.unavail, e.item.ID)
	e.prio = q.priority(e.item)
	if e.index >= 0 {
		heap.Fix(&q.avail, e.index)
	} else {
		heap.Push(&q.avail, e)
	}
}

func (q *Query) ItemAdded(it *world.Item) {
	if q.filter != nil && !q.filter(it) {
		return
	}
	if _, ok := q.byID[it.ID]; ok {
		return
	}
	e := &entry{item: it, index: -1}
	q.byID[it.ID] = e
	q.place(e)
}

func (q *Query) ItemChanged(it *world.Item) {
	if e, ok := q.byID[it.ID]; ok {
		q.place(e)
	}
}

func (q *Query) ItemRemoved(it *world.Item) {
	e, ok := q.byID[it.ID]
	if !ok {
		return
	}
	delete(q.byID, it.ID)
	delete(q.unavail, it.ID)
	if e.index >= 0 {
		heap.Remove(&q.avail, e.index)
	}
}

// Best returns the highest-priority item with claimable units that accept
// approves, or nil.
func (q *Query) Best(accept func(it *world.Item) bool) *world.Item {
	var popped []*entry
	var best *world.Item
	for q.avail.Len() > 0 {
		e := heap.Pop(&q.avail).(*entry)
		popped = append(popped, e)
		if accept == nil || accept(e.item) {
			best = e.item
			break
		}
	}
	for _, e := range popped {
		heap.Push(&q.avail, e)
	}
	return best
}

// TotalAvailable sums the claimable units over all tracked stacks.
func (q *Query) TotalAvailable() int {
	n := 0
	for _, e := range q.avail.items {
		n += e.item.Available()
	}
	return n
}

// Len reports the available and unavailable bucket sizes.
func (q *Query) Len() (available, unavailable int) {
	return q.avail.Len(), len(q.unavail)
}

type entryQueue struct {
	items []*entry
}

func (q *entryQueue) Len() int { return len(q.items) }

func (q *entryQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.prio != b.prio {
		return a.prio < b.prio
	}
	return a.item.ID < b.item.ID
}

func (q *entryQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *entryQueue) Push(x any) {
	e := x.(*entry)
	e.index = len(q.items)
	q.items = append(q.items, e)
}

func (q *entryQueue) Pop() any {
	old := q.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	q.items = old[:n-1]
	return e
}
