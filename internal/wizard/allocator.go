package wizard

import (
	"container/heap"
	"encoding/json"
	"sort"
)

// Allocator leases routing tokens. Tokens are positive integers; Allocate
// always hands out the smallest one not in use. The in-use set is persisted
// with the module state so a restart never reuses a token still embedded in
// a control on the chat platform.
//
// Allocator is not safe for concurrent use: callers hold the session lock.
type Allocator struct {
	used map[int]struct{}
	free tokenHeap
	next int
}

func NewAllocator() *Allocator {
	return &Allocator{
		used: make(map[int]struct{}),
		next: 1,
	}
}

func (a *Allocator) Allocate() int {
	for a.free.Len() > 0 {
		t := heap.Pop(&a.free).(int)
		if _, taken := a.used[t]; !taken {
			a.used[t] = struct{}{}
			return t
		}
	}
	t := a.next
	a.next++
	a.used[t] = struct{}{}
	return t
}

// Free releases t. Freeing an unknown or already free token does nothing.
func (a *Allocator) Free(t int) {
	if _, ok := a.used[t]; !ok {
		return
	}
	delete(a.used, t)
	heap.Push(&a.free, t)
}

func (a *Allocator) InUse(t int) bool {
	_, ok := a.used[t]
	return ok
}

func (a *Allocator) Len() int {
	return len(a.used)
}

// Tokens returns the leased tokens in ascending order.
func (a *Allocator) Tokens() []int {
	tokens := make([]int, 0, len(a.used))
	for t := range a.used {
		tokens = append(tokens, t)
	}
	sort.Ints(tokens)
	return tokens
}

type allocatorState struct {
	InUse []int `json:"in_use"`
}

func (a *Allocator) MarshalJSON() ([]byte, error) {
	return json.Marshal(allocatorState{InUse: a.Tokens()})
}

func (a *Allocator) UnmarshalJSON(data []byte) error {
	var state allocatorState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	*a = Allocator{used: make(map[int]struct{}), next: 1}
	for _, t := range state.InUse {
		if t <= 0 {
			continue
		}
		a.used[t] = struct{}{}
		if t >= a.next {
			a.next = t + 1
		}
	}
	for t := 1; t < a.next; t++ {
		if _, ok := a.used[t]; !ok {
			a.free = append(a.free, t)
		}
	}
	heap.Init(&a.free)
	return nil
}

type tokenHeap []int

func (h tokenHeap) Len() int           { return len(h) }
func (h tokenHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h tokenHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *tokenHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *tokenHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
