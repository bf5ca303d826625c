// Package util
//
// This file provides the expiry queue used by the lock table engines.
//
// MapHeap combines a binary min-heap with a hash map: records are ordered by
// their expiry time while still being addressable by key, so a refreshed lock
// can be rescheduled and a released lock can be unscheduled in O(log n).
//
//   - O(log n) for AddItem, RemoveByKey and PopUntil per item
//   - O(1) for Contains, GetByKey and Peek
//
// MapHeap is not thread-safe; callers synchronize access externally.
//
// Example usage:
//
//	q := NewMapHeap[string]()
//	q.AddItem("token-a", 1700000060)
//	q.AddItem("token-b", 1700000030)
//	for _, key := range q.PopUntil(now) {
//	    // remove the expired record
//	}
package util

import (
	"container/heap"
	"fmt"
)

// item is one scheduled key with its priority (the expiry time)
type item[K comparable] struct {
	Key      K
	Priority uint64
	index    int // index in the heap, maintained by the heap package
}

func (i *item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap is a min-heap by priority with key based access
type MapHeap[K comparable] struct {
	items    []*item[K]
	itemsMap map[K]*item[K]
}

// NewMapHeap creates an empty MapHeap
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*item[K], 0),
		itemsMap: make(map[K]*item[K]),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (mh *MapHeap[K]) Len() int { return len(mh.items) }

// Less orders items by priority (part of heap.Interface)
func (mh *MapHeap[K]) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (mh *MapHeap[K]) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (mh *MapHeap[K]) Push(x interface{}) {
	it := x.(*item[K])
	it.index = len(mh.items)
	mh.items = append(mh.items, it)
	mh.itemsMap[it.Key] = it
}

// Pop removes and returns the last item (part of heap.Interface)
func (mh *MapHeap[K]) Pop() interface{} {
	old := mh.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	mh.items = old[:n-1]
	delete(mh.itemsMap, it.Key)
	return it
}

// AddItem schedules key with the given priority or reschedules it if it exists
func (mh *MapHeap[K]) AddItem(key K, priority uint64) {
	if it, exists := mh.itemsMap[key]; exists {
		it.Priority = priority
		heap.Fix(mh, it.index)
		return
	}
	heap.Push(mh, &item[K]{Key: key, Priority: priority})
}

// RemoveByKey unschedules key and returns its priority
func (mh *MapHeap[K]) RemoveByKey(key K) (uint64, bool) {
	it, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	heap.Remove(mh, it.index)
	return it.Priority, true
}

// Peek returns the item with the lowest priority without removing it
func (mh *MapHeap[K]) Peek() (K, uint64, bool) {
	if len(mh.items) == 0 {
		var zero K
		return zero, 0, false
	}
	return mh.items[0].Key, mh.items[0].Priority, true
}

// PopUntil removes and returns all keys with a priority <= limit, lowest first
func (mh *MapHeap[K]) PopUntil(limit uint64) []K {
	var keys []K
	for len(mh.items) > 0 && mh.items[0].Priority <= limit {
		keys = append(keys, heap.Pop(mh).(*item[K]).Key)
	}
	return keys
}

// Contains checks if a key is scheduled
func (mh *MapHeap[K]) Contains(key K) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey returns the priority of a scheduled key
func (mh *MapHeap[K]) GetByKey(key K) (uint64, bool) {
	it, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	return it.Priority, true
}
