package utils

import (
	"cmp"
	"iter"
	"slices"
)

// OrderedList is a sorted list without duplicates
type OrderedList[T cmp.Ordered] struct {
	list []T
}

func NewOrderedList[T cmp.Ordered]() *OrderedList[T] {
	return &OrderedList[T]{
		list: make([]T, 0),
	}
}

func (o *OrderedList[T]) Len() int {
	return len(o.list)
}

// Add inserts item unless it is already present. It reports whether the
// list changed.
func (o *OrderedList[T]) Add(item T) bool {
	i, found := slices.BinarySearch(o.list, item)
	if found {
		return false
	}
	o.list = slices.Insert(o.list, i, item)
	return true
}

// Ascend yields the items >= from in order. The list must not be modified
// while iterating.
func (o *OrderedList[T]) Ascend(from T) iter.Seq[T] {
	return func(yield func(T) bool) {
		i, _ := slices.BinarySearch(o.list, from)
		for ; i < len(o.list); i++ {
			if !yield(o.list[i]) {
				return
			}
		}
	}
}
