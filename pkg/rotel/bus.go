// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rotel

import "sync"

// Bus delivers published values to every subscriber, synchronously and in
// subscription order. Subscribers that leave the event loop must not block.
type Bus[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
	ids  []int
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]func(T))
	}
	id := b.next
	b.next++
	b.subs[id] = fn
	b.ids = append(b.ids, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		for i, v := range b.ids {
			if v == id {
				b.ids = append(b.ids[:i], b.ids[i+1:]...)
				break
			}
		}
	}
}

// Publish calls every subscriber with v
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	fns := make([]func(T), 0, len(b.ids))
	for _, id := range b.ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of subscribers
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids)
}
