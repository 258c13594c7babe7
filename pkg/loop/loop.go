// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package loop provides the single-goroutine event loop that owns the
// amplifier state. Serial input, client requests and timer callbacks are all
// posted to the loop and run one at a time, in the order they were posted.
package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrStopped is returned when work is posted to a loop that is no longer running
var ErrStopped = errors.New("event loop stopped")

// Timer is a cancellable pending callback
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or the timer was stopped.
	Stop() bool
}

// Scheduler arranges for fn to run on the owning loop after d
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop runs posted tasks sequentially on a single goroutine
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	log   *logrus.Entry
}

// New creates a loop with a task queue of the given depth
func New(queue int, log *logrus.Entry) *Loop {
	if queue <= 0 {
		queue = 64
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loop{
		tasks: make(chan func(), queue),
		done:  make(chan struct{}),
		log:   log,
	}
}

// Run processes tasks until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("stack", string(debug.Stack())).Errorf("Task panicked: %v", r)
		}
	}()
	fn()
}

// Post queues fn without waiting for it to run
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Queued reports how many tasks are waiting to run
func (l *Loop) Queued() int {
	return len(l.tasks)
}

// Do runs fn on the loop and waits for it to complete
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("queue request: %w", ctx.Err())
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("wait for request: %w", ctx.Err())
	}
}

// loopTimer can be stopped after the wall clock timer fired but before
// the posted callback ran; the callback checks the flag on the loop.
type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
	ran     atomic.Bool
}

func (lt *loopTimer) Stop() bool {
	lt.t.Stop()
	if lt.ran.Load() {
		return false
	}
	return !lt.stopped.Swap(true)
}

// AfterFunc posts fn to the loop once d has elapsed. A Stop that happens on
// the loop before fn runs always cancels it.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		err := l.Post(func() {
			if lt.stopped.Load() {
				return
			}
			lt.ran.Store(true)
			fn()
		})
		if err != nil {
			l.log.Debugf("Dropped timer callback: %v", err)
		}
	})
	return lt
}
