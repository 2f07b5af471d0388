// Package clock issues deadlines and timeout callbacks. The orchestrator
// depends on the Scheduler interface so tests can drive time
// deterministically with the fake implementation.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Cancel stops a scheduled callback. It reports whether the callback was
// stopped before firing.
type Cancel func() bool

// Scheduler is the clock/timer service surface.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Cancel
}

// Real is the wall-clock scheduler backed by time.AfterFunc.
type Real struct{}

func NewReal() *Real { return &Real{} }

func (*Real) Now() time.Time { return time.Now() }

func (*Real) AfterFunc(d time.Duration, fn func()) Cancel {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// Fake is a manually advanced scheduler for tests. Callbacks run
// synchronously on the goroutine calling Advance, in deadline order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers map[int]*fakeTimer
}

type fakeTimer struct {
	id int
	at time.Time
	fn func()
}

// NewFake returns a fake scheduler starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, timers: make(map[int]*fakeTimer)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Cancel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.timers[id] = &fakeTimer{id: id, at: f.now.Add(d), fn: fn}
	return func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.timers[id]; ok {
			delete(f.timers, id)
			return true
		}
		return false
	}
}

// Advance moves the clock forward, firing every due callback in deadline
// order. Callbacks may schedule further timers; those fire too if they fall
// within the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due []*fakeTimer
		for _, t := range f.timers {
			if !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			f.now = target
			f.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].id < due[j].id
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		delete(f.timers, next.id)
		f.now = next.at
		f.mu.Unlock()

		next.fn()
	}
}
