//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package evloop

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/eapache/queue"
	"github.com/muxio-project/muxio"
	"golang.org/x/sys/unix"
)

// Loop is a single-threaded epoll event loop.
//
// Construct using [New], create capabilities with [NewTimer] and
// [NewWatcher], then call [Loop.Run]. All callbacks (socket readiness,
// timer expiry, posted functions) execute on the Run goroutine.
//
// Loop is not safe for concurrent use: every method must be called from
// the Run goroutine, except that Run itself is called once from outside.
type Loop struct {
	// epfd is the epoll instance.
	epfd int

	// watches maps watched descriptors to their registrations.
	watches map[int]*watchEntry

	// timers is a min-heap of pending deadlines.
	timers timerHeap

	// posted holds callbacks scheduled with Post, run before polling.
	posted *queue.Queue

	// stopped is set by Stop to make Run return.
	stopped bool
}

// watchEntry is one socket registration.
type watchEntry struct {
	fd      int
	event   muxio.Event
	onReady muxio.ReadyFunc
}

// New creates a [*Loop].
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("evloop: epoll_create1: %w", err)
	}
	return &Loop{
		epfd:    epfd,
		watches: make(map[int]*watchEntry),
		posted:  queue.New(),
	}, nil
}

// Close releases the epoll instance. The loop must not be used afterwards.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}

// Post schedules fn to run on the loop goroutine before the next poll.
func (l *Loop) Post(fn func()) {
	l.posted.Add(fn)
}

// Stop makes [Loop.Run] return after the current dispatch cycle. Call it
// from within a callback.
func (l *Loop) Stop() {
	l.stopped = true
}

// Run dispatches events until [Loop.Stop] is called or no work remains:
// no watched sockets, no pending deadlines, and no posted callbacks.
func (l *Loop) Run() error {
	l.stopped = false
	events := make([]unix.EpollEvent, 128)
	for !l.stopped {
		l.runPosted()
		l.fireDueTimers()
		if l.stopped || l.idle() {
			return nil
		}
		n, err := unix.EpollWait(l.epfd, events, l.pollTimeout())
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("evloop: epoll_wait: %w", err)
		}
		for i := range n {
			l.dispatch(&events[i])
		}
	}
	return nil
}

// idle reports whether the loop has nothing left to wait for.
func (l *Loop) idle() bool {
	return len(l.watches) == 0 && l.timers.Len() == 0 && l.posted.Length() == 0
}

// runPosted drains the posted-callback queue. Callbacks posted while
// draining run in the same cycle.
func (l *Loop) runPosted() {
	for l.posted.Length() > 0 {
		fn := l.posted.Remove().(func())
		fn()
	}
}

// pollTimeout returns the epoll_wait timeout in milliseconds: the time
// until the earliest deadline, or -1 to block indefinitely.
func (l *Loop) pollTimeout() int {
	if l.timers.Len() == 0 {
		return -1
	}
	remaining := time.Until(l.timers[0].when)
	if remaining <= 0 {
		return 0
	}
	// Round up so we never wake before the deadline.
	return int((remaining + time.Millisecond - 1) / time.Millisecond)
}

// dispatch routes one epoll event to the watch callback. Error and hangup
// conditions surface as read readiness so the consumer observes the
// failure through its next read attempt.
func (l *Loop) dispatch(ev *unix.EpollEvent) {
	entry, ok := l.watches[int(ev.Fd)]
	if !ok {
		return
	}
	socket := muxio.Socket(entry.fd)
	readable := ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0
	writable := ev.Events&unix.EPOLLOUT != 0
	if readable && entry.event&muxio.EventRead != 0 {
		entry.onReady(socket, false)
	}
	// The callback may have unregistered the watch; recheck.
	if current, ok := l.watches[int(ev.Fd)]; !ok || current != entry {
		return
	}
	if writable && entry.event&muxio.EventWrite != 0 {
		entry.onReady(socket, true)
	}
}

// watch registers or replaces a level-triggered watch on fd.
func (l *Loop) watch(fd int, event muxio.Event, onReady muxio.ReadyFunc) error {
	var flags uint32
	if event&muxio.EventRead != 0 {
		flags |= unix.EPOLLIN
	}
	if event&muxio.EventWrite != 0 {
		flags |= unix.EPOLLOUT
	}
	ev := &unix.EpollEvent{Events: flags, Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if _, ok := l.watches[fd]; ok {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(l.epfd, op, fd, ev); err != nil {
		return fmt.Errorf("evloop: epoll_ctl: %w", err)
	}
	l.watches[fd] = &watchEntry{fd: fd, event: event, onReady: onReady}
	return nil
}

// unwatch removes the watch on fd, if any.
func (l *Loop) unwatch(fd int) {
	if _, ok := l.watches[fd]; !ok {
		return
	}
	delete(l.watches, fd)
	// The fd may already be closed; removal failure is then harmless.
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// timerEntry is one pending deadline.
type timerEntry struct {
	when      time.Time
	fn        func()
	index     int
	cancelled bool
}

// addTimer schedules fn at the given time.
func (l *Loop) addTimer(when time.Time, fn func()) *timerEntry {
	entry := &timerEntry{when: when, fn: fn}
	heap.Push(&l.timers, entry)
	return entry
}

// cancelTimer removes a pending deadline. Cancelling an already fired or
// cancelled entry is a no-op.
func (l *Loop) cancelTimer(entry *timerEntry) {
	if entry.cancelled || entry.index < 0 {
		return
	}
	entry.cancelled = true
	heap.Remove(&l.timers, entry.index)
}

// fireDueTimers pops and runs every deadline at or before now.
func (l *Loop) fireDueTimers() {
	now := time.Now()
	for l.timers.Len() > 0 && !l.timers[0].when.After(now) {
		entry := heap.Pop(&l.timers).(*timerEntry)
		if entry.cancelled {
			continue
		}
		entry.fn()
	}
}

// timerHeap is a min-heap of deadlines ordered by expiry time.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	entry := x.(*timerEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *timerHeap) Pop() any {
	old := *h
	entry := old[len(old)-1]
	old[len(old)-1] = nil
	entry.index = -1
	*h = old[:len(old)-1]
	return entry
}
