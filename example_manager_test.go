// SPDX-License-Identifier: GPL-3.0-or-later

package muxio_test

import (
	"fmt"
	"iter"
	"time"

	"github.com/muxio-project/muxio"
)

// stubEngine is a toy transfer engine that serves every transfer a canned
// response at the first timer wakeup. A real engine would instead perform
// protocol I/O and request socket watches through the hooks.
type stubEngine struct {
	hooks   muxio.Hooks
	sources map[muxio.Handle]muxio.TransferSource
	next    muxio.Handle
	active  []muxio.Handle
}

func (e *stubEngine) Bind(hooks muxio.Hooks) {
	e.hooks = hooks
}

func (e *stubEngine) Open(src muxio.TransferSource) (muxio.Handle, error) {
	e.next++
	if e.sources == nil {
		e.sources = make(map[muxio.Handle]muxio.TransferSource)
	}
	e.sources[e.next] = src
	return e.next, nil
}

func (e *stubEngine) Close(handle muxio.Handle) {
	delete(e.sources, handle)
}

func (e *stubEngine) Add(handle muxio.Handle) error {
	e.active = append(e.active, handle)
	e.hooks.RequestTimer(0)
	return nil
}

func (e *stubEngine) Remove(handle muxio.Handle) error {
	for index, active := range e.active {
		if active == handle {
			e.active = append(e.active[:index], e.active[index+1:]...)
			break
		}
	}
	return nil
}

func (e *stubEngine) Advance(wakeup muxio.Wakeup) iter.Seq[muxio.Completion] {
	return func(yield func(muxio.Completion) bool) {
		pending := e.active
		e.active = nil
		e.hooks.RequestTimer(-1)
		for _, handle := range pending {
			src := e.sources[handle]
			_ = src.WriteHeader([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\n"))
			_ = src.WriteBody([]byte("hello from " + src.Options().URL))
			if !yield(muxio.Completion{Handle: handle}) {
				return
			}
		}
	}
}

// immediateTimer stands in for an event-loop timer by firing synchronously.
type immediateTimer struct{}

func (immediateTimer) Start(timeout time.Duration, onExpire func()) {
	onExpire()
}

func (immediateTimer) Stop() {}

// nopWatcher stands in for an event-loop socket watcher; the stub engine
// never requests socket watches.
type nopWatcher struct{}

func (nopWatcher) Watch(socket muxio.Socket, event muxio.Event, onReady muxio.ReadyFunc) {}

func (nopWatcher) StopWatching(socket muxio.Socket) {}

// Example shows the full flow: configure a connection, start it through
// the manager, and read the outcome from the finished callback.
func Example() {
	cfg := muxio.NewConfig()
	engine := &stubEngine{}
	manager := muxio.NewManager(cfg, engine, immediateTimer{}, nopWatcher{})

	conn, err := muxio.NewHTTPConn(cfg, engine)
	if err != nil {
		fmt.Println(err)
		return
	}
	conn.SetURL("http://example.com/")
	conn.SetFinishedCallback(func(c *muxio.Conn) {
		if c.Result() != nil {
			fmt.Println("failed:", c.Result())
			return
		}
		fmt.Printf("%d %s\n", conn.ResponseStatusCode(), c.ResponseBody())
	})

	manager.Start(conn.Conn)

	// Output:
	// 200 hello from http://example.com/
}
