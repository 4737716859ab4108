// SPDX-License-Identifier: GPL-2.0-only

package bridge

import (
	"sync"
	"time"

	"github.com/tamias/usbbridge/provider"
)

// completionQueueSize bounds the per-context queue of finished transfers
// awaiting a HandleEvents call. Provider callbacks block once it is full.
const completionQueueSize = 64

type completion struct {
	transfer *Transfer
	result   provider.TransferResult
	err      error
}

// Context tracks the asynchronous transfers in flight on behalf of one
// caller. A transfer belongs to at most one Context at a time: it is
// registered on submission and removed exactly once, by whichever of
// completion, cancellation or explicit free gets there first. Two Contexts
// are fully independent and must not share transfers.
type Context struct {
	mu      sync.Mutex
	pending map[*Transfer]provider.CancelFunc

	completed chan completion
}

func newContext() *Context {
	return &Context{
		pending:   make(map[*Transfer]provider.CancelFunc),
		completed: make(chan completion, completionQueueSize),
	}
}

// addPending registers a transfer before its request is handed to the
// provider, so that a completion racing the submission still finds it.
func (c *Context) addPending(t *Transfer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[t]; ok {
		panic("bridge: transfer submitted twice")
	}
	c.pending[t] = nil
}

// setCancel attaches the provider's cancellation handle to a pending
// transfer. The transfer may already have completed; in that case the handle
// is dropped.
func (c *Context) setCancel(t *Transfer, cancel provider.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[t]; ok {
		c.pending[t] = cancel
	}
}

// removePending deregisters a transfer without producing a completion event.
// Used by failed submissions and by FreeTransfer.
func (c *Context) removePending(t *Transfer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, t)
}

// callbackFor returns the one-shot completion callback bound to a transfer.
// The callback only enqueues; user code runs later, from HandleEvents. A
// completion arriving after the transfer was cancelled or freed is dropped.
func (c *Context) callbackFor(t *Transfer) provider.TransferCallback {
	return func(result provider.TransferResult, err error) {
		c.mu.Lock()
		_, ok := c.pending[t]
		if ok {
			delete(c.pending, t)
		}
		c.mu.Unlock()
		if ok {
			c.completed <- completion{transfer: t, result: result, err: err}
		}
	}
}

// cancel removes a transfer from the pending set and queues a cancelled
// completion for it. It reports false when the transfer is not pending,
// which covers both unknown transfers and ones that already completed but
// have not been dequeued yet; the two cases are indistinguishable on
// purpose.
func (c *Context) cancel(t *Transfer) bool {
	c.mu.Lock()
	cancelFn, ok := c.pending[t]
	if ok {
		delete(c.pending, t)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if cancelFn != nil {
		cancelFn()
	}
	c.completed <- completion{transfer: t, err: provider.ErrCancelled}
	return true
}

// waitCompleted blocks until one completed transfer is available or the
// timeout elapses.
func (c *Context) waitCompleted(timeout time.Duration) (completion, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case comp := <-c.completed:
		return comp, true
	case <-timer.C:
		return completion{}, false
	}
}
