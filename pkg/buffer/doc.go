/*
Package buffer implements the per-worker command buffer: a bounded FIFO with
exactly one consumer goroutine.

Every mutation of a worker's in-memory authorization graph flows through the
buffer, which is what makes the graph safe without locks: producers (the
concurrent RPC server handlers) enqueue, the single consumer executes tasks
strictly in enqueue order, and no two tasks ever run in parallel.

	producers (RPC handlers)          consumer (one goroutine)
	   Enqueue ──┐
	   Enqueue ──┼──▶ [ bounded FIFO ] ──▶ task() ──▶ Completion
	   Enqueue ──┘

Backpressure: when the queue is full, Enqueue blocks up to the configured
timeout and then fails with Overloaded; TryEnqueue fails immediately.

Cancellation: a caller cancel that arrives while the item is still queued
resolves the completion as Cancelled without running the task. A task that
has started always runs to completion; handlers are not interruptible.
*/
package buffer
