// Copyright (C) 2025-2026, Chainkit Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bus is the control bus: the single dispatch point spec.md §5
// requires, delivering every message (gossip arrival, fetch response, peer
// up/down, timer tick) to component reducers in arrival order. It is
// grounded on the teacher's networking/router.ChainRouter dispatch
// discipline, realized in Go as one buffered channel drained by one
// goroutine rather than a literal event loop.
package bus

import (
	"context"
	"sync"

	"github.com/luxfi/log"
)

// Message is anything the bus can dispatch. Handlers type-switch on the
// concrete type; this keeps the bus itself free of domain knowledge about
// the reactor, accumulator, synchronizer or peer book.
type Message interface{}

// Handler processes one message. Handlers run on the bus's single dispatch
// goroutine and must never block on I/O (spec.md §5 "Suspension points");
// long-running work is dispatched to a worker and its result re-enters the
// bus as a new Message.
type Handler func(ctx context.Context, msg Message)

// Bus is the control bus.
type Bus struct {
	log      log.Logger
	queue    chan Message
	handlers []Handler

	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// New creates a Bus with the given inbound buffer size. A larger buffer
// absorbs bursts (e.g. a batch of gossip arrivals) without blocking
// producers; messages are still drained and handled strictly FIFO.
func New(logger log.Logger, bufferSize int) *Bus {
	return &Bus{
		log:   logger,
		queue: make(chan Message, bufferSize),
	}
}

// Subscribe registers a handler invoked for every message, in registration
// order, once per message. Subscribers must be registered before Start.
func (b *Bus) Subscribe(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Post enqueues msg for dispatch. Safe to call from any goroutine,
// including worker tasks returning a fetch result.
func (b *Bus) Post(msg Message) {
	b.queue <- msg
}

// Start launches the single dispatch goroutine. Messages across components
// have no guaranteed relative ordering beyond "same queue, same goroutine,
// FIFO" (spec.md §5); it is the handlers' job to discard stale messages
// (e.g. a response for a retired builder).
func (b *Bus) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	go b.run(ctx)
}

func (b *Bus) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return
		case msg := <-b.queue:
			b.dispatch(ctx, msg)
		}
	}
}

// drain delivers any messages already queued before shutdown completes, so
// a response that arrived just before Stop is not silently lost.
func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case msg := <-b.queue:
			b.dispatch(ctx, msg)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, msg Message) {
	for _, h := range b.handlers {
		h(ctx, msg)
	}
}

// Stop signals the dispatch goroutine to drain and exit, and waits for it.
func (b *Bus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}
