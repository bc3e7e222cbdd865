package setaside

import (
	"context"
	"sync"
)

// KeyedQueue runs submitted functions one at a time per key, in submission order.
// Functions for different keys run concurrently. Each busy key is drained by its own
// goroutine, which exits once the key's chain is empty.
type KeyedQueue struct {
	mu     sync.Mutex
	idle   *sync.Cond
	chains map[string][]func()
}

// NewKeyedQueue returns an empty queue.
func NewKeyedQueue() *KeyedQueue {
	q := &KeyedQueue{chains: make(map[string][]func())}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Submit appends fn to key's chain without waiting for it to run.
func (q *KeyedQueue) Submit(key string, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	chain, busy := q.chains[key]
	q.chains[key] = append(chain, fn)
	if !busy {
		go q.run(key)
	}
}

// Do runs fn in key's chain and waits for its result. If ctx ends first Do returns
// ctx.Err(); fn still runs when its turn comes. fn must not call Do for the same key.
func (q *KeyedQueue) Do(ctx context.Context, key string, fn func() error) error {
	done := make(chan error, 1)
	q.Submit(key, func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until no key has pending work.
func (q *KeyedQueue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.chains) > 0 {
		q.idle.Wait()
	}
}

// Busy reports how many keys have pending work.
func (q *KeyedQueue) Busy() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chains)
}

func (q *KeyedQueue) run(key string) {
	for {
		q.mu.Lock()
		chain := q.chains[key]
		if len(chain) == 0 {
			delete(q.chains, key)
			q.idle.Broadcast()
			q.mu.Unlock()
			return
		}
		fn := chain[0]
		chain[0] = nil
		q.chains[key] = chain[1:]
		q.mu.Unlock()

		fn()
	}
}
