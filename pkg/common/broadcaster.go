package common

import (
	"errors"
	"sync"
)

// Errors that may occur when handing a job to a Broadcaster.
var (
	ErrBroadcasterClosed  = errors.New("broadcaster is closed")
	ErrBroadcasterTooBusy = errors.New("broadcaster is already overloaded")
)

// BroadcasterConfig configures a bounded async dispatcher used to run jobs that must not
// execute while a caller holds one of the conference's mutexes (e.g. delivering a per-call
// JSON blob, which may block on a slow transport). This stands in for the "shared I/O
// thread-pool" that layout broadcasts are dispatched onto.
type BroadcasterConfig struct {
	// The size of the bounded channel of pending jobs.
	ChannelSize int
}

// We need to wrap the channel in a struct so that we can close it from the outside and
// check by the sender if the channel is closed (there is no elegant way to do it in Go).
type Broadcaster struct {
	channel chan<- func()
	mutex   sync.Mutex
	closed  bool
}

// Stop the broadcaster unless already closed. Jobs already queued are still run.
func (b *Broadcaster) Stop() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.closed {
		close(b.channel)
		b.closed = true
	}
}

// Dispatch queues a job for asynchronous execution. Never blocks: if the queue is full the
// job is dropped and ErrBroadcasterTooBusy is returned so the caller can log it.
func (b *Broadcaster) Dispatch(job func()) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return ErrBroadcasterClosed
	}

	select {
	case b.channel <- job:
		return nil
	default:
		return ErrBroadcasterTooBusy
	}
}

// StartBroadcaster starts a goroutine that runs jobs handed to it via Dispatch, one at a
// time, in submission order. It stops once Stop is called.
func StartBroadcaster(c BroadcasterConfig) *Broadcaster {
	incoming := make(chan func(), c.ChannelSize)

	go func() {
		for job := range incoming {
			job()
		}
	}()

	return &Broadcaster{channel: incoming}
}
