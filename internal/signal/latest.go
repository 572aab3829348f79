package signal

import "sync"

// Latest is a single-slot mailbox between the detection sampler and the
// render loop. The sampler overwrites the slot on every sample; the render
// loop takes it at most once, so a signal is never consumed twice and stale
// signals are dropped rather than queued.
type Latest struct {
	mu     sync.Mutex
	sig    ControlSignal
	fresh  bool
	puts   uint64
	absent uint64
}

// Put publishes a sample. A nil sig records an absent sample, which clears
// any signal not yet taken.
func (l *Latest) Put(sig *ControlSignal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.puts++
	if sig == nil {
		l.absent++
		l.fresh = false
		return
	}
	l.sig = *sig
	l.fresh = true
}

// Take returns the signal published since the previous Take, or nil if there
// is none.
func (l *Latest) Take() *ControlSignal {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.fresh {
		return nil
	}
	l.fresh = false
	sig := l.sig
	return &sig
}

// Counts returns how many samples were published and how many were absent.
func (l *Latest) Counts() (puts, absent uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.puts, l.absent
}
