package apu

import "sync"

// waitSet is the subsystem's single wait primitive: one counting
// semaphore per slot plus a manual-reset shutdown signal, collapsed into
// one mutex/cond pair so the "first ready, lowest index wins" rule is an
// explicit part of the code rather than an artifact of OS object
// ordering.
//
// A count models one "driver ready for more data" event not yet consumed
// by a dispatch. Counts never exceed MaxQueuedFrames.
type waitSet struct {
	mu       sync.Mutex
	cond     *sync.Cond
	counts   [MaxClients]int
	shutdown bool
}

func newWaitSet() *waitSet {
	ws := &waitSet{}
	ws.cond = sync.NewCond(&ws.mu)
	return ws
}

// signal adds one ready event for slot i, dropping it if the slot is
// already at MaxQueuedFrames outstanding. Safe to call from any
// goroutine, including driver device threads.
func (ws *waitSet) signal(i int) {
	ws.mu.Lock()
	if ws.counts[i] < MaxQueuedFrames {
		ws.counts[i]++
		ws.cond.Broadcast()
	}
	ws.mu.Unlock()
}

// release adds n ready events for slot i, capped at MaxQueuedFrames.
// Registration uses it to pre-arm a fresh slot.
func (ws *waitSet) release(i, n int) {
	ws.mu.Lock()
	ws.counts[i] += n
	if ws.counts[i] > MaxQueuedFrames {
		ws.counts[i] = MaxQueuedFrames
	}
	ws.cond.Broadcast()
	ws.mu.Unlock()
}

// wait blocks until some slot has a ready event or the shutdown signal is
// set. It consumes one event of the lowest ready slot and returns its
// index. A wake with no ready slot (shutdown) consumes nothing and
// returns ok == false.
func (ws *waitSet) wait() (index int, ok bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for {
		for i := range ws.counts {
			if ws.counts[i] > 0 {
				ws.counts[i]--
				return i, true
			}
		}
		if ws.shutdown {
			return 0, false
		}
		ws.cond.Wait()
	}
}

// tryAcquire consumes one ready event from slot i without blocking.
func (ws *waitSet) tryAcquire(i int) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.counts[i] > 0 {
		ws.counts[i]--
		return true
	}
	return false
}

// drain removes every pending event from slot i so a later reuse of the
// index starts from a clean signal state.
func (ws *waitSet) drain(i int) {
	ws.mu.Lock()
	ws.counts[i] = 0
	ws.mu.Unlock()
}

// count reports slot i's pending events.
func (ws *waitSet) count(i int) int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.counts[i]
}

// signalShutdown sets the manual-reset shutdown signal. It is never
// cleared.
func (ws *waitSet) signalShutdown() {
	ws.mu.Lock()
	ws.shutdown = true
	ws.cond.Broadcast()
	ws.mu.Unlock()
}
