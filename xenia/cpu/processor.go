package cpu

import (
	"fmt"
	"sync"
)

// ThreadState is the persistent execution context a host-side worker
// thread uses when entering guest code. Each worker owns exactly one and
// reuses it for every call.
type ThreadState struct {
	name      string
	stackSize uint32
}

// NewThreadState creates a context for a named host worker with the given
// guest stack size.
func NewThreadState(name string, stackSize uint32) *ThreadState {
	return &ThreadState{name: name, stackSize: stackSize}
}

func (ts *ThreadState) Name() string { return ts.name }

// Processor runs translated guest code.
type Processor interface {
	// Execute runs the guest function at entry with the given arguments
	// and returns its result. ts must be owned by the calling goroutine.
	Execute(ts *ThreadState, entry uint32, args []uint64) (uint64, error)
}

// GuestFunc is a host function standing in for guest code at some entry
// address.
type GuestFunc func(ts *ThreadState, args []uint64) uint64

// FuncTable is a Processor backed by a table of host functions keyed by
// guest entry address. It takes the place of the code translator when the
// subsystem runs outside a full emulator (tests, the demo CLI).
type FuncTable struct {
	mu    sync.RWMutex
	funcs map[uint32]GuestFunc
}

func NewFuncTable() *FuncTable {
	return &FuncTable{funcs: make(map[uint32]GuestFunc)}
}

// Register installs fn at the given guest entry address, replacing any
// previous registration.
func (t *FuncTable) Register(entry uint32, fn GuestFunc) {
	t.mu.Lock()
	t.funcs[entry] = fn
	t.mu.Unlock()
}

func (t *FuncTable) Execute(ts *ThreadState, entry uint32, args []uint64) (uint64, error) {
	t.mu.RLock()
	fn := t.funcs[entry]
	t.mu.RUnlock()

	if fn == nil {
		return 0, fmt.Errorf("cpu: no guest function at %#x", entry)
	}
	return fn(ts, args), nil
}

var _ Processor = (*FuncTable)(nil)
