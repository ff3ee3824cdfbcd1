// Package task implements the fixed-capacity task table and cooperative
// priority scheduler (spec §5), translated from
// original_source/Test-01/mimic.h's MimicTCB/MimicTaskState and
// mimic_kernel.c's task_alloc/task_kill/scheduler_tick family. Suspension
// only ever happens at the call sites the spec names (Yield, Sleep, Kill,
// blocked I/O) — there is no preemption here, matching the cooperative
// model.
package task

import (
	"sync"

	"mimic/mkerr"
)

// State is a task's position in its lifecycle (spec §5.A).
type State uint8

const (
	StateFree State = iota
	StateReady
	StateRunning
	StateBlocked
	StateSleeping
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSleeping:
		return "sleeping"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// IdlePriority is the fallback priority the idle task runs at: it is only
// ever picked when no other task is ready (spec §5.B).
const IdlePriority = 255

// MemLayout records the section/stack/heap offsets the loader filled in
// within the task's allocated arena (spec §6).
type MemLayout struct {
	Base      uint32
	TotalSize uint32

	TextStart, TextSize     uint32
	RodataStart, RodataSize uint32
	DataStart, DataSize     uint32
	BSSStart, BSSSize       uint32

	HeapStart, HeapSize, HeapUsed uint32
	StackTop, StackSize           uint32
}

// TCB is one task control block.
type TCB struct {
	ID       uint32
	Name     string
	State    State
	Priority uint8

	Entry uint32
	Mem   MemLayout

	WakeTime    uint64
	TotalTimeUs uint64

	AllocCount, FreeCount, SyscallCount uint32

	SP   uint32
	Regs [16]uint32
}

// Table is the fixed-capacity task vector plus the scheduler's bookkeeping.
// Slot 0 is reserved for the idle task, matching the kernel's own
// always-present task 0 (mimic_kernel.c's task_init).
type Table struct {
	mu      sync.Mutex
	tasks   []TCB
	current uint32
}

// NewTable creates a table with capacity slots, with slot 0 pre-populated
// as the running idle task.
func NewTable(capacity int) *Table {
	if capacity < 1 {
		capacity = 1
	}
	t := &Table{tasks: make([]TCB, capacity)}
	t.tasks[0] = TCB{ID: 0, Name: "idle", State: StateRunning, Priority: IdlePriority}
	return t
}

// Alloc reserves the first FREE slot, other than slot 0, and marks it READY.
func (t *Table) Alloc(name string, priority uint8) (*TCB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 1; i < len(t.tasks); i++ {
		if t.tasks[i].State == StateFree {
			t.tasks[i] = TCB{
				ID:       uint32(i),
				Name:     name,
				State:    StateReady,
				Priority: priority,
			}
			return &t.tasks[i], nil
		}
	}
	return nil, mkerr.New(mkerr.KindNomem, "task table: no free slots (capacity %d)", len(t.tasks))
}

// Get returns a pointer to the TCB for id, or an error if out of range.
func (t *Table) Get(id uint32) (*TCB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == 0 || int(id) >= len(t.tasks) {
		return nil, mkerr.New(mkerr.KindInval, "task table: id %d out of range", id)
	}
	return &t.tasks[id], nil
}

// Kill transitions a task straight to FREE. Memory release is the caller's
// responsibility (the loader/allocator own that, not the task table —
// matching mimic_task_kill's ordering of free-memory-then-clear-state, kept
// as two separate steps at this package boundary).
func (t *Table) Kill(id uint32) error {
	if id == 0 {
		return mkerr.New(mkerr.KindInval, "task table: cannot kill the idle task")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(id) >= len(t.tasks) {
		return mkerr.New(mkerr.KindInval, "task table: id %d out of range", id)
	}
	tcb := &t.tasks[id]
	if tcb.State == StateFree {
		return nil
	}
	*tcb = TCB{ID: id}
	tcb.State = StateFree
	return nil
}

// Current returns the id of the currently running task.
func (t *Table) Current() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Count returns the number of non-FREE tasks, including idle.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, tcb := range t.tasks {
		if tcb.State != StateFree {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of every non-FREE TCB, for cmd/mimidump and tests.
func (t *Table) Snapshot() []TCB {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TCB, 0, len(t.tasks))
	for _, tcb := range t.tasks {
		if tcb.State != StateFree {
			out = append(out, tcb)
		}
	}
	return out
}
