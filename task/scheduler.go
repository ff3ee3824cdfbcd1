package task

// Tick is the cooperative scheduler's pick step (mimic_kernel.c's
// scheduler_tick): wake any SLEEPING task whose wake_time has passed, then
// select the lowest-priority-number READY task (ties broken by the lower
// task id), falling back to the idle task (slot 0, priority 255) when
// nothing else is ready. The previously running task, if still RUNNING, is
// demoted back to READY — this function never itself blocks or sleeps.
func (t *Table) Tick(nowMs uint64) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.tasks {
		tcb := &t.tasks[i]
		if tcb.State == StateSleeping && nowMs >= tcb.WakeTime {
			tcb.State = StateReady
		}
	}

	bestIdx := 0
	bestPrio := uint8(IdlePriority)
	for i := range t.tasks {
		tcb := &t.tasks[i]
		if tcb.State != StateReady {
			continue
		}
		if tcb.Priority < bestPrio {
			bestIdx = i
			bestPrio = tcb.Priority
		}
	}

	if int(t.current) < len(t.tasks) && t.tasks[t.current].State == StateRunning {
		t.tasks[t.current].State = StateReady
	}

	t.tasks[bestIdx].State = StateRunning
	t.current = uint32(bestIdx)
	return t.current
}

// Yield puts the current task back to READY (if it still is RUNNING) and
// asks Tick to pick the next task to run. Spec §5.C: yield is a suspension
// point, not a block.
func (t *Table) Yield(nowMs uint64) uint32 {
	return t.Tick(nowMs)
}

// Sleep transitions the current task to SLEEPING until nowMs+durMs, then
// reschedules.
func (t *Table) Sleep(id uint32, nowMs, durMs uint64) error {
	tcb, err := t.Get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	tcb.State = StateSleeping
	tcb.WakeTime = nowMs + durMs
	t.mu.Unlock()
	t.Tick(nowMs)
	return nil
}

// Block transitions the current task to BLOCKED, e.g. for a blocking I/O
// syscall (spec §5.C); the caller is responsible for transitioning it back
// to READY once the operation completes.
func (t *Table) Block(id uint32) error {
	tcb, err := t.Get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	tcb.State = StateBlocked
	t.mu.Unlock()
	return nil
}

// Unblock transitions a BLOCKED task back to READY.
func (t *Table) Unblock(id uint32) error {
	tcb, err := t.Get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if tcb.State == StateBlocked {
		tcb.State = StateReady
	}
	t.mu.Unlock()
	return nil
}

// Exit marks the current task ZOMBIE; the caller (the owning kernel loop)
// is expected to call Kill once resource teardown (pool FreeAllOwnedBy)
// completes, matching mimic_task_exit's split between zombification and
// the later mimic_task_kill sweep.
func (t *Table) Exit(id uint32) error {
	tcb, err := t.Get(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	tcb.State = StateZombie
	t.mu.Unlock()
	return nil
}
