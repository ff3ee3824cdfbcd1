package abi

import (
	"os"
	"testing"

	"mimic/alloc"
	"mimic/fsys"
	"mimic/task"
)

func newTestContext(t *testing.T) (*Dispatcher, *Context) {
	t.Helper()
	tasks := task.NewTable(4)
	tcb, err := tasks.Alloc("prog", 10)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	return NewDispatcher(), &Context{
		Task:   tcb,
		Tasks:  tasks,
		Kernel: alloc.NewPool(4096, 16),
		User:   alloc.NewPool(4096, 16),
		FS:     fsys.NewMemFS(),
	}
}

func TestDispatchUnknownSyscallIsNosys(t *testing.T) {
	d, ctx := newTestContext(t)
	if _, err := d.Call(999, [4]uint32{}, ctx); err == nil {
		t.Fatal("expected NOSYS error for unknown syscall")
	}
}

func TestDispatchMallocFree(t *testing.T) {
	d, ctx := newTestContext(t)
	ret, err := d.Call(SysMalloc, [4]uint32{128}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	if ctx.Task.AllocCount != 1 {
		t.Errorf("expected alloc_count 1, got %d", ctx.Task.AllocCount)
	}
	if _, err := d.Call(SysFree, [4]uint32{ret}, ctx); err != nil {
		t.Fatalf("free: %v", err)
	}
	if ctx.Task.FreeCount != 1 {
		t.Errorf("expected free_count 1, got %d", ctx.Task.FreeCount)
	}
}

func TestDispatchMallocOutOfMemoryReturnsZero(t *testing.T) {
	d, ctx := newTestContext(t)
	ret, err := d.Call(SysMalloc, [4]uint32{1 << 20}, ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ret != 0 {
		t.Errorf("expected null pointer on OOM, got %d", ret)
	}
}

func TestDispatchExitFreesMemoryAndKillsTask(t *testing.T) {
	d, ctx := newTestContext(t)
	if _, err := d.Call(SysMalloc, [4]uint32{64}, ctx); err != nil {
		t.Fatalf("malloc: %v", err)
	}
	id := ctx.Task.ID
	if _, err := d.Call(SysExit, [4]uint32{0}, ctx); err != nil {
		t.Fatalf("exit: %v", err)
	}
	tcb, err := ctx.Tasks.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tcb.State != task.StateFree {
		t.Errorf("expected task freed after exit, got %v", tcb.State)
	}
	if ctx.User.FreeBytes() != 4096 {
		t.Errorf("expected all memory reclaimed, got %d free", ctx.User.FreeBytes())
	}
}

func TestDispatchPeripheralSyscallsAreStubbedNosys(t *testing.T) {
	d, ctx := newTestContext(t)
	for _, n := range []uint32{SysGPIOInit, SysPWMInit, SysADCInit, SysSPIInit, SysI2CInit} {
		if _, err := d.Call(n, [4]uint32{}, ctx); err == nil {
			t.Errorf("syscall %d: expected NOSYS stub error", n)
		}
	}
}

func TestDispatchPutsReadsNulTerminatedString(t *testing.T) {
	d, ctx := newTestContext(t)
	addr, err := d.Call(SysMalloc, [4]uint32{32}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	msg := []byte("hi\x00")
	copy(ctx.User.Bytes()[addr:], msg)
	n, err := d.Call(SysPuts, [4]uint32{addr}, ctx)
	if err != nil {
		t.Fatalf("puts: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 bytes written, got %d", n)
	}
}

func TestDispatchReallocGrowsAndPreservesData(t *testing.T) {
	d, ctx := newTestContext(t)
	addr, err := d.Call(SysMalloc, [4]uint32{32}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	copy(ctx.User.Bytes()[addr:], []byte("payload"))

	newAddr, err := d.Call(SysRealloc, [4]uint32{addr, 128}, ctx)
	if err != nil {
		t.Fatalf("realloc: %v", err)
	}
	if got := string(ctx.User.Bytes()[newAddr : newAddr+7]); got != "payload" {
		t.Errorf("expected data preserved across realloc, got %q", got)
	}
}

func TestDispatchReallocNullPointerIsMalloc(t *testing.T) {
	d, ctx := newTestContext(t)
	if _, err := d.Call(SysRealloc, [4]uint32{0, 64}, ctx); err != nil {
		t.Fatalf("realloc: %v", err)
	}
	if ctx.Task.AllocCount != 1 {
		t.Errorf("expected realloc(NULL, n) to count as an alloc, got %d", ctx.Task.AllocCount)
	}
}

func TestDispatchReallocZeroSizeIsFree(t *testing.T) {
	d, ctx := newTestContext(t)
	addr, err := d.Call(SysMalloc, [4]uint32{32}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	if _, err := d.Call(SysRealloc, [4]uint32{addr, 0}, ctx); err != nil {
		t.Fatalf("realloc: %v", err)
	}
	if ctx.Task.FreeCount != 1 {
		t.Errorf("expected realloc(p, 0) to count as a free, got %d", ctx.Task.FreeCount)
	}
}

func TestDispatchOpenReadSeekClose(t *testing.T) {
	d, ctx := newTestContext(t)
	mem := ctx.FS.(*fsys.MemFS)
	mem.Put("/greeting.txt", []byte("hello world"))

	pathAddr, err := d.Call(SysMalloc, [4]uint32{32}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	copy(ctx.User.Bytes()[pathAddr:], []byte("/greeting.txt\x00"))

	fd, err := d.Call(SysOpen, [4]uint32{pathAddr, 1 /* READ */}, ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if fd == 0 {
		t.Fatal("expected non-zero file descriptor")
	}
	if len(ctx.Handles) != 1 {
		t.Errorf("expected 1 tracked handle, got %d", len(ctx.Handles))
	}

	bufAddr, err := d.Call(SysMalloc, [4]uint32{16}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	n, err := d.Call(SysRead, [4]uint32{fd, bufAddr, 5}, ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 5 || string(ctx.User.Bytes()[bufAddr:bufAddr+5]) != "hello" {
		t.Errorf("expected to read \"hello\", got %d bytes %q", n, ctx.User.Bytes()[bufAddr:bufAddr+n])
	}

	if _, err := d.Call(SysSeek, [4]uint32{fd, 6, 0 /* SET */}, ctx); err != nil {
		t.Fatalf("seek: %v", err)
	}
	n, err = d.Call(SysRead, [4]uint32{fd, bufAddr, 16}, ctx)
	if err != nil {
		t.Fatalf("read after seek: %v", err)
	}
	if string(ctx.User.Bytes()[bufAddr:bufAddr+n]) != "world" {
		t.Errorf("expected \"world\" after seek, got %q", ctx.User.Bytes()[bufAddr:bufAddr+n])
	}

	if _, err := d.Call(SysClose, [4]uint32{fd}, ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(ctx.Handles) != 0 {
		t.Errorf("expected handle removed after close, got %d remaining", len(ctx.Handles))
	}
	if _, err := d.Call(SysRead, [4]uint32{fd, bufAddr, 1}, ctx); err == nil {
		t.Error("expected error reading from a closed file descriptor")
	}
}

func TestDispatchOpenCreateWrite(t *testing.T) {
	d, ctx := newTestContext(t)
	mem := ctx.FS.(*fsys.MemFS)

	pathAddr, err := d.Call(SysMalloc, [4]uint32{32}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	copy(ctx.User.Bytes()[pathAddr:], []byte("/out.txt\x00"))

	fd, err := d.Call(SysOpen, [4]uint32{pathAddr, 8 /* CREATE */}, ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	bufAddr, err := d.Call(SysMalloc, [4]uint32{32}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	copy(ctx.User.Bytes()[bufAddr:], []byte("new file"))
	n, err := d.Call(SysWrite, [4]uint32{fd, bufAddr, 8}, ctx)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != 8 {
		t.Errorf("expected 8 bytes written, got %d", n)
	}
	if _, err := d.Call(SysClose, [4]uint32{fd}, ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !mem.Exists("/out.txt") {
		t.Fatal("expected SysOpen with CREATE to create the file")
	}
}

func TestDispatchOpenUnknownFileIsNoent(t *testing.T) {
	d, ctx := newTestContext(t)
	pathAddr, err := d.Call(SysMalloc, [4]uint32{32}, ctx)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	copy(ctx.User.Bytes()[pathAddr:], []byte("/nope\x00"))
	if _, err := d.Call(SysOpen, [4]uint32{pathAddr, 1 /* READ */}, ctx); err == nil {
		t.Fatal("expected error opening a nonexistent file")
	}
}

func TestDispatchGetcharReturnsMinusOneOnEOF(t *testing.T) {
	d, ctx := newTestContext(t)
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	w.Close()
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()

	ret, err := d.Call(SysGetchar, [4]uint32{}, ctx)
	if err != nil {
		t.Fatalf("getchar: %v", err)
	}
	if ret != 0xFFFFFFFF {
		t.Errorf("expected -1 on EOF, got %d", ret)
	}
}

func TestSyscallNameLookup(t *testing.T) {
	if Name(SysMalloc) != "malloc" {
		t.Errorf("expected malloc, got %q", Name(SysMalloc))
	}
	if Name(12345) != "" {
		t.Errorf("expected empty name for unknown syscall, got %q", Name(12345))
	}
}
