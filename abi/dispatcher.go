package abi

import (
	"io"
	"os"

	"mimic/alloc"
	"mimic/fsys"
	"mimic/mkerr"
	"mimic/task"
)

// Open-mode bits for SysOpen's args[1], matching
// original_source/Test-01/mimic_fat32.h's MIMIC_FILE_* flags.
const (
	openRead   uint32 = 1 << iota // 1
	openWrite                     // 2
	openAppend                    // 4
	openCreate                    // 8
	openTrunc                     // 16
)

// Context bundles everything a syscall handler needs: the calling task, its
// owning pools (so SysMalloc/SysFree can route to the user pool with the
// task's id as owner), the task table (for exit/yield/sleep), and the
// filesystem collaborator.
type Context struct {
	Task   *task.TCB
	Tasks  *task.Table
	Kernel *alloc.Pool
	User   *alloc.Pool
	FS     fsys.FS
	NowMs  uint64

	// Handles maps a task-local file descriptor to an open fsys.Handle,
	// populated by SysOpen and removed by SysClose. Callers construct a
	// Context with this already allocated (see cmd/mimirun); fd 0 is never
	// issued so a task's own zero-valued locals can't alias a real handle.
	Handles map[uint32]fsys.Handle
	nextFD  uint32
}

// Handler services one syscall number.
type Handler func(args [4]uint32, ctx *Context) (ret uint32, err error)

// Dispatcher routes syscall numbers to handlers, matching §6's ABI: unknown
// numbers return NOSYS rather than panicking, since a user task's r7 is
// untrusted input.
type Dispatcher struct {
	handlers map[uint32]Handler
}

// NewDispatcher builds a Dispatcher with the core task/memory/I/O handlers
// wired in, plus NOSYS stubs for the hardware-peripheral syscalls (40-82):
// the symbol space is reserved so the compiler can still emit SYSCALL
// relocations against them, but no driver backs them on a host (spec.md §1
// Non-goals exclude real peripheral access).
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: make(map[uint32]Handler)}
	d.handlers[SysExit] = hExit
	d.handlers[SysYield] = hYield
	d.handlers[SysSleep] = hSleep
	d.handlers[SysTime] = hTime
	d.handlers[SysMalloc] = hMalloc
	d.handlers[SysFree] = hFree
	d.handlers[SysRealloc] = hRealloc
	d.handlers[SysOpen] = hOpen
	d.handlers[SysClose] = hClose
	d.handlers[SysRead] = hRead
	d.handlers[SysWrite] = hWrite
	d.handlers[SysSeek] = hSeek
	d.handlers[SysPutchar] = hPutchar
	d.handlers[SysGetchar] = hGetchar
	d.handlers[SysPuts] = hPuts
	for _, n := range []uint32{
		SysGPIOInit, SysGPIODir, SysGPIOPut, SysGPIOGet, SysGPIOPull,
		SysPWMInit, SysPWMSetWrap, SysPWMSetLevel, SysPWMEnable,
		SysADCInit, SysADCSelect, SysADCRead, SysADCTemp,
		SysSPIInit, SysSPIWrite, SysSPIRead, SysSPITransfer,
		SysI2CInit, SysI2CWrite, SysI2CRead,
	} {
		d.handlers[n] = hNotImplemented
	}
	return d
}

// Call dispatches num. A number with no registered handler returns a
// KindNosys error, mapped by mkerr to spec §7's NOSYS kind.
func (d *Dispatcher) Call(num uint32, args [4]uint32, ctx *Context) (uint32, error) {
	h, ok := d.handlers[num]
	if !ok {
		return 0, mkerr.New(mkerr.KindNosys, "abi: unknown syscall %d", num)
	}
	return h(args, ctx)
}

func hExit(args [4]uint32, ctx *Context) (uint32, error) {
	if err := ctx.Tasks.Exit(ctx.Task.ID); err != nil {
		return 0, err
	}
	ctx.User.FreeAllOwnedBy(ctx.Task.ID)
	return 0, ctx.Tasks.Kill(ctx.Task.ID)
}

func hYield(args [4]uint32, ctx *Context) (uint32, error) {
	ctx.Tasks.Yield(ctx.NowMs)
	return 0, nil
}

func hSleep(args [4]uint32, ctx *Context) (uint32, error) {
	return 0, ctx.Tasks.Sleep(ctx.Task.ID, ctx.NowMs, uint64(args[0]))
}

func hTime(args [4]uint32, ctx *Context) (uint32, error) {
	return uint32(ctx.NowMs), nil
}

func hMalloc(args [4]uint32, ctx *Context) (uint32, error) {
	addr, err := ctx.User.Allocate(args[0], ctx.Task.ID)
	if err != nil {
		return 0, nil // spec: malloc failure returns a null pointer, not a trap
	}
	ctx.Task.AllocCount++
	return addr, nil
}

func hFree(args [4]uint32, ctx *Context) (uint32, error) {
	if args[0] == 0 {
		return 0, nil
	}
	if err := ctx.User.Free(args[0]); err != nil {
		return 0, err
	}
	ctx.Task.FreeCount++
	return 0, nil
}

// hRealloc grows or shrinks the block at args[0] to args[1] bytes. Unlike
// the other memory syscalls this has no original_source kernel.c case to
// translate — MimiC never implemented it either — so it follows the usual
// libc realloc contract: a null old pointer behaves as malloc, a zero size
// behaves as free, and a resize that can't grow in place copies into a
// fresh block and frees the old one.
func hRealloc(args [4]uint32, ctx *Context) (uint32, error) {
	addr, size := args[0], args[1]
	if addr == 0 {
		return hMalloc([4]uint32{size}, ctx)
	}
	if size == 0 {
		_, err := hFree(args, ctx)
		return 0, err
	}
	var old alloc.Block
	found := false
	for _, b := range ctx.User.Blocks() {
		if b.Addr == addr {
			old, found = b, true
			break
		}
	}
	if !found {
		return 0, mkerr.New(mkerr.KindInval, "abi: realloc of unknown address %d", addr)
	}
	if size <= old.Size {
		return addr, nil
	}
	newAddr, err := ctx.User.Allocate(size, ctx.Task.ID)
	if err != nil {
		return 0, nil // spec: failure returns a null pointer, like malloc
	}
	arena := ctx.User.Bytes()
	copy(arena[newAddr:], arena[addr:addr+old.Size])
	if err := ctx.User.Free(addr); err != nil {
		return 0, err
	}
	return newAddr, nil
}

// openMode translates SysOpen's args[1] flag bitmask to fsys.Mode, which
// distinguishes only read/write/create. APPEND and TRUNC have no direct
// fsys.Mode counterpart; APPEND is handled by seeking to end after opening
// and TRUNC is folded into openCreate (fsys.Create already truncates).
func openMode(flags uint32) fsys.Mode {
	switch {
	case flags&(openCreate|openTrunc) != 0:
		return fsys.Create
	case flags&openWrite != 0:
		return fsys.ReadWrite
	default:
		return fsys.ReadOnly
	}
}

// readCString reads a NUL-terminated string out of arena starting at addr,
// the same bounds-checked scan hPuts uses to walk a string the other way.
func readCString(arena []byte, addr uint32) (string, error) {
	if int(addr) >= len(arena) {
		return "", mkerr.New(mkerr.KindInval, "abi: address %d out of range", addr)
	}
	end := addr
	for int(end) < len(arena) && arena[end] != 0 {
		end++
	}
	if int(end) >= len(arena) {
		return "", mkerr.New(mkerr.KindInval, "abi: string at %d is not NUL-terminated", addr)
	}
	return string(arena[addr:end]), nil
}

// hOpen opens the NUL-terminated path at args[0] with the flag bitmask
// args[1] and returns a task-local file descriptor, translated against
// Context.FS and recorded in Context.Handles for the matching SysRead/
// SysWrite/SysSeek/SysClose to look up.
func hOpen(args [4]uint32, ctx *Context) (uint32, error) {
	path, err := readCString(ctx.User.Bytes(), args[0])
	if err != nil {
		return 0, err
	}
	flags := args[1]
	h, err := ctx.FS.Open(path, openMode(flags))
	if err != nil {
		return 0, err
	}
	if flags&openAppend != 0 {
		if _, err := h.Seek(0, io.SeekEnd); err != nil {
			h.Close()
			return 0, mkerr.Wrap(mkerr.KindIO, err, "open %s: seek to end for append", path)
		}
	}
	if ctx.Handles == nil {
		ctx.Handles = make(map[uint32]fsys.Handle)
	}
	ctx.nextFD++
	fd := ctx.nextFD
	ctx.Handles[fd] = h
	return fd, nil
}

// handle looks up a task-local file descriptor, the lookup hClose/hRead/
// hWrite/hSeek all share.
func handle(ctx *Context, fd uint32) (fsys.Handle, error) {
	h, ok := ctx.Handles[fd]
	if !ok {
		return nil, mkerr.New(mkerr.KindInval, "abi: unknown file descriptor %d", fd)
	}
	return h, nil
}

func hClose(args [4]uint32, ctx *Context) (uint32, error) {
	h, err := handle(ctx, args[0])
	if err != nil {
		return 0, err
	}
	delete(ctx.Handles, args[0])
	if err := h.Close(); err != nil {
		return 0, mkerr.Wrap(mkerr.KindIO, err, "close")
	}
	return 0, nil
}

// hRead reads up to args[2] bytes from fd args[0] into the arena at args[1].
// A short read at end of file is not an error: the byte count returned is
// the signal, 0 meaning EOF, matching spec §6's read contract.
func hRead(args [4]uint32, ctx *Context) (uint32, error) {
	h, err := handle(ctx, args[0])
	if err != nil {
		return 0, err
	}
	arena := ctx.User.Bytes()
	addr, n := args[1], args[2]
	if int(addr)+int(n) > len(arena) {
		return 0, mkerr.New(mkerr.KindInval, "abi: read buffer at %d+%d out of range", addr, n)
	}
	got, err := h.Read(arena[addr : addr+n])
	if err != nil && err != io.EOF {
		return 0, mkerr.Wrap(mkerr.KindIO, err, "read")
	}
	return uint32(got), nil
}

// hWrite writes args[2] bytes from the arena at args[1] to fd args[0]. A
// short write is promoted to a KindIO error, per spec §6.
func hWrite(args [4]uint32, ctx *Context) (uint32, error) {
	h, err := handle(ctx, args[0])
	if err != nil {
		return 0, err
	}
	arena := ctx.User.Bytes()
	addr, n := args[1], args[2]
	if int(addr)+int(n) > len(arena) {
		return 0, mkerr.New(mkerr.KindInval, "abi: write buffer at %d+%d out of range", addr, n)
	}
	wrote, err := h.Write(arena[addr : addr+n])
	if err != nil {
		return 0, mkerr.Wrap(mkerr.KindIO, err, "write")
	}
	if uint32(wrote) != n {
		return uint32(wrote), mkerr.New(mkerr.KindIO, "abi: short write (%d of %d bytes)", wrote, n)
	}
	return uint32(wrote), nil
}

// hSeek repositions fd args[0] by args[1] relative to whence args[2].
// MIMIC_SEEK_SET/CUR/END (0/1/2) match io.SeekStart/Current/End exactly, so
// no translation is needed.
func hSeek(args [4]uint32, ctx *Context) (uint32, error) {
	h, err := handle(ctx, args[0])
	if err != nil {
		return 0, err
	}
	off, err := h.Seek(int64(int32(args[1])), int(args[2]))
	if err != nil {
		return 0, mkerr.Wrap(mkerr.KindIO, err, "seek")
	}
	return uint32(off), nil
}

func hPutchar(args [4]uint32, ctx *Context) (uint32, error) {
	os.Stdout.Write([]byte{byte(args[0])})
	return args[0], nil
}

// hGetchar reads one byte from stdin, returning 0xFFFFFFFF (-1 as the
// interpreter's 32-bit word) on EOF, mirroring C getchar's int return.
func hGetchar(args [4]uint32, ctx *Context) (uint32, error) {
	var b [1]byte
	if _, err := os.Stdin.Read(b[:]); err != nil {
		return 0xFFFFFFFF, nil
	}
	return uint32(b[0]), nil
}

// hPuts writes the NUL-terminated string at args[0] (an address within the
// task's user-pool arena) to stdout.
func hPuts(args [4]uint32, ctx *Context) (uint32, error) {
	arena := ctx.User.Bytes()
	addr := args[0]
	if int(addr) >= len(arena) {
		return 0, mkerr.New(mkerr.KindInval, "abi: puts address %d out of range", addr)
	}
	end := addr
	for int(end) < len(arena) && arena[end] != 0 {
		end++
	}
	n, err := os.Stdout.Write(arena[addr:end])
	if err != nil {
		return 0, mkerr.Wrap(mkerr.KindIO, err, "puts")
	}
	return uint32(n), nil
}

func hNotImplemented(args [4]uint32, ctx *Context) (uint32, error) {
	return 0, mkerr.New(mkerr.KindNosys, "abi: peripheral syscall has no host-side driver")
}
